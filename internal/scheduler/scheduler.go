// Package scheduler runs recurring maintenance jobs on fixed intervals.
// The daemon uses it for housekeeping that should not live inside the
// chat loop, like trimming old audit records
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lanternops/lanternbot/internal/logger"
)

// Job is a named task executed on its own interval. The first run
// happens one interval after Start, not immediately
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs registered jobs until its context is cancelled
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	log     *logger.Logger
	running bool
}

func New(log *logger.Logger) *Scheduler {
	return &Scheduler{log: log.WithComponent("scheduler")}
}

// Add registers a job. Jobs added after Start are ignored
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || job.Run == nil || job.Interval <= 0 {
		return
	}
	s.jobs = append(s.jobs, job)
}

// Jobs returns the names of registered jobs
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start launches one goroutine per job and returns. Job errors are
// logged and the job keeps its schedule
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		go s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				s.log.Warn("job %s failed: %v", job.Name, err)
				continue
			}
			s.log.Debug("job %s completed in %s", job.Name, time.Since(start).Round(time.Millisecond))
		}
	}
}
