package bot

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/lanternops/lanternbot/internal/chat"
	"github.com/lanternops/lanternbot/internal/config"
	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/metrics"
	"github.com/lanternops/lanternbot/internal/ratelimit"
	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/internal/store"
	"github.com/lanternops/lanternbot/pkg/types"
)

// Bot ties the workspace transport to the dispatcher: it reads events
// addressed to the bot, runs each command on a bounded worker, and posts the
// reply from inside the same worker
type Bot struct {
	cfg     *config.Config
	chat    *chat.Client
	disp    *Dispatcher
	helper  *resource.Helper
	store   *store.SQLiteStore
	limiter *ratelimit.Limiter
	stats   *metrics.Collector
	log     *logger.Logger
	sem     *semaphore.Weighted
	busy    atomic.Int64
}

// New wires a bot. st may be nil to run without persistence
func New(cfg *config.Config, chatClient *chat.Client, disp *Dispatcher, helper *resource.Helper, st *store.SQLiteStore, log *logger.Logger) *Bot {
	workers := cfg.Dispatcher.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Bot{
		cfg:     cfg,
		chat:    chatClient,
		disp:    disp,
		helper:  helper,
		store:   st,
		limiter: ratelimit.New(cfg.Dispatcher.RateLimit),
		stats:   metrics.Default(),
		log:     log.WithComponent("bot"),
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Listen connects to the workspace and polls for commands until the context
// is canceled or the transport is lost beyond the reconnect policy. Total
// transport loss broadcasts a final message to the default channel
func (b *Bot) Listen(ctx context.Context) error {
	if err := b.connect(ctx); err != nil {
		return err
	}

	if b.store != nil {
		if snapshot, err := b.store.LoadPendingSnapshot(); err == nil && len(snapshot) > 0 {
			b.disp.SeedPending(snapshot)
		}
	}

	b.announce(ctx, "Hi there! I am here to help!")

	pollInterval := time.Duration(b.cfg.Chat.PollIntervalSeconds * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	var watcher <-chan time.Time
	if b.cfg.Pending.Enabled {
		interval := time.Duration(b.cfg.Pending.IntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		watcher = t.C
	}

	for {
		select {
		case <-ctx.Done():
			b.log.Info("shutting down")
			return nil

		case <-watcher:
			go b.announcePending(ctx)

		case <-poll.C:
			events, err := b.chat.Poll(ctx)
			if err != nil {
				if err = b.recover(ctx, err); err != nil {
					b.dyingMessage(ctx, err.Error())
					return err
				}
				continue
			}
			for _, ev := range events {
				b.handleEvent(ctx, ev)
			}
		}
	}
}

// connect establishes the workspace session under the reconnect policy
func (b *Bot) connect(ctx context.Context) error {
	attempts := b.cfg.Chat.ReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(b.cfg.Chat.ReconnectSeconds) * time.Second
	if backoff <= 0 {
		backoff = 15 * time.Second
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = b.chat.Connect(ctx); err == nil {
			b.log.Info("connected to workspace as %s", b.cfg.Chat.BotName)
			return nil
		}
		b.log.Warn("workspace connect attempt %d/%d failed: %v", i+1, attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("workspace connection failed after %d attempts: %w", attempts, err)
}

// recover retries a lost transport per the reconnect policy. A nil return
// means polling may resume
func (b *Bot) recover(ctx context.Context, cause error) error {
	b.log.Warn("poll failed: %v", cause)
	if err := b.connect(ctx); err != nil {
		return err
	}
	if _, err := b.chat.Poll(ctx); err != nil {
		return fmt.Errorf("workspace read failed after reconnect: %w", err)
	}
	b.Notify(ctx, fmt.Sprintf("The workspace connection dropped and was re-established: %v", cause))
	return nil
}

// handleEvent extracts a command from one workspace event and hands it to a
// worker. The semaphore bounds how many commands run at once
func (b *Bot) handleEvent(ctx context.Context, ev chat.Event) {
	text, ok := b.commandText(ev)
	if !ok {
		return
	}

	if !b.limiter.Allow(ev.UserID) {
		b.log.Warn("rate limited user %s", ev.UserID)
		return
	}

	// the semaphore is taken inside the spawned goroutine so a full worker
	// pool parks the command without stalling the poll loop
	go func() {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer b.sem.Release(1)

		b.stats.SetWorkersBusy(int(b.busy.Add(1)))
		defer func() { b.stats.SetWorkersBusy(int(b.busy.Add(-1))) }()

		b.runCommand(ctx, text, ev.ChannelID, ev.UserID)
	}()
}

// commandText applies the addressing rules: an explicit @-mention anywhere
// in a channel message, or any direct message not sent by a bot
func (b *Bot) commandText(ev chat.Event) (string, bool) {
	if ev.Type != "message" || ev.Text == "" {
		return "", false
	}

	botAt := "<@" + b.chat.BotID() + ">"
	if strings.Contains(ev.Text, botAt) {
		_, after, _ := strings.Cut(ev.Text, botAt)
		return strings.ToLower(strings.TrimSpace(after)), true
	}

	if strings.HasPrefix(ev.ChannelID, "D") &&
		ev.UserID != b.chat.BotID() &&
		ev.Subtype != "bot_message" {
		return strings.ToLower(strings.TrimSpace(ev.Text)), true
	}
	return "", false
}

func (b *Bot) runCommand(ctx context.Context, text, channelID, userID string) {
	id := uuid.NewString()
	clog := b.log.WithCommandID(id)

	username := b.chat.Username(ctx, userID)
	channelName := b.chat.ChannelName(ctx, channelID)

	intentWord, scope := splitCommand(text)
	cmd := types.Command{
		ID:          id,
		Intent:      intentWord,
		Scope:       scope,
		ChannelID:   channelID,
		ChannelName: channelName,
		UserID:      userID,
		Username:    username,
	}

	clog.Info("got command `%s` from %s in %s", text, username, channelName)

	response := ""
	if userID != "" {
		response = "<@" + userID + "|" + username + "> "
	}
	if b.helper.IsEvaluation(ctx) {
		response += "*WARNING:* The appliance is currently running in evaluation mode. :slightly_frowning_face:\n"
	}

	reply, isHelp := b.disp.Dispatch(ctx, cmd)
	if reply == "" {
		return
	}
	response += reply

	b.stats.IncrementCommand(intentWord)
	b.audit(cmd, username, channelName)

	if isHelp {
		clog.Info("responding: help message")
	} else {
		clog.Info("responding: %s", firstLine(reply))
	}

	if err := b.chat.PostMessage(ctx, channelID, response); err != nil {
		b.stats.IncrementCommandError(intentWord)
		clog.Error("failed to post reply: %v", err)
	}
}

func (b *Bot) audit(cmd types.Command, username, channelName string) {
	if b.store == nil {
		return
	}
	err := b.store.RecordCommand(&store.AuditRecord{
		ID:       cmd.ID,
		Intent:   cmd.Intent,
		Command:  cmd.Raw(),
		Username: username,
		Channel:  channelName,
	})
	if err != nil {
		b.log.Warn("failed to record audit row: %v", err)
	}
}

// announcePending runs the periodic new-only pending check and posts any
// findings to the default channel
func (b *Bot) announcePending(ctx context.Context) {
	out, err := b.disp.CheckPending(ctx, true)
	if err != nil {
		b.Notify(ctx, fmt.Sprintf("The pending nodes check failed: %v", err))
		return
	}
	if b.store != nil {
		if err := b.store.SavePendingSnapshot(b.disp.PendingSnapshot()); err != nil {
			b.log.Warn("failed to save pending snapshot: %v", err)
		}
	}
	if out == "" {
		return
	}
	if err := b.chat.PostMessage(ctx, b.cfg.Chat.DefaultChannel, out); err != nil {
		b.log.Error("failed to announce pending nodes: %v", err)
	}
}

// announce posts a notice to the log channel when one is configured
func (b *Bot) announce(ctx context.Context, message string) {
	b.log.Info("%s", message)
	if b.cfg.Chat.LogChannel == "" {
		return
	}
	if err := b.chat.PostMessage(ctx, b.cfg.Chat.LogChannel, message); err != nil {
		b.log.Warn("failed to post to log channel: %v", err)
	}
}

// Notify mirrors a warning to the chat log channel
func (b *Bot) Notify(ctx context.Context, message string) {
	b.log.Warn("%s", message)
	if b.cfg.Chat.LogChannel == "" {
		return
	}
	text := fmt.Sprintf("@%s  would like you to know:\n\n> %s\n", b.cfg.Chat.BotName, message)
	if err := b.chat.PostMessage(ctx, b.cfg.Chat.LogChannel, text); err != nil {
		b.log.Warn("failed to post to log channel: %v", err)
	}
}

// dyingMessage is the final broadcast before the process gives up on the
// workspace transport
func (b *Bot) dyingMessage(ctx context.Context, message string) {
	b.log.Error("%s", message)
	text := fmt.Sprintf("@%s  went offline with error message:\n```\n%s\n```",
		b.cfg.Chat.BotName, message)
	if err := b.chat.PostMessage(ctx, b.cfg.Chat.DefaultChannel, text); err != nil {
		b.log.Error("failed to post dying message: %v", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
