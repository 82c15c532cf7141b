package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternops/lanternbot/internal/api"
	"github.com/lanternops/lanternbot/internal/bot"
	"github.com/lanternops/lanternbot/internal/chat"
	"github.com/lanternops/lanternbot/internal/config"
	"github.com/lanternops/lanternbot/internal/console"
	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/metrics"
	"github.com/lanternops/lanternbot/internal/resource"
	"github.com/lanternops/lanternbot/internal/scheduler"
	"github.com/lanternops/lanternbot/internal/store"
	"github.com/lanternops/lanternbot/internal/watcher"
)

const version = "1.0.0"

// audit rows older than this are trimmed by the maintenance scheduler
const auditRetention = 30 * 24 * time.Hour

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "daemon":
		cmdDaemon()
	case "console":
		cmdConsole()
	case "check":
		cmdCheck()
	case "service":
		cmdService()
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`LanternBot — chat console for Lantern appliances

Usage:
  lanternbot <command>

Commands:
  run            Run the bot in the foreground (Ctrl+C to stop)
  daemon         Daemon management
    start        Start bot daemon
    stop         Stop bot daemon
    restart      Restart bot daemon
    status       Check daemon status
    logs         View daemon logs (live, Ctrl+C to exit)
  console        Interactive local console (no chat workspace needed)
  check          Validate the configuration and exit
  service        Manage the systemd unit (install/uninstall/enable/disable/status)
  version        Print version
  help           Show this help`)
}

// configPathArg returns an optional config file path given after a
// subcommand, or "" for the default location
func configPathArg(index int) string {
	if len(os.Args) > index {
		return os.Args[index]
	}
	return ""
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func pidFile() string {
	return filepath.Join(config.Dir(), "lanternbot.pid")
}

func daemonLogFile() string {
	return filepath.Join(config.Dir(), "daemon.log")
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFile())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func cmdRun() {
	cfg := loadConfig(configPathArg(2))
	if err := runBot(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// runBot wires the whole stack together and blocks until the context is
// cancelled or the workspace connection is lost for good
func runBot(cfg *config.Config) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
	}
	if !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "❌ %s\n", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	log, err := logger.New(&logger.Config{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		Component: "main",
	})
	if err != nil {
		return err
	}
	defer log.Close()

	client := api.New(&cfg.API, log)
	registry := resource.NewRegistry(client)
	helper := resource.NewHelper(client, registry, cfg.API.URL)

	disp, err := bot.NewDispatcher(helper, log, bot.Options{
		BotName:       cfg.Chat.BotName,
		AdminChannel:  cfg.Chat.AdminChannel,
		ListThreshold: cfg.Dispatcher.ListThreshold,
		LineBudget:    cfg.Dispatcher.LineBudget,
	})
	if err != nil {
		return err
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = store.DefaultDBPath()
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	chatClient := chat.NewClient(cfg.Chat.URL, cfg.Chat.Token, cfg.Chat.BotName)
	b := bot.New(cfg, chatClient, disp, helper, st, log)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Path, metrics.Default().Handler())
		go func() {
			log.Info("metrics listening on http://%s%s", cfg.Metrics.Bind, cfg.Metrics.Path)
			if err := http.ListenAndServe(cfg.Metrics.Bind, mux); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maint := scheduler.New(log)
	maint.Add(scheduler.Job{
		Name:     "audit-cleanup",
		Interval: 24 * time.Hour,
		Run: func(ctx context.Context) error {
			n, err := st.CleanOldAudit(auditRetention)
			if err == nil && n > 0 {
				log.Info("removed %d old audit records", n)
			}
			return err
		},
	})
	maint.Start(ctx)

	// Credentials cannot be swapped while connected, so a config edit
	// only earns the operator a restart hint
	cw := watcher.New(config.Path(), watcher.DefaultPollInterval)
	go cw.Run(ctx, func() {
		log.Warn("configuration changed on disk, restart to apply")
	})

	if err := b.Listen(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutting down")
	return nil
}

func cmdConsole() {
	cfg := loadConfig(configPathArg(2))

	// The console only talks to the appliance, so chat workspace settings
	// are not required here
	if cfg.API.URL == "" || cfg.API.Username == "" || cfg.API.Password == "" {
		fmt.Fprintln(os.Stderr, "❌ Appliance credentials required: set api.url, api.username and api.password")
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		Component: "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	client := api.New(&cfg.API, log)
	registry := resource.NewRegistry(client)
	helper := resource.NewHelper(client, registry, cfg.API.URL)

	botName := cfg.Chat.BotName
	if botName == "" {
		botName = "lanternbot"
	}

	disp, err := bot.NewDispatcher(helper, log, bot.Options{
		BotName:       botName,
		AdminChannel:  cfg.Chat.AdminChannel,
		ListThreshold: cfg.Dispatcher.ListThreshold,
		LineBudget:    cfg.Dispatcher.LineBudget,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(console.New(disp, botName, cfg.Chat.AdminChannel), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Console error: %v\n", err)
		os.Exit(1)
	}
}

func cmdCheck() {
	cfg := loadConfig(configPathArg(2))
	result := cfg.Validate()

	for _, w := range result.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("❌ %s\n", e)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	fmt.Println("✅ Configuration is valid")
}

func cmdDaemon() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: lanternbot daemon <command>")
		fmt.Println("\nCommands:")
		fmt.Println("  start      Start bot daemon")
		fmt.Println("  stop       Stop bot daemon")
		fmt.Println("  restart    Restart bot daemon")
		fmt.Println("  status     Check if the daemon is running")
		fmt.Println("  logs       View daemon logs (live, press Ctrl+C to exit)")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "start":
		cmdDaemonStart()
	case "stop":
		cmdDaemonStop()
	case "restart":
		cmdDaemonRestart()
	case "status":
		cmdDaemonStatus()
	case "logs":
		cmdDaemonLogs()
	default:
		fmt.Fprintf(os.Stderr, "Unknown daemon command: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.Dir(), 0700); err != nil {
		return err
	}

	// Do NOT defer close - the daemon inherits this descriptor
	logF, err := os.OpenFile(daemonLogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "_internal_bot_start")
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session
	}

	if err := cmd.Start(); err != nil {
		logF.Close()
		return err
	}

	return os.WriteFile(pidFile(), []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0644)
}

func cmdDaemonStart() {
	pid, err := readPID()
	if err == nil && isProcessRunning(pid) {
		fmt.Printf("⚠️  Bot is already running (PID: %d)\n", pid)
		fmt.Println("Use 'lanternbot daemon restart' to restart it.")
		os.Exit(1)
	}

	// Fail early on a broken config instead of leaving a dead daemon
	cfg := loadConfig("")
	if result := cfg.Validate(); !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "❌ %s\n", e)
		}
		os.Exit(1)
	}

	fmt.Println("🚀 Starting bot daemon...")
	if err := startDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)
	pid, err = readPID()
	if err != nil || !isProcessRunning(pid) {
		fmt.Fprintln(os.Stderr, "❌ Bot failed to start. Check logs: lanternbot daemon logs")
		os.Exit(1)
	}

	fmt.Printf("✅ Bot started (PID: %d)\n", pid)
	fmt.Printf("\n📡 Appliance: %s\n", cfg.API.URL)
	fmt.Printf("💬 Default channel: #%s\n", cfg.Chat.DefaultChannel)
	fmt.Println("\n📝 View logs: lanternbot daemon logs")
	fmt.Println("🔍 Check status: lanternbot daemon status")
}

func cmdDaemonStop() {
	pid, err := readPID()
	if err != nil {
		fmt.Println("❌ Bot is not running (no PID file)")
		return
	}

	if !isProcessRunning(pid) {
		fmt.Printf("⚠️  Bot is not running (stale PID: %d)\n", pid)
		os.Remove(pidFile())
		fmt.Println("✅ Cleaned up stale PID file")
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to find process: %v\n", err)
		os.Exit(1)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to stop bot: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if !isProcessRunning(pid) {
			break
		}
	}

	if isProcessRunning(pid) {
		fmt.Println("⚠️  Bot did not stop gracefully, sending SIGKILL...")
		process.Kill()
	}

	os.Remove(pidFile())
	fmt.Printf("✅ Bot stopped (was PID: %d)\n", pid)
}

func cmdDaemonRestart() {
	fmt.Println("🔄 Restarting bot...")

	pid, err := readPID()
	if err == nil && isProcessRunning(pid) {
		cmdDaemonStop()
		time.Sleep(1 * time.Second)
	}

	if err := startDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)
	pid, err = readPID()
	if err != nil || !isProcessRunning(pid) {
		fmt.Fprintln(os.Stderr, "❌ Bot failed to start. Check logs: lanternbot daemon logs")
		os.Exit(1)
	}

	fmt.Printf("✅ Bot restarted (PID: %d)\n", pid)
}

func cmdDaemonStatus() {
	pid, err := readPID()
	if err != nil {
		fmt.Println("❌ Bot is not running (no PID file)")
		return
	}

	if !isProcessRunning(pid) {
		fmt.Printf("❌ Bot is not running (stale PID: %d)\n", pid)
		fmt.Println("\n💡 Remove stale PID file: rm " + pidFile())
		return
	}

	fmt.Printf("✅ Bot is running (PID: %d)\n", pid)

	if cfg, err := config.Load(""); err == nil {
		fmt.Printf("\n📡 Appliance: %s\n", cfg.API.URL)
		fmt.Printf("💬 Default channel: #%s\n", cfg.Chat.DefaultChannel)
		if cfg.Pending.Enabled {
			fmt.Printf("🔔 Pending watcher: every %d minutes\n", cfg.Pending.IntervalMinutes)
		}
		if cfg.Metrics.Enabled {
			fmt.Printf("📈 Metrics: http://%s%s\n", cfg.Metrics.Bind, cfg.Metrics.Path)
		}
	}

	fmt.Println("\n📝 View logs: lanternbot daemon logs")
}

func cmdDaemonLogs() {
	logPath := daemonLogFile()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("📭 No logs yet.")
		fmt.Println("\nLog file: " + logPath)
		return
	}

	cmd := exec.Command("tail", "-f", logPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Run()
}

// internalBotStart is the entry point the detached daemon process uses
func internalBotStart() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runBot(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Handle internal daemon start command
	if len(os.Args) >= 2 && os.Args[1] == "_internal_bot_start" {
		internalBotStart()
		os.Exit(0)
	}
}
