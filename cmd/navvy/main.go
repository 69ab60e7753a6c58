package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/navvy-dev/navvy/internal/api"
	"github.com/navvy-dev/navvy/internal/assist"
	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/lock"
	"github.com/navvy-dev/navvy/internal/log"
	"github.com/navvy-dev/navvy/internal/notify"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/session"
	"github.com/navvy-dev/navvy/internal/storage"
	"github.com/navvy-dev/navvy/internal/supervise"
	"github.com/navvy-dev/navvy/internal/ticket"
	"github.com/navvy-dev/navvy/internal/webhook"
	"github.com/navvy-dev/navvy/internal/worker"
	"github.com/navvy-dev/navvy/internal/workspace"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "session":
		return runSessionNoun(args)
	case "job":
		return runJobNoun(args)
	case "start":
		// Root alias.
		return runStart(args)
	case "version", "--version":
		return runVersion()
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`navvy - ticket-driven coding assistant gateway

Usage:
  navvy <noun> <action> [flags]

System Commands:
  system start      Start the service in foreground
  system status     Show queue depth and session occupancy

Session Commands:
  session list      Show resident sessions (metadata only, fast)
  session sizes     Show per-session disk usage (walks workspaces, slow)
  session stats     Show occupancy against the soft cap
  session delete    Remove one session and its workspace

Job Commands:
  job trigger       Enqueue a job for a ticket manually
  job show <id>     Show one job's status

General:
  version           Show version information
  help              Show this help message

Most commands take --config <path>; it defaults to $NAVVY_CONFIG or
./navvy.yaml.
`)
}

func runVersion() int {
	commit := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
				commit = setting.Value[:12]
			}
		}
	}
	fmt.Printf("navvy %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	return 0
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: navvy system <start|status>")
		return 1
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "status":
		return runSystemStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runSessionNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: navvy session <list|sizes|stats|delete>")
		return 1
	}
	switch args[0] {
	case "list":
		return runSessionList(args[1:])
	case "sizes":
		return runSessionSizes(args[1:])
	case "stats":
		return runSessionStats(args[1:])
	case "delete":
		return runSessionDelete(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown session action: %s\n", args[0])
		return 1
	}
}

func runJobNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: navvy job <trigger|show>")
		return 1
	}
	switch args[0] {
	case "trigger":
		return runJobTrigger(args[1:])
	case "show":
		return runJobShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", args[0])
		return 1
	}
}

// --- SHARED HELPERS ---

func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("NAVVY_CONFIG")
	if def == "" {
		def = "navvy.yaml"
	}
	return fs.String("config", def, "Path to configuration file")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openState opens the SQLite control plane for an offline command.
func openState(cfg *config.Config) (*sql.DB, *workspace.Store, error) {
	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	store, err := workspace.NewStore(db, cfg.Sessions.Dir)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func openVault(cfg *config.Config) (secrets.Vault, error) {
	if cfg.Secrets.File == "" {
		return secrets.Static{}, nil
	}
	return secrets.OpenAgeVault(cfg.Secrets.File, cfg.Secrets.IdentityFile)
}

// --- SYSTEM ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("navvy starting", "version", version, "config", *configPath)

	instanceLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire instance lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer instanceLock.Release()
	logger.Info("acquired instance lock", "path", instanceLock.Path())

	if err := storage.ValidateWorkspaceFilesystem(cfg.Sessions.Dir); err != nil {
		logger.Error("workspace directory unusable", "dir", cfg.Sessions.Dir, "error", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store, err := workspace.NewStore(db, cfg.Sessions.Dir)
	if err != nil {
		logger.Error("failed to initialize workspace store", "dir", cfg.Sessions.Dir, "error", err)
		return 1
	}

	vault, err := openVault(cfg)
	if err != nil {
		logger.Error("failed to open secrets vault", "file", cfg.Secrets.File, "error", err)
		return 1
	}

	rt := config.NewRuntime(cfg, *configPath)
	q := queue.New(db)
	hub := events.NewHub(256)

	builder := assist.NewBuilder(rt, vault)
	orch := session.NewOrchestrator(store, rt, builder, supervise.New(), hub)
	pruner := orch.Pruner()

	notifier, err := notify.New(cfg.Notify, vault)
	if err != nil {
		logger.Error("failed to configure notifications", "error", err)
		return 1
	}

	w := worker.New(q, orch, notifier, rt)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)

	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	pruner.Start(ctx)
	defer pruner.Stop()

	if cfg.API.Enabled {
		apiServer := api.New(cfg.API, orch, q, hub)
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("api server enabled", "listen", cfg.API.Listen)
	}

	if cfg.Webhooks != nil {
		webhookServer, err := webhook.New(*cfg.Webhooks, rt, q, vault)
		if err != nil {
			logger.Error("failed to configure webhooks", "error", err)
			return 1
		}
		go func() {
			if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("webhook: %w", err)
			}
		}()
		logger.Info("webhook server enabled", "listen", cfg.Webhooks.Listen)
	}

	logger.Info("navvy running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("navvy stopped")
	return 0
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	db, store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx := context.Background()
	depth, err := queue.New(db).Depth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read queue: %v\n", err)
		return 1
	}
	count, err := store.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count sessions: %v\n", err)
		return 1
	}

	fmt.Printf("queue depth: %d\n", depth)
	fmt.Printf("sessions:    %d / %d\n", count, cfg.Sessions.MaxSessions)
	return 0
}

// --- SESSION ACTIONS ---

func runSessionList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	db, store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	sessions, err := store.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCREATED\tLAST USED\tSESSION")
	for _, s := range sessions {
		hasData := "-"
		if s.HasSessionData {
			hasData = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.Key,
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.LastUsed.UTC().Format(time.RFC3339),
			hasData,
		)
	}
	tw.Flush()
	return 0
}

func runSessionSizes(args []string) int {
	fs := flag.NewFlagSet("sizes", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	db, store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx := context.Background()
	sessions, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSESSION\tWORKSPACE")
	for _, s := range sessions {
		info, err := store.SizeOf(ctx, s.Key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to measure %q: %v\n", s.Key, err)
			return 1
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Key, formatBytes(info.SizeBytes), formatBytes(info.WorkspaceSizeBytes))
	}
	tw.Flush()
	return 0
}

func runSessionStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	db, store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	count, err := store.Count(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count sessions: %v\n", err)
		return 1
	}

	available := cfg.Sessions.MaxSessions - count
	if available < 0 {
		available = 0
	}
	fmt.Printf("resident:  %d\n", count)
	fmt.Printf("soft cap:  %d\n", cfg.Sessions.MaxSessions)
	fmt.Printf("available: %d\n", available)
	return 0
}

func runSessionDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := configFlag(fs)
	key := fs.String("key", "", "Ticket key of the session to delete")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(os.Stderr, "Usage: navvy session delete --key <ticket key>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Deleting out from under a running service would race its busy-key
	// guard. Take the instance lock; if the service holds it, point the
	// operator at the API instead.
	instanceLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service appears to be running (%v).\nUse the API instead: DELETE /v1/sessions?key=...\n", err)
		return 1
	}
	defer instanceLock.Release()

	db, store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	if err := store.Remove(context.Background(), *key); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete session: %v\n", err)
		return 1
	}
	fmt.Printf("deleted %s\n", *key)
	return 0
}

// --- JOB ACTIONS ---

func runJobTrigger(args []string) int {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	configPath := configFlag(fs)
	kind := fs.String("kind", "", "Ticket kind: github, jira, or admin")
	repo := fs.String("repo", "", "GitHub repository (owner/name)")
	number := fs.Int("number", 0, "GitHub issue number")
	project := fs.String("project", "", "Jira project key")
	issue := fs.Int("issue", 0, "Jira issue number")
	title := fs.String("title", "", "Work item title")
	body := fs.String("body", "", "Work item body or instruction")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	tk := ticket.Ticket{
		Kind:    ticket.Kind(*kind),
		Repo:    *repo,
		Number:  *number,
		Project: *project,
		Issue:   *issue,
		Title:   *title,
		Body:    *body,
	}
	if err := tk.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid ticket: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	db, _, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	key, _ := tk.Key()
	prompt, err := tk.Prompt()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build prompt: %v\n", err)
		return 1
	}
	payload, err := json.Marshal(tk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode ticket: %v\n", err)
		return 1
	}

	jobID, err := queue.New(db).Enqueue(context.Background(), queue.EnqueueRequest{
		Kind:        string(tk.Kind),
		TicketKey:   key,
		Prompt:      prompt,
		Payload:     payload,
		SubmittedBy: "cli",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enqueue: %v\n", err)
		return 1
	}
	fmt.Printf("enqueued %s for %s\n", jobID, key)
	return 0
}

func runJobShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: navvy job show <job-id>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	db, _, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer db.Close()

	job, err := queue.New(db).Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get job: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render job: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
