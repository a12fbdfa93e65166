package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/agent-conductor/internal/admission"
	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/goalcheck"
	"github.com/hochfrequenz/agent-conductor/internal/health"
	"github.com/hochfrequenz/agent-conductor/internal/invoke"
	"github.com/hochfrequenz/agent-conductor/internal/loop"
	"github.com/hochfrequenz/agent-conductor/internal/notify"
	"github.com/hochfrequenz/agent-conductor/internal/pause"
	"github.com/hochfrequenz/agent-conductor/internal/ratelimit"
	"github.com/hochfrequenz/agent-conductor/internal/store"
	"github.com/hochfrequenz/agent-conductor/web/api"
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the execution control loop",
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace states and pending work",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume WORKSPACE",
		Short: "Force a workspace back to ACTIVE (manual override)",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	pauseCmd := &cobra.Command{
		Use:   "pause WORKSPACE",
		Short: "Force a workspace to PAUSED (manual containment)",
		Args:  cobra.ExactArgs(1),
		RunE:  runPause,
	}
	rootCmd.AddCommand(pauseCmd)

	goalsCmd := &cobra.Command{
		Use:   "goals",
		Short: "Run one goal validation pass and print the decisions",
		RunE:  runGoals,
	}
	rootCmd.AddCommand(goalsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		return nil, err
	}
	return store.New(cfg.General.DatabasePath)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	providers, err := config.LoadProviders(cfg.General.ProvidersPath)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	limiter := ratelimit.New(providers)
	monitor := health.New(cfg.Health)
	admit := admission.New(cfg.Admission)

	pauses, err := pause.NewManager(cfg.Pause, db)
	if err != nil {
		return err
	}

	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notify.Desktop),
		notify.NewSlackNotifier(cfg.Notify.SlackWebhook),
	)
	pauses.SetTransitionFunc(func(ws string, from, to domain.WorkspaceState, reason string) {
		log.Printf("pause: workspace %s %s -> %s (%s)", ws, from, to, reason)
		if err := notifier.Send(notify.StateChange(ws, from, to, reason)); err != nil {
			log.Printf("notify: %v", err)
		}
	})

	client := invoke.NewHTTPClient(cfg.Invoke.Endpoint)
	runner := loop.NewRunner(cfg.Loop, db, limiter, monitor, admit, pauses, client)

	if err := runner.WarmHealth(cfg.Health.WindowSize); err != nil {
		log.Printf("Warning: failed to warm health windows: %v", err)
	}

	var server *api.Server
	if cfg.Web.Enabled {
		server = api.NewServer(db, pauses, monitor, runner, cfg.Web.Host, cfg.Web.Port)
		runner.SetEventFunc(server.Broadcast)
		go func() {
			log.Printf("api: listening on %s:%d", cfg.Web.Host, cfg.Web.Port)
			if err := server.Start(); err != nil {
				log.Printf("api: %v", err)
			}
		}()
	}

	optimizer := goalcheck.New(cfg.Goals)
	cadence, err := goalcheck.NewCadence(cfg.Goals.Cron, optimizer, db, &workspaceView{monitor: monitor, pauses: pauses},
		func(g *domain.Goal, d domain.ValidationDecision) {
			if err := db.RecordGoalCheck(g, d); err != nil {
				log.Printf("goalcheck: recording audit entry: %v", err)
			}
		})
	if err != nil {
		return err
	}
	go cadence.Start()
	defer cadence.Stop()

	// Hot-reload tunable thresholds when the config file changes.
	watchPath := configPath
	if watchPath == "" {
		watchPath = config.DefaultConfigPath()
	}
	watcher, err := config.NewWatcher(watchPath, func(next *config.Config) {
		log.Printf("config: reloaded %s", watchPath)
		monitor.SetConfig(next.Health)
		admit.SetConfig(next.Admission)
		pauses.SetConfig(next.Pause)
		optimizer.SetConfig(next.Goals)
		runner.SetConfig(next.Loop)
	})
	if err != nil {
		log.Printf("Warning: config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("loop: running every %s (global ceiling %d)", cfg.Loop.Interval, cfg.Loop.GlobalMaxRuns)
	runner.Run(ctx)
	log.Printf("loop: shut down")
	return nil
}

// workspaceView adapts the monitor and pause manager for the goal cadence
type workspaceView struct {
	monitor *health.Monitor
	pauses  *pause.Manager
}

func (v *workspaceView) Snapshot(workspaceID string, pendingTasks int) health.Snapshot {
	return v.monitor.Snapshot(workspaceID, pendingTasks)
}

func (v *workspaceView) State(workspaceID string) domain.WorkspaceState {
	return v.pauses.State(workspaceID)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses, err := pause.NewManager(cfg.Pause, db)
	if err != nil {
		return err
	}

	workspaces, err := db.ListWorkspaces()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKSPACE\tSTATE\tPENDING\tFAILURES\tREASON")
	for _, ws := range workspaces {
		rec := pauses.Record(ws)
		pending, _ := db.CountPendingTasks(ws)
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", ws, rec.State, pending, rec.ConsecutiveFailures, rec.Reason)
	}
	return w.Flush()
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses, err := pause.NewManager(cfg.Pause, db)
	if err != nil {
		return err
	}

	pauses.ForceActive(args[0], "manual override via CLI")
	fmt.Printf("Workspace %s forced to %s\n", args[0], pauses.State(args[0]))
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses, err := pause.NewManager(cfg.Pause, db)
	if err != nil {
		return err
	}

	pauses.ForcePause(args[0], "manual containment via CLI")
	fmt.Printf("Workspace %s forced to %s\n", args[0], pauses.State(args[0]))
	return nil
}

func runGoals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses, err := pause.NewManager(cfg.Pause, db)
	if err != nil {
		return err
	}
	monitor := health.New(cfg.Health)
	optimizer := goalcheck.New(cfg.Goals)

	goals, err := db.ListGoals()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GOAL\tWORKSPACE\tVERDICT\tPROCEED\tCONFIDENCE\tREASON")
	now := time.Now()
	warmed := make(map[string]bool)
	for _, g := range goals {
		// Warm each workspace's window once so velocity reflects stored
		// history.
		if !warmed[g.WorkspaceID] {
			warmed[g.WorkspaceID] = true
			outcomes, err := db.ListRecentOutcomes(g.WorkspaceID, cfg.Health.WindowSize)
			if err == nil {
				for _, o := range outcomes {
					monitor.Record(*o)
				}
			}
		}
		snap := monitor.Snapshot(g.WorkspaceID, 0)
		d := optimizer.Decide(g, snap, pauses.State(g.WorkspaceID), now)
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%.2f\t%s\n", g.ID, g.WorkspaceID, d.Verdict, d.ShouldProceed, d.Confidence, d.Reason)
	}
	return w.Flush()
}
