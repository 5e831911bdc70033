package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/config"
	"github.com/webward/webward/internal/dashboard"
	"github.com/webward/webward/internal/decision"
	"github.com/webward/webward/internal/hook"
	"github.com/webward/webward/internal/override"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
	"github.com/webward/webward/internal/sched"
	"github.com/webward/webward/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the navigation hook server and dashboard",
	Long: `Start the long-lived background process: the navigation hook the
browser extension calls, the local dashboard, the midnight quota reset,
periodic reports, and policy hot reload.`,
	Example: `  webward serve -c policy.yaml`,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("--config/-c is required")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	db, err := storage.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer db.Close()

	store := policy.NewStore(cfg.PolicyFile)

	var regoEngine *policy.RegoEngine
	if cfg.RegoPolicy != "" {
		regoEngine, err = policy.NewRegoEngine(cfg.RegoPolicy)
		if err != nil {
			return fmt.Errorf("loading custom rules: %w", err)
		}
	}

	scheduler := sched.New(logger)
	notifier := audit.NewNotifier(cfg.IncidentSink, cfg.ReportSink, cfg.UserID, logger)
	ledger := audit.NewLedger(db, notifier, logger)
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("restoring incident ledger: %w", err)
	}

	tracker := quota.NewTracker(store, db, logger)
	if err := tracker.LoadToday(); err != nil {
		return fmt.Errorf("restoring quota counters: %w", err)
	}

	scorer := risk.NewScorer(db, logger)
	startOfDay := audit.PeriodStart(api.PeriodDaily, time.Now())
	if err := scorer.Replay(startOfDay); err != nil {
		return fmt.Errorf("restoring risk window: %w", err)
	}

	classifier := classify.New(store)
	engine := decision.NewEngine(decision.Config{
		Store:      store,
		Tracker:    tracker,
		Classifier: classifier,
		Scorer:     scorer,
		Rego:       regoEngine,
		Ledger:     ledger,
		Logger:     logger,
	})

	overrideMgr := override.NewManager(store, ledger, scheduler, db, logger)
	if err := overrideMgr.RestoreAllowances(); err != nil {
		return fmt.Errorf("restoring allowances: %w", err)
	}

	reporter := audit.NewReporter(ledger, db, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	scheduleDayReset(scheduler, tracker, db)
	scheduleReport(ctx, scheduler, reporter, cfg.ReportPeriod)
	if cfg.PolicyURL != "" {
		scheduleRefetch(ctx, scheduler, store, cfg, regoEngine)
	}

	// Local edits to the policy file hot-reload without a restart.
	watcher := policy.NewWatcher(cfgFile, store, logger, nil)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("policy watcher stopped", "error", err)
		}
	}()

	dash := dashboard.NewServer(cfg.DashboardAddr, ledger, engine, store, tracker, logger)
	go func() {
		if err := dash.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			logger.Error("dashboard error", "error", err)
		}
	}()

	logger.Info("starting serve mode",
		"hook", cfg.HookAddr,
		"dashboard", cfg.DashboardAddr,
		"blocked", len(cfg.PolicyFile.Blocked),
	)

	// Hook server blocks until shutdown.
	hookSrv := hook.NewServer(cfg.HookAddr, engine, tracker, overrideMgr, logger)
	err = hookSrv.ListenAndServe(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// scheduleDayReset arms the local-midnight boundary: counters and flags
// clear atomically, old behavioral samples prune, and the next boundary
// is rearmed from a fresh wall-clock deadline.
func scheduleDayReset(scheduler *sched.Scheduler, tracker *quota.Tracker, db *storage.DB) {
	var arm func()
	arm = func() {
		scheduler.At("day_reset", sched.NextMidnight(time.Now()), func() {
			tracker.ResetDay()
			if err := db.PruneSamples(time.Now().AddDate(0, 0, -7)); err != nil {
				logger.Error("pruning behavioral samples", "error", err)
			}
			arm()
		})
	}
	arm()
}

func scheduleReport(ctx context.Context, scheduler *sched.Scheduler, reporter *audit.Reporter, period api.ReportPeriod) {
	var arm func()
	arm = func() {
		boundary := audit.NextPeriodStart(period, time.Now())
		scheduler.At("report", boundary, func() {
			// Any instant inside the ended period selects it; the
			// reporter aggregates up to the boundary itself. Generation
			// runs off the scheduler goroutine because delivery is
			// synchronous.
			go func() {
				if _, _, err := reporter.Generate(ctx, period, boundary.Add(-time.Second)); err != nil {
					logger.Error("generating report", "period", period, "error", err)
				}
			}()
			arm()
		})
	}
	arm()
}

func scheduleRefetch(ctx context.Context, scheduler *sched.Scheduler, store *policy.Store, cfg *config.Config, regoEngine *policy.RegoEngine) {
	fetcher := policy.NewFetcher(cfg.PolicyURL, 10*time.Second)
	var arm func()
	arm = func() {
		scheduler.At("policy_reload", time.Now().Add(cfg.ReloadInterval), func() {
			pf, err := fetcher.Fetch(ctx)
			switch {
			case err == nil:
				store.Replace(pf)
				logger.Info("remote policy applied", "blocked", len(pf.Blocked))
			case policy.IsTransient(err):
				logger.Warn("policy fetch failed, keeping prior policy", "error", err)
			default:
				logger.Error("remote policy rejected, keeping prior policy", "error", err)
			}
			if regoEngine != nil {
				if err := regoEngine.Reload(ctx); err != nil {
					logger.Error("custom rules reload failed, keeping prior rules", "error", err)
				}
			}
			arm()
		})
	}
	arm()
}
