package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/config"
	"github.com/webward/webward/internal/decision"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
)

var checkURL string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run a navigation check without a running daemon",
	Long: `Check what verdict a URL would receive against the configured policy.
The dry run uses empty quota and risk state; it exercises the
blocklist, category, custom-rule, and moderate layers.`,
	Example: `  webward check -c policy.yaml --url https://sub.example.com/r/gaming`,
	RunE:    runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "", "URL to check")
	_ = checkCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("--config/-c is required for check command")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	store := policy.NewStore(cfg.PolicyFile)

	var regoEngine *policy.RegoEngine
	if cfg.RegoPolicy != "" {
		regoEngine, err = policy.NewRegoEngine(cfg.RegoPolicy)
		if err != nil {
			return fmt.Errorf("loading custom rules: %w", err)
		}
	}

	ledger := audit.NewLedger(nil, nil, logger)
	scorer := risk.NewScorer(nil, logger)
	engine := decision.NewEngine(decision.Config{
		Store:      store,
		Tracker:    quota.NewTracker(store, nil, logger),
		Classifier: classify.New(store),
		Scorer:     scorer,
		Rego:       regoEngine,
		Ledger:     ledger,
		Logger:     logger,
	})

	ev, err := api.ParseNavigation(checkURL, "check", time.Now())
	if err != nil || ev.Domain == "" {
		return fmt.Errorf("invalid url %q", checkURL)
	}

	d := engine.Decide(cmd.Context(), ev)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(api.CheckResponse{
		Verdict: d.Verdict,
		Reason:  d.Reason,
		Rule:    d.Rule,
		Message: d.Message,
	})
}
