package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/config"
	"github.com/webward/webward/internal/storage"
)

var reportPeriod string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an accountability report from recorded incidents",
	Long: `Aggregate the incident ledger for the current period and print the
report as JSON. Generation is idempotent: a period already delivered to
the report sink is not delivered again.`,
	Example: `  webward report -c policy.yaml --period weekly`,
	RunE:    runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportPeriod, "period", "daily", "report period (daily|weekly|monthly)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("--config/-c is required for report command")
	}
	period := api.ReportPeriod(reportPeriod)
	switch period {
	case api.PeriodDaily, api.PeriodWeekly, api.PeriodMonthly:
	default:
		return fmt.Errorf("invalid period %q", reportPeriod)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer db.Close()

	ledger := audit.NewLedger(db, nil, logger)
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("restoring incident ledger: %w", err)
	}

	notifier := audit.NewNotifier(cfg.IncidentSink, cfg.ReportSink, cfg.UserID, logger)
	reporter := audit.NewReporter(ledger, db, notifier, logger)

	report, _, err := reporter.Generate(cmd.Context(), period, time.Now())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
