package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliconfig "github.com/sigayyury-ai/crmtowfirma-sub006/cmd/stagebot/config"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/aggregator"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/currency"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/gateways"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/notify"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/reconciler"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/schedule"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

var (
	fixturesDir  string
	dealID       string
	allDeals     bool
	forceFlag    bool
	outputFormat string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile payments and apply stage transitions",
	Long: `Reconcile loads the deal fixtures, aggregates invoice and processor
payments for each selected deal, evaluates the target pipeline stage and
applies allowed transitions, sending the deduplicated payment
notification.

Examples:
  stagebot reconcile --fixtures ./deals --deal 42
  stagebot reconcile --fixtures ./deals --all
  stagebot reconcile --fixtures ./deals --deal 42 --force --output json`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&fixturesDir, "fixtures", "", "directory with deal fixture files (required)")
	reconcileCmd.Flags().StringVar(&dealID, "deal", "", "reconcile a single deal by ID")
	reconcileCmd.Flags().BoolVar(&allDeals, "all", false, "reconcile every loaded deal")
	reconcileCmd.Flags().BoolVar(&forceFlag, "force", false, "allow downgrades and transitions from custom stages")
	reconcileCmd.Flags().StringVar(&outputFormat, "output", "text", "output format: text or json")

	reconcileCmd.MarkFlagRequired("fixtures")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	engine, store, log, err := buildEngine()
	if err != nil {
		return err
	}

	ids, err := selectDeals(store)
	if err != nil {
		return err
	}

	var decisions []*reconciler.Decision
	for _, id := range ids {
		decision, err := engine.Reconcile(id, reconciler.Options{Force: forceFlag})
		if err != nil {
			log.WithError(err).WithField("deal_id", id).Error("reconciliation run failed")
			return err
		}
		decisions = append(decisions, decision)
	}

	return printDecisions(decisions)
}

// buildEngine wires the fixture store into a reconciliation engine.
func buildEngine() (*reconciler.Engine, *gateways.FixtureStore, logger.Logger, error) {
	log, err := cliconfig.CreateLogger(verbose)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.SetGlobal(log)

	cfg, err := cliconfig.CreateEngineConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := gateways.LoadDir(fixturesDir, log)
	if err != nil {
		return nil, nil, nil, err
	}

	converter := currency.NewConverter(store, log)
	resolver := schedule.NewResolver(cfg.Schedule, log)

	agg, err := aggregator.New(store, store, store, converter, resolver, log)
	if err != nil {
		return nil, nil, nil, err
	}

	dedup := notify.NewDeduplicator(cfg.Dedup, log)

	engine, err := reconciler.NewEngine(store, store, agg, converter, store, dedup, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	return engine, store, log, nil
}

func selectDeals(store *gateways.FixtureStore) ([]string, error) {
	if dealID != "" {
		return []string{dealID}, nil
	}
	if allDeals {
		ids := store.DealIDs()
		if len(ids) == 0 {
			return nil, engerrors.ConfigurationError(
				engerrors.CodeMissingConfig, "fixtures", fixturesDir).
				WithSuggestion("the fixture directory contains no deal files")
		}
		return ids, nil
	}
	return nil, engerrors.ConfigurationError(
		engerrors.CodeMissingConfig, "deal", "").
		WithSuggestion("pass --deal <id> or --all")
}

func printDecisions(decisions []*reconciler.Decision) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decisions)
	}

	for _, d := range decisions {
		status := "skipped"
		if d.Updated {
			status = fmt.Sprintf("moved %s -> %s", d.FromStage, d.ToStage)
		}
		fmt.Printf("deal %-12s %-40s %s\n", d.DealID, status, d.Reason)
		if d.Evaluation != nil {
			fmt.Printf("  schedule=%s paid_ratio=%s expected=%s paid=%s\n",
				d.Evaluation.Schedule,
				d.Evaluation.PaidRatio.StringFixed(4),
				d.Evaluation.ExpectedAmount.String(),
				d.Evaluation.PaidAmount.String())
		}
	}
	return nil
}
