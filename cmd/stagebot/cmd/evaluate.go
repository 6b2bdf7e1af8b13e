package cmd

import (
	"github.com/spf13/cobra"

	cliconfig "github.com/sigayyury-ai/crmtowfirma-sub006/cmd/stagebot/config"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/aggregator"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/currency"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/gateways"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/notify"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/reconciler"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/schedule"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/stage"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate target stages without applying transitions",
	Long: `Evaluate runs the same aggregation and stage evaluation as reconcile
but never writes stage changes or sends notifications. Use it to audit
why a deal would or would not move.

Examples:
  stagebot evaluate --fixtures ./deals --deal 42
  stagebot evaluate --fixtures ./deals --all --output json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&fixturesDir, "fixtures", "", "directory with deal fixture files (required)")
	evaluateCmd.Flags().StringVar(&dealID, "deal", "", "evaluate a single deal by ID")
	evaluateCmd.Flags().BoolVar(&allDeals, "all", false, "evaluate every loaded deal")
	evaluateCmd.Flags().StringVar(&outputFormat, "output", "text", "output format: text or json")

	evaluateCmd.MarkFlagRequired("fixtures")
}

// discardStageWriter satisfies the stage-writer capability without
// touching anything; evaluate runs are read-only.
type discardStageWriter struct{}

func (discardStageWriter) SetStage(dealID string, stageID stage.ID) error { return nil }

func runEvaluate(cmd *cobra.Command, args []string) error {
	log, err := cliconfig.CreateLogger(verbose)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)

	cfg, err := cliconfig.CreateEngineConfig()
	if err != nil {
		return err
	}

	store, err := gateways.LoadDir(fixturesDir, log)
	if err != nil {
		return err
	}

	converter := currency.NewConverter(store, log)
	resolver := schedule.NewResolver(cfg.Schedule, log)

	agg, err := aggregator.New(store, store, store, converter, resolver, log)
	if err != nil {
		return err
	}

	// No notification channel: evaluation must have no outward effects.
	engine, err := reconciler.NewEngine(
		store, discardStageWriter{}, agg, converter, nil,
		notify.NewDeduplicator(cfg.Dedup, log), cfg, log)
	if err != nil {
		return err
	}

	ids, err := selectDeals(store)
	if err != nil {
		return err
	}

	var decisions []*reconciler.Decision
	for _, id := range ids {
		decision, err := engine.Reconcile(id, reconciler.Options{})
		if err != nil {
			log.WithError(err).WithField("deal_id", id).Error("evaluation run failed")
			return err
		}
		// The discard writer accepted the transition, but nothing
		// was applied; report what would have happened.
		decisions = append(decisions, decision)
	}

	return printDecisions(decisions)
}
