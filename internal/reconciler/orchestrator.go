// Package reconciler orchestrates one reconciliation run for a deal:
// load the deal, build the financial snapshot, evaluate the target
// stage, apply the monotonic transition policy and trigger the
// dedup-gated customer notification.
//
// The engine holds no per-deal locks. Idempotency comes from the data
// model: re-running Reconcile against unchanged payment state always
// yields the same decision, and the second run of an identical pair
// reports updated=false because the stage already matches. The one
// shared mutable structure, the notification dedup map, is safe under
// concurrent runs on its own.
//
// Webhook handlers, the periodic sweep and operator retriggers all call
// the same Reconcile entry point with the same contract.
package reconciler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/aggregator"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/currency"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/notify"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/stage"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// DealReader fetches a deal from the CRM. It must fail distinctly when
// the deal does not exist.
type DealReader interface {
	GetDeal(dealID string) (*models.Deal, error)
}

// DealStageWriter requests a stage change in the CRM.
type DealStageWriter interface {
	SetStage(dealID string, stageID stage.ID) error
}

// NotificationChannel resolves the customer's messaging handle and
// delivers a message to it. Recipient resolution is a channel concern;
// an empty handle means the contact has not opted into the channel.
type NotificationChannel interface {
	Recipient(dealID string) (string, error)
	Send(recipient, message string) error
}

// Options modifies a single reconciliation run.
type Options struct {
	// Force allows transitions from non-automated stages and
	// downgrades against the pipeline order.
	Force bool `json:"force"`
}

// Decision is the full record of one reconciliation run, returned for
// observability regardless of outcome, no-ops included.
type Decision struct {
	RunID      string                    `json:"run_id"`
	DealID     string                    `json:"deal_id"`
	Updated    bool                      `json:"updated"`
	Reason     string                    `json:"reason"`
	FromStage  stage.ID                  `json:"from_stage,omitempty"`
	ToStage    stage.ID                  `json:"to_stage,omitempty"`
	Pipeline   string                    `json:"pipeline,omitempty"`
	Evaluation *stage.Evaluation         `json:"evaluation,omitempty"`
	Snapshot   *models.FinancialSnapshot `json:"snapshot,omitempty"`
	Notified   bool                      `json:"notified,omitempty"`
	RanAt      time.Time                 `json:"ran_at"`
}

// Engine runs payment reconciliation and stage automation for deals.
type Engine struct {
	deals      DealReader
	stages     DealStageWriter
	aggregator *aggregator.Aggregator
	evaluator  *stage.Evaluator
	converter  *currency.Converter
	channel    NotificationChannel
	dedup      *notify.Deduplicator
	cfg        *Config
	log        logger.Logger
}

// NewEngine creates a reconciliation engine. The notification channel
// may be nil; stage transitions then happen without customer messages.
func NewEngine(
	deals DealReader,
	stages DealStageWriter,
	agg *aggregator.Aggregator,
	converter *currency.Converter,
	channel NotificationChannel,
	dedup *notify.Deduplicator,
	cfg *Config,
	log logger.Logger,
) (*Engine, error) {

	if deals == nil {
		return nil, engerrors.ValidationError(engerrors.CodeMissingField, "deal_reader", nil)
	}
	if stages == nil {
		return nil, engerrors.ValidationError(engerrors.CodeMissingField, "stage_writer", nil)
	}
	if agg == nil {
		return nil, engerrors.ValidationError(engerrors.CodeMissingField, "aggregator", nil)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if converter == nil {
		converter = currency.NewConverter(nil, nil)
	}
	if dedup == nil {
		dedup = notify.NewDeduplicator(cfg.Dedup, log)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Engine{
		deals:      deals,
		stages:     stages,
		aggregator: agg,
		evaluator:  stage.NewEvaluator(cfg.Evaluator),
		converter:  converter,
		channel:    channel,
		dedup:      dedup,
		cfg:        cfg,
		log:        log.WithComponent("reconciler"),
	}, nil
}

// Reconcile runs one reconciliation for the deal and returns the full
// decision record. Fatal errors (deal lookup, stage write, evaluator
// precondition) propagate; the caller owns retry policy.
func (e *Engine) Reconcile(dealID string, opts Options) (*Decision, error) {
	decision := &Decision{
		RunID:  uuid.NewString(),
		DealID: dealID,
		RanAt:  time.Now(),
	}
	log := e.log.WithFields(logger.Fields{"run_id": decision.RunID, "deal_id": dealID})

	deal, err := e.deals.GetDeal(dealID)
	if err != nil {
		return nil, engerrors.DealNotFound(dealID, err)
	}
	decision.FromStage = stage.ID(deal.StageID)

	snapshot, err := e.aggregator.BuildSnapshot(dealID, deal)
	if err != nil {
		return nil, err
	}
	decision.Snapshot = snapshot

	if !snapshot.HasAnyPayment() && !snapshot.ExpectedFromInvoices.IsPositive() {
		decision.Reason = "no payments or expected amount"
		e.logDecision(log, decision)
		return decision, nil
	}

	profile := models.ProfileFor(snapshot.Schedule)

	expected := e.resolveExpectedAmount(log, deal, snapshot)
	paid := e.resolvePaidAmount(log, snapshot, profile, expected)
	paidCount := snapshot.BankPaymentCount + snapshot.ProcessorPaidCount
	if snapshot.Reliability == models.AmountMismatched {
		paidCount = snapshot.BankPaymentCount + snapshot.VerifiedProcessorCount
	}

	if !expected.IsPositive() {
		decision.Reason = "no payments or expected amount"
		e.logDecision(log, decision)
		return decision, nil
	}

	ratio := stage.ClampRatio(paid.Div(expected))

	pipeline, stageMap := stage.MapForDeal(deal.PipelineID)
	decision.Pipeline = pipeline.String()

	evaluation, err := e.evaluator.Evaluate(profile, expected, paid, ratio, paidCount, stageMap)
	if err != nil {
		return nil, err
	}
	decision.Evaluation = evaluation
	decision.ToStage = evaluation.TargetStage

	if ok, reason := e.transitionAllowed(decision.FromStage, evaluation.TargetStage, stageMap, opts); !ok {
		decision.Reason = reason
		e.logDecision(log, decision)
		return decision, nil
	}

	if err := e.stages.SetStage(dealID, evaluation.TargetStage); err != nil {
		return nil, engerrors.StageWriteFailed(dealID, string(evaluation.TargetStage), err)
	}

	decision.Updated = true
	decision.Reason = evaluation.Reason

	// Stage is already updated; a notification failure is surfaced
	// as a warning, not rolled back.
	decision.Notified = e.notify(log, deal)

	e.logDecision(log, decision)
	return decision, nil
}

// resolveExpectedAmount applies the expected-amount fallback chain:
// invoice totals first, then the deal's face value converted to the
// reference currency, then the already-paid amount. Once resolved
// positive it is never reset to zero within the run, and it never ends
// up below what is already recorded as paid.
func (e *Engine) resolveExpectedAmount(log logger.Logger, deal *models.Deal, snapshot *models.FinancialSnapshot) decimal.Decimal {
	expected := snapshot.ExpectedFromInvoices
	if expected.IsPositive() {
		return expected
	}

	if snapshot.ProcessorPaidCount == 0 && snapshot.VerifiedProcessorCount == 0 {
		return expected
	}

	converted := e.converter.ToReference(deal.Value, deal.Currency, decimal.Zero)
	if converted.IsPositive() {
		log.WithField("expected", converted.String()).
			Debug("no invoice totals, substituting deal face value")
		expected = converted
	}

	if expected.LessThan(snapshot.TotalPaid) {
		log.WithFields(logger.Fields{
			"expected": expected.String(),
			"paid":     snapshot.TotalPaid.String(),
		}).Debug("expected amount below recorded payments, raising to paid total")
		expected = snapshot.TotalPaid
	}

	return expected
}

// resolvePaidAmount returns the paid total, substituting the
// verified-count estimate when the snapshot's processor amounts were
// flagged unreliable: verified payments times the schedule's
// per-installment share, on top of the bank/cash amounts.
func (e *Engine) resolvePaidAmount(
	log logger.Logger,
	snapshot *models.FinancialSnapshot,
	profile models.ScheduleProfile,
	expected decimal.Decimal,
) decimal.Decimal {

	if snapshot.Reliability != models.AmountMismatched {
		return snapshot.TotalPaid
	}

	share := profile.PerInstallmentShare(expected)
	estimated := share.Mul(decimal.NewFromInt(int64(snapshot.VerifiedProcessorCount)))
	paid := snapshot.BankPaid.Add(snapshot.CashPaid).Add(estimated)

	log.WithFields(logger.Fields{
		"verified_count": snapshot.VerifiedProcessorCount,
		"share":          share.String(),
		"paid":           paid.String(),
	}).Info("currency mismatch: paid amount estimated from verified payment count")

	return paid
}

// transitionAllowed applies the monotonic transition policy. Automated
// moves only happen between the pipeline's three automated stages and
// only forward; a stale or late-arriving event must never pull a deal
// back from a stage a human already advanced it to. Force bypasses
// both restrictions but still requires a supported target.
func (e *Engine) transitionAllowed(current, target stage.ID, stages stage.Map, opts Options) (bool, string) {
	if current == target {
		return false, "stage already correct"
	}

	targetPos, ok := stages.PositionOf(target)
	if !ok {
		return false, fmt.Sprintf("target stage %s is not automated in this pipeline", target)
	}

	if opts.Force {
		return true, ""
	}

	currentPos, ok := stages.PositionOf(current)
	if !ok {
		return false, "Deal is in a custom stage; automation skipped"
	}

	if targetPos < currentPos {
		return false, "automation does not downgrade without force"
	}

	return true, ""
}

// notify sends the dedup-gated payment notification. Returns whether a
// message actually went out.
func (e *Engine) notify(log logger.Logger, deal *models.Deal) bool {
	if e.channel == nil {
		return false
	}

	recipient, err := e.channel.Recipient(deal.ID)
	if err != nil || recipient == "" {
		// Not every contact opts into the channel; skipped, not failed.
		log.WithError(err).Debug("no notification recipient, skipping")
		return false
	}

	subject := deal.Title
	if subject == "" {
		subject = deal.ID
	}
	message := fmt.Sprintf(e.cfg.NotificationMessage, subject)

	result, err := e.dedup.MaybeNotify(deal.ID, func() error {
		return e.channel.Send(recipient, message)
	})
	if err != nil {
		log.WithError(err).Warn("payment notification failed after stage update")
		return false
	}

	return result.Sent
}

func (e *Engine) logDecision(log logger.Logger, d *Decision) {
	fields := logger.Fields{
		"updated": d.Updated,
		"reason":  d.Reason,
	}
	if d.Updated {
		fields["from_stage"] = d.FromStage
		fields["to_stage"] = d.ToStage
		fields["notified"] = d.Notified
	}
	if d.Evaluation != nil {
		fields["paid_ratio"] = d.Evaluation.PaidRatio.String()
		fields["schedule"] = d.Evaluation.Schedule
	}
	log.WithFields(fields).Info("reconciliation decision")
}
