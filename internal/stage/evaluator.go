package stage

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
)

// EvaluatorConfig holds the thresholds of stage evaluation.
type EvaluatorConfig struct {
	// FullyPaidThreshold is the paid ratio at which a deal counts as
	// fully paid even if an installment is formally outstanding.
	FullyPaidThreshold decimal.Decimal `json:"fully_paid_threshold"`

	// DepositTolerance widens the deposit threshold downward.
	// Currency rounding and processor fees regularly leave a
	// received deposit a few points short of the nominal split;
	// without the band legitimate deposits would never advance the
	// deal. Empirically 5 percentage points in the source system.
	DepositTolerance decimal.Decimal `json:"deposit_tolerance"`
}

// DefaultEvaluatorConfig returns the evaluation defaults.
func DefaultEvaluatorConfig() *EvaluatorConfig {
	return &EvaluatorConfig{
		FullyPaidThreshold: decimal.NewFromFloat(0.95),
		DepositTolerance:   decimal.NewFromFloat(0.05),
	}
}

// Validate checks the evaluator configuration.
func (c *EvaluatorConfig) Validate() error {
	one := decimal.NewFromInt(1)
	if c.FullyPaidThreshold.LessThanOrEqual(decimal.Zero) || c.FullyPaidThreshold.GreaterThan(one) {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig,
			"fully_paid_threshold", c.FullyPaidThreshold.String())
	}
	if c.DepositTolerance.IsNegative() || c.DepositTolerance.GreaterThanOrEqual(one) {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig,
			"deposit_tolerance", c.DepositTolerance.String())
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *EvaluatorConfig) Clone() *EvaluatorConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Evaluation is the outcome of one stage evaluation: which stage the
// deal should be in and why. Ephemeral, produced and consumed within a
// single reconciliation run.
type Evaluation struct {
	Schedule         models.ScheduleKey `json:"schedule"`
	ExpectedPayments int                `json:"expected_payments"`
	ExpectedAmount   decimal.Decimal    `json:"expected_amount"`
	PaidAmount       decimal.Decimal    `json:"paid_amount"`
	PaidRatio        decimal.Decimal    `json:"paid_ratio"`
	PaidCount        int                `json:"paid_count"`
	TargetStage      ID                 `json:"target_stage"`
	Reason           string             `json:"reason"`
}

// MarshalJSON renders decimal fields as strings.
func (e *Evaluation) MarshalJSON() ([]byte, error) {
	type Alias Evaluation
	return json.Marshal(&struct {
		ExpectedAmount string `json:"expected_amount"`
		PaidAmount     string `json:"paid_amount"`
		PaidRatio      string `json:"paid_ratio"`
		*Alias
	}{
		ExpectedAmount: e.ExpectedAmount.String(),
		PaidAmount:     e.PaidAmount.String(),
		PaidRatio:      e.PaidRatio.String(),
		Alias:          (*Alias)(e),
	})
}

// Evaluator maps (schedule profile, paid ratio, paid count) onto a
// target stage. Pure and total given valid inputs; the only failure is
// the expected-amount precondition, which is a caller bug, not a data
// condition.
type Evaluator struct {
	cfg *EvaluatorConfig
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(cfg *EvaluatorConfig) *Evaluator {
	if cfg == nil {
		cfg = DefaultEvaluatorConfig()
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate decides the target stage.
//
// Rule, in order:
//  1. paid ratio at or above the fully-paid threshold, or paid count
//     covering every expected installment, targets the fully-paid stage;
//  2. a multi-installment profile whose ratio reaches the deposit ratio
//     minus the tolerance band targets the second-payment stage;
//  3. everything else targets the first-payment stage.
func (ev *Evaluator) Evaluate(
	profile models.ScheduleProfile,
	expectedAmount decimal.Decimal,
	paidAmount decimal.Decimal,
	paidRatio decimal.Decimal,
	paidCount int,
	stages Map,
) (*Evaluation, error) {

	if !expectedAmount.IsPositive() {
		return nil, engerrors.ValidationError(
			engerrors.CodeExpectedNotSet, "expected_amount", expectedAmount.String())
	}

	result := &Evaluation{
		Schedule:         profile.Key,
		ExpectedPayments: profile.ExpectedPayments,
		ExpectedAmount:   expectedAmount,
		PaidAmount:       paidAmount,
		PaidRatio:        paidRatio,
		PaidCount:        paidCount,
	}

	percent := paidRatio.Mul(decimal.NewFromInt(100)).Round(1)

	switch {
	case paidRatio.GreaterThanOrEqual(ev.cfg.FullyPaidThreshold),
		paidCount >= profile.ExpectedPayments:
		result.TargetStage = stages.FullyPaid
		result.Reason = fmt.Sprintf("deal is fully paid (%s%% of %s received)",
			percent.String(), expectedAmount.String())

	case profile.ExpectedPayments > 1 &&
		paidRatio.GreaterThanOrEqual(profile.DepositRatio.Sub(ev.cfg.DepositTolerance)):
		result.TargetStage = stages.SecondPayment
		result.Reason = fmt.Sprintf("deposit received (%s%% paid, %s schedule), awaiting remaining installment",
			percent.String(), profile.Key)

	default:
		result.TargetStage = stages.FirstPayment
		result.Reason = fmt.Sprintf("partial payment (%s%% paid), below deposit threshold",
			percent.String())
	}

	return result, nil
}

// ClampRatio bounds a paid ratio to [0, 1.5]. Refund overshoot stays
// visible but bounded.
func ClampRatio(ratio decimal.Decimal) decimal.Decimal {
	ceiling := decimal.NewFromFloat(1.5)
	if ratio.IsNegative() {
		return decimal.Zero
	}
	if ratio.GreaterThan(ceiling) {
		return ceiling
	}
	return ratio
}
