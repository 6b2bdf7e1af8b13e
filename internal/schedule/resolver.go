// Package schedule infers which payment-schedule profile applies to a
// deal. Three independent signal sources feed the inference, in strict
// precedence order:
//
//  1. an explicit schedule hint on a processor payment;
//  2. the deposit/rest tagging pattern of the payment set;
//  3. the distance between the deal's expected close date and the
//     earliest invoice issue date.
//
// Each source is a Strategy; the Resolver walks the ordered strategy
// list and takes the first answer. New signal sources slot in without
// touching existing ones.
package schedule

import (
	"strings"
	"time"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// Input carries the full payment context a strategy may inspect.
type Input struct {
	Deal     *models.Deal
	Invoices []*models.InvoiceRecord
	Payments []*models.ProcessorPayment
	Now      time.Time
}

// Strategy is a single schedule-inference signal source. Resolve
// returns false when the strategy has no opinion for this input.
type Strategy interface {
	Name() string
	Resolve(in Input) (models.ScheduleKey, bool)
}

// Config holds the tunable constants of schedule inference.
type Config struct {
	// SplitInferenceDays is the minimum number of days between the
	// expected close date and the earliest invoice before a
	// two-installment schedule is assumed. Empirically chosen in the
	// source system; override with care.
	SplitInferenceDays int `json:"split_inference_days"`

	// MinProcessedForSplit is how many processed payments imply a
	// split schedule even without deposit/rest tags.
	MinProcessedForSplit int `json:"min_processed_for_split"`

	// Now supplies the current time; injectable for tests.
	Now func() time.Time `json:"-"`
}

// DefaultConfig returns the inference defaults.
func DefaultConfig() *Config {
	return &Config{
		SplitInferenceDays:   30,
		MinProcessedForSplit: 2,
		Now:                  time.Now,
	}
}

// Validate checks the inference configuration.
func (c *Config) Validate() error {
	if c.SplitInferenceDays < 0 {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig, "split_inference_days", c.SplitInferenceDays)
	}
	if c.MinProcessedForSplit < 1 {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig, "min_processed_for_split", c.MinProcessedForSplit)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Resolver infers the schedule profile for a deal by walking its
// strategies in order.
type Resolver struct {
	strategies []Strategy
	cfg        *Config
	log        logger.Logger
}

// NewResolver creates a Resolver with the default strategy order:
// explicit hint, payment pattern, close-date distance.
func NewResolver(cfg *Config, log logger.Logger) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		strategies: []Strategy{
			hintStrategy{},
			patternStrategy{minProcessed: cfg.MinProcessedForSplit},
			closeDateStrategy{thresholdDays: cfg.SplitInferenceDays, now: cfg.Now},
		},
		cfg: cfg,
		log: log.WithComponent("schedule"),
	}
}

// Resolve returns the schedule profile key for the deal. It never
// fails: when no strategy has an opinion the single-payment profile is
// the default.
func (r *Resolver) Resolve(deal *models.Deal, invoices []*models.InvoiceRecord, payments []*models.ProcessorPayment) models.ScheduleKey {
	in := Input{
		Deal:     deal,
		Invoices: invoices,
		Payments: payments,
		Now:      r.cfg.Now(),
	}

	for _, s := range r.strategies {
		if key, ok := s.Resolve(in); ok {
			r.log.WithFields(logger.Fields{
				"strategy": s.Name(),
				"schedule": key,
			}).Debug("schedule resolved")
			return key
		}
	}

	return models.ScheduleSingle
}

// hintStrategy reads the explicit schedule tag or metadata hint off any
// processor payment. Explicit hints always win.
type hintStrategy struct{}

func (hintStrategy) Name() string { return "explicit_hint" }

func (hintStrategy) Resolve(in Input) (models.ScheduleKey, bool) {
	for _, p := range in.Payments {
		hint, ok := p.ScheduleHint()
		if !ok {
			continue
		}
		if key, ok := NormalizeHint(hint); ok {
			return key, true
		}
	}
	return "", false
}

// NormalizeHint maps a free-form schedule hint string onto a profile
// key. The hints are whatever checkout forms put into metadata, so the
// matching is substring-based: "50" means an even split, "70" a
// front-loaded one, "1" or "single" a single payment.
func NormalizeHint(raw string) (models.ScheduleKey, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}

	switch {
	case strings.Contains(s, "70"):
		return models.ScheduleFrontLoaded, true
	case strings.Contains(s, "50"):
		return models.ScheduleEvenSplit, true
	case s == "1" || strings.Contains(s, "single"):
		return models.ScheduleSingle, true
	}

	return "", false
}

// patternStrategy infers a split schedule from the shape of the payment
// set: a deposit-tagged and a rest-tagged payment together, or enough
// processed payments, imply two installments.
type patternStrategy struct {
	minProcessed int
}

func (patternStrategy) Name() string { return "payment_pattern" }

func (s patternStrategy) Resolve(in Input) (models.ScheduleKey, bool) {
	var hasDeposit, hasRest bool
	var processed int

	for _, p := range in.Payments {
		switch p.Kind {
		case models.KindDeposit:
			hasDeposit = true
		case models.KindRest:
			hasRest = true
		}
		if p.Processing == models.ProcessingProcessed {
			processed++
		}
	}

	if (hasDeposit && hasRest) || processed >= s.minProcessed {
		return models.ScheduleEvenSplit, true
	}
	return "", false
}

// closeDateStrategy infers the schedule from deal timing: a close date
// far beyond the first invoice leaves room for two installments.
// Malformed or missing dates make the strategy abstain; they never
// surface as errors.
type closeDateStrategy struct {
	thresholdDays int
	now           func() time.Time
}

func (closeDateStrategy) Name() string { return "close_date" }

func (s closeDateStrategy) Resolve(in Input) (models.ScheduleKey, bool) {
	if in.Deal == nil {
		return "", false
	}

	closeDate, ok := in.Deal.CloseDate()
	if !ok {
		return "", false
	}

	anchor := in.Now
	if s.now != nil && anchor.IsZero() {
		anchor = s.now()
	}
	if earliest, ok := earliestIssueDate(in.Invoices); ok {
		anchor = earliest
	}

	days := int(closeDate.Sub(anchor).Hours() / 24)
	if days >= s.thresholdDays {
		return models.ScheduleEvenSplit, true
	}
	return models.ScheduleSingle, true
}

// earliestIssueDate returns the earliest issue timestamp among active
// invoices.
func earliestIssueDate(invoices []*models.InvoiceRecord) (time.Time, bool) {
	var earliest time.Time
	var found bool
	for _, inv := range invoices {
		if !inv.IsActive() || inv.IssuedAt.IsZero() {
			continue
		}
		if !found || inv.IssuedAt.Before(earliest) {
			earliest = inv.IssuedAt
			found = true
		}
	}
	return earliest, found
}
