package schedule

import (
	"testing"
	"time"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func newTestResolver() *Resolver {
	cfg := DefaultConfig()
	cfg.Now = fixedNow
	return NewResolver(cfg, nil)
}

func TestNormalizeHint(t *testing.T) {
	tests := []struct {
		input    string
		expected models.ScheduleKey
		ok       bool
	}{
		{"50/50", models.ScheduleEvenSplit, true},
		{"split-50", models.ScheduleEvenSplit, true},
		{"70-30", models.ScheduleFrontLoaded, true},
		{"plan 70", models.ScheduleFrontLoaded, true},
		{"1", models.ScheduleSingle, true},
		{"single", models.ScheduleSingle, true},
		{"SINGLE payment", models.ScheduleSingle, true},
		{"", "", false},
		{"quarterly", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeHint(tt.input)
		if ok != tt.ok || got != tt.expected {
			t.Errorf("NormalizeHint(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestResolve_ExplicitHintWins(t *testing.T) {
	r := newTestResolver()

	// The payment set also matches the deposit/rest pattern, but the
	// explicit hint has precedence.
	payments := []*models.ProcessorPayment{
		{ID: "p1", Kind: models.KindDeposit, ScheduleTag: "70/30"},
		{ID: "p2", Kind: models.KindRest},
	}

	got := r.Resolve(&models.Deal{ID: "1"}, nil, payments)
	if got != models.ScheduleFrontLoaded {
		t.Errorf("expected explicit hint to win, got %s", got)
	}
}

func TestResolve_DepositRestPattern(t *testing.T) {
	r := newTestResolver()

	payments := []*models.ProcessorPayment{
		{ID: "p1", Kind: models.KindDeposit},
		{ID: "p2", Kind: models.KindRest},
	}

	got := r.Resolve(&models.Deal{ID: "1"}, nil, payments)
	if got != models.ScheduleEvenSplit {
		t.Errorf("expected even split from deposit/rest pattern, got %s", got)
	}
}

func TestResolve_TwoProcessedPayments(t *testing.T) {
	r := newTestResolver()

	payments := []*models.ProcessorPayment{
		{ID: "p1", Processing: models.ProcessingProcessed},
		{ID: "p2", Processing: models.ProcessingProcessed},
	}

	got := r.Resolve(&models.Deal{ID: "1"}, nil, payments)
	if got != models.ScheduleEvenSplit {
		t.Errorf("expected even split from two processed payments, got %s", got)
	}
}

func TestResolve_CloseDateHeuristic(t *testing.T) {
	r := newTestResolver()

	// Close date 60 days out from "now": split expected.
	deal := &models.Deal{ID: "1", ExpectedCloseDate: "2026-09-30"}
	if got := r.Resolve(deal, nil, nil); got != models.ScheduleEvenSplit {
		t.Errorf("expected even split for distant close date, got %s", got)
	}

	// Close date a week out: single.
	deal.ExpectedCloseDate = "2026-08-08"
	if got := r.Resolve(deal, nil, nil); got != models.ScheduleSingle {
		t.Errorf("expected single for near close date, got %s", got)
	}
}

func TestResolve_CloseDateAnchorsOnEarliestInvoice(t *testing.T) {
	r := newTestResolver()

	deal := &models.Deal{ID: "1", ExpectedCloseDate: "2026-09-30"}
	invoices := []*models.InvoiceRecord{
		{ID: "i2", Status: models.InvoiceActive, IssuedAt: time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "i1", Status: models.InvoiceActive, IssuedAt: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)},
		{ID: "i0", Status: models.InvoiceInactive, IssuedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	// Earliest active invoice is Sep 15; only 15 days from close,
	// so the heuristic picks single despite "now" being far away.
	if got := r.Resolve(deal, invoices, nil); got != models.ScheduleSingle {
		t.Errorf("expected single when invoice anchor is near close date, got %s", got)
	}
}

func TestResolve_MalformedDateFallsThrough(t *testing.T) {
	r := newTestResolver()

	deal := &models.Deal{ID: "1", ExpectedCloseDate: "someday"}
	if got := r.Resolve(deal, nil, nil); got != models.ScheduleSingle {
		t.Errorf("expected default single for malformed date, got %s", got)
	}
}

func TestResolve_Default(t *testing.T) {
	r := newTestResolver()

	if got := r.Resolve(&models.Deal{ID: "1"}, nil, nil); got != models.ScheduleSingle {
		t.Errorf("expected default single, got %s", got)
	}
	if got := r.Resolve(nil, nil, nil); got != models.ScheduleSingle {
		t.Errorf("expected default single for nil deal, got %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}

	cfg.SplitInferenceDays = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative day threshold")
	}

	cfg = DefaultConfig()
	cfg.MinProcessedForSplit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero processed threshold")
	}
}
