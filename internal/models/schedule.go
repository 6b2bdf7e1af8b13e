package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ScheduleKey identifies a payment-schedule profile.
type ScheduleKey string

const (
	// ScheduleSingle is one payment, 100% due at once.
	ScheduleSingle ScheduleKey = "single"
	// ScheduleEvenSplit is two payments with a 50% deposit.
	ScheduleEvenSplit ScheduleKey = "even_split"
	// ScheduleFrontLoaded is two payments with a 70% deposit.
	ScheduleFrontLoaded ScheduleKey = "front_loaded_split"
)

// IsValid checks if the schedule key belongs to the closed profile set.
func (k ScheduleKey) IsValid() bool {
	switch k {
	case ScheduleSingle, ScheduleEvenSplit, ScheduleFrontLoaded:
		return true
	}
	return false
}

// ScheduleProfile describes a payment schedule: how many installments
// are expected and what fraction of the total is due upfront. Profiles
// are immutable and looked up by key.
type ScheduleProfile struct {
	Key              ScheduleKey     `json:"key"`
	ExpectedPayments int             `json:"expected_payments"`
	DepositRatio     decimal.Decimal `json:"deposit_ratio"`
}

var scheduleProfiles = map[ScheduleKey]ScheduleProfile{
	ScheduleSingle: {
		Key:              ScheduleSingle,
		ExpectedPayments: 1,
		DepositRatio:     decimal.NewFromInt(1),
	},
	ScheduleEvenSplit: {
		Key:              ScheduleEvenSplit,
		ExpectedPayments: 2,
		DepositRatio:     decimal.NewFromFloat(0.5),
	},
	ScheduleFrontLoaded: {
		Key:              ScheduleFrontLoaded,
		ExpectedPayments: 2,
		DepositRatio:     decimal.NewFromFloat(0.7),
	},
}

// ProfileFor returns the schedule profile for the given key. Unknown
// keys fall back to the single-payment profile so callers always get a
// usable profile.
func ProfileFor(key ScheduleKey) ScheduleProfile {
	if p, ok := scheduleProfiles[key]; ok {
		return p
	}
	return scheduleProfiles[ScheduleSingle]
}

// PerInstallmentShare returns the expected amount of one installment
// under this profile for the given expected total.
func (p ScheduleProfile) PerInstallmentShare(expected decimal.Decimal) decimal.Decimal {
	if p.ExpectedPayments <= 0 {
		return expected
	}
	return expected.Div(decimal.NewFromInt(int64(p.ExpectedPayments)))
}

// String returns a short description of the ScheduleProfile.
func (p ScheduleProfile) String() string {
	return fmt.Sprintf("ScheduleProfile{Key: %s, Payments: %d, Deposit: %s}",
		p.Key, p.ExpectedPayments, p.DepositRatio.String())
}
