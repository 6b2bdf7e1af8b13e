// Package models defines the domain types shared across the stage
// automation engine: deals, invoice aggregates, processor payments,
// payment-schedule profiles and the derived financial snapshot.
//
// All monetary values use decimal.Decimal; float arithmetic is never
// used for amounts or ratios.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code (upper case).
type Currency string

const (
	// CurrencyPLN is the reference currency. All expected and paid
	// totals are expressed in PLN unless a snapshot is flagged as
	// currency-mismatched.
	CurrencyPLN Currency = "PLN"

	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

// NormalizeCurrency trims and upper-cases a raw currency code.
// An empty result means the currency is unknown.
func NormalizeCurrency(raw string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsReference reports whether the currency is the reference currency.
func (c Currency) IsReference() bool {
	return c == CurrencyPLN
}

// Deal is a read-mostly snapshot of a CRM deal. It is fetched once per
// reconciliation run and never mutated directly; stage changes go
// through the DealStageWriter capability.
type Deal struct {
	ID                string          `json:"id"`
	Title             string          `json:"title,omitempty"`
	Value             decimal.Decimal `json:"value"`
	Currency          Currency        `json:"currency"`
	PipelineID        string          `json:"pipeline_id"`
	StageID           string          `json:"stage_id"`
	ExpectedCloseDate string          `json:"expected_close_date,omitempty"`
}

// Validate performs basic validation on the Deal.
func (d *Deal) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("deal ID cannot be empty")
	}
	if d.Value.IsNegative() {
		return fmt.Errorf("deal value cannot be negative: %s", d.Value.String())
	}
	return nil
}

// CloseDate parses the expected close date. The CRM exports dates in a
// handful of formats, so parsing is tolerant; the second return value
// is false when no usable date is present.
func (d *Deal) CloseDate() (time.Time, bool) {
	t, err := ParseDateLenient(d.ExpectedCloseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// String returns a short description of the Deal.
func (d *Deal) String() string {
	return fmt.Sprintf("Deal{ID: %s, Value: %s %s, Pipeline: %s, Stage: %s}",
		d.ID, d.Value.String(), d.Currency, d.PipelineID, d.StageID)
}

// InvoiceStatus is the lifecycle status of an invoice aggregate.
type InvoiceStatus string

const (
	// InvoiceActive marks invoices that count toward expected and
	// paid totals.
	InvoiceActive InvoiceStatus = "active"
	// InvoiceInactive marks cancelled or superseded invoices.
	InvoiceInactive InvoiceStatus = "inactive"
)

// InvoiceRecord is a bank/proforma-style payment aggregate produced by
// the accounting system. PaidByBank and PaidByCash are already expressed
// in the reference currency; Total is in the invoice currency and is
// converted through ExchangeRate where needed.
type InvoiceRecord struct {
	ID           string          `json:"id"`
	DealID       string          `json:"deal_id"`
	Total        decimal.Decimal `json:"total"`
	Currency     Currency        `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	PaidByBank   decimal.Decimal `json:"paid_by_bank"`
	PaidByCash   decimal.Decimal `json:"paid_by_cash"`
	PaymentCount int             `json:"payment_count"`
	IssuedAt     time.Time       `json:"issued_at"`
	Status       InvoiceStatus   `json:"status"`
}

// IsActive reports whether the invoice counts toward totals.
func (inv *InvoiceRecord) IsActive() bool {
	return inv.Status == InvoiceActive
}

// Validate performs basic validation on the InvoiceRecord.
func (inv *InvoiceRecord) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}
	if inv.Total.IsNegative() {
		return fmt.Errorf("invoice total cannot be negative: %s", inv.Total.String())
	}
	if inv.PaymentCount < 0 {
		return fmt.Errorf("invoice payment count cannot be negative: %d", inv.PaymentCount)
	}
	return nil
}

// String returns a short description of the InvoiceRecord.
func (inv *InvoiceRecord) String() string {
	return fmt.Sprintf("Invoice{ID: %s, Total: %s %s, Bank: %s, Cash: %s, Status: %s}",
		inv.ID, inv.Total.String(), inv.Currency,
		inv.PaidByBank.String(), inv.PaidByCash.String(), inv.Status)
}

// PaymentKind tags a processor payment's place in the schedule.
type PaymentKind string

const (
	// KindDeposit is the initial installment of a split schedule.
	KindDeposit PaymentKind = "deposit"
	// KindRest is the remaining installment after the deposit.
	KindRest PaymentKind = "rest"
	// KindUnspecified means the checkout session carried no
	// installment tag.
	KindUnspecified PaymentKind = ""
)

// ParsePaymentKind maps the free-form payment-type tags seen in
// checkout metadata onto the closed PaymentKind set. Unknown tags map
// to KindUnspecified, never to an error.
func ParsePaymentKind(raw string) PaymentKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deposit", "first", "initial":
		return KindDeposit
	case "rest", "second", "final", "balance":
		return KindRest
	default:
		return KindUnspecified
	}
}

// PaymentStatus is the settlement status of a processor payment.
type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

// ProcessingStatus is the internal handling status of a processor payment.
type ProcessingStatus string

const (
	ProcessingProcessed ProcessingStatus = "processed"
	ProcessingPending   ProcessingStatus = "pending"
)

// ProcessorPayment is a checkout-style payment record. AmountPLN is the
// amount converted to the reference currency at settlement time; it is
// null when the processor did not perform the conversion.
type ProcessorPayment struct {
	ID          string              `json:"id"`
	DealID      string              `json:"deal_id"`
	Kind        PaymentKind         `json:"kind"`
	Currency    Currency            `json:"currency"`
	Amount      decimal.Decimal     `json:"amount"`
	AmountPLN   decimal.NullDecimal `json:"amount_pln"`
	Status      PaymentStatus       `json:"status"`
	Processing  ProcessingStatus    `json:"processing"`
	ScheduleTag string              `json:"schedule_tag,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

// IsSettled reports whether the payment counts as money received:
// either confirmed paid, or fully processed with no conflicting unpaid
// flag. Voided and refunded records never reach this state.
func (p *ProcessorPayment) IsSettled() bool {
	if p.Status == PaymentPaid {
		return true
	}
	return p.Processing == ProcessingProcessed && p.Status != PaymentUnpaid
}

// ScheduleHint returns the schedule hint carried in the payment, either
// as the explicit schedule tag or inside raw metadata. The second
// return value is false when no hint is present.
func (p *ProcessorPayment) ScheduleHint() (string, bool) {
	if s := strings.TrimSpace(p.ScheduleTag); s != "" {
		return s, true
	}
	if p.Metadata != nil {
		if s := strings.TrimSpace(p.Metadata["schedule"]); s != "" {
			return s, true
		}
	}
	return "", false
}

// Validate performs basic validation on the ProcessorPayment.
func (p *ProcessorPayment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("payment ID cannot be empty")
	}
	if strings.TrimSpace(p.DealID) == "" {
		return fmt.Errorf("payment deal ID cannot be empty")
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("payment amount cannot be negative: %s", p.Amount.String())
	}
	return nil
}

// String returns a short description of the ProcessorPayment.
func (p *ProcessorPayment) String() string {
	return fmt.Sprintf("Payment{ID: %s, Deal: %s, Kind: %s, Amount: %s %s, Status: %s}",
		p.ID, p.DealID, p.Kind, p.Amount.String(), p.Currency, p.Status)
}

// AmountReliability classifies whether the processor amounts in a
// snapshot could be summed directly or had to be discarded because the
// payment currencies disagreed with the deal currency.
type AmountReliability int

const (
	// AmountConsistent means processor amounts share the deal's
	// currency context and ProcessorPaid is a direct sum.
	AmountConsistent AmountReliability = iota

	// AmountMismatched means at least one settled payment is in a
	// foreign currency; ProcessorPaid is zero and the orchestrator
	// must fall back to VerifiedProcessorCount.
	AmountMismatched
)

// String returns the string representation of AmountReliability.
func (r AmountReliability) String() string {
	switch r {
	case AmountConsistent:
		return "consistent"
	case AmountMismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// FinancialSnapshot is the per-deal aggregate of all payment sources.
// It is recomputed on every reconciliation run and never persisted.
// All amount fields are non-null decimals and all counts are >= 0.
type FinancialSnapshot struct {
	DealID string `json:"deal_id"`

	// ExpectedFromInvoices is the sum of active invoice totals in
	// the reference currency. Zero when no active invoices exist or
	// none could be converted.
	ExpectedFromInvoices decimal.Decimal `json:"expected_from_invoices"`

	BankPaid      decimal.Decimal `json:"bank_paid"`
	CashPaid      decimal.Decimal `json:"cash_paid"`
	ProcessorPaid decimal.Decimal `json:"processor_paid"`
	TotalPaid     decimal.Decimal `json:"total_paid"`

	BankPaymentCount   int `json:"bank_payment_count"`
	ProcessorPaidCount int `json:"processor_paid_count"`

	// VerifiedProcessorCount is the number of settled payments whose
	// settlement was independently corroborated. Only meaningful when
	// Reliability is AmountMismatched.
	VerifiedProcessorCount int `json:"verified_processor_count"`

	Reliability AmountReliability `json:"reliability"`
	Schedule    ScheduleKey       `json:"schedule"`
}

// HasAnyPayment reports whether any payment source recorded money or
// settled payments for the deal.
func (s *FinancialSnapshot) HasAnyPayment() bool {
	return s.TotalPaid.IsPositive() ||
		s.BankPaymentCount > 0 ||
		s.ProcessorPaidCount > 0 ||
		s.VerifiedProcessorCount > 0
}

// MarshalJSON renders decimal fields as strings so operator tooling
// never sees float rounding.
func (s *FinancialSnapshot) MarshalJSON() ([]byte, error) {
	type Alias FinancialSnapshot
	return json.Marshal(&struct {
		ExpectedFromInvoices string `json:"expected_from_invoices"`
		BankPaid             string `json:"bank_paid"`
		CashPaid             string `json:"cash_paid"`
		ProcessorPaid        string `json:"processor_paid"`
		TotalPaid            string `json:"total_paid"`
		Reliability          string `json:"reliability"`
		*Alias
	}{
		ExpectedFromInvoices: s.ExpectedFromInvoices.String(),
		BankPaid:             s.BankPaid.String(),
		CashPaid:             s.CashPaid.String(),
		ProcessorPaid:        s.ProcessorPaid.String(),
		TotalPaid:            s.TotalPaid.String(),
		Reliability:          s.Reliability.String(),
		Alias:                (*Alias)(s),
	})
}

// String returns a short description of the FinancialSnapshot.
func (s *FinancialSnapshot) String() string {
	return fmt.Sprintf("Snapshot{Deal: %s, Expected: %s, Paid: %s, Schedule: %s, Reliability: %s}",
		s.DealID, s.ExpectedFromInvoices.String(), s.TotalPaid.String(),
		s.Schedule, s.Reliability)
}

// dateFormats are the close-date formats seen across CRM exports.
var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006",
	"2006/01/02",
}

// ParseDateLenient parses a date string using the formats the CRM is
// known to emit. An empty string is an error, not a zero time.
func ParseDateLenient(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}
