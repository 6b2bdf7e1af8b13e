// Package aggregator builds the per-deal financial snapshot by merging
// the invoice aggregates from accounting with the checkout payments
// from the processor.
//
// The two sources disagree structurally: invoices carry amounts already
// settled into the reference currency, while processor payments may be
// in any currency with or without a converted amount. When the payment
// currencies conflict with the deal's currency the aggregator refuses
// to sum raw amounts and instead reports how many settled payments were
// independently corroborated; the orchestrator turns that count into an
// amount using the schedule's per-installment share.
package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/currency"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/schedule"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// InvoiceReader lists the active invoice aggregates for a deal.
type InvoiceReader interface {
	ListActiveInvoices(dealID string) ([]*models.InvoiceRecord, error)
}

// PaymentReader lists the processor payment records for a deal.
type PaymentReader interface {
	ListPayments(dealID string) ([]*models.ProcessorPayment, error)
}

// SettlementConfirmer reports whether a payment's settlement has been
// corroborated by an out-of-band source (a provider event log keyed by
// payment identifier). Used only on the currency-mismatch path.
type SettlementConfirmer interface {
	IsIndependentlyConfirmed(paymentID string) bool
}

// Aggregator loads and merges all payment sources for a deal.
type Aggregator struct {
	invoices  InvoiceReader
	payments  PaymentReader
	confirmer SettlementConfirmer
	converter *currency.Converter
	resolver  *schedule.Resolver
	log       logger.Logger
}

// New creates an Aggregator. The confirmer may be nil when no
// out-of-band corroboration source exists; the currency-mismatch path
// then verifies zero payments.
func New(
	invoices InvoiceReader,
	payments PaymentReader,
	confirmer SettlementConfirmer,
	converter *currency.Converter,
	resolver *schedule.Resolver,
	log logger.Logger,
) (*Aggregator, error) {

	if invoices == nil {
		return nil, engerrors.ValidationError(engerrors.CodeMissingField, "invoice_reader", nil)
	}
	if payments == nil {
		return nil, engerrors.ValidationError(engerrors.CodeMissingField, "payment_reader", nil)
	}
	if converter == nil {
		converter = currency.NewConverter(nil, nil)
	}
	if resolver == nil {
		resolver = schedule.NewResolver(nil, nil)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Aggregator{
		invoices:  invoices,
		payments:  payments,
		confirmer: confirmer,
		converter: converter,
		resolver:  resolver,
		log:       log.WithComponent("aggregator"),
	}, nil
}

// BuildSnapshot loads invoices and processor payments for the deal and
// sums them into a financial snapshot. Empty payment lists are valid;
// the result is then a zero snapshot with the single-payment schedule.
// Snapshot amount fields are always set and counts are always >= 0.
func (a *Aggregator) BuildSnapshot(dealID string, deal *models.Deal) (*models.FinancialSnapshot, error) {
	invoices, err := a.invoices.ListActiveInvoices(dealID)
	if err != nil {
		return nil, engerrors.Wrap(err, engerrors.CategoryPayment,
			engerrors.CodeInvoiceListFailed, "failed to list invoices for deal "+dealID)
	}

	payments, err := a.payments.ListPayments(dealID)
	if err != nil {
		return nil, engerrors.Wrap(err, engerrors.CategoryPayment,
			engerrors.CodePaymentListFailed, "failed to list processor payments for deal "+dealID)
	}

	snapshot := &models.FinancialSnapshot{
		DealID:               dealID,
		ExpectedFromInvoices: decimal.Zero,
		BankPaid:             decimal.Zero,
		CashPaid:             decimal.Zero,
		ProcessorPaid:        decimal.Zero,
		TotalPaid:            decimal.Zero,
		Reliability:          models.AmountConsistent,
		Schedule:             models.ScheduleSingle,
	}

	active := filterActive(invoices)
	settled := filterSettled(payments)

	if len(active) == 0 && len(payments) == 0 {
		a.log.WithField("deal_id", dealID).Debug("no invoices or payments, returning zero snapshot")
		return snapshot, nil
	}

	a.sumInvoices(snapshot, active)
	a.sumProcessorPayments(snapshot, deal, settled)

	snapshot.TotalPaid = snapshot.BankPaid.Add(snapshot.CashPaid).Add(snapshot.ProcessorPaid)
	snapshot.Schedule = a.resolver.Resolve(deal, active, payments)

	a.log.WithFields(logger.Fields{
		"deal_id":     dealID,
		"expected":    snapshot.ExpectedFromInvoices.String(),
		"total_paid":  snapshot.TotalPaid.String(),
		"schedule":    snapshot.Schedule,
		"reliability": snapshot.Reliability.String(),
	}).Debug("built financial snapshot")

	return snapshot, nil
}

// sumInvoices accumulates invoice totals and their bank/cash paid
// amounts. Totals convert through each invoice's own exchange rate;
// inconvertible totals contribute nothing rather than poisoning the
// sum.
func (a *Aggregator) sumInvoices(snapshot *models.FinancialSnapshot, invoices []*models.InvoiceRecord) {
	for _, inv := range invoices {
		converted := a.converter.ToReference(inv.Total, inv.Currency, inv.ExchangeRate)
		snapshot.ExpectedFromInvoices = snapshot.ExpectedFromInvoices.Add(converted)

		snapshot.BankPaid = snapshot.BankPaid.Add(inv.PaidByBank)
		snapshot.CashPaid = snapshot.CashPaid.Add(inv.PaidByCash)

		if inv.PaidByBank.IsPositive() {
			if inv.PaymentCount > 0 {
				snapshot.BankPaymentCount += inv.PaymentCount
			} else {
				snapshot.BankPaymentCount++
			}
		}
	}
}

// sumProcessorPayments accumulates settled processor payments. When the
// deal currency is known and any settled payment's currency differs,
// amount summation is unreliable: the snapshot is flagged mismatched
// and only independently corroborated payments are counted.
func (a *Aggregator) sumProcessorPayments(snapshot *models.FinancialSnapshot, deal *models.Deal, settled []*models.ProcessorPayment) {
	if len(settled) == 0 {
		return
	}

	if deal != nil && deal.Currency != "" && hasForeignCurrency(deal.Currency, settled) && a.confirmer != nil {
		snapshot.Reliability = models.AmountMismatched
		for _, p := range settled {
			snapshot.ProcessorPaidCount++
			if a.confirmer.IsIndependentlyConfirmed(p.ID) {
				snapshot.VerifiedProcessorCount++
			}
		}
		a.log.WithFields(logger.Fields{
			"deal_id":  snapshot.DealID,
			"settled":  snapshot.ProcessorPaidCount,
			"verified": snapshot.VerifiedProcessorCount,
		}).Warn("processor payment currencies disagree with deal currency, amounts not summed")
		return
	}

	for _, p := range settled {
		snapshot.ProcessorPaidCount++
		if p.AmountPLN.Valid {
			snapshot.ProcessorPaid = snapshot.ProcessorPaid.Add(p.AmountPLN.Decimal)
			continue
		}
		snapshot.ProcessorPaid = snapshot.ProcessorPaid.Add(
			a.converter.ToReference(p.Amount, p.Currency, decimal.Zero))
	}
}

func filterActive(invoices []*models.InvoiceRecord) []*models.InvoiceRecord {
	var active []*models.InvoiceRecord
	for _, inv := range invoices {
		if inv.IsActive() {
			active = append(active, inv)
		}
	}
	return active
}

func filterSettled(payments []*models.ProcessorPayment) []*models.ProcessorPayment {
	var settled []*models.ProcessorPayment
	for _, p := range payments {
		if p.IsSettled() {
			settled = append(settled, p)
		}
	}
	return settled
}

func hasForeignCurrency(dealCurrency models.Currency, payments []*models.ProcessorPayment) bool {
	for _, p := range payments {
		if p.Currency != "" && p.Currency != dealCurrency {
			return true
		}
	}
	return false
}
