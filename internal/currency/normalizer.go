// Package currency converts amounts into the reference currency (PLN).
//
// The conversion contract is deliberately forgiving: when no usable
// rate exists the result is zero, which callers must read as "not
// computable" rather than a true zero balance. The aggregator and
// orchestrator carry fallbacks for exactly that case.
package currency

import (
	"github.com/shopspring/decimal"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// RateSource looks up an exchange rate between two currencies. A
// non-positive rate or an error both mean the rate is unknown.
type RateSource interface {
	Rate(from, to models.Currency) (decimal.Decimal, error)
}

// ToReference converts an amount in the given currency to the reference
// currency using the supplied rate.
//
// Rules:
//   - reference-currency amounts pass through unchanged;
//   - a positive rate multiplies the amount;
//   - anything else (unknown currency, missing or non-positive rate)
//     yields zero, the explicit "not computable" signal.
//
// Pure function; never returns an error.
func ToReference(amount decimal.Decimal, cur models.Currency, rate decimal.Decimal) decimal.Decimal {
	if cur == "" {
		return decimal.Zero
	}
	if cur.IsReference() {
		return amount
	}
	if rate.IsPositive() {
		return amount.Mul(rate)
	}
	return decimal.Zero
}

// Converter resolves rates through a RateSource when a record carries
// no usable rate of its own.
type Converter struct {
	source RateSource
	log    logger.Logger
}

// NewConverter creates a Converter. The rate source may be nil, in
// which case only reference-currency amounts and amounts with an
// explicit rate convert.
func NewConverter(source RateSource, log logger.Logger) *Converter {
	if log == nil {
		log = logger.Nop()
	}
	return &Converter{
		source: source,
		log:    log.WithComponent("currency"),
	}
}

// ToReference converts using the explicit rate when positive, falling
// back to the rate source. Returns zero when no conversion path exists.
func (c *Converter) ToReference(amount decimal.Decimal, cur models.Currency, rate decimal.Decimal) decimal.Decimal {
	if cur == "" || cur.IsReference() || rate.IsPositive() {
		return ToReference(amount, cur, rate)
	}

	if c.source == nil {
		return decimal.Zero
	}

	looked, err := c.source.Rate(cur, models.CurrencyPLN)
	if err != nil || !looked.IsPositive() {
		c.log.WithFields(logger.Fields{
			"currency": cur,
			"amount":   amount.String(),
		}).Debug("no exchange rate resolvable, treating amount as not computable")
		return decimal.Zero
	}

	return amount.Mul(looked)
}
