// Package gateways provides file-backed implementations of the engine's
// capability interfaces. A fixture directory holds one JSON document
// per deal with the deal, its invoices, its processor payments, the
// set of independently confirmed payment IDs and exchange rates. The
// CLI uses these for dry runs and replays; production deployments wire
// real CRM and processor clients instead.
package gateways

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/models"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/stage"
	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// DealFixture is the on-disk document for one deal.
type DealFixture struct {
	Deal              *models.Deal               `json:"deal"`
	Invoices          []*models.InvoiceRecord    `json:"invoices,omitempty"`
	Payments          []*models.ProcessorPayment `json:"payments,omitempty"`
	ConfirmedPayments []string                   `json:"confirmed_payments,omitempty"`
	Recipient         string                     `json:"recipient,omitempty"`
	// Rates maps "FROM/TO" pairs (e.g. "USD/PLN") to a decimal rate
	// string.
	Rates map[string]string `json:"rates,omitempty"`
}

// Validate checks the fixture document.
func (f *DealFixture) Validate() error {
	if f.Deal == nil {
		return engerrors.ValidationError(engerrors.CodeMissingField, "deal", nil)
	}
	if err := f.Deal.Validate(); err != nil {
		return err
	}
	for _, inv := range f.Invoices {
		if err := inv.Validate(); err != nil {
			return err
		}
	}
	for _, p := range f.Payments {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FixtureStore serves deals, invoices, payments, confirmations and
// rates from loaded fixtures, and records the stage changes and
// notifications the engine requests. It implements every capability
// the engine consumes. Safe for concurrent reconciliation runs.
type FixtureStore struct {
	mu       sync.RWMutex
	fixtures map[string]*DealFixture

	stageWrites   map[string]stage.ID
	notifications []SentNotification

	log logger.Logger
}

// SentNotification records one delivered message.
type SentNotification struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// NewFixtureStore creates an empty store.
func NewFixtureStore(log logger.Logger) *FixtureStore {
	if log == nil {
		log = logger.Nop()
	}
	return &FixtureStore{
		fixtures:    make(map[string]*DealFixture),
		stageWrites: make(map[string]stage.ID),
		log:         log.WithComponent("gateways"),
	}
}

// LoadDir loads every *.json fixture in the directory.
func LoadDir(dir string, log logger.Logger) (*FixtureStore, error) {
	store := NewFixtureStore(log)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, engerrors.Wrap(err, engerrors.CategoryConfiguration,
			engerrors.CodeMissingConfig, "failed to read fixture directory "+dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := store.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// LoadFile loads a single fixture file into the store.
func (s *FixtureStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return engerrors.Wrap(err, engerrors.CategoryConfiguration,
			engerrors.CodeMissingConfig, "failed to read fixture "+path)
	}

	var fixture DealFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return engerrors.Wrap(err, engerrors.CategoryValidation,
			engerrors.CodeInvalidConfig, "failed to parse fixture "+path)
	}
	if err := fixture.Validate(); err != nil {
		return engerrors.Wrap(err, engerrors.CategoryValidation,
			engerrors.CodeInvalidConfig, "invalid fixture "+path)
	}

	s.Add(&fixture)
	s.log.WithFields(logger.Fields{
		"file":    filepath.Base(path),
		"deal_id": fixture.Deal.ID,
	}).Debug("loaded deal fixture")
	return nil
}

// Add registers a fixture, replacing any earlier one for the same deal.
func (s *FixtureStore) Add(f *DealFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[f.Deal.ID] = f
}

// DealIDs returns the loaded deal identifiers in stable order.
func (s *FixtureStore) DealIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.fixtures))
	for id := range s.fixtures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetDeal implements reconciler.DealReader. The returned deal reflects
// any stage write applied earlier in this process, so repeated runs
// observe their own transitions.
func (s *FixtureStore) GetDeal(dealID string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fixtures[dealID]
	if !ok {
		return nil, fmt.Errorf("no fixture for deal %s", dealID)
	}

	deal := *f.Deal
	if written, ok := s.stageWrites[dealID]; ok {
		deal.StageID = string(written)
	}
	return &deal, nil
}

// SetStage implements reconciler.DealStageWriter.
func (s *FixtureStore) SetStage(dealID string, stageID stage.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fixtures[dealID]; !ok {
		return fmt.Errorf("no fixture for deal %s", dealID)
	}
	s.stageWrites[dealID] = stageID
	return nil
}

// StageWrites returns the recorded stage transitions by deal.
func (s *FixtureStore) StageWrites() map[string]stage.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]stage.ID, len(s.stageWrites))
	for k, v := range s.stageWrites {
		out[k] = v
	}
	return out
}

// ListActiveInvoices implements aggregator.InvoiceReader.
func (s *FixtureStore) ListActiveInvoices(dealID string) ([]*models.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fixtures[dealID]
	if !ok {
		return nil, nil
	}

	var active []*models.InvoiceRecord
	for _, inv := range f.Invoices {
		if inv.IsActive() {
			active = append(active, inv)
		}
	}
	return active, nil
}

// ListPayments implements aggregator.PaymentReader.
func (s *FixtureStore) ListPayments(dealID string) ([]*models.ProcessorPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fixtures[dealID]
	if !ok {
		return nil, nil
	}
	return f.Payments, nil
}

// IsIndependentlyConfirmed implements aggregator.SettlementConfirmer.
func (s *FixtureStore) IsIndependentlyConfirmed(paymentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.fixtures {
		for _, id := range f.ConfirmedPayments {
			if id == paymentID {
				return true
			}
		}
	}
	return false
}

// Rate implements currency.RateSource using the rates declared in the
// fixtures.
func (s *FixtureStore) Rate(from, to models.Currency) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := fmt.Sprintf("%s/%s", from, to)
	for _, f := range s.fixtures {
		if raw, ok := f.Rates[key]; ok {
			rate, err := decimal.NewFromString(raw)
			if err != nil {
				return decimal.Zero, fmt.Errorf("invalid rate for %s: %w", key, err)
			}
			return rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("no rate for %s", key)
}

// Recipient implements reconciler.NotificationChannel.
func (s *FixtureStore) Recipient(dealID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fixtures[dealID]
	if !ok {
		return "", nil
	}
	return f.Recipient, nil
}

// Send implements reconciler.NotificationChannel by recording the
// message.
func (s *FixtureStore) Send(recipient, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, SentNotification{
		Recipient: recipient,
		Message:   message,
	})
	s.log.WithField("recipient", recipient).Info("notification recorded")
	return nil
}

// Notifications returns the messages recorded so far.
func (s *FixtureStore) Notifications() []SentNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SentNotification, len(s.notifications))
	copy(out, s.notifications)
	return out
}
