// Package notify enforces the at-most-once guarantee on the customer
// facing "payment received" message. Reconciliation runs retry freely
// (webhooks, cron sweeps, manual retriggers), so the dedup window is
// the only thing standing between a retry storm and a customer getting
// the same message five times.
package notify

import (
	"sync"
	"time"

	engerrors "github.com/sigayyury-ai/crmtowfirma-sub006/pkg/errors"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// Config holds the dedup window and eviction policy.
type Config struct {
	// Window is how long after a successful send further sends for
	// the same deal are suppressed.
	Window time.Duration `json:"window"`

	// EvictAfter is the age past which entries are eligible for
	// eviction.
	EvictAfter time.Duration `json:"evict_after"`

	// EvictThreshold is the map size past which eviction runs.
	EvictThreshold int `json:"evict_threshold"`

	// Now supplies the current time; injectable for tests.
	Now func() time.Time `json:"-"`
}

// DefaultConfig returns the dedup defaults: one-hour window, entries
// older than a day evicted once the map holds more than 1000 deals.
func DefaultConfig() *Config {
	return &Config{
		Window:         time.Hour,
		EvictAfter:     24 * time.Hour,
		EvictThreshold: 1000,
		Now:            time.Now,
	}
}

// Validate checks the dedup configuration.
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig, "window", c.Window)
	}
	if c.EvictAfter < c.Window {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig, "evict_after", c.EvictAfter)
	}
	if c.EvictThreshold <= 0 {
		return engerrors.ConfigurationError(engerrors.CodeInvalidConfig, "evict_threshold", c.EvictThreshold)
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

// Result describes the outcome of a MaybeNotify call.
type Result struct {
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// Deduplicator is the time-windowed at-most-once gate. It is an
// injected component, not process-global state, so tests control time
// and isolate state between runs. Safe for concurrent use.
type Deduplicator struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	cfg      *Config
	log      logger.Logger
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(cfg *Config, log logger.Logger) *Deduplicator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Deduplicator{
		lastSent: make(map[string]time.Time),
		cfg:      cfg,
		log:      log.WithComponent("notify"),
	}
}

// MaybeNotify invokes send at most once per deal per window. The gate
// is claimed before sending so two near-simultaneous runs for the same
// deal cannot both pass it; a failed send releases the claim, leaving
// the window open for the caller's retry.
func (d *Deduplicator) MaybeNotify(dealID string, send func() error) (Result, error) {
	now, prev, claimed := d.claim(dealID)
	if !claimed {
		d.log.WithFields(logger.Fields{
			"deal_id":   dealID,
			"last_sent": prev.Format(time.RFC3339),
		}).Debug("notification suppressed by dedup window")
		return Result{Skipped: true, Reason: "already notified within dedup window"}, nil
	}

	if err := send(); err != nil {
		d.release(dealID, prev)
		return Result{}, engerrors.NotificationError(engerrors.CodeSendFailed, dealID, err)
	}

	d.log.WithFields(logger.Fields{
		"deal_id": dealID,
		"sent_at": now.Format(time.RFC3339),
	}).Info("payment notification sent")
	return Result{Sent: true}, nil
}

// claim atomically checks the window and, if open, records now as the
// last-sent time. Returns the previous timestamp so a failed send can
// restore it.
func (d *Deduplicator) claim(dealID string) (now, prev time.Time, claimed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now = d.cfg.Now()
	prev, existed := d.lastSent[dealID]
	if existed && now.Sub(prev) < d.cfg.Window {
		return now, prev, false
	}

	d.lastSent[dealID] = now
	if !existed {
		prev = time.Time{}
	}

	d.evictLocked(now)
	return now, prev, true
}

// release undoes a claim after a failed send.
func (d *Deduplicator) release(dealID string, prev time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev.IsZero() {
		delete(d.lastSent, dealID)
		return
	}
	d.lastSent[dealID] = prev
}

// evictLocked opportunistically removes stale entries once the map
// grows past the threshold. Caller holds the lock.
func (d *Deduplicator) evictLocked(now time.Time) {
	if len(d.lastSent) <= d.cfg.EvictThreshold {
		return
	}

	evicted := 0
	for dealID, sentAt := range d.lastSent {
		if now.Sub(sentAt) > d.cfg.EvictAfter {
			delete(d.lastSent, dealID)
			evicted++
		}
	}

	if evicted > 0 {
		d.log.WithFields(logger.Fields{
			"evicted":   evicted,
			"remaining": len(d.lastSent),
		}).Debug("evicted stale dedup entries")
	}
}

// Size returns the number of tracked deals.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSent)
}
