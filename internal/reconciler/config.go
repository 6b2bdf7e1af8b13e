package reconciler

import (
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/notify"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/schedule"
	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/stage"
)

// Config bundles the tunables of a reconciliation engine. The
// empirically chosen constants (deposit tolerance band, split-inference
// day threshold, dedup window) live in the nested configs as named
// fields rather than re-derived literals.
type Config struct {
	Evaluator *stage.EvaluatorConfig `json:"evaluator"`
	Schedule  *schedule.Config       `json:"schedule"`
	Dedup     *notify.Config         `json:"dedup"`

	// NotificationMessage is the customer-facing "payment received"
	// message template; %s receives the deal title or ID.
	NotificationMessage string `json:"notification_message"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Evaluator:           stage.DefaultEvaluatorConfig(),
		Schedule:            schedule.DefaultConfig(),
		Dedup:               notify.DefaultConfig(),
		NotificationMessage: "Payment received for %s. Thank you!",
	}
}

// Validate checks the full engine configuration.
func (c *Config) Validate() error {
	if err := c.Evaluator.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return c.Dedup.Validate()
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	return &Config{
		Evaluator:           c.Evaluator.Clone(),
		Schedule:            c.Schedule.Clone(),
		Dedup:               c.Dedup.Clone(),
		NotificationMessage: c.NotificationMessage,
	}
}
