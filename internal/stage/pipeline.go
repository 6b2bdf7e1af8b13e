// Package stage maps paid ratios onto pipeline stages. It owns the
// typed pipeline set, the per-pipeline stage maps and the pure
// evaluation rule that decides the target stage for a deal.
package stage

import (
	"fmt"
)

// ID identifies a pipeline stage in the CRM.
type ID string

// Pipeline is the closed set of pipelines the automation knows about.
// Unrecognized pipeline identifiers map to PipelineUnknown, which uses
// the primary pipeline's stage map; the fallback is an explicit variant
// here rather than a silent default in a lookup table.
type Pipeline int

const (
	// PipelinePrimary is the main sales pipeline.
	PipelinePrimary Pipeline = iota
	// PipelineB2B is the corporate sales pipeline.
	PipelineB2B
	// PipelineUnknown is any pipeline identifier the automation does
	// not recognize.
	PipelineUnknown
)

// String returns the string representation of the Pipeline.
func (p Pipeline) String() string {
	switch p {
	case PipelinePrimary:
		return "primary"
	case PipelineB2B:
		return "b2b"
	default:
		return "unknown"
	}
}

// Known CRM pipeline identifiers.
const (
	primaryPipelineID = "1"
	b2bPipelineID     = "5"
)

// ParsePipeline maps a CRM pipeline identifier onto the typed set.
func ParsePipeline(pipelineID string) Pipeline {
	switch pipelineID {
	case primaryPipelineID:
		return PipelinePrimary
	case b2bPipelineID:
		return PipelineB2B
	default:
		return PipelineUnknown
	}
}

// Map is the ordered stage triple automation moves deals through:
// first payment received, second payment awaited, fully paid.
type Map struct {
	FirstPayment  ID `json:"first_payment"`
	SecondPayment ID `json:"second_payment"`
	FullyPaid     ID `json:"fully_paid"`
}

// Validate checks that the map's stages are set and distinct.
func (m Map) Validate() error {
	stages := []ID{m.FirstPayment, m.SecondPayment, m.FullyPaid}
	seen := make(map[ID]bool, len(stages))
	for _, s := range stages {
		if s == "" {
			return fmt.Errorf("stage map has an empty stage identifier")
		}
		if seen[s] {
			return fmt.Errorf("stage map has duplicate stage identifier: %s", s)
		}
		seen[s] = true
	}
	return nil
}

// Ordered returns the stages in pipeline order.
func (m Map) Ordered() []ID {
	return []ID{m.FirstPayment, m.SecondPayment, m.FullyPaid}
}

// PositionOf returns the position of the stage in the pipeline order.
// The second return value is false for stages outside the automated
// triple (custom/manual stages).
func (m Map) PositionOf(stage ID) (int, bool) {
	for i, s := range m.Ordered() {
		if s == stage {
			return i, true
		}
	}
	return 0, false
}

// Contains reports whether the stage belongs to the automated triple.
func (m Map) Contains(stage ID) bool {
	_, ok := m.PositionOf(stage)
	return ok
}

var pipelineMaps = map[Pipeline]Map{
	PipelinePrimary: {
		FirstPayment:  "first_payment_received",
		SecondPayment: "awaiting_second_payment",
		FullyPaid:     "fully_paid",
	},
	PipelineB2B: {
		FirstPayment:  "b2b_first_payment",
		SecondPayment: "b2b_awaiting_balance",
		FullyPaid:     "b2b_fully_paid",
	},
}

// MapFor returns the stage map for the pipeline. Unknown pipelines get
// the primary pipeline's map.
func MapFor(p Pipeline) Map {
	if m, ok := pipelineMaps[p]; ok {
		return m
	}
	return pipelineMaps[PipelinePrimary]
}

// MapForDeal resolves the stage map straight from a CRM pipeline
// identifier.
func MapForDeal(pipelineID string) (Pipeline, Map) {
	p := ParsePipeline(pipelineID)
	return p, MapFor(p)
}
