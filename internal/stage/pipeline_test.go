package stage

import "testing"

func TestParsePipeline(t *testing.T) {
	tests := []struct {
		id   string
		want Pipeline
	}{
		{"1", PipelinePrimary},
		{"5", PipelineB2B},
		{"99", PipelineUnknown},
		{"", PipelineUnknown},
	}

	for _, tt := range tests {
		if got := ParsePipeline(tt.id); got != tt.want {
			t.Errorf("ParsePipeline(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestMapFor_UnknownFallsBackToPrimary(t *testing.T) {
	primary := MapFor(PipelinePrimary)
	unknown := MapFor(PipelineUnknown)
	if unknown != primary {
		t.Errorf("unknown pipeline map = %+v, want primary %+v", unknown, primary)
	}
}

func TestMapForDeal(t *testing.T) {
	p, m := MapForDeal("5")
	if p != PipelineB2B {
		t.Errorf("pipeline = %s, want b2b", p)
	}
	if m.FullyPaid != "b2b_fully_paid" {
		t.Errorf("fully paid stage = %s, want b2b_fully_paid", m.FullyPaid)
	}
}

func TestMap_Validate(t *testing.T) {
	for _, p := range []Pipeline{PipelinePrimary, PipelineB2B} {
		if err := MapFor(p).Validate(); err != nil {
			t.Errorf("%s stage map must validate: %v", p, err)
		}
	}

	bad := Map{FirstPayment: "a", SecondPayment: "a", FullyPaid: "b"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for duplicate stage identifiers")
	}

	empty := Map{FirstPayment: "a", SecondPayment: "b"}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty stage identifier")
	}
}

func TestMap_PositionOf(t *testing.T) {
	m := MapFor(PipelinePrimary)

	tests := []struct {
		stage ID
		pos   int
		ok    bool
	}{
		{m.FirstPayment, 0, true},
		{m.SecondPayment, 1, true},
		{m.FullyPaid, 2, true},
		{"manual_review", 0, false},
	}

	for _, tt := range tests {
		pos, ok := m.PositionOf(tt.stage)
		if pos != tt.pos || ok != tt.ok {
			t.Errorf("PositionOf(%s) = (%d, %v), want (%d, %v)", tt.stage, pos, ok, tt.pos, tt.ok)
		}
	}

	if m.Contains("manual_review") {
		t.Error("custom stage must not be in the automated triple")
	}
}
