// Package workflow implements the eight-stage RedCube content pipeline:
// a fixed sequence of generation engines, each consuming digests of prior
// stages' artifacts and producing one validated (or fallback) structured
// artifact. The pipeline degrades per stage but never aborts mid-run.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status describes how a stage's artifact was produced.
type Status string

const (
	// StatusSuccess means the model output decoded into the stage's schema.
	StatusSuccess Status = "success"
	// StatusFallback means generation or parsing failed and the artifact is
	// the stage's fixed default.
	StatusFallback Status = "fallback"
)

// Phase labels the two halves of the pipeline. Labels only: no execution
// semantics attach to the boundary.
type Phase string

const (
	PhaseIdeation   Phase = "strategic_ideation"
	PhaseExpression Phase = "narrative_expression"
)

// StageOutput is the result of one engine execution.
type StageOutput struct {
	EngineName      string         `json:"engine_name"`
	Version         string         `json:"version"`
	Topic           string         `json:"topic"`
	StructuredData  map[string]any `json:"structured_data"`
	ExecutionStatus Status         `json:"execution_status"`
	Error           string         `json:"error,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Upstream is a read-only snapshot of completed stage outputs, keyed by
// engine name. Engines receive only the subset they declared.
type Upstream map[string]StageOutput

// Result is the complete ordered collection of all stages' outputs for one
// run. It is only valid once every configured engine has contributed.
type Result struct {
	RunID     string        `json:"run_id"`
	Topic     string        `json:"topic"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stages    []StageOutput `json:"stages"`
}

// NewResult creates an empty result shell for a run.
func NewResult(topic string) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		Topic:     topic,
		StartedAt: time.Now(),
	}
}

// Stage returns the output for the named engine, if present.
func (r *Result) Stage(name string) (StageOutput, bool) {
	for _, s := range r.Stages {
		if s.EngineName == name {
			return s, true
		}
	}
	return StageOutput{}, false
}

// FallbackCount reports how many stages degraded to their fixed default.
func (r *Result) FallbackCount() int {
	n := 0
	for _, s := range r.Stages {
		if s.ExecutionStatus == StatusFallback {
			n++
		}
	}
	return n
}

// Cache is the artifact store engines read and write. Implementations must
// treat writes as all-or-nothing; readers treat errors as a miss.
type Cache interface {
	Get(stage, key string) (StageOutput, bool, error)
	Put(stage, key string, out StageOutput) error
}
