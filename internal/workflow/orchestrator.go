package workflow

import (
	"context"
	"time"

	"redcube/internal/llm"
	"redcube/internal/logging"
)

// Orchestrator drives the fixed engine sequence for one topic. Stages run
// strictly one at a time: stage k+1 only starts after stage k's output is
// recorded, and sees a snapshot of everything produced so far.
type Orchestrator struct {
	engines []*Engine
	client  llm.Client
	cache   Cache

	stageTimeout time.Duration
	digestRunes  int
	phaseDone    PhaseObserver
}

// PhaseObserver is notified when the last stage of a phase has recorded its
// output. The result holds everything produced so far.
type PhaseObserver func(ctx context.Context, phase Phase, result *Result)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache attaches an artifact cache.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithStageTimeout bounds each stage's model call.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// WithDigestRunes caps the length of upstream digests fed into prompts.
func WithDigestRunes(n int) Option {
	return func(o *Orchestrator) { o.digestRunes = n }
}

// WithPhaseObserver registers a callback fired at each phase boundary.
func WithPhaseObserver(fn PhaseObserver) Option {
	return func(o *Orchestrator) { o.phaseDone = fn }
}

// WithEngines overrides the default engine roster. Used by tests.
func WithEngines(engines []*Engine) Option {
	return func(o *Orchestrator) { o.engines = engines }
}

// NewOrchestrator builds an orchestrator over the standard eight-stage
// roster.
func NewOrchestrator(client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engines:     DefaultEngines(),
		client:      client,
		digestRunes: 1200,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the full pipeline for a topic. Individual stage failures
// degrade to fallbacks and never stop the run; the only early exit is
// context cancellation, checked between stages. Force bypasses cache reads
// for every stage.
func (o *Orchestrator) Run(ctx context.Context, topic string, force bool) (*Result, error) {
	result := NewResult(topic)
	upstream := make(Upstream, len(o.engines))

	logging.Workflow("run %s: topic=%q stages=%d force=%v", result.RunID, topic, len(o.engines), force)

	var phase Phase
	for i, eng := range o.engines {
		if err := ctx.Err(); err != nil {
			logging.Workflow("run %s: cancelled before stage %d (%s): %v", result.RunID, i+1, eng.Name, err)
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}

		if eng.Phase != phase {
			if i > 0 && o.phaseDone != nil {
				o.phaseDone(ctx, phase, result)
			}
			phase = eng.Phase
			logging.Workflow("run %s: entering phase %s", result.RunID, phase)
		}

		out := eng.Execute(ctx, topic, upstream, ExecOptions{
			Client:       o.client,
			Cache:        o.cache,
			Force:        force,
			StageTimeout: o.stageTimeout,
			DigestRunes:  o.digestRunes,
		})
		result.Stages = append(result.Stages, out)
		upstream[eng.Name] = out

		logging.Workflow("run %s: stage %d/%d %s -> %s", result.RunID, i+1, len(o.engines), eng.Name, out.ExecutionStatus)
	}

	result.Duration = time.Since(result.StartedAt)
	if len(o.engines) > 0 && o.phaseDone != nil {
		o.phaseDone(ctx, phase, result)
	}
	logging.Workflow("run %s: complete in %v (%d fallbacks)", result.RunID, result.Duration, result.FallbackCount())
	return result, nil
}
