package workflow

import (
	"context"
	"errors"
	"time"

	"redcube/internal/contract"
	"redcube/internal/llm"
	"redcube/internal/logging"
)

// PromptFunc builds the system and user prompts for an engine given the
// topic and the digests of its upstream dependencies (keyed by engine name).
type PromptFunc func(topic string, upstream map[string]string) (system, user string)

// Engine executes one pipeline stage. It owns the prompt construction, the
// model call, contract validation, and caching for that stage.
type Engine struct {
	Name     string
	Version  string
	Phase    Phase
	Upstream []string
	Prompt   PromptFunc
	Contract *contract.Contract
}

// ExecOptions carries the per-run knobs an engine needs.
type ExecOptions struct {
	Client       llm.Client
	Cache        Cache
	Force        bool
	StageTimeout time.Duration
	DigestRunes  int
}

// Execute produces the stage's artifact. It never returns an error: every
// failure mode degrades to the contract's fallback artifact with
// ExecutionStatus set to fallback and the cause recorded on the output.
func (e *Engine) Execute(ctx context.Context, topic string, upstream Upstream, opts ExecOptions) StageOutput {
	log := logging.Get(logging.CategoryEngine)
	key := CacheKey(e.Name, topic)

	if !opts.Force && opts.Cache != nil {
		if cached, ok, err := opts.Cache.Get(e.Name, key); err != nil {
			log.Warn("%s: cache read failed, regenerating: %v", e.Name, err)
		} else if ok {
			log.Info("%s: cache hit (key=%.12s)", e.Name, key)
			return cached
		}
	}

	out, cause := e.generate(ctx, topic, upstream, opts)

	// A fallback caused by run cancellation is an artifact of the abort,
	// not of the topic; persisting it would make the next run replay it
	// as a hit instead of regenerating.
	if opts.Cache != nil && !errors.Is(cause, context.Canceled) {
		if err := opts.Cache.Put(e.Name, key, out); err != nil {
			log.Warn("%s: cache write failed: %v", e.Name, err)
		}
	}
	return out
}

// generate produces the stage artifact and reports the failure cause when
// the output degraded to fallback (nil on success).
func (e *Engine) generate(ctx context.Context, topic string, upstream Upstream, opts ExecOptions) (StageOutput, error) {
	log := logging.Get(logging.CategoryEngine)
	timer := logging.StartTimer(logging.CategoryEngine, e.Name)
	defer timer.Stop()

	out := StageOutput{
		EngineName:  e.Name,
		Version:     e.Version,
		Topic:       topic,
		GeneratedAt: time.Now(),
	}

	digests := make(map[string]string, len(e.Upstream))
	for _, dep := range e.Upstream {
		if prior, ok := upstream[dep]; ok {
			digests[dep] = Digest(prior.StructuredData, opts.DigestRunes)
		}
	}

	system, user := e.Prompt(topic, digests)

	callCtx := ctx
	if opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.StageTimeout)
		defer cancel()
	}

	raw, err := opts.Client.CompleteWithSystem(callCtx, system, user)
	if err != nil {
		log.Warn("%s: generation failed: %v", e.Name, err)
		return e.fallback(out, err), err
	}

	data, err := e.Contract.Normalize(raw)
	if err != nil {
		log.Warn("%s: contract rejected output: %v", e.Name, err)
		return e.fallback(out, err), err
	}

	out.StructuredData = data
	out.ExecutionStatus = StatusSuccess
	log.Info("%s: generated %d top-level keys", e.Name, len(data))
	return out, nil
}

func (e *Engine) fallback(out StageOutput, cause error) StageOutput {
	out.StructuredData = e.Contract.BuildFallback(out.Topic)
	out.ExecutionStatus = StatusFallback
	out.Error = cause.Error()
	return out
}
