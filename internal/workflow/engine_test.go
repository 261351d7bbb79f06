package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"redcube/internal/contract"
)

// scriptedClient returns canned responses per system-prompt match, or a
// single default. It records every call.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string]string // keyed by engine name found in system prompt
	fallback  string
	err       error
	calls     []string
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, user)
	if c.err != nil {
		return "", c.err
	}
	for name, resp := range c.responses {
		if containsStage(system, name) {
			return resp, nil
		}
	}
	return c.fallback, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

var stageMarkers = map[string]string{
	StagePersonaCore:      "人格核心构建师",
	StageStrategyCompass:  "策略罗盘",
	StageTruthDetector:    "真理探机",
	StageInsightDistiller: "洞察提炼器",
	StageNarrativePrism:   "叙事棱镜",
	StageAtomicDesigner:   "原子设计师",
	StageVisualEncoder:    "视觉编码器",
	StageHifiImager:       "高保真成像器",
}

func containsStage(system, name string) bool {
	marker, ok := stageMarkers[name]
	return ok && strings.Contains(system, marker)
}

// testEngine is a minimal two-key engine for focused Execute tests.
func testEngine() *Engine {
	return &Engine{
		Name:    "test_stage",
		Version: "1.0.0",
		Phase:   PhaseIdeation,
		Prompt: func(topic string, _ map[string]string) (string, string) {
			return "system", "topic: " + topic
		},
		Contract: &contract.Contract{
			Stage:        "test_stage",
			RequiredKeys: []string{"alpha", "beta"},
			Fallback: func(topic string) map[string]any {
				return map[string]any{"alpha": topic, "beta": "default"}
			},
		},
	}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]StageOutput
	getErr  error
	putErr  error
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]StageOutput)}
}

func (c *memCache) Get(stage, key string) (StageOutput, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return StageOutput{}, false, c.getErr
	}
	out, ok := c.entries[stage+"/"+key]
	return out, ok, nil
}

func (c *memCache) Put(stage, key string, out StageOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[stage+"/"+key] = out
	return nil
}

func TestEngineExecute_Success(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()

	out := eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client, Cache: cache})

	if out.ExecutionStatus != StatusSuccess {
		t.Fatalf("status = %q, want success (error: %s)", out.ExecutionStatus, out.Error)
	}
	if out.EngineName != "test_stage" || out.Topic != "topic" {
		t.Fatalf("identity fields wrong: %+v", out)
	}
	if out.StructuredData["alpha"] != "a" {
		t.Fatalf("structured data not from model output: %v", out.StructuredData)
	}
	if cache.puts != 1 {
		t.Fatalf("expected one cache write, got %d", cache.puts)
	}
}

func TestEngineExecute_MalformedOutputFallsBack(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: "I could not produce JSON today."}

	out := eng.Execute(context.Background(), "辅食", nil, ExecOptions{Client: client})

	if out.ExecutionStatus != StatusFallback {
		t.Fatalf("status = %q, want fallback", out.ExecutionStatus)
	}
	if out.Error == "" {
		t.Fatal("fallback output must carry the cause")
	}
	want := eng.Contract.BuildFallback("辅食")
	if diff := cmp.Diff(want, out.StructuredData); diff != "" {
		t.Fatalf("fallback artifact differs from contract default (-want +got):\n%s", diff)
	}
}

func TestEngineExecute_TransportErrorFallsBack(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{err: errors.New("connection reset")}

	out := eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client})

	if out.ExecutionStatus != StatusFallback {
		t.Fatalf("status = %q, want fallback", out.ExecutionStatus)
	}
	if out.Error != "connection reset" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestEngineExecute_MissingRequiredKeyFallsBack(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "present"}`}

	out := eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client})

	if out.ExecutionStatus != StatusFallback {
		t.Fatalf("status = %q, want fallback", out.ExecutionStatus)
	}
}

func TestEngineExecute_CacheHitSkipsGeneration(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()
	opts := ExecOptions{Client: client, Cache: cache}

	first := eng.Execute(context.Background(), "topic", nil, opts)
	second := eng.Execute(context.Background(), "topic", nil, opts)

	if client.callCount() != 1 {
		t.Fatalf("expected exactly one generation call, got %d", client.callCount())
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cache hit returned a different artifact (-first +second):\n%s", diff)
	}
}

func TestEngineExecute_FallbackIsCachedAndReplayed(t *testing.T) {
	// A cached fallback is a hit like any other: replay preserves status.
	eng := testEngine()
	client := &scriptedClient{fallback: "not json"}
	cache := newMemCache()
	opts := ExecOptions{Client: client, Cache: cache}

	eng.Execute(context.Background(), "topic", nil, opts)
	out := eng.Execute(context.Background(), "topic", nil, opts)

	if client.callCount() != 1 {
		t.Fatalf("expected one generation call, got %d", client.callCount())
	}
	if out.ExecutionStatus != StatusFallback {
		t.Fatalf("replayed status = %q, want fallback", out.ExecutionStatus)
	}
}

func TestEngineExecute_ForceBypassesCacheRead(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()

	eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client, Cache: cache})
	eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client, Cache: cache, Force: true})

	if client.callCount() != 2 {
		t.Fatalf("force should regenerate, got %d calls", client.callCount())
	}
	if cache.puts != 2 {
		t.Fatalf("force should overwrite the cache, got %d writes", cache.puts)
	}
}

func TestEngineExecute_CancelledRunDoesNotPoisonCache(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()
	opts := ExecOptions{Client: client, Cache: cache}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := eng.Execute(ctx, "topic", nil, opts)
	if out.ExecutionStatus != StatusFallback {
		t.Fatalf("status = %q, want fallback under cancellation", out.ExecutionStatus)
	}
	if cache.puts != 0 {
		t.Fatalf("cancellation artifact was cached (%d writes)", cache.puts)
	}

	// A later healthy run must regenerate instead of replaying the abort.
	out = eng.Execute(context.Background(), "topic", nil, opts)
	if out.ExecutionStatus != StatusSuccess {
		t.Fatalf("status = %q after healthy rerun, want success (error: %s)", out.ExecutionStatus, out.Error)
	}
	if cache.puts != 1 {
		t.Fatalf("healthy rerun should cache its artifact, got %d writes", cache.puts)
	}
}

func TestEngineExecute_CacheReadErrorRegenerates(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()
	cache.getErr = errors.New("disk offline")

	out := eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client, Cache: cache})

	if out.ExecutionStatus != StatusSuccess {
		t.Fatalf("status = %q, want success despite cache read failure", out.ExecutionStatus)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected regeneration, got %d calls", client.callCount())
	}
}

func TestEngineExecute_CacheWriteErrorIsNonFatal(t *testing.T) {
	eng := testEngine()
	client := &scriptedClient{fallback: `{"alpha": "a", "beta": "b"}`}
	cache := newMemCache()
	cache.putErr = errors.New("disk full")

	out := eng.Execute(context.Background(), "topic", nil, ExecOptions{Client: client, Cache: cache})

	if out.ExecutionStatus != StatusSuccess {
		t.Fatalf("status = %q, want success despite cache write failure", out.ExecutionStatus)
	}
}

func TestEngineExecute_UpstreamDigestsReachPrompt(t *testing.T) {
	var gotDigests map[string]string
	eng := &Engine{
		Name:     "downstream",
		Version:  "1.0.0",
		Upstream: []string{"upstream_a", "upstream_b"},
		Prompt: func(topic string, digests map[string]string) (string, string) {
			gotDigests = digests
			return "system", "user"
		},
		Contract: &contract.Contract{
			Stage:        "downstream",
			RequiredKeys: []string{"k"},
			Fallback:     func(string) map[string]any { return map[string]any{"k": "v"} },
		},
	}
	upstream := Upstream{
		"upstream_a": {EngineName: "upstream_a", StructuredData: map[string]any{"x": 1}},
		"unrelated":  {EngineName: "unrelated", StructuredData: map[string]any{"y": 2}},
	}

	eng.Execute(context.Background(), "topic", upstream, ExecOptions{
		Client:      &scriptedClient{fallback: `{"k": "v"}`},
		DigestRunes: 100,
	})

	if _, ok := gotDigests["upstream_a"]; !ok {
		t.Fatal("declared upstream digest missing from prompt inputs")
	}
	if _, ok := gotDigests["unrelated"]; ok {
		t.Fatal("undeclared stage leaked into prompt inputs")
	}
	if _, ok := gotDigests["upstream_b"]; ok {
		t.Fatal("absent upstream should not produce a digest")
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey("persona_core", "宝宝辅食添加")
	b := CacheKey("persona_core", "宝宝辅食添加")
	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
	if a == CacheKey("strategy_compass", "宝宝辅食添加") {
		t.Fatal("different stages must not collide")
	}
	if a == CacheKey("persona_core", "其他主题") {
		t.Fatal("different topics must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestDigest_BoundedAndStable(t *testing.T) {
	data := map[string]any{
		"zz": "last",
		"aa": map[string]any{"nested": true},
	}
	d1 := Digest(data, 0)
	d2 := Digest(data, 0)
	if d1 != d2 {
		t.Fatalf("digest not stable: %q vs %q", d1, d2)
	}
	if strings.Index(d1, `"aa"`) > strings.Index(d1, `"zz"`) {
		t.Fatalf("keys not sorted in digest: %s", d1)
	}

	long := map[string]any{"text": fmt.Sprintf("%0200d", 0)}
	capped := Digest(long, 50)
	if n := len([]rune(capped)); n > 51 {
		t.Fatalf("digest length %d exceeds cap", n)
	}
	if Digest(nil, 10) != "{}" {
		t.Fatal("empty data should digest to {}")
	}
}
