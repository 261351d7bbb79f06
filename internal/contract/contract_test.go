package contract

import (
	"errors"
	"testing"
)

func testContract() Contract {
	return Contract{
		Stage:        "strategy_compass",
		RequiredKeys: []string{"strategy_overview", "audience_analysis"},
		Fallback: func(topic string) map[string]any {
			return map[string]any{
				"strategy_overview": map[string]any{"topic": topic},
				"audience_analysis": map[string]any{},
			}
		},
	}
}

func TestNormalize_PlainJSON(t *testing.T) {
	c := testContract()

	data, err := c.Normalize(`{"strategy_overview": {"positioning": "expert"}, "audience_analysis": {"segments": []}}`)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	overview, ok := data["strategy_overview"].(map[string]any)
	if !ok || overview["positioning"] != "expert" {
		t.Fatalf("strategy_overview = %v, want positioning=expert", data["strategy_overview"])
	}
}

func TestNormalize_FencedJSON(t *testing.T) {
	c := testContract()

	raw := "```json\n{\"strategy_overview\": {}, \"audience_analysis\": {}}\n```"
	if _, err := c.Normalize(raw); err != nil {
		t.Fatalf("Normalize() error = %v for fenced payload", err)
	}

	// Bare fence, no language tag.
	raw = "```\n{\"strategy_overview\": {}, \"audience_analysis\": {}}\n```"
	if _, err := c.Normalize(raw); err != nil {
		t.Fatalf("Normalize() error = %v for bare fence", err)
	}
}

func TestNormalize_EmbeddedInProse(t *testing.T) {
	c := testContract()

	raw := `Sure! Here's the strategy you asked for:

{"strategy_overview": {"note": "embedded"}, "audience_analysis": {}}

Let me know if you'd like changes.`
	data, err := c.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v for embedded payload", err)
	}
	if data["strategy_overview"].(map[string]any)["note"] != "embedded" {
		t.Fatalf("embedded payload not extracted: %v", data)
	}
}

func TestNormalize_PicksDecodableCandidate(t *testing.T) {
	c := testContract()

	// One candidate is garbage; the scan falls back to the valid one.
	raw := `{"strategy_overview": {}, "audience_analysis": {}} and also {"broken": oops}`
	data, err := c.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v, want recovery via candidate scan", err)
	}
	if _, ok := data["strategy_overview"]; !ok {
		t.Fatalf("wrong candidate selected: %v", data)
	}
}

func TestNormalize_TrailingFormatExampleIgnored(t *testing.T) {
	// Models sometimes append an inline format example after the payload.
	// The smaller trailing object must not displace the real one.
	c := testContract()

	raw := `{"strategy_overview": {"positioning": "expert"}, "audience_analysis": {}}` +
		"\n注：输出格式示例为 " + `{"key": "value"}`
	data, err := c.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v, want the leading payload", err)
	}
	overview, ok := data["strategy_overview"].(map[string]any)
	if !ok || overview["positioning"] != "expert" {
		t.Fatalf("wrong candidate selected: %v", data)
	}
}

func TestNormalize_SkipsLargerCandidateMissingKeys(t *testing.T) {
	// A bigger decodable object without the stage's keys loses to a
	// smaller one that has them.
	c := testContract()

	raw := `示例 {"example_block": {"lots": "of", "unrelated": "content", "padding": "xxxxxxxxxxxxxxxx"}} ` +
		`结果 {"strategy_overview": {}, "audience_analysis": {}}`
	data, err := c.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v, want the keyed candidate", err)
	}
	if _, ok := data["strategy_overview"]; !ok {
		t.Fatalf("keyed candidate not selected: %v", data)
	}
}

func TestNormalize_MissingRequiredKeys(t *testing.T) {
	c := testContract()

	_, err := c.Normalize(`{"strategy_overview": {}}`)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Normalize() error = %v, want *ParseError", err)
	}
	if pe.Stage != "strategy_compass" {
		t.Fatalf("ParseError.Stage = %q", pe.Stage)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	c := testContract()

	cases := map[string]string{
		"empty":       "",
		"prose only":  "I cannot help with that request.",
		"truncated":   `{"strategy_overview": {"a": "b"`,
		"json array":  `["strategy_overview"]`,
		"bad quoting": `{'strategy_overview': {}, 'audience_analysis': {}}`,
	}
	for name, raw := range cases {
		var pe *ParseError
		if _, err := c.Normalize(raw); !errors.As(err, &pe) {
			t.Errorf("%s: Normalize() error = %v, want *ParseError", name, err)
		}
	}
}

func TestBuildFallback_Total(t *testing.T) {
	c := testContract()

	data := c.BuildFallback("宝宝辅食添加")
	for _, key := range c.RequiredKeys {
		if _, ok := data[key]; !ok {
			t.Errorf("fallback missing declared key %q", key)
		}
	}
	if data["strategy_overview"].(map[string]any)["topic"] != "宝宝辅食添加" {
		t.Fatalf("fallback not parameterized by topic: %v", data)
	}
}

func TestScanObjects(t *testing.T) {
	s := `noise {"a": 1} middle {"b": {"c": "with } brace in string"}} tail`
	got := scanObjects(s)
	if len(got) != 2 {
		t.Fatalf("scanObjects() = %d candidates, want 2: %v", len(got), got)
	}
	if got[1].text != `{"b": {"c": "with } brace in string"}}` {
		t.Fatalf("nested/string-escaped candidate wrong: %q", got[1].text)
	}
	if got[0].start != 6 || got[0].size() != len(`{"a": 1}`) {
		t.Fatalf("candidate position/size wrong: %+v", got[0])
	}
	if got[0].start >= got[1].start {
		t.Fatal("candidates not in positional order")
	}
}

func TestScanObjects_EscapedQuote(t *testing.T) {
	s := `{"a": "quote \" then } still inside"}`
	got := scanObjects(s)
	if len(got) != 1 || got[0].text != s {
		t.Fatalf("escape handling broken: %v", got)
	}
}

func TestScanObjects_ProseQuoteDoesNotHidePayload(t *testing.T) {
	// A stray quote in prose before the object must not be treated as an
	// opened JSON string.
	s := `他说"可以 {"a": 1}`
	got := scanObjects(s)
	if len(got) != 1 || got[0].text != `{"a": 1}` {
		t.Fatalf("prose quote swallowed the payload: %v", got)
	}
}
