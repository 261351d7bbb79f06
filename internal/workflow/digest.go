package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CacheKey derives the artifact cache key for a stage+topic pair. The key
// deliberately ignores upstream digests: regenerating an early stage does
// not invalidate later stages' cached artifacts. Use force regeneration to
// rebuild a stale chain.
func CacheKey(stage, topic string) string {
	sum := sha256.Sum256([]byte(stage + ":" + topic))
	return hex.EncodeToString(sum[:])
}

// Digest renders a stage artifact as a compact prompt-safe summary, capped
// at maxRunes. Keys are emitted in sorted order so the digest is stable for
// a given artifact.
func Digest(data map[string]any, maxRunes int) string {
	if len(data) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%q: %s", k, digestValue(data[k])))
	}
	b.WriteString("}")
	return truncateRunes(b.String(), maxRunes)
}

func digestValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(raw)
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
