package contract

// objectCandidate is one balanced top-level {...} span found in raw text.
// start is the byte offset of the opening brace in the scanned string.
type objectCandidate struct {
	text  string
	start int
}

func (c objectCandidate) size() int { return len(c.text) }

// scanObjects finds every balanced top-level JSON object span in s, in
// positional order. Braces inside JSON strings and escaped quotes do not
// affect nesting depth. Quote state is only tracked inside an open object:
// a stray quote in surrounding prose must not hide a later payload.
//
// Iterating bytes is safe for the ASCII delimiters involved because UTF-8
// never embeds ASCII bytes inside a multi-byte sequence.
func scanObjects(s string) []objectCandidate {
	var (
		candidates []objectCandidate
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // unmatched closer in prose
			}
			depth--
			if depth == 0 && start >= 0 {
				candidates = append(candidates, objectCandidate{
					text:  s[start : i+1],
					start: start,
				})
				start = -1
			}
		}
	}
	return candidates
}
