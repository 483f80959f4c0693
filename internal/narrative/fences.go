package narrative

import (
	"strings"
	"unicode"
)

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, from a model response.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	}

	// Fence on one line: ```json{...}``` or ```{...}```.
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	if rest := strings.TrimSpace(strings.TrimLeftFunc(s, unicode.IsLetter)); rest != s && startsPayload(rest) {
		s = rest
	}
	return s
}

func startsPayload(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
