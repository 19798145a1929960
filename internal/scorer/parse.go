package scorer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the parsed scorer output. Ratings holds raw label->value pairs
// exactly as the model produced them; the normalizer owns schema validation.
type Response struct {
	Ratings        map[string]any
	Justifications map[string]string
	RedFlags       []string
}

// MalformedResponseError reports scorer text that failed to parse into either
// accepted shape. Raw preserves the offending text for diagnosis; nothing is
// persisted from a malformed run.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed scoring response: %v (raw: %s)", e.Err, snippet(e.Raw))
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// structuredResponse is shape (b): ratings plus justification and red flags.
// Both singular and plural field spellings appear in the wild.
type structuredResponse struct {
	Ratings        map[string]any    `json:"ratings"`
	Justification  map[string]string `json:"justification"`
	Justifications map[string]string `json:"justifications"`
	RedFlags       []string          `json:"red_flags"`
}

// ParseResponse accepts either a flat category->score object or a structured
// {ratings, justification, red_flags} object. Anything else — a bare string,
// an array, broken JSON — is a MalformedResponseError.
func ParseResponse(raw string) (Response, error) {
	clean := stripCodeFences(raw)
	if strings.TrimSpace(clean) == "" {
		return Response{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("empty response")}
	}

	var probe any
	if err := json.Unmarshal([]byte(clean), &probe); err != nil {
		return Response{}, &MalformedResponseError{Raw: raw, Err: err}
	}
	obj, ok := probe.(map[string]any)
	if !ok {
		return Response{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("top-level value is not an object")}
	}

	if _, hasRatings := obj["ratings"]; hasRatings {
		var sr structuredResponse
		if err := json.Unmarshal([]byte(clean), &sr); err != nil {
			return Response{}, &MalformedResponseError{Raw: raw, Err: err}
		}
		if sr.Ratings == nil {
			return Response{}, &MalformedResponseError{Raw: raw, Err: fmt.Errorf("ratings field is not an object")}
		}
		just := sr.Justification
		if just == nil {
			just = sr.Justifications
		}
		return Response{Ratings: sr.Ratings, Justifications: just, RedFlags: sr.RedFlags}, nil
	}

	// Flat shape: the whole object is the rating mapping.
	return Response{Ratings: obj}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
