package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/model"
)

// MalformedResponseError reports a client answer that is not a candidate list.
type MalformedResponseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed extraction response: %s: %v", e.Reason, e.Err)
	}
	return "malformed extraction response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err wraps a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

type envelope struct {
	Extractions *[]model.Candidate `json:"extractions"`
}

// ParseResponse decodes a client answer. Accepted shapes are a JSON list of
// {key, extracted_data} objects or an object holding that list under
// "extractions", either optionally wrapped in markdown code fences.
func ParseResponse(text string) ([]model.Candidate, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, &MalformedResponseError{Raw: text, Reason: "empty response"}
	}

	switch cleaned[0] {
	case '[':
		var out []model.Candidate
		if err := decodeStrict(cleaned, &out); err != nil {
			return nil, &MalformedResponseError{Raw: text, Reason: "invalid candidate list", Err: err}
		}
		if out == nil {
			out = []model.Candidate{}
		}
		return out, nil
	case '{':
		var env envelope
		if err := decodeStrict(cleaned, &env); err != nil {
			return nil, &MalformedResponseError{Raw: text, Reason: "invalid extractions object", Err: err}
		}
		if env.Extractions == nil {
			return nil, &MalformedResponseError{Raw: text, Reason: `object has no "extractions" list`}
		}
		out := *env.Extractions
		if out == nil {
			out = []model.Candidate{}
		}
		return out, nil
	default:
		return nil, &MalformedResponseError{Raw: text, Reason: "response is not JSON"}
	}
}

// decodeStrict rejects trailing data after the first JSON value.
func decodeStrict(s string, v any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return eris.New("trailing data after JSON value")
	}
	return nil
}

// cleanJSON strips markdown code fences from model output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "[{") {
			text = text[nl+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
