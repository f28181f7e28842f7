// Package repair turns raw provider text into a JSON value. Providers wrap
// JSON in markdown fences, leave trailing commas, truncate output or forget to
// escape quotes inside prose fields; the pipeline recovers from each of these
// in order of increasing cost and risk.
package repair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"wordbento/internal/domain"
)

// Stage identifies which step produced the parsed value.
type Stage int

const (
	StageStrict Stage = iota + 1
	StageGeneral
	StageTargeted
)

func (s Stage) String() string {
	switch s {
	case StageStrict:
		return "strict"
	case StageGeneral:
		return "general"
	case StageTargeted:
		return "targeted"
	}
	return "none"
}

// DefaultFields are the prose fields whose values may carry unescaped quotes.
var DefaultFields = []string{
	"en", "zh", "meaning", "definition", "etymology", "affixes", "history",
	"memory_aid", "trending_story", "phonetic", "text", "title",
}

// UnparseableError reports that no step recovered a JSON value.
type UnparseableError struct {
	Raw    string
	Reason string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("unparseable response: %s", e.Reason)
}

func (e *UnparseableError) Unwrap() error {
	return domain.ErrUnparseableResponse
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Pipeline holds the repair configuration. The zero value is not usable; use NewPipeline.
type Pipeline struct {
	fields  map[string]struct{}
	general func(string) (string, error)
}

// NewPipeline builds a pipeline that applies targeted quote repair to fields.
func NewPipeline(fields []string) *Pipeline {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &Pipeline{fields: set, general: jsonrepair.JSONRepair}
}

var defaultPipeline = NewPipeline(DefaultFields)

// Parse repairs raw with the default pipeline and decodes it into a generic value.
func Parse(raw string) (any, error) {
	v, _, err := defaultPipeline.Parse(raw)
	return v, err
}

// Decode repairs raw with the default pipeline and decodes it into T.
func Decode[T any](raw string) (T, error) {
	var out T
	text, _, err := defaultPipeline.Repair(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, &UnparseableError{Raw: raw, Reason: "decode: " + err.Error()}
	}
	return out, nil
}

// Parse repairs raw and decodes it into a generic value, reporting the stage that succeeded.
func (p *Pipeline) Parse(raw string) (any, Stage, error) {
	text, stage, err := p.Repair(raw)
	if err != nil {
		return nil, 0, err
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, 0, &UnparseableError{Raw: raw, Reason: err.Error()}
	}
	return v, stage, nil
}

// Repair returns JSON text that parses strictly, or an *UnparseableError.
func (p *Pipeline) Repair(raw string) (string, Stage, error) {
	text := ExtractFenced(raw)
	if !looksStructured(text) {
		return "", 0, &UnparseableError{Raw: raw, Reason: "no json structure"}
	}
	if json.Valid([]byte(text)) {
		return text, StageStrict, nil
	}
	if p.general != nil {
		if repaired, err := p.general(text); err == nil && json.Valid([]byte(repaired)) {
			return repaired, StageGeneral, nil
		}
	}
	escaped := escapeInteriorQuotes(text, p.fields)
	if json.Valid([]byte(escaped)) {
		return escaped, StageTargeted, nil
	}
	return "", 0, &UnparseableError{Raw: raw, Reason: "all repair attempts failed"}
}

// ExtractFenced returns the body of the first fenced code block, or the trimmed input when there is none.
func ExtractFenced(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

func looksStructured(text string) bool {
	if len(text) < 2 {
		return false
	}
	first, last := text[0], text[len(text)-1]
	return (first == '{' || first == '[') && (last == '}' || last == ']')
}
