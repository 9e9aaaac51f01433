package block

import (
	"encoding/json"
	"strings"
)

// Special handlers select a structured content shape for a block. Anything
// else (including the empty handler) is opaque text.
const (
	HandlerIntent   = "intent"
	HandlerResearch = "research"
	HandlerSimulate = "simulate"
	HandlerEvaluate = "evaluate"

	// Evaluate sub-handlers share the evaluate payload shape.
	HandlerEvalRubric  = "evaluate.rubric"
	HandlerEvalScoring = "evaluate.scoring"
)

type IntentContent struct {
	Goal     string   `json:"goal"`
	Audience string   `json:"audience,omitempty"`
	Tone     string   `json:"tone,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

type ResearchContent struct {
	Queries  []string          `json:"queries,omitempty"`
	Findings []ResearchFinding `json:"findings"`
}

type ResearchFinding struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
}

type SimulateContent struct {
	Scenario   string         `json:"scenario"`
	Transcript []SimulateTurn `json:"transcript"`
}

type SimulateTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type EvaluateContent struct {
	Criteria []EvaluateCriterion `json:"criteria"`
	Verdict  string              `json:"verdict"`
	Score    float64             `json:"score,omitempty"`
}

type EvaluateCriterion struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score,omitempty"`
	Notes  string  `json:"notes,omitempty"`
}

// DecodeContent parses content according to the block's special handler.
// The default variant is the raw text itself. A structured handler with
// empty content decodes to nil without error ("no content yet").
func DecodeContent(handler, content string) (any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	switch normalizeHandler(handler) {
	case HandlerIntent:
		var v IntentContent
		return &v, strictUnmarshal(content, &v)
	case HandlerResearch:
		var v ResearchContent
		return &v, strictUnmarshal(content, &v)
	case HandlerSimulate:
		var v SimulateContent
		return &v, strictUnmarshal(content, &v)
	case HandlerEvaluate:
		var v EvaluateContent
		return &v, strictUnmarshal(content, &v)
	default:
		return content, nil
	}
}

// ValidateContent checks that content matches the handler's shape. Opaque
// text always validates.
func ValidateContent(handler, content string) error {
	_, err := DecodeContent(handler, content)
	if err != nil {
		return Invalid("content", "malformed "+normalizeHandler(handler)+" payload: "+err.Error())
	}
	return nil
}

func normalizeHandler(handler string) string {
	h := strings.ToLower(strings.TrimSpace(handler))
	switch h {
	case HandlerEvalRubric, HandlerEvalScoring:
		return HandlerEvaluate
	}
	return h
}

func strictUnmarshal(content string, v any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
