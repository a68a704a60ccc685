package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decision is the classifier's (possibly repaired) routing choice for one
// turn. Target is always a registered persona id.
type Decision struct {
	Target    string `json:"target"`
	Rationale string `json:"rationale,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// ErrUnparsed signals that the classifier output was not usable JSON and the
// decision fell back to the default target. The returned Decision is still
// valid; callers count or log this rather than failing the turn.
var ErrUnparsed = errors.New("routing decision not parseable")

// Classifier output fields, tier 1 then tier 2. Some models nest the choice
// under a sub-object, so both shapes are accepted.
const (
	fieldTarget       = "分发目标"
	fieldNested       = "分发决策"
	fieldNestedTarget = "目标Agent"
	fieldRationale    = "建议话术"
)

// Parser normalizes free-form classifier output into a Decision. It never
// panics and never returns an unusable target: availability over strictness.
type Parser struct {
	defaultTarget string
}

func NewParser(defaultTarget string) (*Parser, error) {
	if defaultTarget == "" {
		defaultTarget = DefaultTarget
	}
	if !KnownPersona(defaultTarget) {
		return nil, fmt.Errorf("default routing target %q is not a registered persona", defaultTarget)
	}
	return &Parser{defaultTarget: defaultTarget}, nil
}

// Parse extracts a routing decision from raw classifier output. On malformed
// input it returns a Decision targeting the default persona together with
// ErrUnparsed.
func (p *Parser) Parse(raw string) (Decision, error) {
	body := stripCodeFence(strings.TrimSpace(raw))

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Decision{Target: p.defaultTarget, Raw: raw}, fmt.Errorf("%w: %v", ErrUnparsed, err)
	}

	target, _ := doc[fieldTarget].(string)
	if target == "" {
		if nested, ok := doc[fieldNested].(map[string]interface{}); ok {
			target, _ = nested[fieldNestedTarget].(string)
		}
	}

	decision := Decision{
		Target: p.normalize(target),
		Raw:    raw,
	}
	if rationale, ok := doc[fieldRationale].(string); ok {
		decision.Rationale = rationale
	}
	return decision, nil
}

// normalize maps free text to a persona id by substring containment against
// display names, in registry order. Unknown text falls back to the default.
func (p *Parser) normalize(target string) string {
	for _, persona := range Registry {
		if strings.Contains(target, persona.DisplayName) {
			return persona.ID
		}
	}
	return p.defaultTarget
}

// stripCodeFence removes exactly one layer of markdown fencing, tolerating a
// language tag on the opening fence. Anything short of a full wrapper is
// returned as-is.
func stripCodeFence(body string) string {
	if strings.HasPrefix(body, "```json") {
		body = body[len("```json"):]
	} else if strings.HasPrefix(body, "```") {
		body = body[len("```"):]
	}
	if strings.HasSuffix(strings.TrimSpace(body), "```") {
		trimmed := strings.TrimSpace(body)
		body = trimmed[:len(trimmed)-len("```")]
	}
	return strings.TrimSpace(body)
}
