package block

import "strings"

// Type classifies a node in the project's content tree. Only non-field
// types may carry children.
type Type string

const (
	TypePhase    Type = "phase"
	TypeGroup    Type = "group"
	TypeField    Type = "field"
	TypeProposal Type = "proposal"
)

func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypePhase:
		return TypePhase, true
	case TypeGroup:
		return TypeGroup, true
	case TypeField:
		return TypeField, true
	case TypeProposal:
		return TypeProposal, true
	}
	return "", false
}

// IsContainer reports whether blocks of this type may have children.
func (t Type) IsContainer() bool {
	return t != TypeField
}

// Constraints tunes how content is generated for a block.
type Constraints struct {
	MaxLength int    `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Template  string `json:"template,omitempty" yaml:"template,omitempty"`
	Example   string `json:"example,omitempty" yaml:"example,omitempty"`
}

func (c Constraints) IsZero() bool {
	return c.MaxLength == 0 && c.Format == "" && c.Template == "" && c.Example == ""
}

// Block is one node of a project's content forest. ParentID is empty for
// top-level phases. DependsOn is an independent edge set over the same
// nodes; it never follows tree structure.
type Block struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	ParentID       string            `json:"parent_id,omitempty"`
	Type           Type              `json:"block_type"`
	SpecialHandler string            `json:"special_handler,omitempty"`
	Name           string            `json:"name"`
	OrderIndex     int               `json:"order_index"`
	Content        string            `json:"content,omitempty"`
	AIPrompt       string            `json:"ai_prompt,omitempty"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	PreQuestions   []string          `json:"pre_questions,omitempty"`
	PreAnswers     map[string]string `json:"pre_answers,omitempty"`
	Constraints    Constraints       `json:"constraints,omitempty"`
	NeedReview     bool              `json:"need_review,omitempty"`
	Status         Status            `json:"status"`
	IsCollapsed    bool              `json:"is_collapsed,omitempty"`
}

// Clone returns a deep copy; slices and maps are never shared.
func (b Block) Clone() Block {
	out := b
	if len(b.DependsOn) > 0 {
		out.DependsOn = append([]string(nil), b.DependsOn...)
	}
	if len(b.PreQuestions) > 0 {
		out.PreQuestions = append([]string(nil), b.PreQuestions...)
	}
	if len(b.PreAnswers) > 0 {
		out.PreAnswers = make(map[string]string, len(b.PreAnswers))
		for k, v := range b.PreAnswers {
			out.PreAnswers[k] = v
		}
	}
	return out
}

// HasContent reports whether the block's content is non-empty after
// trimming, which is the readiness criterion for dependents.
func (b Block) HasContent() bool {
	return strings.TrimSpace(b.Content) != ""
}

// Node is a materialized forest view: a block plus its ordered children.
type Node struct {
	Block
	Children []*Node `json:"children,omitempty"`
}

// Ref identifies a block for diagnostics. Name is empty when the
// reference dangles (the target no longer exists).
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
