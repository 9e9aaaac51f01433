// Package template loads block-structure templates from YAML and
// expands them into a project as a ready-to-generate subtree.
package template

import (
	"blockflow/internal/block"
)

// BlockSpec describes one block a template produces. Dependencies are
// named, not id'd: a name is resolved first against sibling specs of
// the same template, then against existing blocks of the target
// project, and kept verbatim when neither matches.
type BlockSpec struct {
	Name           string          `yaml:"name" json:"name"`
	Type           string          `yaml:"type,omitempty" json:"type,omitempty"`
	SpecialHandler string          `yaml:"special_handler,omitempty" json:"special_handler,omitempty"`
	AIPrompt       string          `yaml:"ai_prompt,omitempty" json:"ai_prompt,omitempty"`
	DependsOn      []string        `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	PreQuestions   []string        `yaml:"pre_questions,omitempty" json:"pre_questions,omitempty"`
	NeedReview     bool            `yaml:"need_review,omitempty" json:"need_review,omitempty"`
	Constraints    ConstraintsSpec `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Children       []BlockSpec     `yaml:"children,omitempty" json:"children,omitempty"`
}

// ConstraintsSpec mirrors block.Constraints with YAML field names.
type ConstraintsSpec struct {
	MaxLength int    `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	Template  string `yaml:"template,omitempty" json:"template,omitempty"`
	Example   string `yaml:"example,omitempty" json:"example,omitempty"`
}

func (c ConstraintsSpec) toBlock() block.Constraints {
	return block.Constraints{
		MaxLength: c.MaxLength,
		Format:    c.Format,
		Template:  c.Template,
		Example:   c.Example,
	}
}

// Template is one loadable structure definition.
type Template struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Blocks      []BlockSpec `yaml:"blocks" json:"blocks"`
}

// Validate rejects templates that could never expand cleanly.
func (t Template) Validate() error {
	if t.ID == "" {
		return block.Invalid("id", "must not be empty")
	}
	if t.Name == "" {
		return block.Invalid("name", "must not be empty")
	}
	if len(t.Blocks) == 0 {
		return block.Invalid("blocks", "must contain at least one block")
	}
	return validateSpecs(t.Blocks)
}

func validateSpecs(specs []BlockSpec) error {
	for _, sp := range specs {
		if sp.Name == "" {
			return block.Invalid("blocks.name", "must not be empty")
		}
		typ := sp.specType()
		if _, ok := block.ParseType(string(typ)); !ok {
			return block.Invalid("blocks.type", "unknown type "+sp.Type)
		}
		if len(sp.Children) > 0 && !typ.IsContainer() {
			return block.Invalid("blocks.children", sp.Name+" is not a container")
		}
		if err := validateSpecs(sp.Children); err != nil {
			return err
		}
	}
	return nil
}

func (sp BlockSpec) specType() block.Type {
	if sp.Type == "" {
		return block.TypeField
	}
	return block.Type(sp.Type)
}
