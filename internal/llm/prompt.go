package llm

import (
	"fmt"
	"sort"
	"strings"
)

// buildPrompt assembles the model input: instruction, generation
// constraints, answered pre-questions, then each satisfied dependency as
// a context section.
func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(req.Prompt))
	if req.BlockName != "" {
		fmt.Fprintf(&b, "\n\nYou are producing the content of the block %q.", req.BlockName)
	}

	if c := req.Constraints; !c.IsZero() {
		b.WriteString("\n\n[CONSTRAINTS]\n")
		if c.MaxLength > 0 {
			fmt.Fprintf(&b, "- keep the output under %d characters\n", c.MaxLength)
		}
		if c.Format != "" {
			fmt.Fprintf(&b, "- output format: %s\n", c.Format)
		}
		if c.Template != "" {
			fmt.Fprintf(&b, "- follow this structure:\n%s\n", c.Template)
		}
		if c.Example != "" {
			fmt.Fprintf(&b, "- example output:\n%s\n", c.Example)
		}
	}

	if len(req.Answers) > 0 {
		b.WriteString("\n[ANSWERS]\n")
		questions := make([]string, 0, len(req.Answers))
		for q := range req.Answers {
			questions = append(questions, q)
		}
		sort.Strings(questions)
		for _, q := range questions {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, req.Answers[q])
		}
	}

	for _, dep := range req.Context {
		fmt.Fprintf(&b, "\n[CONTEXT: %s]\n%s\n", dep.Name, strings.TrimSpace(dep.Content))
	}

	return b.String()
}
