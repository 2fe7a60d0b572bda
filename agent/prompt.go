package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/assistmesh/internal/util"
)

const markdownClause = "Use markdown to format your answers."

// Instructions returns the ordered instruction clauses for one turn: the
// configured instructions, one clause per capability, the extra
// instructions, then the formatting and date clauses.
func (a *Agent) Instructions(data InstructionData) ([]string, error) {
	clauses := make([]string, 0, len(a.opts.Instructions)+a.caps.Len()+len(a.opts.ExtraInstructions)+2)

	for _, inst := range a.opts.Instructions {
		text, err := inst.Resolve(data)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != "" {
			clauses = append(clauses, text)
		}
	}

	clauses = append(clauses, ComposeInstructions(a.caps)...)

	for _, inst := range a.opts.ExtraInstructions {
		text, err := inst.Resolve(data)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != "" {
			clauses = append(clauses, text)
		}
	}

	if a.opts.Markdown {
		clauses = append(clauses, markdownClause)
	}

	if a.opts.AddDateTime {
		clauses = append(clauses, fmt.Sprintf("The current time is %s.", a.opts.Now().UTC().Format(time.RFC3339)))
	}

	return clauses, nil
}

// SystemPrompt renders the description, role and instructions into the
// system message of one turn.
func (a *Agent) SystemPrompt(data InstructionData) (string, error) {
	var b strings.Builder

	if a.opts.Description != "" {
		desc, err := util.RenderTemplate(a.opts.Description, data)
		if err != nil {
			return "", fmt.Errorf("render description: %w", err)
		}
		b.WriteString(desc)
		b.WriteString("\n")
	}

	if a.opts.Role != "" {
		fmt.Fprintf(&b, "Your role is: %s\n", a.opts.Role)
	}

	clauses, err := a.Instructions(data)
	if err != nil {
		return "", err
	}

	if len(clauses) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("You must follow these instructions carefully:\n<instructions>\n")
		for i, c := range clauses {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
		b.WriteString("</instructions>\n")
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
