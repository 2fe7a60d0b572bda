package agent

import (
	"fmt"

	"github.com/hupe1980/assistmesh/internal/util"
)

// InstructionData is exposed to instruction templates.
type InstructionData struct {
	UserID    string
	RunID     string
	AgentName string
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(InstructionData) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(InstructionData) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(d InstructionData) (string, error) { return f(d) }

// Instruction represents either a text template or a dynamic provider.
// Text may reference {{.UserID}}, {{.RunID}} and {{.AgentName}}.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a template string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(InstructionData) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by text.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve renders the instruction for one turn.
func (i Instruction) Resolve(d InstructionData) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(d)
	}

	out, err := util.RenderTemplate(i.text, d)
	if err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}

	return out, nil
}

// Texts converts plain strings to instructions.
func Texts(texts ...string) []Instruction {
	out := make([]Instruction, 0, len(texts))
	for _, t := range texts {
		out = append(out, NewInstructionFromText(t))
	}
	return out
}
