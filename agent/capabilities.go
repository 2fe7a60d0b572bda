package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/assistmesh/tool"
	"github.com/hupe1980/assistmesh/tool/websearch"
)

// Names of the built-in capability tools.
const (
	SearchKnowledgeBaseTool = "search_knowledge_base"
	ChatHistoryTool         = "get_chat_history"
	WebSearchTool           = websearch.Name
)

// ToolCapability describes a registered tool.
type ToolCapability struct {
	Name        string
	Description string
}

// MemberCapability describes a team member reachable by delegation.
type MemberCapability struct {
	Name     string
	Role     string
	ToolName string
}

// Capabilities is the enabled-capability set of an agent. Its order is
// fixed: tools in registration order, knowledge base search, chat history,
// web search, then team members in team order.
type Capabilities struct {
	Tools         []ToolCapability
	KnowledgeBase bool
	ChatHistory   bool
	WebSearch     bool
	Team          []MemberCapability
}

// Names returns the invocable tool name of every capability in order.
func (c Capabilities) Names() []string {
	names := make([]string, 0, c.Len())
	for _, t := range c.Tools {
		names = append(names, t.Name)
	}
	if c.KnowledgeBase {
		names = append(names, SearchKnowledgeBaseTool)
	}
	if c.ChatHistory {
		names = append(names, ChatHistoryTool)
	}
	if c.WebSearch {
		names = append(names, WebSearchTool)
	}
	for _, m := range c.Team {
		names = append(names, m.ToolName)
	}
	return names
}

// Len returns the number of enabled capabilities.
func (c Capabilities) Len() int {
	n := len(c.Tools) + len(c.Team)
	for _, on := range []bool{c.KnowledgeBase, c.ChatHistory, c.WebSearch} {
		if on {
			n++
		}
	}
	return n
}

// ComposeInstructions returns exactly one instruction clause per enabled
// capability, in capability order. Clause i names Names()[i].
func ComposeInstructions(c Capabilities) []string {
	clauses := make([]string, 0, c.Len())

	for _, t := range c.Tools {
		clause := fmt.Sprintf("You can use the `%s` tool", t.Name)
		if d := strings.TrimSpace(t.Description); d != "" {
			clause += ": " + strings.TrimSuffix(d, ".") + "."
		} else {
			clause += "."
		}
		clauses = append(clauses, clause)
	}

	if c.KnowledgeBase {
		clauses = append(clauses, fmt.Sprintf("If you need to reference the knowledge base, use the `%s` tool to search it before answering.", SearchKnowledgeBaseTool))
	}

	if c.ChatHistory {
		clauses = append(clauses, fmt.Sprintf("If you need to refer to earlier messages of this conversation, use the `%s` tool.", ChatHistoryTool))
	}

	if c.WebSearch {
		clauses = append(clauses, fmt.Sprintf("For up-to-date or external information, search the web with the `%s` tool.", WebSearchTool))
	}

	for _, m := range c.Team {
		clause := fmt.Sprintf("To delegate a task to `%s`, use the `%s` tool", m.Name, m.ToolName)
		if r := strings.TrimSpace(m.Role); r != "" {
			clause += fmt.Sprintf("; their role is: %s", strings.TrimSuffix(r, "."))
		}
		clauses = append(clauses, clause+".")
	}

	return clauses
}

// capabilitiesOf classifies the tools of set and the team into Capabilities.
func capabilitiesOf(set *tool.Set, knowledge, history bool, team []*Agent) Capabilities {
	var c Capabilities

	for _, t := range set.Tools() {
		if t.Name() == WebSearchTool {
			c.WebSearch = true
			continue
		}
		c.Tools = append(c.Tools, ToolCapability{Name: t.Name(), Description: t.Description()})
	}

	c.KnowledgeBase = knowledge
	c.ChatHistory = history

	for _, m := range team {
		c.Team = append(c.Team, MemberCapability{
			Name:     m.Name(),
			Role:     m.Role(),
			ToolName: tool.DelegateToolName(m.Name()),
		})
	}

	return c
}
