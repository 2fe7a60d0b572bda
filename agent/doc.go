// Package agent implements the assistant agent: instruction composition from
// enabled capabilities, the model decision loop with tool calling, and
// one-level delegation to team members.
//
// An Agent is immutable after New. Run and user ids travel per call in Input,
// so one Agent can serve many runs concurrently.
//
// Per user message an agent:
//
//  1. Composes instructions (ComposeInstructions plus extra clauses)
//  2. Optionally pre-retrieves knowledge base references
//  3. Loops: model call, then sequential tool execution, until the model
//     answers with text or the model call limit is reached
//
// Tool failures are returned to the model as observations. A tool that fails
// twice in one turn is withdrawn, and the model is asked once more without
// tools. Knowledge base outages withdraw search_knowledge_base for the rest of
// the turn. Only model errors abort a turn.
package agent
