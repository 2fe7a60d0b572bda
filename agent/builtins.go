package agent

import (
	"fmt"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/runstore"
	"github.com/hupe1980/assistmesh/tool"
)

type knowledgeArgs struct {
	Query string `json:"query" jsonschema:"description=The query to search for"`
}

func newKnowledgeTool(kb Knowledge, k int) tool.Tool {
	return tool.NewTypedTool(SearchKnowledgeBaseTool,
		"Use this function to search the knowledge base for information about a query. Returns the most relevant passages.",
		func(tc *core.ToolContext, args knowledgeArgs) (any, error) {
			passages, err := kb.Search(tc.Context(), args.Query, k)
			if err != nil {
				return nil, err
			}
			if len(passages) == 0 {
				return "No documents found", nil
			}
			return passages, nil
		})
}

type historyArgs struct {
	NumChats int `json:"num_chats,omitempty" jsonschema:"description=Number of previous messages to return"`
}

func newHistoryTool(runs runstore.Store, def int) tool.Tool {
	return tool.NewTypedTool(ChatHistoryTool,
		"Use this function to get the chat history between the user and assistant. Returns a JSON list of messages, oldest first.",
		func(tc *core.ToolContext, args historyArgs) (any, error) {
			turns, err := runs.History(tc.Context(), tc.RunID())
			if err != nil {
				return nil, fmt.Errorf("read chat history: %w", err)
			}

			n := args.NumChats
			if n <= 0 {
				n = def
			}

			return runstore.LastN(turns, n), nil
		})
}
