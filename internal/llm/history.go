package llm

import (
	"fmt"

	"github.com/user/toolagent/internal/llmtypes"
)

// turn is either a single message or the tool results of one round
type turn struct {
	message Message
	tools   []Message
	text    string // model text that accompanied the round's calls
}

// groupToolRuns splits history into turns. The agent records tool results
// without the assistant message that requested them, so vendors that need
// that message rebuild it from each run. Consecutive results belong to the
// same run only while their ToolRound matches. Missing call IDs are filled
// with stable positional ones so request and result still pair up.
func groupToolRuns(history []Message) []turn {
	var turns []turn
	for i, msg := range history {
		if msg.Role != llmtypes.RoleTool {
			turns = append(turns, turn{message: msg})
			continue
		}

		if msg.ToolCallID == "" {
			msg.ToolCallID = fmt.Sprintf("call_%d", i)
		}
		if n := len(turns); n > 0 && turns[n-1].tools != nil && turns[n-1].tools[0].ToolRound == msg.ToolRound {
			turns[n-1].tools = append(turns[n-1].tools, msg)
			continue
		}
		turns = append(turns, turn{tools: []Message{msg}, text: msg.RoundText})
	}
	return turns
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// systemPrompt joins every system message, for vendors that take the
// system prompt outside the message list
func systemPrompt(history []Message) string {
	var prompt string
	for _, msg := range history {
		if msg.Role != llmtypes.RoleSystem || msg.Content == "" {
			continue
		}
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += msg.Content
	}
	return prompt
}
