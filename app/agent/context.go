package agent

import (
	"fmt"
	"strings"

	"ragchat/types"
)

const (
	NoDocumentsContext = "No relevant documents found."
	contextExcerptLen  = 500
	unknownSource      = "Unknown"
)

// BuildContext renders retrieved passages into the block the system prompt
// embeds. Results are expected in rank order.
func BuildContext(results []types.RetrievalResult) string {
	if len(results) == 0 {
		return NoDocumentsContext
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		rank := r.Rank
		if rank <= 0 {
			rank = i + 1
		}
		parts = append(parts, fmt.Sprintf("Document %d (from %s):\n%s\n",
			rank, r.MetaString(types.MetaSource, unknownSource), truncateRunes(r.Content, contextExcerptLen)))
	}
	return strings.Join(parts, "\n---\n")
}

// SystemPrompt wraps the rendered context in the assistant instructions.
func SystemPrompt(context string) string {
	return fmt.Sprintf(`
You are a helpful AI assistant that answers questions about a software project.

Context from the project documents:
%s

Instructions:
1. Answer questions based primarily on the provided context.
2. If information is not available in the context, clearly state that.
3. Provide specific examples from the code when relevant.
4. Help with installation, setup, and usage questions.
5. Be concise but comprehensive in your responses.
6. If asked about code, reference the specific files when possible.
`, context)
}

// BuildMessages orders the prompt: system first, then the newest maxHistory
// turns in chronological order, then the current user message.
func BuildMessages(systemPrompt string, history []types.ConversationTurn, current string, maxHistory int) []types.Message {
	if maxHistory < 0 {
		maxHistory = 0
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	msgs := make([]types.Message, 0, len(history)+2)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		switch turn.Role {
		case types.RoleUser, types.RoleAssistant:
			msgs = append(msgs, types.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	return append(msgs, types.Message{Role: types.RoleUser, Content: current})
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
