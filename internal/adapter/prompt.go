package adapter

import (
	"fmt"
	"strings"
)

// maxPromptEvents caps how many retrieved events go into a prompt.
const maxPromptEvents = 10

// BuildPrompt renders a context-augmented prompt from retrieved events.
// With no context it degrades to a bare question, which is also the
// no-memory baseline's prompt shape.
func BuildPrompt(query string, events []map[string]any) string {
	if len(events) == 0 {
		return fmt.Sprintf("Question: %s\n\nAnswer:", query)
	}

	var lines []string
	for i, ev := range events {
		if i == maxPromptEvents {
			break
		}
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, eventText(ev)))
	}

	return fmt.Sprintf(`Context from memory:
%s

Question: %s

Answer based on the context above:`, strings.Join(lines, "\n"), query)
}

// eventText extracts the displayable text of a wire-form event, which
// some backends nest as {"content": {"text": ...}}.
func eventText(ev map[string]any) string {
	switch c := ev["content"].(type) {
	case string:
		return c
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text
		}
		return fmt.Sprint(c)
	default:
		return fmt.Sprint(c)
	}
}
