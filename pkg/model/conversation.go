package model

import "strings"

// Message is one turn of a conversation as fed into the pipeline.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// RenderConversation flattens messages into the block of text the fact
// extractor consumes, one "role: content" line per turn.
func RenderConversation(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role == "" {
			lines = append(lines, m.Content)
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
