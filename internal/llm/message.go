package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation. Content carries plain text;
// Structured carries any non-string payload (multi-part content, images)
// and is forwarded to providers untouched.
type Message struct {
	Role       Role
	Content    string
	Structured any
}

func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

// IsEmpty reports whether the message has nothing to send. Structured
// content always counts as present.
func (m Message) IsEmpty() bool {
	if m.Structured != nil {
		return false
	}
	return strings.TrimSpace(m.Content) == ""
}

// Text flattens the message to plain text. Structured content contributes
// every "text" field it contains, or its JSON encoding when there is none.
func (m Message) Text() string {
	if m.Structured == nil {
		return m.Content
	}

	var parts []string
	collectText(m.Structured, &parts)
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	data, err := json.Marshal(m.Structured)
	if err != nil {
		return fmt.Sprint(m.Structured)
	}
	return string(data)
}

// Payload is the value providers receive as the message content.
func (m Message) Payload() any {
	if m.Structured != nil {
		return m.Structured
	}
	return m.Content
}

func collectText(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, item := range t {
			collectText(item, out)
		}
	case map[string]any:
		if text, ok := t["text"].(string); ok {
			*out = append(*out, text)
		}
	}
}

type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal message content: %w", err)
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Role = w.Role
	m.Content = ""
	m.Structured = nil

	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(w.Content, &text); err == nil {
		m.Content = text
		return nil
	}

	var structured any
	if err := json.Unmarshal(w.Content, &structured); err != nil {
		return fmt.Errorf("unmarshal message content: %w", err)
	}
	m.Structured = structured
	return nil
}

// HasConversation reports whether at least one non-system message exists.
func HasConversation(messages []Message) bool {
	for _, m := range messages {
		if !m.IsSystem() {
			return true
		}
	}
	return false
}
