package content

import (
	"fmt"
	"strings"
)

// ContentType represents supported content types using IANA media types.
type ContentType string

const (
	ContentTypeText ContentType = "text/plain"
	ContentTypeJSON ContentType = "application/json"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalizes s into one of the known roles.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q (expected system, user or assistant)", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// ContentBlock represents a single piece of content.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text returns a single-block text message.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: ContentTypeText, Text: text}}}
}

// System, User and Assistant build single-block text turns.
func System(text string) Message    { return Text(RoleSystem, text) }
func User(text string) Message      { return Text(RoleUser, text) }
func Assistant(text string) Message { return Text(RoleAssistant, text) }

// PlainText joins the text blocks of m with newlines.
func (m Message) PlainText() string {
	return JoinText(m.Content)
}

// JoinText concatenates text blocks with newlines, skipping empty ones.
func JoinText(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != ContentTypeText && block.Type != ContentTypeJSON {
			continue
		}
		if block.Text == "" {
			continue
		}
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n")
}

// Validate checks that turns are non-empty, carry known roles and contain text.
func Validate(turns []Message) error {
	if len(turns) == 0 {
		return fmt.Errorf("at least one turn is required")
	}
	for i, turn := range turns {
		if !turn.Role.Valid() {
			return fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
		if strings.TrimSpace(turn.PlainText()) == "" {
			return fmt.Errorf("turn %d: content is empty", i)
		}
	}
	return nil
}

// SplitSystem separates leading/embedded system turns from the conversation.
// Providers that carry the system prompt out of band use this.
func SplitSystem(turns []Message) (system string, rest []Message) {
	var sys []string
	rest = make([]Message, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == RoleSystem {
			if text := turn.PlainText(); text != "" {
				sys = append(sys, text)
			}
			continue
		}
		rest = append(rest, turn)
	}
	return strings.Join(sys, "\n\n"), rest
}
