package transcript

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleNotice marks locally generated status lines (call started, errors).
	RoleNotice = "notice"
)

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTurn(role, content string, now time.Time) Turn {
	return Turn{
		Role:      role,
		Content:   strings.TrimSpace(content),
		Timestamp: now,
	}
}

// Words counts whitespace-separated words in the turn content.
func (t Turn) Words() int {
	return len(strings.Fields(t.Content))
}

func (t Turn) FormatMarkdown() string {
	ts := t.Timestamp.Format("15:04:05")
	return fmt.Sprintf("**[%s] %s:** %s", ts, speakerLabel(t.Role), strings.TrimSpace(t.Content))
}

func speakerLabel(role string) string {
	switch role {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return "Notice"
	}
}

// IsKnownRole reports whether role is one the remote assistant may author.
func IsKnownRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
