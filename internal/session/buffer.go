package session

import (
	"sync"

	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

// TurnBuffer keeps the turns displayed during the current call so the
// summary can be recovered from them when the call ends.
type TurnBuffer struct {
	mu    sync.Mutex
	turns []transcript.Turn
}

// NewTurnBuffer creates an empty turn buffer.
func NewTurnBuffer() *TurnBuffer {
	return &TurnBuffer{}
}

// Add appends a displayed turn.
func (b *TurnBuffer) Add(turn transcript.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, turn)
}

// AssistantTexts returns the content of assistant-authored turns in order.
func (b *TurnBuffer) AssistantTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, turn := range b.turns {
		if turn.Role == transcript.RoleAssistant {
			out = append(out, turn.Content)
		}
	}
	return out
}

// Flush returns all buffered turns and resets the buffer.
// Returns nil if the buffer is empty.
func (b *TurnBuffer) Flush() []transcript.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.turns) == 0 {
		return nil
	}
	out := b.turns
	b.turns = nil
	return out
}
