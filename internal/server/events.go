package server

import (
	"fmt"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/session"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type PhaseChangedEvent struct {
	Event
	Phase session.Phase `json:"phase"`
	Mode  string        `json:"mode,omitempty"`
}

type TurnEvent struct {
	Event
	CallID  string `json:"call_id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type DurationEvent struct {
	Event
	CallID  string `json:"call_id"`
	Seconds int    `json:"seconds"`
	Display string `json:"display"`
}

type VolumeEvent struct {
	Event
	Percent int `json:"percent"`
}

type SpeechEvent struct {
	Event
	Speaking bool `json:"speaking"`
}

type StatsEvent struct {
	Event
	Stats session.Stats `json:"stats"`
}

type SummaryEvent struct {
	Event
	CallID    string   `json:"call_id,omitempty"`
	Points    []string `json:"summary"`
	Sentiment string   `json:"sentiment"`
	Tone      string   `json:"tone"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// formatDuration renders elapsed call time as MM:SS.
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
