package session

import (
	"context"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/summary"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseActive   Phase = "active"
	PhaseEnding   Phase = "ending"
)

type LifecycleEvent string

const (
	EventCallStart   LifecycleEvent = "call-start"
	EventCallEnd     LifecycleEvent = "call-end"
	EventSpeechStart LifecycleEvent = "speech-start"
	EventSpeechEnd   LifecycleEvent = "speech-end"
)

// Call outcomes recorded when a call leaves the controller.
const (
	OutcomeCompleted   = "completed"
	OutcomeRemoteEnded = "remote_ended"
	OutcomeFailed      = "failed"
	OutcomeAbandoned   = "abandoned"
)

// StartRequest is what the call backend needs to open a call for a mode.
type StartRequest struct {
	AssistantID  string
	FirstMessage string
	SystemPrompt string
}

type CallClient interface {
	Start(ctx context.Context, req StartRequest) error
	Stop() error
	SetMuted(muted bool) error
	Send(turn transcript.Turn) error
}

type Store interface {
	CreateCall(id, modeID string, startedAt time.Time) error
	AppendTurn(callID string, turn transcript.Turn) error
	SaveSummary(callID string, res summary.Result) error
	EndCall(id string, endedAt time.Time, outcome string, stats Stats) error
}

type Archive interface {
	Append(turn transcript.Turn) error
}

type EventBroadcaster interface {
	BroadcastPhase(phase Phase, modeID string)
	BroadcastTurn(callID string, turn transcript.Turn)
	BroadcastDuration(callID string, elapsed time.Duration)
	BroadcastVolume(percent int)
	BroadcastSpeech(speaking bool)
	BroadcastStats(stats Stats)
	BroadcastSummary(callID string, res summary.Result)
	BroadcastError(message string)
}

type Metrics interface {
	ObserveCall(mode, outcome string)
	ObserveTurn(role string)
	ObserveLatency(d time.Duration)
	ObserveSummary(source string)
}

// Snapshot is a point-in-time copy of the controller state for the UI.
type Snapshot struct {
	Phase     Phase           `json:"phase"`
	CallID    string          `json:"call_id,omitempty"`
	Mode      string          `json:"mode,omitempty"`
	Muted     bool            `json:"muted"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Stats     Stats           `json:"stats"`
	Summary   *summary.Result `json:"summary,omitempty"`
}
