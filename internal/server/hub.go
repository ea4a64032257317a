package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/summary"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

// Hub fans call events out to every connected UI.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastPhase(phase session.Phase, modeID string) {
	h.broadcastEvent(PhaseChangedEvent{
		Event: newEvent("phase_changed", time.Now().UTC()),
		Phase: phase,
		Mode:  modeID,
	})
}

func (h *Hub) BroadcastTurn(callID string, turn transcript.Turn) {
	h.broadcastEvent(TurnEvent{
		Event:   newEvent("turn", turn.Timestamp),
		CallID:  callID,
		Role:    turn.Role,
		Content: turn.Content,
	})
}

func (h *Hub) BroadcastDuration(callID string, elapsed time.Duration) {
	h.broadcastEvent(DurationEvent{
		Event:   newEvent("duration", time.Now().UTC()),
		CallID:  callID,
		Seconds: int(elapsed.Seconds()),
		Display: formatDuration(elapsed),
	})
}

func (h *Hub) BroadcastVolume(percent int) {
	h.broadcastEvent(VolumeEvent{
		Event:   newEvent("volume", time.Now().UTC()),
		Percent: percent,
	})
}

func (h *Hub) BroadcastSpeech(speaking bool) {
	h.broadcastEvent(SpeechEvent{
		Event:    newEvent("speech", time.Now().UTC()),
		Speaking: speaking,
	})
}

func (h *Hub) BroadcastStats(stats session.Stats) {
	h.broadcastEvent(StatsEvent{
		Event: newEvent("stats", time.Now().UTC()),
		Stats: stats,
	})
}

func (h *Hub) BroadcastSummary(callID string, res summary.Result) {
	h.broadcastEvent(SummaryEvent{
		Event:     newEvent("summary", time.Now().UTC()),
		CallID:    callID,
		Points:    res.Points,
		Sentiment: res.Sentiment,
		Tone:      res.Tone(),
	})
}

func (h *Hub) BroadcastError(message string) {
	h.broadcastEvent(ErrorEvent{
		Event:   newEvent("error", time.Now().UTC()),
		Message: message,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
