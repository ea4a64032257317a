package session

import (
	"encoding/json"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

// Stats are the per-call conversation counters shown next to the transcript.
type Stats struct {
	Messages          int
	UserMessages      int
	AssistantMessages int
	Words             int
	Latencies         []time.Duration
}

func (s Stats) AverageLatency() time.Duration {
	if len(s.Latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range s.Latencies {
		total += l
	}
	return total / time.Duration(len(s.Latencies))
}

func (s Stats) MarshalJSON() ([]byte, error) {
	samples := make([]int64, len(s.Latencies))
	for i, l := range s.Latencies {
		samples[i] = l.Milliseconds()
	}
	return json.Marshal(struct {
		Messages          int     `json:"messages"`
		UserMessages      int     `json:"user_messages"`
		AssistantMessages int     `json:"assistant_messages"`
		Words             int     `json:"words"`
		LatencySamplesMS  []int64 `json:"latency_samples_ms"`
		AverageLatencyMS  int64   `json:"average_latency_ms"`
	}{
		Messages:          s.Messages,
		UserMessages:      s.UserMessages,
		AssistantMessages: s.AssistantMessages,
		Words:             s.Words,
		LatencySamplesMS:  samples,
		AverageLatencyMS:  s.AverageLatency().Milliseconds(),
	})
}

// tracker counts turns and measures response latency. The outgoing
// timestamp is consumed by the first assistant turn that follows it.
type tracker struct {
	stats        Stats
	lastOutgoing time.Time
}

func (t *tracker) reset() {
	t.stats = Stats{}
	t.lastOutgoing = time.Time{}
}

func (t *tracker) count(turn transcript.Turn) {
	t.stats.Messages++
	t.stats.Words += turn.Words()
	switch turn.Role {
	case transcript.RoleUser:
		t.stats.UserMessages++
	case transcript.RoleAssistant:
		t.stats.AssistantMessages++
	}
}

func (t *tracker) recordOutgoing(turn transcript.Turn, now time.Time) {
	t.count(turn)
	t.lastOutgoing = now
}

func (t *tracker) recordIncoming(turn transcript.Turn, now time.Time) (time.Duration, bool) {
	t.count(turn)
	if turn.Role != transcript.RoleAssistant || t.lastOutgoing.IsZero() {
		return 0, false
	}
	latency := now.Sub(t.lastOutgoing)
	if latency < 0 {
		latency = 0
	}
	t.lastOutgoing = time.Time{}
	t.stats.Latencies = append(t.stats.Latencies, latency)
	return latency, true
}

func (t *tracker) snapshot() Stats {
	out := t.stats
	out.Latencies = append([]time.Duration(nil), t.stats.Latencies...)
	return out
}
