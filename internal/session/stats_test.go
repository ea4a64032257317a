package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

func TestTracker_OneOutgoingTwoReplies_RecordsOneSample(t *testing.T) {
	var tr tracker
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tr.recordOutgoing(transcript.NewTurn(transcript.RoleUser, "what is a monad", base), base)
	if _, ok := tr.recordIncoming(transcript.NewTurn(transcript.RoleAssistant, "a monoid", base), base.Add(800*time.Millisecond)); !ok {
		t.Fatal("expected first reply to record a sample")
	}
	if _, ok := tr.recordIncoming(transcript.NewTurn(transcript.RoleAssistant, "in the category", base), base.Add(2*time.Second)); ok {
		t.Fatal("expected second reply to find the timestamp consumed")
	}

	stats := tr.snapshot()
	if len(stats.Latencies) != 1 {
		t.Fatalf("expected 1 latency sample, got %d", len(stats.Latencies))
	}
	if stats.Latencies[0] != 800*time.Millisecond {
		t.Fatalf("expected 800ms latency, got %v", stats.Latencies[0])
	}
	if stats.Messages != 3 || stats.UserMessages != 1 || stats.AssistantMessages != 2 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.Words != 9 {
		t.Fatalf("expected 9 words, got %d", stats.Words)
	}
}

func TestTracker_ReplyWithoutOutgoing_NoSample(t *testing.T) {
	var tr tracker
	now := time.Now()
	if _, ok := tr.recordIncoming(transcript.NewTurn(transcript.RoleAssistant, "welcome", now), now); ok {
		t.Fatal("expected no sample without an outgoing timestamp")
	}
}

func TestTracker_VoiceUserTurn_NoLatencyEffect(t *testing.T) {
	var tr tracker
	now := time.Now()
	tr.recordIncoming(transcript.NewTurn(transcript.RoleUser, "spoken words", now), now)
	if _, ok := tr.recordIncoming(transcript.NewTurn(transcript.RoleAssistant, "reply", now), now.Add(time.Second)); ok {
		t.Fatal("expected voice user turn not to start latency measurement")
	}
	if got := tr.snapshot().UserMessages; got != 1 {
		t.Fatalf("expected voice turn counted, got %d user messages", got)
	}
}

func TestTracker_ResetClearsLatencies(t *testing.T) {
	var tr tracker
	now := time.Now()
	tr.recordOutgoing(transcript.NewTurn(transcript.RoleUser, "hi", now), now)
	tr.recordIncoming(transcript.NewTurn(transcript.RoleAssistant, "hello", now), now.Add(time.Second))
	tr.reset()

	stats := tr.snapshot()
	if stats.Messages != 0 || len(stats.Latencies) != 0 {
		t.Fatalf("expected empty stats after reset, got %+v", stats)
	}
}

func TestStats_AverageLatency(t *testing.T) {
	s := Stats{Latencies: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}}
	if got := s.AverageLatency(); got != 2*time.Second {
		t.Fatalf("expected 2s average, got %v", got)
	}
	if got := (Stats{}).AverageLatency(); got != 0 {
		t.Fatalf("expected 0 average with no samples, got %v", got)
	}
}

func TestStats_MarshalJSON(t *testing.T) {
	s := Stats{
		Messages:          2,
		UserMessages:      1,
		AssistantMessages: 1,
		Words:             5,
		Latencies:         []time.Duration{1500 * time.Millisecond},
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["average_latency_ms"] != float64(1500) {
		t.Fatalf("expected average_latency_ms 1500, got %v", got["average_latency_ms"])
	}
	if got["user_messages"] != float64(1) {
		t.Fatalf("expected user_messages 1, got %v", got["user_messages"])
	}
}
