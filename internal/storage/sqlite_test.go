package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/summary"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var mode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", mode)
	}

	var timeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestSQLiteCRUD(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)
	callID := "6f1c2b7e-0c0e-4c53-9d51-1d0f8f6f4b10"
	if err := store.CreateCall(callID, "learning", startedAt); err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	turn := transcript.NewTurn(transcript.RoleUser, "Explain closures.", startedAt.Add(2*time.Second))
	if err := store.AppendTurn(callID, turn); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	res := summary.Result{Points: []string{"closures capture variables", "practice recommended"}, Sentiment: "Positive"}
	if err := store.SaveSummary(callID, res); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	stats := session.Stats{
		Messages:          3,
		UserMessages:      1,
		AssistantMessages: 2,
		Words:             12,
		Latencies:         []time.Duration{time.Second, 3 * time.Second},
	}
	if err := store.EndCall(callID, startedAt.Add(30*time.Second), session.OutcomeCompleted, stats); err != nil {
		t.Fatalf("EndCall failed: %v", err)
	}

	call, err := store.GetCall(callID)
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if call.Status != StatusEnded {
		t.Fatalf("expected status ended, got %q", call.Status)
	}
	if call.Mode != "learning" || call.Outcome != session.OutcomeCompleted {
		t.Fatalf("unexpected mode/outcome: %q/%q", call.Mode, call.Outcome)
	}
	if call.EndedAt == nil || !call.EndedAt.Equal(startedAt.Add(30*time.Second)) {
		t.Fatalf("unexpected ended_at: %v", call.EndedAt)
	}
	if call.Summary == nil || len(call.Summary.Points) != 2 || call.Summary.Sentiment != "Positive" {
		t.Fatalf("unexpected summary: %+v", call.Summary)
	}
	if call.Messages != 3 || call.Words != 12 || call.AverageLatencyMS != 2000 {
		t.Fatalf("unexpected stats: %+v", call)
	}

	turns, err := store.GetTurns(callID)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Content != turn.Content || turns[0].Role != transcript.RoleUser {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}

	callsByDate, err := store.GetCallsByDate("2026-02-26")
	if err != nil {
		t.Fatalf("GetCallsByDate failed: %v", err)
	}
	if len(callsByDate) != 1 {
		t.Fatalf("expected 1 call for date, got %d", len(callsByDate))
	}

	dates, err := store.GetDates()
	if err != nil {
		t.Fatalf("GetDates failed: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-02-26" {
		t.Fatalf("expected dates [2026-02-26], got %#v", dates)
	}
}

func TestSQLiteCallWithoutSummary(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.CreateCall("c1", "support", time.Now()); err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	call, err := store.GetCall("c1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if call.Summary != nil {
		t.Fatalf("expected no summary, got %+v", call.Summary)
	}
	if call.Status != StatusActive || call.EndedAt != nil {
		t.Fatalf("expected active call, got %+v", call)
	}
}

func TestSQLiteSummaryOverwrite(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.CreateCall("c1", "support", time.Now()); err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}
	_ = store.SaveSummary("c1", summary.Result{Points: []string{"old"}, Sentiment: "Negative"})
	if err := store.SaveSummary("c1", summary.Result{Points: []string{"new"}, Sentiment: "Neutral"}); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	call, err := store.GetCall("c1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}
	if call.Summary.Points[0] != "new" || call.Summary.Sentiment != "Neutral" {
		t.Fatalf("expected latest summary, got %+v", call.Summary)
	}
}

func TestSQLiteMissingCall(t *testing.T) {
	store := newTestSQLiteStore(t)

	if err := store.EndCall("nope", time.Now(), session.OutcomeFailed, session.Stats{}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows from EndCall, got %v", err)
	}
	if err := store.SaveSummary("nope", summary.Result{Sentiment: "Positive"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows from SaveSummary, got %v", err)
	}
	if _, err := store.GetCall("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows from GetCall, got %v", err)
	}
	if err := store.CreateCall("  ", "learning", time.Now()); err == nil {
		t.Fatal("expected error for blank call id")
	}
}

func TestSQLiteConcurrentAccess(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Now().UTC()
	callID := "concurrent"
	if err := store.CreateCall(callID, "practice", startedAt); err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = store.AppendTurn(callID, transcript.NewTurn(
				transcript.RoleAssistant,
				fmt.Sprintf("turn-%d", idx),
				startedAt.Add(time.Duration(idx)*time.Second),
			))
			_, _ = store.GetCall(callID)
		}(i)
	}
	wg.Wait()

	turns, err := store.GetTurns(callID)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(turns))
	}
}
