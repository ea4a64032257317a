package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/summary"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

type Call struct {
	ID                string          `json:"id"`
	Mode              string          `json:"mode"`
	StartedAt         time.Time       `json:"started_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	Status            string          `json:"status"`
	Outcome           string          `json:"outcome,omitempty"`
	Summary           *summary.Result `json:"summary,omitempty"`
	Messages          int             `json:"messages"`
	UserMessages      int             `json:"user_messages"`
	AssistantMessages int             `json:"assistant_messages"`
	Words             int             `json:"words"`
	AverageLatencyMS  int64           `json:"average_latency_ms"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "voice-call-widget.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			summary_points TEXT,
			sentiment TEXT NOT NULL DEFAULT '',
			messages INTEGER NOT NULL DEFAULT 0,
			user_messages INTEGER NOT NULL DEFAULT 0,
			assistant_messages INTEGER NOT NULL DEFAULT 0,
			words INTEGER NOT NULL DEFAULT 0,
			avg_latency_ms INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create calls table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(call_id) REFERENCES calls(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create turns table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at)"); err != nil {
		return fmt.Errorf("create calls index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_turns_call_id ON turns(call_id, timestamp)"); err != nil {
		return fmt.Errorf("create turns index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateCall(id, modeID string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("call id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO calls(id, mode, started_at, status) VALUES(?, ?, ?, ?)`,
		id,
		modeID,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("create call %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) EndCall(id string, endedAt time.Time, outcome string, stats session.Stats) error {
	res, err := s.db.Exec(
		`UPDATE calls
		 SET ended_at = ?, status = ?, outcome = ?,
		     messages = ?, user_messages = ?, assistant_messages = ?, words = ?, avg_latency_ms = ?
		 WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		StatusEnded,
		outcome,
		stats.Messages,
		stats.UserMessages,
		stats.AssistantMessages,
		stats.Words,
		stats.AverageLatency().Milliseconds(),
		id,
	)
	if err != nil {
		return fmt.Errorf("end call %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end call rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) AppendTurn(callID string, turn transcript.Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO turns(call_id, role, content, timestamp) VALUES(?, ?, ?, ?)`,
		callID,
		turn.Role,
		strings.TrimSpace(turn.Content),
		turn.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append turn for call %s: %w", callID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveSummary(callID string, res summary.Result) error {
	points, err := json.Marshal(res.Points)
	if err != nil {
		return fmt.Errorf("encode summary points for call %s: %w", callID, err)
	}

	result, err := s.db.Exec(
		`UPDATE calls SET summary_points = ?, sentiment = ? WHERE id = ?`,
		string(points),
		res.Sentiment,
		callID,
	)
	if err != nil {
		return fmt.Errorf("save summary for call %s: %w", callID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save summary rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const callColumns = `id, mode, started_at, ended_at, status, outcome, summary_points, sentiment,
	messages, user_messages, assistant_messages, words, avg_latency_ms`

func (s *SQLiteStore) GetCallsByDate(date string) ([]Call, error) {
	rows, err := s.db.Query(
		`SELECT `+callColumns+`
		 FROM calls
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	calls := make([]Call, 0, 16)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls rows: %w", err)
	}

	return calls, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM calls ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetCall(id string) (Call, error) {
	row := s.db.QueryRow(`SELECT `+callColumns+` FROM calls WHERE id = ?`, id)

	call, err := scanCall(row)
	if err != nil {
		return Call{}, fmt.Errorf("query call %s: %w", id, err)
	}
	return call, nil
}

func (s *SQLiteStore) GetTurns(callID string) ([]transcript.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, timestamp
		 FROM turns
		 WHERE call_id = ?
		 ORDER BY id ASC`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns for call %s: %w", callID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]transcript.Turn, 0, 32)
	for rows.Next() {
		var turn transcript.Turn
		var ts string
		if err := rows.Scan(&turn.Role, &turn.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn for call %s: %w", callID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp for call %s: %w", callID, err)
		}
		turn.Timestamp = parsedTS

		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows for call %s: %w", callID, err)
	}

	return turns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var call Call
	var startedAt string
	var endedAt, points sql.NullString
	var sentiment string
	if err := row.Scan(
		&call.ID, &call.Mode, &startedAt, &endedAt, &call.Status, &call.Outcome, &points, &sentiment,
		&call.Messages, &call.UserMessages, &call.AssistantMessages, &call.Words, &call.AverageLatencyMS,
	); err != nil {
		return Call{}, fmt.Errorf("scan call: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Call{}, fmt.Errorf("parse started_at: %w", err)
	}
	call.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Call{}, fmt.Errorf("parse ended_at: %w", err)
		}
		call.EndedAt = &parsedEnd
	}

	if points.Valid {
		res := summary.Result{Sentiment: sentiment}
		if err := json.Unmarshal([]byte(points.String), &res.Points); err != nil {
			return Call{}, fmt.Errorf("decode summary points: %w", err)
		}
		call.Summary = &res
	}

	return call, nil
}
