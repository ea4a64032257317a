package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/sjawhar/voice-call-widget/internal/mode"
	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/storage"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

const maxRequestBody = 64 << 10

var callIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type CallStore interface {
	GetCallsByDate(date string) ([]storage.Call, error)
	GetCall(id string) (storage.Call, error)
	GetTurns(callID string) ([]transcript.Turn, error)
	GetDates() ([]string, error)
}

// CallControls is the user-facing surface of the session controller.
type CallControls interface {
	Modes() []mode.Config
	Snapshot() session.Snapshot
	RequestStart(modeID string) error
	RequestStop() error
	ToggleMute() (bool, error)
	SendText(text string) error
	ForceStop()
}

type startRequest struct {
	Mode string `json:"mode"`
}

type textRequest struct {
	Text string `json:"text"`
}

func registerCallRoutes(mux *http.ServeMux, calls CallControls) {
	mux.HandleFunc("GET /api/modes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, calls.Modes())
	})

	mux.HandleFunc("GET /api/call", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, calls.Snapshot())
	})

	mux.HandleFunc("POST /api/call/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
		if err := calls.RequestStart(req.Mode); err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, calls.Snapshot())
	})

	mux.HandleFunc("POST /api/call/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := calls.RequestStop(); err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, calls.Snapshot())
	})

	mux.HandleFunc("POST /api/call/mute", func(w http.ResponseWriter, r *http.Request) {
		muted, err := calls.ToggleMute()
		if err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
	})

	mux.HandleFunc("POST /api/call/text", func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
		if err := calls.SendText(req.Text); err != nil {
			writeCallError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Sent with navigator.sendBeacon when the page is hidden or unloaded.
	mux.HandleFunc("POST /api/call/hidden", func(w http.ResponseWriter, r *http.Request) {
		calls.ForceStop()
		w.WriteHeader(http.StatusNoContent)
	})
}

func registerHistoryRoutes(mux *http.ServeMux, store CallStore) {
	mux.HandleFunc("GET /api/calls", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		calls, err := store.GetCallsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list calls: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, calls)
	})

	mux.HandleFunc("GET /api/calls/{id}", func(w http.ResponseWriter, r *http.Request) {
		callID := r.PathValue("id")
		if !validCallID(callID) {
			writeJSONError(w, http.StatusForbidden, "invalid call id")
			return
		}

		call, err := store.GetCall(callID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get call: %v", err))
			return
		}

		turns, err := store.GetTurns(callID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get call turns: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"call":  call,
			"turns": turns,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, http.StatusOK, dates)
	})
}

func registerStatusRoute(mux *http.ServeMux, calls CallControls, hooks Hooks) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if hooks.Warnings != nil {
			warnings = hooks.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"phase":    calls.Snapshot().Phase,
			"warnings": warnings,
		})
	})
}

func validCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeCallError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidMode):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyActive):
		status = http.StatusConflict
	case errors.Is(err, session.ErrTransportFailure):
		status = http.StatusBadGateway
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
