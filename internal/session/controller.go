package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/voice-call-widget/internal/mode"
	"github.com/sjawhar/voice-call-widget/internal/summary"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

const defaultStartTimeout = 30 * time.Second

// Deps are the collaborators of a Controller. Client and Modes are required;
// the rest may be nil.
type Deps struct {
	Client       CallClient
	Modes        *mode.Table
	Store        Store
	Archive      Archive
	Hub          EventBroadcaster
	Metrics      Metrics
	Ticker       *DurationTicker
	StartTimeout time.Duration
	Now          func() time.Time
}

// Controller owns the lifecycle of the single call the widget can run.
// Phases move Idle -> Starting -> Active -> Ending -> Idle; a failed start
// returns Starting -> Idle.
type Controller struct {
	client       CallClient
	modes        *mode.Table
	store        Store
	archive      Archive
	hub          EventBroadcaster
	metrics      Metrics
	ticker       *DurationTicker
	startTimeout time.Duration
	now          func() time.Time
	buffer       *TurnBuffer

	mu          sync.Mutex
	phase       Phase
	callID      string
	mode        *mode.Config
	startedAt   time.Time
	muted       bool
	pendingStop bool
	tracker     tracker
	summary     *summary.Result
}

type endingCall struct {
	callID     string
	modeID     string
	hasSummary bool
}

func NewController(deps Deps) *Controller {
	if deps.Ticker == nil {
		deps.Ticker = NewDurationTicker(time.Second)
	}
	if deps.StartTimeout <= 0 {
		deps.StartTimeout = defaultStartTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Controller{
		client:       deps.Client,
		modes:        deps.Modes,
		store:        deps.Store,
		archive:      deps.Archive,
		hub:          deps.Hub,
		metrics:      deps.Metrics,
		ticker:       deps.Ticker,
		startTimeout: deps.StartTimeout,
		now:          deps.Now,
		buffer:       NewTurnBuffer(),
		phase:        PhaseIdle,
	}
}

// Init wires the duration ticker and announces the idle state.
func (c *Controller) Init() {
	c.ticker.OnTick(func(elapsed time.Duration) {
		c.mu.Lock()
		callID := c.callID
		active := c.phase == PhaseActive
		c.mu.Unlock()

		if active && c.hub != nil {
			c.hub.BroadcastDuration(callID, elapsed)
		}
	})
	c.broadcastPhase(PhaseIdle, "")
}

// Dispose ends any call in progress. A start that has not resolved yet is
// abandoned; if it later succeeds the orphaned call is stopped.
func (c *Controller) Dispose() {
	c.ForceStop()

	c.mu.Lock()
	if c.phase != PhaseStarting {
		c.ticker.Stop()
		c.mu.Unlock()
		return
	}
	e := c.abortStartLocked()
	c.mu.Unlock()

	if err := c.client.Stop(); err != nil {
		slog.Warn("session: stop during dispose failed", "error", err)
	}
	c.closeCall(e, OutcomeAbandoned)
}

func (c *Controller) Modes() []mode.Config {
	return c.modes.List()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:  c.phase,
		CallID: c.callID,
		Muted:  c.muted,
		Stats:  c.tracker.snapshot(),
	}
	if c.mode != nil {
		snap.Mode = c.mode.ID
	}
	if !c.startedAt.IsZero() {
		startedAt := c.startedAt
		snap.StartedAt = &startedAt
	}
	if c.summary != nil {
		res := *c.summary
		snap.Summary = &res
	}
	return snap
}

// RequestStart begins a call in the given mode. The call client's start
// runs in the background; the controller stays in Starting until it
// resolves or the backend reports the call as started.
func (c *Controller) RequestStart(modeID string) error {
	m, ok := c.modes.Lookup(modeID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, modeID)
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	callID := uuid.NewString()
	c.setPhaseLocked(PhaseStarting, m.ID)
	c.callID = callID
	c.mode = &m
	c.startedAt = time.Time{}
	c.muted = false
	c.pendingStop = false
	c.summary = nil
	c.tracker.reset()
	c.buffer.Flush()
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.CreateCall(callID, m.ID, c.now().UTC()); err != nil {
			slog.Warn("session: create call record failed", "call_id", callID, "error", err)
		}
	}

	if c.hub != nil {
		c.hub.BroadcastStats(Stats{})
	}

	go c.awaitStart(callID, StartRequest{
		AssistantID:  m.AssistantID,
		FirstMessage: m.FirstMessage,
		SystemPrompt: m.SystemPrompt,
	})
	return nil
}

func (c *Controller) awaitStart(callID string, req StartRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), c.startTimeout)
	defer cancel()

	err := c.client.Start(ctx, req)

	c.mu.Lock()
	if c.callID != callID {
		c.mu.Unlock()
		if err == nil {
			if stopErr := c.client.Stop(); stopErr != nil {
				slog.Warn("session: stop abandoned call failed", "call_id", callID, "error", stopErr)
			}
		}
		return
	}

	if err != nil {
		if c.phase != PhaseStarting {
			c.mu.Unlock()
			return
		}
		e := c.abortStartLocked()
		c.mu.Unlock()

		c.reportError("", "start call", err)
		c.closeCall(e, OutcomeFailed)
		return
	}
	c.mu.Unlock()

	c.activate(callID)
}

// activate moves a starting call to Active. It is idempotent: the start
// acknowledgement and the call-start event may both arrive.
func (c *Controller) activate(callID string) {
	c.mu.Lock()
	if c.callID != callID || c.phase != PhaseStarting {
		c.mu.Unlock()
		return
	}
	now := c.now()
	m := *c.mode
	c.setPhaseLocked(PhaseActive, m.ID)
	c.startedAt = now
	pending := c.pendingStop
	c.pendingStop = false
	c.ticker.Start(now)

	// Opening utterance is shown under the lock; only persistence follows.
	var opening *transcript.Turn
	if strings.TrimSpace(m.FirstMessage) != "" {
		turn := transcript.NewTurn(transcript.RoleAssistant, m.FirstMessage, now)
		c.showLocked(callID, turn)
		opening = &turn
	}
	c.mu.Unlock()

	if opening != nil {
		c.persist(callID, *opening)
	}

	if pending {
		if err := c.RequestStop(); err != nil {
			slog.Warn("session: queued stop failed", "call_id", callID, "error", err)
		}
	}
}

// RequestStop ends the current call. It is a no-op when idle. A stop
// requested while starting is queued and honored once the call is up.
// The call is always ended locally, even when the client fails to stop.
func (c *Controller) RequestStop() error {
	c.mu.Lock()
	switch c.phase {
	case PhaseIdle, PhaseEnding:
		c.mu.Unlock()
		return nil
	case PhaseStarting:
		c.pendingStop = true
		c.mu.Unlock()
		return nil
	}
	e := c.beginEndingLocked()
	c.mu.Unlock()

	stopErr := c.client.Stop()
	c.finishCall(e, OutcomeCompleted)

	if stopErr != nil {
		c.reportError("", "stop call", stopErr)
		return fmt.Errorf("%w: stop call: %w", ErrTransportFailure, stopErr)
	}
	return nil
}

// ForceStop is the best-effort cleanup used when the page is hidden or
// discarded, or the process shuts down. Failures are only logged.
func (c *Controller) ForceStop() {
	if err := c.RequestStop(); err != nil {
		slog.Warn("session: forced stop failed", "error", err)
	}
}

// ToggleMute flips the microphone mute flag while a call is active and
// returns the resulting state.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		muted := c.muted
		c.mu.Unlock()
		return muted, nil
	}
	c.muted = !c.muted
	muted := c.muted
	callID := c.callID
	c.mu.Unlock()

	if err := c.client.SetMuted(muted); err != nil {
		c.mu.Lock()
		if c.callID == callID {
			c.muted = !muted
		}
		c.mu.Unlock()
		c.reportError(callID, "toggle mute", err)
		return !muted, fmt.Errorf("%w: set muted: %w", ErrTransportFailure, err)
	}

	notice := "Microphone unmuted"
	if muted {
		notice = "Microphone muted"
	}
	c.display(callID, transcript.NewTurn(transcript.RoleNotice, notice, c.now()))
	return muted, nil
}

// SendText forwards a typed user message to the call. Blank text and text
// sent outside an active call are ignored.
func (c *Controller) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return nil
	}
	callID := c.callID
	c.mu.Unlock()

	turn := transcript.NewTurn(transcript.RoleUser, text, c.now())
	if err := c.client.Send(turn); err != nil {
		c.reportError(callID, "send message", err)
		return fmt.Errorf("%w: send message: %w", ErrTransportFailure, err)
	}

	c.mu.Lock()
	if c.callID != callID {
		c.mu.Unlock()
		return nil
	}
	c.tracker.recordOutgoing(turn, turn.Timestamp)
	stats := c.tracker.snapshot()
	c.mu.Unlock()

	c.display(callID, turn)
	c.observeTurn(turn.Role)
	if c.hub != nil {
		c.hub.BroadcastStats(stats)
	}
	return nil
}

// RemoteTurn handles a transcript message from the call client.
func (c *Controller) RemoteTurn(role, content string) {
	content = strings.TrimSpace(content)
	if content == "" || !transcript.IsKnownRole(role) {
		return
	}

	var parsed *summary.Result
	if role == transcript.RoleAssistant {
		if res, ok := summary.Extract(content); ok {
			parsed = &res
		}
	}

	c.mu.Lock()
	if c.phase != PhaseActive && c.phase != PhaseStarting {
		c.mu.Unlock()
		slog.Debug("session: dropping message outside a call", "role", role)
		return
	}
	callID := c.callID
	now := c.now()
	turn := transcript.NewTurn(role, content, now)
	latency, sampled := c.tracker.recordIncoming(turn, now)
	if parsed != nil {
		c.summary = parsed
	}
	stats := c.tracker.snapshot()
	c.mu.Unlock()

	c.display(callID, turn)
	c.observeTurn(role)
	if sampled && c.metrics != nil {
		c.metrics.ObserveLatency(latency)
	}
	if c.hub != nil {
		c.hub.BroadcastStats(stats)
	}
	if parsed != nil {
		c.publishSummary(callID, *parsed, "message")
	}
}

// LifecycleEvent handles call-start/call-end and speech events.
func (c *Controller) LifecycleEvent(ev LifecycleEvent) {
	switch ev {
	case EventCallStart:
		c.mu.Lock()
		callID := c.callID
		phase := c.phase
		c.mu.Unlock()

		if phase != PhaseStarting {
			slog.Debug("session: ignoring call-start", "phase", phase)
			return
		}
		c.activate(callID)

	case EventCallEnd:
		c.remoteEnded()

	case EventSpeechStart, EventSpeechEnd:
		if c.hub != nil {
			c.hub.BroadcastSpeech(ev == EventSpeechStart)
		}

	default:
		slog.Debug("session: ignoring lifecycle event", "event", ev)
	}
}

func (c *Controller) remoteEnded() {
	c.mu.Lock()
	c.ticker.Stop()
	switch c.phase {
	case PhaseIdle, PhaseEnding:
		c.mu.Unlock()
		return
	case PhaseStarting:
		e := c.abortStartLocked()
		c.mu.Unlock()
		c.closeCall(e, OutcomeRemoteEnded)
		return
	}
	e := c.beginEndingLocked()
	c.mu.Unlock()

	c.finishCall(e, OutcomeRemoteEnded)
}

// TransportError surfaces a call client failure. A failure while starting
// returns the controller to Idle like a rejected start.
func (c *Controller) TransportError(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	callID := c.callID
	if c.phase != PhaseStarting {
		c.mu.Unlock()
		c.reportError(callID, "call", err)
		return
	}
	e := c.abortStartLocked()
	c.mu.Unlock()

	c.reportError("", "start call", err)
	c.closeCall(e, OutcomeFailed)
}

// VolumeLevel forwards the assistant's output level (0.0-1.0) as a percentage.
func (c *Controller) VolumeLevel(level float64) {
	if c.hub == nil || math.IsNaN(level) {
		return
	}
	level = math.Max(0, math.Min(1, level))
	c.hub.BroadcastVolume(int(math.Round(level * 100)))
}

// beginEndingLocked moves an active call to Ending and stops the duration
// tick. Phase changes are broadcast under c.mu so the UI sees them in the
// order they happen.
func (c *Controller) beginEndingLocked() endingCall {
	e := endingCall{
		callID:     c.callID,
		hasSummary: c.summary != nil,
	}
	if c.mode != nil {
		e.modeID = c.mode.ID
	}
	c.ticker.Stop()
	c.setPhaseLocked(PhaseEnding, e.modeID)
	return e
}

func (c *Controller) abortStartLocked() endingCall {
	e := endingCall{callID: c.callID, hasSummary: c.summary != nil}
	if c.mode != nil {
		e.modeID = c.mode.ID
	}
	c.ticker.Stop()
	c.setPhaseLocked(PhaseIdle, "")
	c.callID = ""
	c.mode = nil
	c.startedAt = time.Time{}
	c.muted = false
	c.pendingStop = false
	return e
}

// finishCall runs the end-of-call cleanup for a call in Ending: the
// last-chance summary recovery, then the collapse to Idle.
func (c *Controller) finishCall(e endingCall, outcome string) {
	var recovered *summary.Result
	if !e.hasSummary {
		if res, ok := summary.Recover(c.buffer.AssistantTexts()); ok {
			recovered = &res
		}
	}

	c.mu.Lock()
	if recovered != nil && c.summary == nil {
		c.summary = recovered
	} else {
		recovered = nil
	}
	c.mu.Unlock()

	if recovered != nil {
		c.publishSummary(e.callID, *recovered, "recovered")
	}
	c.display(e.callID, transcript.NewTurn(transcript.RoleNotice, "Call ended.", c.now()))

	c.mu.Lock()
	c.setPhaseLocked(PhaseIdle, "")
	c.callID = ""
	c.mode = nil
	c.startedAt = time.Time{}
	c.muted = false
	c.pendingStop = false
	c.mu.Unlock()

	c.closeCall(e, outcome)
}

func (c *Controller) closeCall(e endingCall, outcome string) {
	c.mu.Lock()
	stats := c.tracker.snapshot()
	c.mu.Unlock()

	if c.store != nil && e.callID != "" {
		if err := c.store.EndCall(e.callID, c.now().UTC(), outcome, stats); err != nil {
			slog.Warn("session: end call record failed", "call_id", e.callID, "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveCall(e.modeID, outcome)
	}
}

func (c *Controller) publishSummary(callID string, res summary.Result, source string) {
	if c.store != nil && callID != "" {
		if err := c.store.SaveSummary(callID, res); err != nil {
			slog.Warn("session: save summary failed", "call_id", callID, "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveSummary(source)
	}
	if c.hub != nil {
		c.hub.BroadcastSummary(callID, res)
	}
}

// display records a turn shown in the transcript: buffered for summary
// recovery, persisted, archived, and pushed to the UI.
func (c *Controller) display(callID string, turn transcript.Turn) {
	if turn.Content == "" {
		return
	}
	c.showLocked(callID, turn)
	c.persist(callID, turn)
}

// showLocked buffers the turn and pushes it to the UI. Neither step blocks,
// so it is safe to call with c.mu held.
func (c *Controller) showLocked(callID string, turn transcript.Turn) {
	if callID != "" {
		c.buffer.Add(turn)
	}
	if c.hub != nil {
		c.hub.BroadcastTurn(callID, turn)
	}
}

func (c *Controller) persist(callID string, turn transcript.Turn) {
	if callID == "" {
		return
	}
	if c.store != nil {
		if err := c.store.AppendTurn(callID, turn); err != nil {
			slog.Warn("session: append turn failed", "call_id", callID, "error", err)
		}
	}
	if c.archive != nil {
		if err := c.archive.Append(turn); err != nil {
			slog.Warn("session: archive turn failed", "call_id", callID, "error", err)
		}
	}
}

func (c *Controller) reportError(callID, action string, err error) {
	slog.Warn("session: call client error", "action", action, "call_id", callID, "error", err)
	msg := fmt.Sprintf("Failed to %s: %v", action, err)
	if c.hub != nil {
		c.hub.BroadcastError(msg)
	}
	c.display(callID, transcript.NewTurn(transcript.RoleNotice, msg, c.now()))
}

func (c *Controller) observeTurn(role string) {
	if c.metrics != nil {
		c.metrics.ObserveTurn(role)
	}
}

// setPhaseLocked records and broadcasts a phase change. Callers hold c.mu.
func (c *Controller) setPhaseLocked(phase Phase, modeID string) {
	c.phase = phase
	c.broadcastPhase(phase, modeID)
}

func (c *Controller) broadcastPhase(phase Phase, modeID string) {
	if c.hub != nil {
		c.hub.BroadcastPhase(phase, modeID)
	}
}
