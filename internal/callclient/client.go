// Package callclient talks to the hosted voice backend over a websocket.
// The backend owns audio, speech recognition and the assistant; this client
// only starts and stops calls, relays typed messages and mute state, and
// reports call events back to the session controller.
package callclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sjawhar/voice-call-widget/internal/session"
	"github.com/sjawhar/voice-call-widget/internal/transcript"
)

const writeTimeout = 5 * time.Second

var (
	ErrNotConnected     = errors.New("call client not connected")
	ErrAlreadyConnected = errors.New("call client already connected")
)

// Handler receives backend events. The session controller implements it.
type Handler interface {
	LifecycleEvent(ev session.LifecycleEvent)
	RemoteTurn(role, content string)
	VolumeLevel(level float64)
	TransportError(err error)
}

type Client struct {
	url       string
	publicKey string
	dialer    *websocket.Dialer

	mu      sync.Mutex
	handler Handler
	conn    *websocket.Conn

	writeMu sync.Mutex
}

func New(url, publicKey string) *Client {
	return &Client{
		url:       url,
		publicKey: publicKey,
		dialer:    websocket.DefaultDialer,
	}
}

func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Start dials the backend, asks it to open a call for the request's
// assistant and waits for the call to be accepted or rejected.
func (c *Client) Start(ctx context.Context, req session.StartRequest) error {
	c.mu.Lock()
	busy := c.conn != nil
	c.mu.Unlock()
	if busy {
		return ErrAlreadyConnected
	}

	header := http.Header{}
	if c.publicKey != "" {
		header.Set("Authorization", "Bearer "+c.publicKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial voice backend: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial voice backend: %w", err)
	}

	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopWatch()

	if err := c.write(conn, newStartMessage(req)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send start: %w", err)
	}

	if err := c.awaitStarted(conn); err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for call start: %w", ctxErr)
		}
		return err
	}

	if !stopWatch() {
		_ = conn.Close()
		return fmt.Errorf("wait for call start: %w", ctx.Err())
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) awaitStarted(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("wait for call start: %w", err)
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("callclient: ignoring undecodable message", "error", err)
			continue
		}

		switch msg.Type {
		case "started":
			return nil
		case "error":
			return fmt.Errorf("voice backend rejected call: %s", msg.errorText())
		default:
			c.dispatch(msg)
		}
	}
}

// Stop ends the call. It is best effort: the socket is closed even when the
// stop message cannot be delivered.
func (c *Client) Stop() error {
	conn := c.detach(nil)
	if conn == nil {
		return nil
	}

	writeErr := c.write(conn, outboundMessage{Type: "stop"})
	closeErr := conn.Close()
	if writeErr != nil {
		return fmt.Errorf("send stop: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close call socket: %w", closeErr)
	}
	return nil
}

func (c *Client) SetMuted(muted bool) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return c.write(conn, outboundMessage{Type: "set-muted", Muted: &muted})
}

// Send adds a typed user message to the conversation.
func (c *Client) Send(turn transcript.Turn) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	return c.write(conn, outboundMessage{
		Type:    "add-message",
		Message: &wireTurn{Role: turn.Role, Content: turn.Content},
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.detach(conn) != nil {
				_ = conn.Close()
				c.reportError(fmt.Errorf("call connection lost: %w", err))
				c.emit(session.EventCallEnd)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("callclient: ignoring undecodable message", "error", err)
			continue
		}

		if msg.Type == "call-end" {
			if c.detach(conn) != nil {
				_ = conn.Close()
			}
			c.emit(session.EventCallEnd)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg inboundMessage) {
	h := c.currentHandler()
	if h == nil {
		return
	}

	switch msg.Type {
	case "call-start":
		h.LifecycleEvent(session.EventCallStart)
	case "call-end":
		h.LifecycleEvent(session.EventCallEnd)
	case "speech-start":
		h.LifecycleEvent(session.EventSpeechStart)
	case "speech-end":
		h.LifecycleEvent(session.EventSpeechEnd)
	case "volume-level":
		h.VolumeLevel(msg.Volume)
	case "message":
		if msg.Message != nil {
			h.RemoteTurn(msg.Message.Role, msg.Message.Content)
		}
	case "error":
		h.TransportError(errors.New(msg.errorText()))
	default:
		slog.Debug("callclient: ignoring event", "type", msg.Type)
	}
}

func (c *Client) emit(ev session.LifecycleEvent) {
	if h := c.currentHandler(); h != nil {
		h.LifecycleEvent(ev)
	}
}

func (c *Client) reportError(err error) {
	if h := c.currentHandler(); h != nil {
		h.TransportError(err)
	}
}

func (c *Client) currentHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Client) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// detach clears the active connection and returns it. With a nil argument
// any connection is detached; otherwise only the given one.
func (c *Client) detach(conn *websocket.Conn) *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || (conn != nil && c.conn != conn) {
		return nil
	}
	detached := c.conn
	c.conn = nil
	return detached
}

func (c *Client) write(conn *websocket.Conn, msg outboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s message: %w", msg.Type, err)
	}
	return nil
}

func newStartMessage(req session.StartRequest) outboundMessage {
	msg := outboundMessage{Type: "start", AssistantID: req.AssistantID}
	if strings.TrimSpace(req.FirstMessage) != "" || strings.TrimSpace(req.SystemPrompt) != "" {
		msg.Overrides = &assistantOverrides{
			FirstMessage: req.FirstMessage,
			SystemPrompt: req.SystemPrompt,
		}
	}
	return msg
}
