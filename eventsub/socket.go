package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/srpbotz/srpbotz/telemetry"
)

// DefaultURL is the EventSub websocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

// State is the notification socket lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnected          // transport up, no session yet
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// errReconnectRequested signals a server-initiated session_reconnect; the
// run loop redials the provided URL without treating it as a drop.
var errReconnectRequested = errors.New("eventsub: session reconnect requested")

// Socket owns the event-notification websocket. On session_welcome it hands
// the session id to OnWelcome (which requests the subscription set through
// the REST facade); notifications are decoded and passed to OnNotification
// in arrival order on the read goroutine. Disconnection always triggers
// reconnection unless Close was called.
type Socket struct {
	URL string

	// OnWelcome must create the event subscriptions for the new session.
	// A fatal error (auth) aborts Run.
	OnWelcome func(sessionID string) error

	// OnNotification receives each notification's subscription type and
	// raw event payload.
	OnNotification func(subType string, event json.RawMessage)

	OnConnect    func()
	OnDisconnect func()

	mu      sync.Mutex
	conn    *websocket.Conn
	state   atomic.Int32
	closing atomic.Bool
	nextURL string // session_reconnect target
}

// State returns the current lifecycle state.
func (s *Socket) State() State { return State(s.state.Load()) }

func (s *Socket) setState(st State) { s.state.Store(int32(st)) }

// Run connects and processes frames until ctx is canceled, Close is called,
// or the session handshake fails fatally.
func (s *Socket) Run(ctx context.Context) error {
	if s.URL == "" {
		s.URL = DefaultURL
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute

	url := s.URL
	for {
		established, err := s.connectOnce(ctx, url)
		s.setState(StateDisconnected)
		if s.closing.Load() || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errReconnectRequested) {
			s.mu.Lock()
			url = s.nextURL
			s.mu.Unlock()
			b.Reset()
			continue
		}
		url = s.URL
		var fatal interface{ Fatal() bool }
		if errors.As(err, &fatal) && fatal.Fatal() {
			return fmt.Errorf("eventsub socket: %w", err)
		}
		if s.OnDisconnect != nil {
			s.OnDisconnect()
		}
		telemetry.IncEventSubReconnect()
		if established {
			b.Reset()
			slog.Warn("eventsub socket dropped; reconnecting", slog.Any("err", err))
			continue
		}
		wait := b.NextBackOff()
		slog.Warn("eventsub connect failed; backing off", slog.Any("err", err), slog.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Socket) connectOnce(ctx context.Context, url string) (bool, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.setState(StateConnected)
	if s.OnConnect != nil {
		s.OnConnect()
	}
	return true, s.readLoop(conn)
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			slog.Debug("dropping malformed eventsub frame", slog.Any("err", err))
			continue
		}
		switch frame.Metadata.MessageType {
		case MsgSessionWelcome:
			if s.OnWelcome != nil {
				if err := s.OnWelcome(frame.Payload.Session.ID); err != nil {
					return fmt.Errorf("session %s subscribe: %w", frame.Payload.Session.ID, err)
				}
			}
			s.setState(StateSubscribed)
		case MsgSessionKeepalive:
			// nothing to do
		case MsgNotification:
			telemetry.IncNotificationParsed()
			if s.OnNotification != nil {
				s.OnNotification(frame.Payload.Subscription.Type, frame.Payload.Event)
			}
		case MsgSessionReconnect:
			s.mu.Lock()
			s.nextURL = frame.Payload.Session.ReconnectURL
			s.mu.Unlock()
			return errReconnectRequested
		case MsgRevocation:
			slog.Warn("eventsub subscription revoked", slog.String("type", frame.Metadata.SubscriptionType))
		default:
			slog.Debug("ignoring eventsub frame", slog.String("type", frame.Metadata.MessageType))
		}
	}
}

// Close tears the connection down deliberately, suppressing reconnection.
func (s *Socket) Close() {
	s.closing.Store(true)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = conn.Close()
	}
}
