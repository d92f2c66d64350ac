package irc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/srpbotz/srpbotz/telemetry"
)

// DefaultURL is the chat websocket endpoint.
const DefaultURL = "wss://irc-ws.chat.twitch.tv:443"

// State is the chat socket lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is returned by send operations while the socket is down.
var ErrNotConnected = errors.New("irc: not connected")

// Socket owns the chat websocket connection. It validates credentials before
// each attempt, performs the capability and auth handshake, answers PING
// keepalives, and feeds every other parsed line to OnLine. Unless closed
// deliberately, a dropped connection is retried: immediately after a live
// session, with capped exponential backoff on consecutive failed attempts.
type Socket struct {
	URL   string
	Token string

	// Validate resolves the bearer token to the bot's login before every
	// connection attempt. Errors exposing Fatal() bool (auth failures)
	// abort Run instead of being retried.
	Validate func(ctx context.Context) (login string, err error)

	// OnLine receives every parsed line except PING, in arrival order, on
	// the socket's read goroutine.
	OnLine func(*Line)

	// OnConnect fires after the handshake is sent. OnDisconnect fires on
	// unexpected drops only, before any reconnection attempt.
	OnConnect    func()
	OnDisconnect func()

	mu      sync.Mutex // guards conn
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   atomic.Int32
	closing atomic.Bool
	login   atomic.Value // string
}

// State returns the current lifecycle state.
func (s *Socket) State() State { return State(s.state.Load()) }

// Login returns the login resolved by the last successful Validate.
func (s *Socket) Login() string {
	if v, ok := s.login.Load().(string); ok {
		return v
	}
	return ""
}

func (s *Socket) setState(st State) { s.state.Store(int32(st)) }

// Run connects and processes lines until ctx is canceled, Close is called,
// or validation fails fatally. It owns the reconnect policy.
func (s *Socket) Run(ctx context.Context) error {
	if s.URL == "" {
		s.URL = DefaultURL
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute

	for {
		established, err := s.connectOnce(ctx)
		s.setState(StateDisconnected)
		if s.closing.Load() || ctx.Err() != nil {
			return nil
		}
		var fatal interface{ Fatal() bool }
		if errors.As(err, &fatal) && fatal.Fatal() {
			return fmt.Errorf("chat socket: %w", err)
		}
		if s.OnDisconnect != nil {
			s.OnDisconnect()
		}
		telemetry.IncChatReconnect()
		if established {
			b.Reset()
			slog.Warn("chat socket dropped; reconnecting", slog.Any("err", err))
			continue
		}
		wait := b.NextBackOff()
		slog.Warn("chat connect failed; backing off", slog.Any("err", err), slog.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// connectOnce performs one validate→dial→handshake→read cycle. The returned
// bool reports whether a connection was established at all.
func (s *Socket) connectOnce(ctx context.Context) (bool, error) {
	s.setState(StateConnecting)
	login, err := s.Validate(ctx)
	if err != nil {
		return false, fmt.Errorf("validate token: %w", err)
	}
	s.login.Store(login)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.URL, err)
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

	s.setState(StateAuthenticating)
	for _, raw := range []string{
		"CAP REQ :twitch.tv/commands",
		"CAP REQ :twitch.tv/tags",
		"PASS oauth:" + s.Token,
		"NICK " + login,
		"JOIN #" + login,
	} {
		if err := s.SendRaw(raw); err != nil {
			return true, fmt.Errorf("handshake: %w", err)
		}
	}
	if s.OnConnect != nil {
		s.OnConnect()
	}

	return true, s.readLoop(conn, login)
}

func (s *Socket) readLoop(conn *websocket.Conn, login string) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for raw := range strings.Lines(string(data)) {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			line, err := Parse(raw)
			if err != nil {
				// Drop the frame and keep the connection.
				slog.Debug("dropping malformed chat line", slog.Any("err", err))
				continue
			}
			if line.Command == CmdPing {
				if err := s.SendRaw("PONG :tmi.twitch.tv"); err != nil {
					return err
				}
				continue
			}
			if line.Command == CmdJoin && strings.HasPrefix(line.Source, login+"!") {
				s.setState(StateJoined)
			}
			telemetry.IncChatLine()
			if s.OnLine != nil {
				s.OnLine(line)
			}
		}
	}
}

// SendRaw transmits one protocol line.
func (s *Socket) SendRaw(raw string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(raw+"\r\n"))
}

// SendMessage transmits a chat message to the joined channel.
func (s *Socket) SendMessage(text string) error {
	return s.SendRaw(fmt.Sprintf("PRIVMSG #%s :%s", s.Login(), text))
}

// Reply transmits a chat message threaded under the given parent message id.
func (s *Socket) Reply(parentMsgID, text string) error {
	return s.SendRaw(fmt.Sprintf("@reply-parent-msg-id=%s PRIVMSG #%s :%s", parentMsgID, s.Login(), text))
}

// Close tears the connection down deliberately, suppressing reconnection.
// The owner is expected to have sent any farewell message first.
func (s *Socket) Close() {
	s.closing.Store(true)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
}
