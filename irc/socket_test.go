package irc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// chatServer is a fake chat endpoint speaking the websocket line protocol.
type chatServer struct {
	*httptest.Server
	URL string

	serve func(conn *websocket.Conn)
}

func newChatServer(t *testing.T, serve func(conn *websocket.Conn)) *chatServer {
	t.Helper()
	s := &chatServer{serve: serve}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		s.serve(conn)
	}))
	s.URL = "ws" + strings.TrimPrefix(s.Server.URL, "http")
	t.Cleanup(s.Close)
	return s
}

func okValidate(login string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return login, nil }
}

func TestSocketHandshake(t *testing.T) {
	got := make(chan string, 16)
	srv := newChatServer(t, func(conn *websocket.Conn) {
		for range 5 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// Never block: the socket may reconnect and replay the
			// handshake after the test stopped reading.
			select {
			case got <- strings.TrimRight(string(data), "\r\n"):
			default:
			}
		}
	})

	s := &Socket{URL: srv.URL, Token: "sekret", Validate: okValidate("botty")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	want := []string{
		"CAP REQ :twitch.tv/commands",
		"CAP REQ :twitch.tv/tags",
		"PASS oauth:sekret",
		"NICK botty",
		"JOIN #botty",
	}
	for _, w := range want {
		select {
		case g := <-got:
			if g != w {
				t.Fatalf("handshake line = %q, want %q", g, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
	s.Close()
	cancel()
	<-done
}

func TestSocketAnswersPing(t *testing.T) {
	pong := make(chan string, 1)
	srv := newChatServer(t, func(conn *websocket.Conn) {
		// Drain the handshake first.
		for range 5 {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("PING :tmi.twitch.tv\r\n")); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		pong <- strings.TrimRight(string(data), "\r\n")
	})

	lines := make(chan *Line, 8)
	s := &Socket{
		URL:      srv.URL,
		Token:    "t",
		Validate: okValidate("botty"),
		OnLine:   func(l *Line) { lines <- l },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case got := <-pong:
		if got != "PONG :tmi.twitch.tv" {
			t.Fatalf("pong = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PONG")
	}
	// PING must not reach OnLine.
	select {
	case l := <-lines:
		t.Fatalf("unexpected line dispatched: %+v", l)
	case <-time.After(100 * time.Millisecond):
	}
	s.Close()
}

func TestSocketJoinConfirmation(t *testing.T) {
	srv := newChatServer(t, func(conn *websocket.Conn) {
		for range 5 {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(":botty!botty@botty.tmi.twitch.tv JOIN #botty\r\n"))
		// Keep the connection open.
		_, _, _ = conn.ReadMessage()
	})

	joined := make(chan *Line, 1)
	s := &Socket{
		URL:      srv.URL,
		Token:    "t",
		Validate: okValidate("botty"),
	}
	s.OnLine = func(l *Line) {
		if l.Command == CmdJoin {
			joined <- l
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for JOIN")
	}
	if st := s.State(); st != StateJoined {
		t.Errorf("state = %v, want joined", st)
	}
	s.Close()
}

func TestSocketBatchedLinesDispatchInOrder(t *testing.T) {
	srv := newChatServer(t, func(conn *websocket.Conn) {
		for range 5 {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		batch := ":a!a@a.tmi.twitch.tv PRIVMSG #botty :one\r\n" +
			":b!b@b.tmi.twitch.tv PRIVMSG #botty :two\r\n" +
			":c!c@c.tmi.twitch.tv PRIVMSG #botty :three\r\n"
		_ = conn.WriteMessage(websocket.TextMessage, []byte(batch))
		_, _, _ = conn.ReadMessage()
	})

	lines := make(chan *Line, 8)
	s := &Socket{URL: srv.URL, Token: "t", Validate: okValidate("botty"), OnLine: func(l *Line) { lines <- l }}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	want := []string{"one", "two", "three"}
	for _, w := range want {
		select {
		case l := <-lines:
			if l.Trailing != w {
				t.Fatalf("trailing = %q, want %q", l.Trailing, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
	s.Close()
}

func TestSocketDeliberateCloseSuppressesReconnect(t *testing.T) {
	connects := make(chan struct{}, 4)
	srv := newChatServer(t, func(conn *websocket.Conn) {
		connects <- struct{}{}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := &Socket{URL: srv.URL, Token: "t", Validate: okValidate("botty")}
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}
	s.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil after Close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	select {
	case <-connects:
		t.Fatal("socket reconnected after deliberate Close")
	case <-time.After(200 * time.Millisecond):
	}
}

type fatalErr struct{}

func (fatalErr) Error() string { return "token rejected" }
func (fatalErr) Fatal() bool   { return true }

func TestSocketFatalValidationAbortsRun(t *testing.T) {
	s := &Socket{
		URL:      "ws://127.0.0.1:1", // never dialed
		Token:    "t",
		Validate: func(context.Context) (string, error) { return "", fatalErr{} },
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		var f interface{ Fatal() bool }
		if !errors.As(err, &f) || !f.Fatal() {
			t.Fatalf("Run returned %v, want fatal auth error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept retrying a fatal validation error")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s := &Socket{}
	if err := s.SendRaw("PRIVMSG #c :hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendRaw = %v, want ErrNotConnected", err)
	}
}
