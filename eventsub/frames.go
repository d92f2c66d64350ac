// Package eventsub implements the notification side of the bot: decoding of
// the JSON frame protocol the platform pushes over its EventSub websocket,
// and the stateful socket that performs the session handshake, requests the
// bot's subscription set, and emits typed notifications.
package eventsub

import (
	"encoding/json"
	"fmt"
)

// Frame message types.
const (
	MsgSessionWelcome   = "session_welcome"
	MsgSessionKeepalive = "session_keepalive"
	MsgNotification     = "notification"
	MsgSessionReconnect = "session_reconnect"
	MsgRevocation       = "revocation"
)

// ParseError reports a malformed notification frame. The frame is dropped
// and the connection continues.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse eventsub frame: " + e.Reason }

// Frame is one decoded websocket frame.
type Frame struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID                      string `json:"id"`
			Status                  string `json:"status"`
			KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
			ReconnectURL            string `json:"reconnect_url"`
		} `json:"session"`
		Subscription struct {
			Type    string `json:"type"`
			Version string `json:"version"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// DecodeFrame parses a raw frame. It is pure; malformed input yields a
// *ParseError, never a partial record.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if f.Metadata.MessageType == "" {
		return nil, &ParseError{Reason: "missing metadata.message_type"}
	}
	if f.Metadata.MessageType == MsgNotification && f.Payload.Subscription.Type == "" {
		return nil, &ParseError{Reason: "notification without payload.subscription.type"}
	}
	return &f, nil
}
