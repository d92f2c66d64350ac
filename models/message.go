package models

import "time"

// ChatMessage is one chat line, inbound (PRIVMSG) or an outbound local echo.
type ChatMessage struct {
	ID        string
	Author    *Chatter
	Text      string
	Timestamp time.Time
}
