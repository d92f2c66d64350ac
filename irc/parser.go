package irc

import (
	"fmt"
	"strings"
)

// Chat commands the socket acts on. Other verbs still parse but are ignored.
const (
	CmdJoin     = "JOIN"
	CmdPart     = "PART"
	CmdPrivmsg  = "PRIVMSG"
	CmdClearmsg = "CLEARMSG"
	CmdPing     = "PING"
)

// tagChar is the invisible control character some clients append to
// commands; it is stripped from parsed argument lists.
const tagChar = "\U000E0000"

// ParseError reports a malformed chat line. The frame is dropped and the
// connection continues.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse chat line %q: %s", e.Input, e.Reason)
}

// Line is one parsed chat-protocol line:
//
//	[@tags ]:source COMMAND params... [:trailing]
type Line struct {
	Tags     map[string]string
	Source   string
	Command  string
	Params   []string
	Trailing string

	// BotCommand and BotArgs are set when a PRIVMSG trailing payload
	// encodes a "!name arg..." bot command.
	BotCommand string
	BotArgs    []string
}

// Tag returns the value of a tag, or "" if absent.
func (l *Line) Tag(key string) string { return l.Tags[key] }

// Parse turns one raw chat line into a Line. It is pure and side-effect
// free; malformed input yields a *ParseError, never a partial record.
func Parse(raw string) (*Line, error) {
	s := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(s) == "" {
		return nil, &ParseError{Input: raw, Reason: "empty line"}
	}

	line := &Line{Tags: map[string]string{}}

	if strings.HasPrefix(s, "@") {
		idx := strings.Index(s, " ")
		if idx < 0 {
			return nil, &ParseError{Input: raw, Reason: "tags without command"}
		}
		parseTags(s[1:idx], line.Tags)
		s = strings.TrimLeft(s[idx+1:], " ")
	}

	if strings.HasPrefix(s, ":") {
		idx := strings.Index(s, " ")
		if idx < 0 {
			return nil, &ParseError{Input: raw, Reason: "source without command"}
		}
		line.Source = s[1:idx]
		s = strings.TrimLeft(s[idx+1:], " ")
	}

	if s == "" {
		return nil, &ParseError{Input: raw, Reason: "missing command"}
	}

	// Everything after " :" is a single trailing parameter.
	if idx := strings.Index(s, " :"); idx >= 0 {
		line.Trailing = s[idx+2:]
		s = s[:idx]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, &ParseError{Input: raw, Reason: "missing command"}
	}
	line.Command = fields[0]
	line.Params = fields[1:]

	if line.Command == CmdPrivmsg {
		parseBotCommand(line)
	}
	return line, nil
}

func parseTags(s string, tags map[string]string) {
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		tags[k] = v
	}
}

// parseBotCommand recognizes a "!name arg1 arg2..." payload in a PRIVMSG
// trailing parameter. Arguments split on runs of whitespace; the invisible
// tag character is dropped from the list.
func parseBotCommand(line *Line) {
	text := strings.TrimSpace(line.Trailing)
	if !strings.HasPrefix(text, "!") {
		return
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return
	}
	line.BotCommand = fields[0]
	args := make([]string, 0, len(fields)-1)
	for _, a := range fields[1:] {
		if a == tagChar {
			continue
		}
		args = append(args, a)
	}
	line.BotArgs = args
}
