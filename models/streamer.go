package models

// RecentMessageCap bounds the per-streamer recent-message ring buffer.
const RecentMessageCap = 128

// Streamer is the live state of the single joined channel. It is created on
// a successful JOIN and destroyed on PART or disconnect. The chatter map is
// cleared (the Streamer itself kept) when the stream goes offline.
type Streamer struct {
	ID    int64
	Login string

	// SessionID is the EventSub websocket session this streamer's
	// subscriptions are bound to.
	SessionID string

	chatters map[int64]*Chatter
	mods     map[int64]struct{}
	recent   []*ChatMessage
}

func NewStreamer(id int64, login string) *Streamer {
	return &Streamer{
		ID:       id,
		Login:    login,
		chatters: make(map[int64]*Chatter),
		mods:     make(map[int64]struct{}),
	}
}

// GetChatter returns the chatter with the given id, or nil if unseen.
func (s *Streamer) GetChatter(id int64) *Chatter {
	return s.chatters[id]
}

// AddChatter records a chatter. Existing entries are not replaced, so a
// Chatter instance is never duplicated within one streamer's map.
func (s *Streamer) AddChatter(c *Chatter) {
	if c == nil {
		return
	}
	if _, ok := s.chatters[c.ID]; !ok {
		s.chatters[c.ID] = c
	}
}

// RemoveChatter drops a chatter from the map, e.g. after a ban.
func (s *Streamer) RemoveChatter(id int64) {
	delete(s.chatters, id)
}

// ClearChatters empties the chatter map. The moderator set is untouched;
// this is the stream-offline behavior.
func (s *Streamer) ClearChatters() {
	s.chatters = make(map[int64]*Chatter)
}

// ChatterCount reports the number of chatters currently cached.
func (s *Streamer) ChatterCount() int { return len(s.chatters) }

// AddMod records a moderator id.
func (s *Streamer) AddMod(id int64) { s.mods[id] = struct{}{} }

// RemoveMod drops a moderator id.
func (s *Streamer) RemoveMod(id int64) { delete(s.mods, id) }

// IsMod reports whether the given user id is a known moderator.
func (s *Streamer) IsMod(id int64) bool {
	_, ok := s.mods[id]
	return ok
}

// ModCount reports the size of the moderator set.
func (s *Streamer) ModCount() int { return len(s.mods) }

// AppendMessage appends to the recent-message buffer, evicting the oldest
// entry once the buffer is full.
func (s *Streamer) AppendMessage(m *ChatMessage) {
	if m == nil {
		return
	}
	if len(s.recent) >= RecentMessageCap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = m
		return
	}
	s.recent = append(s.recent, m)
}

// PopMessage removes and returns the message with the given id, or nil if it
// is not in the buffer. CLEARMSG handling uses this.
func (s *Streamer) PopMessage(id string) *ChatMessage {
	for i, m := range s.recent {
		if m.ID == id {
			s.recent = append(s.recent[:i], s.recent[i+1:]...)
			return m
		}
	}
	return nil
}

// RecentMessages returns a copy of the current buffer, oldest first.
func (s *Streamer) RecentMessages() []*ChatMessage {
	out := make([]*ChatMessage, len(s.recent))
	copy(out, s.recent)
	return out
}
