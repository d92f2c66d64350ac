package models

// Chatter is a platform account observed in the current channel's chat or in
// an EventSub payload. Instances are created on first observation and live in
// the active Streamer's chatter map; they are never duplicated within one map.
type Chatter struct {
	ID          int64
	Login       string
	DisplayName string

	// Color is the cached chat display color, empty until looked up.
	Color string
}

// Name returns the best display name available for the chatter.
func (c *Chatter) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Login
}
