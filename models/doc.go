// Package models holds the domain state of a chat session: the active
// Streamer, the Chatters observed in its channel, the recent-message ring
// buffer, and the typed EventSub notification variants.
//
// Everything here is plain data. Mutation of the Streamer and its chatter
// map is serialized by the owning bot client; nothing in this package does
// I/O or locking on its own.
package models
