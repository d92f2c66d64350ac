// Package irc implements the chat side of the bot: a pure parser for the
// tagged IRC-style line protocol Twitch speaks over websockets, and the
// stateful chat socket that performs the capability/auth handshake, answers
// keepalives, and hands parsed lines to the owning client.
package irc
