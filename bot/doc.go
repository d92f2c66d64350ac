// Package bot is the coordinating component: it owns the REST facade, the
// chat and notification sockets, the command/event registry, and the single
// active Streamer. All Streamer and registry mutation funnels through the
// Client so the two socket goroutines never race on shared state.
package bot
