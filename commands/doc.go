// Package commands is the dispatch framework: feature bundles ("cogs")
// declare chat commands and event handlers at construction time, and the
// Registry routes parsed chat commands to exactly one handler and fans
// events out to every registered handler with per-handler failure isolation.
//
// A command name is unique across the whole registry. Adding a cog whose
// command collides with an existing one drops only that command (first
// registrant wins); the cog is still added with its remaining commands and
// handlers, and the conflict is reported once. Handler errors and panics are
// contained at the dispatch boundary and reported through the error hooks;
// they never unwind into socket-processing code.
package commands
