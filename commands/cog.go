package commands

import "log/slog"

// HandlerFunc handles one chat command invocation.
type HandlerFunc func(*Context) error

// EventFunc handles one dispatched event. The argument list matches what
// the dispatch site passed; lifecycle events carry none.
type EventFunc func(args ...any) error

type commandDef struct {
	name string
	fn   HandlerFunc
}

type handlerDef struct {
	event string
	fn    EventFunc
}

// Cog is a named, self-contained bundle of chat commands and event handlers,
// added to or removed from a Registry as a unit. Commands and handlers are
// collected explicitly at construction; there is no runtime type inspection.
type Cog struct {
	name     string
	commands []commandDef
	handlers []handlerDef
	unload   func()
}

// NewCog starts a cog builder. The name must be unique per registry.
func NewCog(name string) *Cog {
	return &Cog{name: name}
}

// Name returns the cog's registry name.
func (c *Cog) Name() string { return c.name }

// Command declares a chat command owned by this cog. Declaring the same
// name twice within one cog keeps the first declaration.
func (c *Cog) Command(name string, fn HandlerFunc) *Cog {
	for _, d := range c.commands {
		if d.name == name {
			slog.Warn("duplicate command in cog ignored", slog.String("cog", c.name), slog.String("command", name))
			return c
		}
	}
	c.commands = append(c.commands, commandDef{name: name, fn: fn})
	return c
}

// Handle declares an event handler owned by this cog. A cog may register
// several handlers for the same event; they run in declaration order.
func (c *Cog) Handle(event string, fn EventFunc) *Cog {
	c.handlers = append(c.handlers, handlerDef{event: event, fn: fn})
	return c
}

// OnUnload sets the teardown hook invoked when the cog is removed.
func (c *Cog) OnUnload(fn func()) *Cog {
	c.unload = fn
	return c
}
