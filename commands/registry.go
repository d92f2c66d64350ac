package commands

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/srpbotz/srpbotz/models"
	"github.com/srpbotz/srpbotz/telemetry"
)

// DuplicateCogError reports an AddCog with a name that is already installed.
type DuplicateCogError struct {
	Name string
}

func (e *DuplicateCogError) Error() string { return fmt.Sprintf("cog %s already exists", e.Name) }

// UnknownCogError reports a RemoveCog for a name that is not installed.
type UnknownCogError struct {
	Name string
}

func (e *UnknownCogError) Error() string { return fmt.Sprintf("cog %s doesn't exist", e.Name) }

// Command is a chat command registered in the global command map.
type Command struct {
	Name string
	Cog  string
	fn   HandlerFunc
}

type eventHandler struct {
	cog   string
	event string
	fn    EventFunc
}

// cogRecord tracks exactly what a cog contributed, so removal takes out its
// commands and handler instances and nothing else.
type cogRecord struct {
	cog      *Cog
	commands []string
	handlers []*eventHandler
}

// Registry holds the installed cogs, the unique command-name map, and the
// ordered per-event handler lists. All methods are safe for use from the
// socket goroutines.
type Registry struct {
	mu       sync.Mutex
	cogs     map[string]*cogRecord
	commands map[string]*Command
	events   map[string][]*eventHandler

	// OnEventError and OnCommandError receive handler failures contained
	// at the dispatch boundary. Nil hooks fall back to logging.
	OnEventError   func(event string, err error)
	OnCommandError func(ctx *Context, err error)
}

func NewRegistry() *Registry {
	return &Registry{
		cogs:     make(map[string]*cogRecord),
		commands: make(map[string]*Command),
		events:   make(map[string][]*eventHandler),
	}
}

// AddCog installs a cog atomically. A command name already present in the
// registry keeps its first registrant: the incoming command is dropped,
// reported once in the returned slice and a warning log, and the cog is
// still installed with its remaining commands and all of its handlers.
func (r *Registry) AddCog(cog *Cog) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cogs[cog.name]; ok {
		return nil, &DuplicateCogError{Name: cog.name}
	}

	rec := &cogRecord{cog: cog}
	var dropped []string
	for _, def := range cog.commands {
		if existing, ok := r.commands[def.name]; ok {
			slog.Warn("cannot add command, name already registered",
				slog.String("command", def.name),
				slog.String("cog", cog.name),
				slog.String("owner", existing.Cog))
			dropped = append(dropped, def.name)
			continue
		}
		r.commands[def.name] = &Command{Name: def.name, Cog: cog.name, fn: def.fn}
		rec.commands = append(rec.commands, def.name)
	}
	for _, def := range cog.handlers {
		h := &eventHandler{cog: cog.name, event: def.event, fn: def.fn}
		r.events[def.event] = append(r.events[def.event], h)
		rec.handlers = append(rec.handlers, h)
	}
	r.cogs[cog.name] = rec
	return dropped, nil
}

// RemoveCog uninstalls a cog, removing exactly the commands and handler
// instances it contributed, then runs its unload hook. Commands dropped at
// registration time are not resurrected.
func (r *Registry) RemoveCog(name string) error {
	r.mu.Lock()
	rec, ok := r.cogs[name]
	if !ok {
		r.mu.Unlock()
		return &UnknownCogError{Name: name}
	}
	delete(r.cogs, name)
	for _, cmd := range rec.commands {
		delete(r.commands, cmd)
	}
	for _, h := range rec.handlers {
		lst := r.events[h.event]
		for i, other := range lst {
			if other == h {
				r.events[h.event] = append(lst[:i], lst[i+1:]...)
				break
			}
		}
	}
	unload := rec.cog.unload
	r.mu.Unlock()

	if unload != nil {
		unload()
	}
	return nil
}

// HasCog reports whether a cog with the given name is installed.
func (r *Registry) HasCog(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cogs[name]
	return ok
}

// Command returns the registered command for a name, or nil.
func (r *Registry) Command(name string) *Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commands[name]
}

// Dispatch invokes every handler registered for the event, synchronously and
// in registration order. A failing or panicking handler does not stop the
// rest; each failure is reported exactly once through OnEventError.
func (r *Registry) Dispatch(event string, args ...any) {
	r.mu.Lock()
	handlers := make([]*eventHandler, len(r.events[event]))
	copy(handlers, r.events[event])
	r.mu.Unlock()

	telemetry.IncEventDispatched()
	for _, h := range handlers {
		if err := invoke(func() error { return h.fn(args...) }); err != nil {
			telemetry.IncHandlerError()
			r.reportEventError(event, h.cog, err)
		}
	}
}

// RouteCommand looks up exactly one handler by name and invokes it. Unknown
// commands are silently ignored. Handler failures are reported through
// OnCommandError and never reach the caller.
func (r *Registry) RouteCommand(name string, client Client, msg *models.ChatMessage, args []string) {
	cmd := r.Command(name)
	if cmd == nil {
		return
	}
	telemetry.IncCommandRouted()
	ctx := &Context{Client: client, Message: msg, Command: cmd, Args: args}
	if err := invoke(func() error { return cmd.fn(ctx) }); err != nil {
		telemetry.IncCommandError()
		if r.OnCommandError != nil {
			r.OnCommandError(ctx, err)
			return
		}
		slog.Error("ignoring exception in command", slog.String("command", cmd.Name), slog.Any("err", err))
	}
}

func (r *Registry) reportEventError(event, cog string, err error) {
	if r.OnEventError != nil {
		r.OnEventError(event, err)
		return
	}
	slog.Error("ignoring exception in event handler",
		slog.String("event", event), slog.String("cog", cog), slog.Any("err", err))
}

// invoke runs fn, converting a panic into an error so a broken handler
// cannot take down the socket goroutine that dispatched it.
func invoke(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn()
}
