package bot

import (
	"context"
	"log/slog"
	"time"
)

// Shell is the outward collaborator surface: whatever hosts the bot (a GUI,
// a headless daemon) receives log lines, user-facing notifications, and
// lifecycle hooks through it.
type Shell interface {
	Log(text string, level slog.Level)
	Notify(text string, timeout time.Duration)
	OnReady()
	OnClose()
}

// SlogShell is the headless default: notifications and log lines go to the
// process logger, lifecycle hooks are no-ops.
type SlogShell struct{}

func (SlogShell) Log(text string, level slog.Level) {
	slog.Default().Log(context.Background(), level, text)
}

func (SlogShell) Notify(text string, _ time.Duration) {
	slog.Info(text, slog.String("component", "notify"))
}

func (SlogShell) OnReady() {}
func (SlogShell) OnClose() {}
