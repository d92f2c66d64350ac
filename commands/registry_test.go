package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srpbotz/srpbotz/models"
	"github.com/srpbotz/srpbotz/twitchapi"
)

// fakeClient records sent messages for assertions.
type fakeClient struct {
	sent    []string
	replies []string
}

func (f *fakeClient) SendMessage(text string) (*models.ChatMessage, error) {
	f.sent = append(f.sent, text)
	return &models.ChatMessage{ID: "echo", Text: text}, nil
}

func (f *fakeClient) Reply(messageID, text string) (*models.ChatMessage, error) {
	f.replies = append(f.replies, messageID+":"+text)
	return &models.ChatMessage{ID: "echo", Text: text}, nil
}

func (f *fakeClient) Dispatch(string, ...any) {}

func (f *fakeClient) API() *twitchapi.Client { return nil }

func (f *fakeClient) Streamer() *models.Streamer { return nil }

func TestAddCogCommandConflict(t *testing.T) {
	r := NewRegistry()

	first := NewCog("First").Command("greet", func(*Context) error { return nil })
	if dropped, err := r.AddCog(first); err != nil || len(dropped) != 0 {
		t.Fatalf("AddCog(First) = %v, %v", dropped, err)
	}

	second := NewCog("Second").
		Command("greet", func(*Context) error { return nil }).
		Command("other", func(*Context) error { return nil })
	dropped, err := r.AddCog(second)
	if err != nil {
		t.Fatalf("AddCog(Second): %v", err)
	}
	if len(dropped) != 1 || dropped[0] != "greet" {
		t.Fatalf("dropped = %v, want [greet]", dropped)
	}

	// First registrant keeps the name; the cog still installed with the rest.
	if cmd := r.Command("greet"); cmd == nil || cmd.Cog != "First" {
		t.Errorf("greet owner = %+v, want First", cmd)
	}
	if cmd := r.Command("other"); cmd == nil || cmd.Cog != "Second" {
		t.Errorf("other = %+v", cmd)
	}
	if !r.HasCog("Second") {
		t.Error("Second not installed")
	}
}

func TestAddCogDuplicateName(t *testing.T) {
	r := NewRegistry()
	if _, err := r.AddCog(NewCog("A")); err != nil {
		t.Fatalf("AddCog: %v", err)
	}
	_, err := r.AddCog(NewCog("A"))
	var dup *DuplicateCogError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateCogError", err)
	}
}

func TestRemoveCogExactContributions(t *testing.T) {
	r := NewRegistry()
	calls := make(map[string]int)

	keeper := NewCog("Keeper").
		Command("greet", func(*Context) error { return nil }).
		Handle("on_message", func(...any) error { calls["keeper"]++; return nil })
	loser := NewCog("Loser").
		Command("greet", func(*Context) error { return nil }). // dropped at install
		Command("bye", func(*Context) error { return nil }).
		Handle("on_message", func(...any) error { calls["loser"]++; return nil })

	if _, err := r.AddCog(keeper); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddCog(loser); err != nil {
		t.Fatal(err)
	}

	if err := r.RemoveCog("Loser"); err != nil {
		t.Fatalf("RemoveCog: %v", err)
	}

	// greet must survive: Loser never owned it, so removal can't resurrect
	// or delete it.
	if cmd := r.Command("greet"); cmd == nil || cmd.Cog != "Keeper" {
		t.Errorf("greet = %+v, want Keeper's", cmd)
	}
	if r.Command("bye") != nil {
		t.Error("bye survived RemoveCog")
	}

	r.Dispatch("on_message")
	if calls["keeper"] != 1 || calls["loser"] != 0 {
		t.Errorf("calls = %v", calls)
	}
}

func TestRemoveCogUnknown(t *testing.T) {
	r := NewRegistry()
	err := r.RemoveCog("Nope")
	var unknown *UnknownCogError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownCogError", err)
	}
}

func TestRemoveCogRunsUnloadHook(t *testing.T) {
	r := NewRegistry()
	unloaded := false
	cog := NewCog("A").OnUnload(func() { unloaded = true })
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveCog("A"); err != nil {
		t.Fatal(err)
	}
	if !unloaded {
		t.Error("unload hook not invoked")
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	var order []string
	var reported []error
	r.OnEventError = func(_ string, err error) { reported = append(reported, err) }

	cog := NewCog("A").
		Handle("on_thing", func(...any) error { order = append(order, "one"); return nil }).
		Handle("on_thing", func(...any) error { return errors.New("boom") }).
		Handle("on_thing", func(...any) error { order = append(order, "three"); return nil })
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}

	r.Dispatch("on_thing")

	if len(order) != 2 || order[0] != "one" || order[1] != "three" {
		t.Errorf("order = %v, want the two healthy handlers to run", order)
	}
	if len(reported) != 1 || reported[0].Error() != "boom" {
		t.Errorf("reported = %v, want exactly one failure", reported)
	}
}

func TestDispatchContainsPanics(t *testing.T) {
	r := NewRegistry()
	var reported []error
	r.OnEventError = func(_ string, err error) { reported = append(reported, err) }
	ran := false

	cog := NewCog("A").
		Handle("on_thing", func(...any) error { panic("kaboom") }).
		Handle("on_thing", func(...any) error { ran = true; return nil })
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}

	r.Dispatch("on_thing")

	if !ran {
		t.Error("handler after the panicking one did not run")
	}
	if len(reported) != 1 {
		t.Fatalf("reported = %v", reported)
	}
}

func TestDispatchPassesArgs(t *testing.T) {
	r := NewRegistry()
	var got []any
	cog := NewCog("A").Handle("on_message", func(args ...any) error {
		got = args
		return nil
	})
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}
	msg := &models.ChatMessage{ID: "m1"}
	r.Dispatch("on_message", msg)
	if len(got) != 1 || got[0] != msg {
		t.Errorf("args = %v", got)
	}
}

func TestRouteCommand(t *testing.T) {
	r := NewRegistry()
	var gotArgs []string
	cog := NewCog("A").Command("echo", func(ctx *Context) error {
		gotArgs = ctx.Args
		return ctx.Say(fmt.Sprintf("%d args", len(ctx.Args)))
	})
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{}
	msg := &models.ChatMessage{ID: "m1", Text: "!echo a b"}
	r.RouteCommand("echo", client, msg, []string{"a", "b"})

	if len(gotArgs) != 2 {
		t.Errorf("args = %v", gotArgs)
	}
	if len(client.sent) != 1 || client.sent[0] != "2 args" {
		t.Errorf("sent = %v", client.sent)
	}
}

func TestRouteCommandUnknownIsSilent(t *testing.T) {
	r := NewRegistry()
	r.OnCommandError = func(*Context, error) { t.Error("error hook fired for unknown command") }
	r.RouteCommand("nope", &fakeClient{}, &models.ChatMessage{}, nil)
}

func TestRouteCommandErrorHook(t *testing.T) {
	r := NewRegistry()
	var gotErr error
	r.OnCommandError = func(_ *Context, err error) { gotErr = err }
	cog := NewCog("A").Command("bad", func(*Context) error { return errors.New("nope") })
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}

	r.RouteCommand("bad", &fakeClient{}, &models.ChatMessage{}, nil)
	if gotErr == nil || gotErr.Error() != "nope" {
		t.Errorf("gotErr = %v", gotErr)
	}
}

func TestRouteCommandContainsPanic(t *testing.T) {
	r := NewRegistry()
	var gotErr error
	r.OnCommandError = func(_ *Context, err error) { gotErr = err }
	cog := NewCog("A").Command("bad", func(*Context) error { panic("kaboom") })
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}

	r.RouteCommand("bad", &fakeClient{}, &models.ChatMessage{}, nil)
	if gotErr == nil {
		t.Error("panic not contained and reported")
	}
}

func TestContextReplyToFallsBackToSay(t *testing.T) {
	client := &fakeClient{}
	ctx := &Context{Client: client, Message: &models.ChatMessage{ID: ""}}
	if err := ctx.ReplyTo("hi"); err != nil {
		t.Fatal(err)
	}
	if len(client.sent) != 1 || len(client.replies) != 0 {
		t.Errorf("sent=%v replies=%v, want plain send without a parent id", client.sent, client.replies)
	}

	ctx.Message.ID = "m1"
	if err := ctx.ReplyTo("again"); err != nil {
		t.Fatal(err)
	}
	if len(client.replies) != 1 || client.replies[0] != "m1:again" {
		t.Errorf("replies = %v", client.replies)
	}
}
