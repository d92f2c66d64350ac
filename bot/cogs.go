package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srpbotz/srpbotz/commands"
)

// GeneralCog bundles the always-on chatter-facing commands.
func GeneralCog() *commands.Cog {
	return commands.NewCog("General").
		Command("ping", func(ctx *commands.Context) error {
			return ctx.ReplyTo("Pong!")
		}).
		Command("color", func(ctx *commands.Context) error {
			author := ctx.Author()
			if author == nil {
				return nil
			}
			reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			color, err := ctx.Client.API().FetchUserColor(reqCtx, author.ID)
			if err != nil {
				return fmt.Errorf("fetch color for %s: %w", author.Name(), err)
			}
			return ctx.ReplyTo(fmt.Sprintf("Your chat color is %s", color))
		})
}

// ModerationCog bundles the moderator-gated commands. Callers who are not a
// moderator of the joined channel (or the broadcaster) are refused in chat.
func ModerationCog() *commands.Cog {
	return commands.NewCog("Moderation").
		Command("timeout", timeoutCommand).
		Command("predict", predictCommand)
}

func callerIsMod(ctx *commands.Context) bool {
	st := ctx.Client.Streamer()
	author := ctx.Author()
	if st == nil || author == nil {
		return false
	}
	return author.ID == st.ID || st.IsMod(author.ID)
}

// timeoutCommand: !timeout <login> <seconds> [reason...]
func timeoutCommand(ctx *commands.Context) error {
	if !callerIsMod(ctx) {
		return ctx.ReplyTo("You need to be a moderator to do that")
	}
	if len(ctx.Args) < 2 {
		return ctx.ReplyTo("Usage: !timeout <user> <seconds> [reason]")
	}
	login := strings.TrimPrefix(ctx.Args[0], "@")
	seconds, err := strconv.Atoi(ctx.Args[1])
	if err != nil || seconds <= 0 {
		return ctx.ReplyTo("Usage: !timeout <user> <seconds> [reason]")
	}
	reason := strings.Join(ctx.Args[2:], " ")

	st := ctx.Client.Streamer()
	reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	users, err := ctx.Client.API().FetchUsersByLogin(reqCtx, login)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", login, err)
	}
	if len(users) == 0 {
		return ctx.ReplyTo(fmt.Sprintf("No such user: %s", login))
	}
	if err := ctx.Client.API().BanUser(reqCtx, st.ID, ctx.Author().ID, users[0].ID, reason, seconds); err != nil {
		return fmt.Errorf("timeout %s: %w", login, err)
	}
	return ctx.ReplyTo(fmt.Sprintf("Timed out %s for %ds", users[0].DisplayName, seconds))
}

// predictCommand: !predict <seconds> <title> | <outcome> | <outcome> [| ...]
func predictCommand(ctx *commands.Context) error {
	if !callerIsMod(ctx) {
		return ctx.ReplyTo("You need to be a moderator to do that")
	}
	if len(ctx.Args) < 2 {
		return ctx.ReplyTo("Usage: !predict <seconds> <title> | <outcome> | <outcome>")
	}
	window, err := strconv.Atoi(ctx.Args[0])
	if err != nil || window <= 0 {
		return ctx.ReplyTo("Usage: !predict <seconds> <title> | <outcome> | <outcome>")
	}
	parts := strings.Split(strings.Join(ctx.Args[1:], " "), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || parts[0] == "" {
		return ctx.ReplyTo("Usage: !predict <seconds> <title> | <outcome> | <outcome>")
	}

	st := ctx.Client.Streamer()
	reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctx.Client.API().CreatePrediction(reqCtx, st.ID, parts[0], parts[1:], window); err != nil {
		return fmt.Errorf("create prediction: %w", err)
	}
	return ctx.ReplyTo(fmt.Sprintf("Prediction started: %s", parts[0]))
}
