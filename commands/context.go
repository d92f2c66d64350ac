package commands

import (
	"github.com/srpbotz/srpbotz/models"
	"github.com/srpbotz/srpbotz/twitchapi"
)

// Client is the capability surface a cog needs from the bot: outbound chat,
// event dispatch, REST access, and the active streamer. It is injected at
// construction instead of inherited from any toolkit base.
type Client interface {
	SendMessage(text string) (*models.ChatMessage, error)
	Reply(messageID, text string) (*models.ChatMessage, error)
	Dispatch(event string, args ...any)
	API() *twitchapi.Client
	Streamer() *models.Streamer
}

// Context is one command invocation: the sender's message, the resolved
// command, and its whitespace-split arguments.
type Context struct {
	Client  Client
	Message *models.ChatMessage
	Command *Command
	Args    []string
}

// Author returns the chatter who issued the command.
func (c *Context) Author() *models.Chatter {
	if c.Message == nil {
		return nil
	}
	return c.Message.Author
}

// Say sends a plain message to the channel.
func (c *Context) Say(text string) error {
	_, err := c.Client.SendMessage(text)
	return err
}

// ReplyTo sends a threaded reply to the originating message.
func (c *Context) ReplyTo(text string) error {
	if c.Message == nil || c.Message.ID == "" {
		return c.Say(text)
	}
	_, err := c.Client.Reply(c.Message.ID, text)
	return err
}
