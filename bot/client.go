package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srpbotz/srpbotz/commands"
	"github.com/srpbotz/srpbotz/config"
	"github.com/srpbotz/srpbotz/eventsub"
	"github.com/srpbotz/srpbotz/irc"
	"github.com/srpbotz/srpbotz/models"
	"github.com/srpbotz/srpbotz/telemetry"
	"github.com/srpbotz/srpbotz/twitchapi"
)

// Client wires the protocol layer to the dispatch framework. It implements
// commands.Client, so cogs reach outbound chat and the REST facade through
// it.
type Client struct {
	cfg      *config.Config
	api      *twitchapi.Client
	chat     *irc.Socket
	notif    *eventsub.Socket
	registry *commands.Registry
	shell    Shell

	mu       sync.Mutex
	streamer *models.Streamer
	userID   int64
	login    string
	ready    bool

	runCtx      context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	eventSubOne sync.Once
}

// New builds a client from config. The shell may be nil; a headless
// slog-backed one is used then.
func New(cfg *config.Config, shell Shell) *Client {
	if shell == nil {
		shell = SlogShell{}
	}
	c := &Client{
		cfg:   cfg,
		shell: shell,
		api: &twitchapi.Client{
			ClientID: cfg.TwitchClientID,
			Token:    cfg.TwitchToken,
			BaseURL:  cfg.HelixURL,
			AuthURL:  cfg.AuthURL,
			Timeout:  cfg.HelixTimeout,
		},
		registry: commands.NewRegistry(),
	}
	c.registry.OnEventError = func(event string, err error) {
		c.shell.Log(fmt.Sprintf("Ignoring exception in event %s: %v", event, err), slog.LevelError)
	}
	c.registry.OnCommandError = func(ctx *commands.Context, err error) {
		c.shell.Log(fmt.Sprintf("Ignoring exception in command %s: %v", ctx.Command.Name, err), slog.LevelError)
	}
	c.chat = &irc.Socket{
		URL:          cfg.ChatURL,
		Token:        cfg.TwitchToken,
		Validate:     c.validate,
		OnLine:       c.handleLine,
		OnConnect:    c.handleChatConnect,
		OnDisconnect: c.handleChatDisconnect,
	}
	c.notif = &eventsub.Socket{
		URL:            cfg.EventSubURL,
		OnWelcome:      c.handleWelcome,
		OnNotification: c.handleNotification,
		OnConnect:      func() { c.Dispatch("on_es_connect") },
		OnDisconnect: func() {
			telemetry.SetEventSubConnected(false)
			c.Dispatch("on_es_disconnect")
		},
	}
	return c
}

// API exposes the REST facade to cogs.
func (c *Client) API() *twitchapi.Client { return c.api }

// Streamer returns the active streamer, or nil between JOIN and PART.
func (c *Client) Streamer() *models.Streamer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamer
}

// Login returns the bot account's login once the token was validated.
func (c *Client) Login() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login
}

// Ready reports whether the first JOIN completed.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// ChatState and EventSubState expose socket states for the status endpoint.
func (c *Client) ChatState() irc.State          { return c.chat.State() }
func (c *Client) EventSubState() eventsub.State { return c.notif.State() }

// Status is a point-in-time snapshot for the HTTP status endpoint.
type Status struct {
	Login    string `json:"login"`
	Ready    bool   `json:"ready"`
	Chat     string `json:"chat"`
	EventSub string `json:"eventsub"`
	Channel  string `json:"channel,omitempty"`
	Chatters int    `json:"chatters"`
	Mods     int    `json:"mods"`
}

// Status reports the current session state.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{
		Login:    c.login,
		Ready:    c.ready,
		Chat:     c.chat.State().String(),
		EventSub: c.notif.State().String(),
	}
	if c.streamer != nil {
		st.Channel = c.streamer.Login
		st.Chatters = c.streamer.ChatterCount()
		st.Mods = c.streamer.ModCount()
	}
	c.mu.Unlock()
	return st
}

// AddCog installs a cog; command-name conflicts drop the incoming command
// and are reported here once.
func (c *Client) AddCog(cog *commands.Cog) error {
	dropped, err := c.registry.AddCog(cog)
	if err != nil {
		return err
	}
	for _, name := range dropped {
		c.shell.Log(fmt.Sprintf("Cannot add command %s as it already exists", name), slog.LevelWarn)
	}
	return nil
}

// RemoveCog uninstalls a cog and runs its teardown hook.
func (c *Client) RemoveCog(name string) error { return c.registry.RemoveCog(name) }

// Dispatch fans an event out to every registered handler.
func (c *Client) Dispatch(event string, args ...any) {
	c.registry.Dispatch(event, args...)
}

// Start launches both socket loops. The chat socket connects immediately;
// the notification socket is started after the first successful JOIN.
func (c *Client) Start(ctx context.Context) {
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.chat.Run(c.runCtx); err != nil {
			// Fatal (auth): surface to the operator, don't retry.
			c.shell.Log(fmt.Sprintf("chat connection failed: %v", err), slog.LevelError)
			c.shell.Notify("Chat connection failed, check the access token", 0)
		}
	}()
}

// Close tears the session down deliberately: farewell message first, then
// both sockets, suppressing reconnection.
func (c *Client) Close() {
	if c.Streamer() != nil {
		_, _ = c.SendMessage(fmt.Sprintf(c.cfg.PartMessage, c.Login()))
	}
	c.chat.Close()
	c.notif.Close()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	telemetry.SetChatConnected(false)
	telemetry.SetEventSubConnected(false)
	c.shell.OnClose()
}

// validate resolves the token before each chat connection attempt.
func (c *Client) validate(ctx context.Context) (string, error) {
	info, err := c.api.Validate(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.login = info.Login
	c.userID = info.UserID
	c.mu.Unlock()
	return info.Login, nil
}

func (c *Client) handleChatConnect() {
	c.shell.Notify(fmt.Sprintf("Logged in as %s", c.Login()), 5*time.Second)
	c.Dispatch("on_ws_connect")
}

func (c *Client) handleChatDisconnect() {
	c.mu.Lock()
	c.streamer = nil
	c.mu.Unlock()
	telemetry.SetChatConnected(false)
	telemetry.SetChatters(0)
	c.shell.Notify("Reconnecting...", 5*time.Second)
	c.Dispatch("on_ws_disconnect")
}

// handleLine processes one parsed chat line on the chat read goroutine.
func (c *Client) handleLine(line *irc.Line) {
	switch line.Command {
	case irc.CmdJoin:
		c.handleJoin()
	case irc.CmdPart:
		c.handlePart()
	case irc.CmdPrivmsg:
		c.handlePrivmsg(line)
	case irc.CmdClearmsg:
		c.handleClearmsg(line)
	}
}

func (c *Client) handleJoin() {
	c.mu.Lock()
	if c.streamer != nil {
		c.mu.Unlock()
		return
	}
	st := models.NewStreamer(c.userID, c.login)
	c.streamer = st
	login := c.login
	c.mu.Unlock()

	telemetry.SetChatConnected(true)

	// Best effort: seed the moderator set. EventSub deltas keep it fresh.
	ctx, cancel := context.WithTimeout(c.runCtx, 10*time.Second)
	mods, err := c.api.FetchModerators(ctx, st.ID)
	cancel()
	if err != nil {
		slog.Warn("failed to fetch moderators", slog.Any("err", err))
	} else {
		c.mu.Lock()
		for _, m := range mods {
			st.AddMod(m.ID)
		}
		c.mu.Unlock()
	}

	_, _ = c.SendMessage(fmt.Sprintf(c.cfg.JoinMessage, login))
	c.Dispatch("on_channel_join")

	c.mu.Lock()
	first := !c.ready
	c.ready = true
	c.mu.Unlock()
	if first {
		c.eventSubOne.Do(func() {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				if err := c.notif.Run(c.runCtx); err != nil {
					c.shell.Log(fmt.Sprintf("eventsub connection failed: %v", err), slog.LevelError)
				}
			}()
		})
		c.shell.OnReady()
		c.Dispatch("on_ready")
	}
}

func (c *Client) handlePart() {
	_, _ = c.SendMessage(fmt.Sprintf(c.cfg.PartMessage, c.Login()))
	c.mu.Lock()
	c.streamer = nil
	c.mu.Unlock()
	telemetry.SetChatConnected(false)
	telemetry.SetChatters(0)
	c.Dispatch("on_channel_leave")
}

func (c *Client) handlePrivmsg(line *irc.Line) {
	st := c.Streamer()
	if st == nil {
		slog.Debug("PRIVMSG before JOIN; dropping")
		return
	}
	userID, err := strconv.ParseInt(line.Tag("user-id"), 10, 64)
	if err != nil {
		slog.Debug("PRIVMSG without usable user-id tag; dropping", slog.Any("err", err))
		return
	}
	login, _, _ := splitSource(line.Source)
	author := c.ResolveChatter(userID, login, line.Tag("display-name"))

	msg := &models.ChatMessage{
		ID:        line.Tag("id"),
		Author:    author,
		Text:      line.Trailing,
		Timestamp: time.Now().UTC(),
	}
	c.mu.Lock()
	st.AppendMessage(msg)
	c.mu.Unlock()

	c.Dispatch("on_message", msg)
	if line.BotCommand != "" {
		c.registry.RouteCommand(line.BotCommand, c, msg, line.BotArgs)
	}
}

func (c *Client) handleClearmsg(line *irc.Line) {
	st := c.Streamer()
	if st == nil {
		return
	}
	c.mu.Lock()
	msg := st.PopMessage(line.Tag("target-msg-id"))
	c.mu.Unlock()
	c.Dispatch("on_message_delete", msg)
}

// splitSource splits "nick!user@host" into its parts; nick carries the login.
func splitSource(source string) (nick, user, host string) {
	nick, rest, ok := strings.Cut(source, "!")
	if !ok {
		return source, "", ""
	}
	user, host, _ = strings.Cut(rest, "@")
	return nick, user, host
}

// SendMessage transmits a chat message and synthesizes the local echo (the
// platform does not echo the sender's own messages back). A nil message with
// nil error means there is no joined channel to send to.
func (c *Client) SendMessage(text string) (*models.ChatMessage, error) {
	if text == "" || c.Streamer() == nil {
		return nil, nil
	}
	if err := c.chat.SendMessage(text); err != nil {
		return nil, err
	}
	return c.localEcho(text), nil
}

// Reply transmits a threaded reply and synthesizes the local echo.
func (c *Client) Reply(messageID, text string) (*models.ChatMessage, error) {
	if text == "" || c.Streamer() == nil {
		return nil, nil
	}
	if err := c.chat.Reply(messageID, text); err != nil {
		return nil, err
	}
	return c.localEcho(text), nil
}

func (c *Client) localEcho(text string) *models.ChatMessage {
	c.mu.Lock()
	self := &models.Chatter{ID: c.userID, Login: c.login, DisplayName: c.login}
	if c.streamer != nil {
		if cached := c.streamer.GetChatter(c.userID); cached != nil {
			self = cached
		}
	}
	c.mu.Unlock()
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		Author:    self,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	telemetry.IncMessageSent()
	c.Dispatch("on_message", msg)
	return msg
}

// ResolveChatter implements models.ChatterResolver: look the account up in
// the streamer's map, create and announce it on first observation. Missing
// names are backfilled from the users endpoint, best effort.
func (c *Client) ResolveChatter(id int64, login, displayName string) *models.Chatter {
	c.mu.Lock()
	st := c.streamer
	if st != nil {
		if cached := st.GetChatter(id); cached != nil {
			c.mu.Unlock()
			return cached
		}
	}
	c.mu.Unlock()

	if login == "" && displayName == "" {
		ctx, cancel := context.WithTimeout(c.runCtx, 10*time.Second)
		users, err := c.api.FetchUsersByID(ctx, id)
		cancel()
		if err != nil || len(users) == 0 {
			slog.Warn("failed to resolve chatter", slog.Int64("id", id), slog.Any("err", err))
		} else {
			login, displayName = users[0].Login, users[0].DisplayName
		}
	}
	chatter := &models.Chatter{ID: id, Login: login, DisplayName: displayName}

	if st == nil {
		return chatter
	}
	c.mu.Lock()
	if cached := st.GetChatter(id); cached != nil {
		// lost the race with another resolution
		c.mu.Unlock()
		return cached
	}
	st.AddChatter(chatter)
	n := st.ChatterCount()
	c.mu.Unlock()
	telemetry.SetChatters(n)
	c.Dispatch("on_chatter_join", chatter)
	return chatter
}

// handleWelcome requests the fixed subscription set for a new EventSub
// session. Auth failures abort the socket; anything else (e.g. an already
// existing subscription) is logged and skipped.
func (c *Client) handleWelcome(sessionID string) error {
	c.mu.Lock()
	if c.streamer != nil {
		c.streamer.SessionID = sessionID
	}
	broadcaster := strconv.FormatInt(c.userID, 10)
	c.mu.Unlock()

	for _, sub := range subscriptionSpecs(broadcaster, sessionID) {
		ctx, cancel := context.WithTimeout(c.runCtx, 10*time.Second)
		err := c.api.SubscribeEvent(ctx, c.cfg.TwitchToken, sub)
		cancel()
		if err != nil {
			var authErr *twitchapi.AuthError
			if errors.As(err, &authErr) {
				return err
			}
			slog.Warn("eventsub subscription failed", slog.String("type", sub.Type), slog.Any("err", err))
		}
	}
	telemetry.SetEventSubConnected(true)
	return nil
}

// subscriptionSpecs is the fixed set of notifications the bot listens for.
func subscriptionSpecs(broadcaster, sessionID string) []twitchapi.Subscription {
	transport := twitchapi.Transport{Method: "websocket", SessionID: sessionID}
	self := map[string]string{"broadcaster_user_id": broadcaster}
	specs := []twitchapi.Subscription{
		{Type: models.SubStreamOnline, Version: "1", Condition: self},
		{Type: models.SubStreamOffline, Version: "1", Condition: self},
		{Type: models.SubFollow, Version: "2", Condition: map[string]string{
			"broadcaster_user_id": broadcaster,
			"moderator_user_id":   broadcaster,
		}},
		{Type: models.SubSubscribe, Version: "1", Condition: self},
		{Type: models.SubGiftSub, Version: "1", Condition: self},
		{Type: models.SubResub, Version: "1", Condition: self},
		{Type: models.SubCheer, Version: "1", Condition: self},
		{Type: models.SubRaid, Version: "1", Condition: map[string]string{
			"to_broadcaster_user_id": broadcaster,
		}},
		{Type: models.SubBan, Version: "1", Condition: self},
		{Type: models.SubRewardRedeem, Version: "1", Condition: self},
		{Type: models.SubModAdd, Version: "1", Condition: self},
		{Type: models.SubModRemove, Version: "1", Condition: self},
	}
	for i := range specs {
		specs[i].Transport = transport
	}
	return specs
}

// handleNotification processes one EventSub notification on the
// notification read goroutine.
func (c *Client) handleNotification(subType string, raw json.RawMessage) {
	switch subType {
	case models.SubModAdd, models.SubModRemove:
		var p struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			slog.Warn("bad moderator payload", slog.Any("err", err))
			return
		}
		id, err := strconv.ParseInt(p.UserID, 10, 64)
		if err != nil {
			slog.Warn("bad moderator user_id", slog.String("user_id", p.UserID))
			return
		}
		c.mu.Lock()
		if c.streamer != nil {
			if subType == models.SubModAdd {
				c.streamer.AddMod(id)
			} else {
				c.streamer.RemoveMod(id)
			}
		}
		c.mu.Unlock()
		return
	}

	event, err := models.ParseEvent(subType, raw, c)
	if err != nil {
		slog.Warn("dropping malformed notification", slog.String("type", subType), slog.Any("err", err))
		return
	}
	if event == nil {
		return
	}

	switch ev := event.(type) {
	case *models.BanEvent:
		c.mu.Lock()
		if c.streamer != nil && ev.Chatter != nil {
			c.streamer.RemoveChatter(ev.Chatter.ID)
			telemetry.SetChatters(c.streamer.ChatterCount())
		}
		c.mu.Unlock()
	case *models.StreamOfflineEvent:
		c.mu.Lock()
		if c.streamer != nil {
			c.streamer.ClearChatters()
		}
		c.mu.Unlock()
		telemetry.SetChatters(0)
	}

	c.Dispatch("on_"+event.EventName(), event)
}

// BanUser bans or times out a user; a zero moderator defaults to the
// broadcaster, a zero duration is a permanent ban.
func (c *Client) BanUser(ctx context.Context, userID, moderatorID int64, reason string, durationSeconds int) error {
	st := c.Streamer()
	if st == nil {
		return fmt.Errorf("no joined channel")
	}
	if moderatorID == 0 {
		moderatorID = st.ID
	}
	return c.api.BanUser(ctx, st.ID, moderatorID, userID, reason, durationSeconds)
}

// DeleteMessage removes a chat message; a zero moderator defaults to the
// broadcaster.
func (c *Client) DeleteMessage(ctx context.Context, messageID string, moderatorID int64) error {
	st := c.Streamer()
	if st == nil {
		return fmt.Errorf("no joined channel")
	}
	if moderatorID == 0 {
		moderatorID = st.ID
	}
	return c.api.DeleteMessage(ctx, st.ID, moderatorID, messageID)
}

// CreatePrediction starts a prediction on the joined channel.
func (c *Client) CreatePrediction(ctx context.Context, title string, options []string, windowSeconds int) error {
	st := c.Streamer()
	if st == nil {
		return fmt.Errorf("no joined channel")
	}
	return c.api.CreatePrediction(ctx, st.ID, title, options, windowSeconds)
}
