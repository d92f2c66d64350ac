package bot

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/srpbotz/srpbotz/commands"
	"github.com/srpbotz/srpbotz/models"
	"github.com/srpbotz/srpbotz/testutil"
	"github.com/srpbotz/srpbotz/twitchapi"
)

// cogClient is a scripted commands.Client for exercising the builtin cogs.
type cogClient struct {
	api      *twitchapi.Client
	streamer *models.Streamer
	sent     []string
	replies  []string
}

func (c *cogClient) SendMessage(text string) (*models.ChatMessage, error) {
	c.sent = append(c.sent, text)
	return &models.ChatMessage{Text: text}, nil
}

func (c *cogClient) Reply(_, text string) (*models.ChatMessage, error) {
	c.replies = append(c.replies, text)
	return &models.ChatMessage{Text: text}, nil
}

func (c *cogClient) Dispatch(string, ...any) {}

func (c *cogClient) API() *twitchapi.Client { return c.api }

func (c *cogClient) Streamer() *models.Streamer { return c.streamer }

func runCommand(t *testing.T, cog *commands.Cog, name string, client commands.Client, author *models.Chatter, args ...string) {
	t.Helper()
	r := commands.NewRegistry()
	r.OnCommandError = func(_ *commands.Context, err error) {
		t.Errorf("command %s failed: %v", name, err)
	}
	if _, err := r.AddCog(cog); err != nil {
		t.Fatal(err)
	}
	msg := &models.ChatMessage{ID: "m1", Author: author, Timestamp: time.Now()}
	r.RouteCommand(name, client, msg, args)
}

func TestPingCommand(t *testing.T) {
	client := &cogClient{}
	runCommand(t, GeneralCog(), "ping", client, &models.Chatter{ID: 7, Login: "v"})
	if len(client.replies) != 1 || client.replies[0] != "Pong!" {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestColorCommand(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	srv.Handlers["/chat/color"] = func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "7" {
			t.Errorf("user_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"user_id":"7","color":"#1E90FF"}]}`))
	}
	client := &cogClient{api: &twitchapi.Client{Token: "t", BaseURL: srv.URL}}

	runCommand(t, GeneralCog(), "color", client, &models.Chatter{ID: 7, Login: "v"})
	if len(client.replies) != 1 || !strings.Contains(client.replies[0], "#1E90FF") {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestTimeoutCommandRefusesNonMods(t *testing.T) {
	st := models.NewStreamer(1, "streamer")
	client := &cogClient{streamer: st}

	runCommand(t, ModerationCog(), "timeout", client, &models.Chatter{ID: 7, Login: "pleb"}, "troll", "60")
	if len(client.replies) != 1 || !strings.Contains(client.replies[0], "moderator") {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestTimeoutCommand(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	srv.MockUsers(map[string]string{"id": "9", "login": "troll", "display_name": "Troll"})
	var banBody map[string]map[string]any
	srv.Handlers["/moderation/bans"] = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&banBody)
		w.WriteHeader(http.StatusOK)
	}

	st := models.NewStreamer(1, "streamer")
	st.AddMod(7)
	client := &cogClient{streamer: st, api: &twitchapi.Client{Token: "t", BaseURL: srv.URL}}

	runCommand(t, ModerationCog(), "timeout", client,
		&models.Chatter{ID: 7, Login: "mod"}, "@troll", "300", "being", "rude")

	if banBody == nil {
		t.Fatal("ban endpoint never called")
	}
	data := banBody["data"]
	if data["user_id"] != "9" || data["duration"].(float64) != 300 || data["reason"] != "being rude" {
		t.Errorf("ban data = %v", data)
	}
	if len(client.replies) != 1 || !strings.Contains(client.replies[0], "Troll") {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestTimeoutCommandUsage(t *testing.T) {
	st := models.NewStreamer(1, "streamer")
	st.AddMod(7)
	client := &cogClient{streamer: st}

	runCommand(t, ModerationCog(), "timeout", client, &models.Chatter{ID: 7, Login: "mod"}, "troll", "soon")
	if len(client.replies) != 1 || !strings.Contains(client.replies[0], "Usage") {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestPredictCommand(t *testing.T) {
	srv := testutil.NewMockHelixServer(t)
	var got map[string]any
	srv.Handlers["/predictions"] = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}

	st := models.NewStreamer(1, "streamer")
	client := &cogClient{streamer: st, api: &twitchapi.Client{Token: "t", BaseURL: srv.URL}}

	// The broadcaster may always run moderation commands.
	runCommand(t, ModerationCog(), "predict", client,
		&models.Chatter{ID: 1, Login: "streamer"},
		"120", "Will", "we", "win?", "|", "Yes", "|", "No")

	if got == nil {
		t.Fatal("predictions endpoint never called")
	}
	if got["title"] != "Will we win?" {
		t.Errorf("title = %v", got["title"])
	}
	outcomes := got["outcomes"].([]any)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %v", outcomes)
	}
	if got["prediction_window"].(float64) != 120 {
		t.Errorf("window = %v", got["prediction_window"])
	}
}
