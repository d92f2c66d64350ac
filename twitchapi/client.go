// Package twitchapi is the stateless REST facade over the platform's Helix
// API: user lookup, moderator list, chat color, bans, message deletion,
// predictions, EventSub subscription creation, and token validation. Every
// call attaches the bearer token and client id, runs under a bounded
// timeout, and maps the HTTP status into the typed error taxonomy in
// errors.go.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/srpbotz/srpbotz/telemetry"
)

const (
	defaultBaseURL = "https://api.twitch.tv/helix"
	defaultAuthURL = "https://id.twitch.tv/oauth2"
	defaultTimeout = 15 * time.Second

	// maxUserBatch bounds one users lookup request.
	maxUserBatch = 100
	// maxBanSeconds is the longest accepted timeout; longer requests are
	// clamped. Zero means permanent.
	maxBanSeconds = 1_209_600
	// defaultPredictionWindow is the prediction voting window in seconds.
	defaultPredictionWindow = 120
)

// Client issues Helix requests on behalf of one bot account.
type Client struct {
	ClientID string
	Token    string

	// HTTPClient, BaseURL and AuthURL are overridable for tests; zero
	// values select the production defaults.
	HTTPClient *http.Client
	BaseURL    string
	AuthURL    string
	Timeout    time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Client) authURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	return defaultAuthURL
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// do runs one request: headers, timeout, span, status mapping, decode.
// token overrides the client token when non-empty (EventSub subscriptions).
func (c *Client) do(ctx context.Context, op, method, rawURL string, q url.Values, body, out any, scheme, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", op,
		attribute.String("http.method", method))
	defer span.End()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	if token == "" {
		token = c.Token
	}
	req.Header.Set("Authorization", scheme+" "+token)
	if c.ClientID != "" {
		req.Header.Set("Client-Id", c.ClientID)
	}
	req.Header.Set("Content-Type", "application/json")

	telemetry.IncHelixRequest()
	start := time.Now()
	resp, err := c.http().Do(req)
	telemetry.ObserveHelixDuration(time.Since(start))
	if err != nil {
		telemetry.IncHelixRequestError()
		terr := &TransportError{Op: op, Err: err}
		telemetry.RecordError(span, terr)
		return terr
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if err := errorFromStatus(op, resp.StatusCode); err != nil {
		telemetry.IncHelixRequestError()
		telemetry.RecordError(span, err)
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// User is one account row from the users endpoint.
type User struct {
	ID          int64
	Login       string
	DisplayName string
}

type userRow struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

func (r userRow) toUser(op string) (User, error) {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return User{}, fmt.Errorf("%s: bad user id %q: %w", op, r.ID, err)
	}
	return User{ID: id, Login: r.Login, DisplayName: r.DisplayName}, nil
}

// FetchUsersByID looks up up to 100 users by id. The batch limit is
// enforced before any network call.
func (c *Client) FetchUsersByID(ctx context.Context, ids ...int64) ([]User, error) {
	const op = "fetch users"
	if len(ids) == 0 {
		return nil, &ValidationError{Op: op, Message: "no users given"}
	}
	if len(ids) > maxUserBatch {
		return nil, &ValidationError{Op: op, Message: fmt.Sprintf("at most %d users per lookup, got %d", maxUserBatch, len(ids))}
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", strconv.FormatInt(id, 10))
	}
	return c.fetchUsers(ctx, op, q)
}

// FetchUsersByLogin looks up up to 100 users by login name.
func (c *Client) FetchUsersByLogin(ctx context.Context, logins ...string) ([]User, error) {
	const op = "fetch users"
	if len(logins) == 0 {
		return nil, &ValidationError{Op: op, Message: "no users given"}
	}
	if len(logins) > maxUserBatch {
		return nil, &ValidationError{Op: op, Message: fmt.Sprintf("at most %d users per lookup, got %d", maxUserBatch, len(logins))}
	}
	q := url.Values{}
	for _, login := range logins {
		q.Add("login", login)
	}
	return c.fetchUsers(ctx, op, q)
}

func (c *Client) fetchUsers(ctx context.Context, op string, q url.Values) ([]User, error) {
	var body struct {
		Data []userRow `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodGet, c.baseURL()+"/users", q, nil, &body, "Bearer", ""); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(body.Data))
	for _, row := range body.Data {
		u, err := row.toUser(op)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// FetchModerators lists the broadcaster's moderators.
func (c *Client) FetchModerators(ctx context.Context, broadcasterID int64) ([]User, error) {
	const op = "fetch moderators"
	q := url.Values{}
	q.Set("broadcaster_id", strconv.FormatInt(broadcasterID, 10))
	var body struct {
		Data []struct {
			UserID    string `json:"user_id"`
			UserLogin string `json:"user_login"`
			UserName  string `json:"user_name"`
		} `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodGet, c.baseURL()+"/moderation/moderators", q, nil, &body, "Bearer", ""); err != nil {
		return nil, err
	}
	mods := make([]User, 0, len(body.Data))
	for _, row := range body.Data {
		u, err := userRow{ID: row.UserID, Login: row.UserLogin, DisplayName: row.UserName}.toUser(op)
		if err != nil {
			return nil, err
		}
		mods = append(mods, u)
	}
	return mods, nil
}

// FetchUserColor returns the user's chat display color, empty if unset.
func (c *Client) FetchUserColor(ctx context.Context, userID int64) (string, error) {
	const op = "fetch user color"
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	var body struct {
		Data []struct {
			Color string `json:"color"`
		} `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodGet, c.baseURL()+"/chat/color", q, nil, &body, "Bearer", ""); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", &NotFoundError{Op: op}
	}
	return body.Data[0].Color, nil
}

// BanUser bans or times out a user. durationSeconds <= 0 means a permanent
// ban; values above the platform maximum are clamped.
func (c *Client) BanUser(ctx context.Context, broadcasterID, moderatorID, userID int64, reason string, durationSeconds int) error {
	const op = "ban user"
	q := url.Values{}
	q.Set("broadcaster_id", strconv.FormatInt(broadcasterID, 10))
	q.Set("moderator_id", strconv.FormatInt(moderatorID, 10))

	payload := map[string]any{
		"user_id": strconv.FormatInt(userID, 10),
		"reason":  reason,
	}
	if durationSeconds > maxBanSeconds {
		durationSeconds = maxBanSeconds
	}
	if durationSeconds > 0 {
		payload["duration"] = durationSeconds
	}
	body := map[string]any{"data": payload}
	return c.do(ctx, op, http.MethodPost, c.baseURL()+"/moderation/bans", q, body, nil, "Bearer", "")
}

// DeleteMessage removes a single chat message.
func (c *Client) DeleteMessage(ctx context.Context, broadcasterID, moderatorID int64, messageID string) error {
	const op = "delete message"
	q := url.Values{}
	q.Set("broadcaster_id", strconv.FormatInt(broadcasterID, 10))
	q.Set("moderator_id", strconv.FormatInt(moderatorID, 10))
	q.Set("message_id", messageID)
	return c.do(ctx, op, http.MethodDelete, c.baseURL()+"/moderation/chat", q, nil, nil, "Bearer", "")
}

// CreatePrediction starts a channel prediction. windowSeconds <= 0 selects
// the default 120 second voting window.
func (c *Client) CreatePrediction(ctx context.Context, broadcasterID int64, title string, options []string, windowSeconds int) error {
	const op = "create prediction"
	if len(options) < 2 {
		return &ValidationError{Op: op, Message: "a prediction needs at least two options"}
	}
	if windowSeconds <= 0 {
		windowSeconds = defaultPredictionWindow
	}
	outcomes := make([]map[string]string, 0, len(options))
	for _, o := range options {
		outcomes = append(outcomes, map[string]string{"title": o})
	}
	body := map[string]any{
		"broadcaster_id":    strconv.FormatInt(broadcasterID, 10),
		"title":             title,
		"outcomes":          outcomes,
		"prediction_window": windowSeconds,
	}
	return c.do(ctx, op, http.MethodPost, c.baseURL()+"/predictions", nil, body, nil, "Bearer", "")
}

// Transport is the EventSub delivery transport.
type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

// Subscription is one EventSub subscription request.
type Subscription struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
}

// SubscribeEvent creates an EventSub subscription bound to a websocket
// session. The token argument overrides the client token when non-empty.
func (c *Client) SubscribeEvent(ctx context.Context, token string, sub Subscription) error {
	const op = "subscribe event"
	return c.do(ctx, op, http.MethodPost, c.baseURL()+"/eventsub/subscriptions", nil, sub, nil, "Bearer", token)
}

// TokenInfo is the result of a successful token validation.
type TokenInfo struct {
	Login  string
	UserID int64
}

// Validate checks the bearer token against the auth host and returns the
// account it belongs to. Note the different authorization scheme.
func (c *Client) Validate(ctx context.Context) (*TokenInfo, error) {
	const op = "validate token"
	var body struct {
		Login  string `json:"login"`
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, op, http.MethodGet, c.authURL()+"/validate", nil, nil, &body, "OAuth", ""); err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(body.UserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: bad user_id %q: %w", op, body.UserID, err)
	}
	return &TokenInfo{Login: body.Login, UserID: id}, nil
}
