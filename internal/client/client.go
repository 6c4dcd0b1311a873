// Package client provides a Go client for the Hack-or-Snooze API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/rate"
)

const (
	DefaultBaseURL   = "https://hack-or-snooze-v3.herokuapp.com"
	DefaultUserAgent = "hackorsnooze-cli/0.1"
)

// Client is a Hack-or-Snooze API client. It holds no session state: every
// authenticated call takes the token explicitly.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Limiter    rate.Limiter
	Limits     Limits

	timeout time.Duration
}

// Limits caps mutating calls per user and minute. Zero disables a limit.
type Limits struct {
	StoryPerMinute    int
	FavoritePerMinute int
	ProfilePerMinute  int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the request timeout. It applies to a copy of the HTTP
// client, so a shared client passed to WithHTTPClient is left alone.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

func WithLimiter(l rate.Limiter, limits Limits) Option {
	return func(c *Client) {
		c.Limiter = l
		c.Limits = limits
	}
}

// New creates a new Hack-or-Snooze client.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		UserAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.timeout > 0 {
		hc := *c.HTTPClient
		hc.Timeout = c.timeout
		c.HTTPClient = &hc
	}
	return c
}

// AuthResult is what signup and login hand back: the profile plus a fresh token.
type AuthResult struct {
	Profile model.Profile
	Token   string
}

// UserUpdate holds the profile fields to PATCH. Empty fields are not sent.
type UserUpdate struct {
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type userCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type storyEnvelope struct {
	Story model.Story `json:"story"`
}

type userEnvelope struct {
	User model.Profile `json:"user"`
}

type authEnvelope struct {
	User  model.Profile `json:"user"`
	Token string        `json:"token"`
}

// ListStories fetches one page of the feed. skip is the number of stories to
// pass over; limit <= 0 leaves the page size to the server.
func (c *Client) ListStories(ctx context.Context, skip, limit int) ([]model.Story, error) {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Stories []model.Story `json:"stories"`
	}
	if err := c.doRequest(ctx, "list stories", http.MethodGet, "/stories", q, nil, &result); err != nil {
		return nil, err
	}
	return result.Stories, nil
}

// GetStory fetches a single story.
func (c *Client) GetStory(ctx context.Context, id string) (model.Story, error) {
	var result storyEnvelope
	if err := c.doRequest(ctx, "get story", http.MethodGet, "/stories/"+url.PathEscape(id), nil, nil, &result); err != nil {
		return model.Story{}, err
	}
	return result.Story, nil
}

// CreateStory posts a new story as the token's owner and returns the story
// the server stored.
func (c *Client) CreateStory(ctx context.Context, token string, story model.NewStory) (model.Story, error) {
	if err := c.throttle("create story", "story", tokenSubject(token), c.Limits.StoryPerMinute); err != nil {
		return model.Story{}, err
	}
	body := map[string]any{"token": token, "story": story}

	var result storyEnvelope
	if err := c.doRequest(ctx, "create story", http.MethodPost, "/stories", nil, body, &result); err != nil {
		return model.Story{}, err
	}
	return result.Story, nil
}

// DeleteStory deletes a story owned by the token's user.
func (c *Client) DeleteStory(ctx context.Context, token, id string) error {
	body := map[string]string{"token": token}
	return c.doRequest(ctx, "delete story", http.MethodDelete, "/stories/"+url.PathEscape(id), nil, body, nil)
}

// Signup registers a new user.
func (c *Client) Signup(ctx context.Context, username, password, name string) (AuthResult, error) {
	body := map[string]any{"user": userCredentials{Username: username, Password: password, Name: name}}

	var result authEnvelope
	if err := c.doRequest(ctx, "signup", http.MethodPost, "/signup", nil, body, &result); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Profile: result.User, Token: result.Token}, nil
}

// Login exchanges a username and password for a token.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	body := map[string]any{"user": userCredentials{Username: username, Password: password}}

	var result authEnvelope
	if err := c.doRequest(ctx, "login", http.MethodPost, "/login", nil, body, &result); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Profile: result.User, Token: result.Token}, nil
}

// GetUser fetches a user's profile, favorites and own stories.
func (c *Client) GetUser(ctx context.Context, token, username string) (model.Profile, error) {
	q := url.Values{"token": {token}}

	var result userEnvelope
	if err := c.doRequest(ctx, "get user", http.MethodGet, userPath(username), q, nil, &result); err != nil {
		return model.Profile{}, err
	}
	return result.User, nil
}

// UpdateUser changes a user's name and/or password.
func (c *Client) UpdateUser(ctx context.Context, token, username string, update UserUpdate) (model.Profile, error) {
	if err := c.throttle("update user", "profile", username, c.Limits.ProfilePerMinute); err != nil {
		return model.Profile{}, err
	}
	body := map[string]any{"token": token, "user": update}

	var result userEnvelope
	if err := c.doRequest(ctx, "update user", http.MethodPatch, userPath(username), nil, body, &result); err != nil {
		return model.Profile{}, err
	}
	return result.User, nil
}

// AddFavorite marks a story as a favorite of username.
func (c *Client) AddFavorite(ctx context.Context, token, username, storyID string) (model.Profile, error) {
	return c.favorite(ctx, "add favorite", http.MethodPost, token, username, storyID)
}

// RemoveFavorite unmarks a favorite story of username.
func (c *Client) RemoveFavorite(ctx context.Context, token, username, storyID string) (model.Profile, error) {
	return c.favorite(ctx, "remove favorite", http.MethodDelete, token, username, storyID)
}

func (c *Client) favorite(ctx context.Context, op, method, token, username, storyID string) (model.Profile, error) {
	if err := c.throttle(op, "favorite", username, c.Limits.FavoritePerMinute); err != nil {
		return model.Profile{}, err
	}
	path := userPath(username) + "/favorites/" + url.PathEscape(storyID)
	q := url.Values{"token": {token}}

	var result userEnvelope
	if err := c.doRequest(ctx, op, method, path, q, nil, &result); err != nil {
		return model.Profile{}, err
	}
	return result.User, nil
}

func (c *Client) throttle(op, action, subject string, limit int) error {
	if c.Limiter == nil || limit <= 0 {
		return nil
	}
	if ok, retry := c.Limiter.Allow(rate.Key(action, subject), limit, time.Minute); !ok {
		return &APIError{
			Op:      op,
			Kind:    KindRateLimited,
			Message: fmt.Sprintf("too many %s requests, retry in %s", action, retry.Round(time.Second)),
		}
	}
	return nil
}

// doRequest performs one JSON exchange with the API. A non-2xx answer becomes
// an *APIError carrying the server's message; out is decoded only on success.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, Kind: KindUnknown, Err: fmt.Errorf("encode body: %w", err)}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return &APIError{Op: op, Kind: KindUnknown, Err: fmt.Errorf("build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"op": op, "method": method, "path": path}).Debug("api request failed")
		return &APIError{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, Kind: KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	logrus.WithFields(logrus.Fields{
		"op":       op,
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(op, resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Op: op, Kind: KindDecode, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func userPath(username string) string {
	return "/users/" + url.PathEscape(username)
}

// tokenSubject keys story throttling by token since story creation carries no
// username. The token is hashed so limiter keys never hold a credential.
func tokenSubject(token string) string {
	h := fnv.New64a()
	h.Write([]byte(token))
	return strconv.FormatUint(h.Sum64(), 16)
}
