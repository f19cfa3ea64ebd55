// Package kinclient is a client for the player directory service. It logs in
// with email and password, keeps the session cookie and looks players up so
// a test can be filed against a player with their body mass.
package kinclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/jump.report/internal/httputil"
)

// DefaultBaseURL is where the directory runs in development.
const DefaultBaseURL = "http://localhost:5173"

var (
	// ErrNotAuthenticated is returned when a call needs a login first.
	ErrNotAuthenticated = errors.New("not authenticated, login first")
	// ErrSessionExpired is returned on a 401; the client forgets its session.
	ErrSessionExpired = errors.New("unauthorized, session expired, login again")
	// ErrPlayerNotFound is returned when the directory has no such player.
	ErrPlayerNotFound = errors.New("player not found")
)

// APIError is a non-success reply from the directory.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory error (HTTP %d): %s", e.StatusCode, e.Message)
}

// User is the account returned by Login.
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	UserType string `json:"userType"`
}

// Player is one directory entry. Info is free-form.
type Player struct {
	ID   int                    `json:"id"`
	Info map[string]interface{} `json:"info,omitempty"`
}

// BodyMassKg returns the player's mass from info.body_mass_kg, falling back
// to info.weight.
func (p Player) BodyMassKg() (float64, bool) {
	for _, key := range []string{"body_mass_kg", "weight"} {
		switch v := p.Info[key].(type) {
		case float64:
			if v > 0 {
				return v, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
				return f, true
			}
		}
	}
	return 0, false
}

// Client talks to the directory. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    httputil.HTTPClient

	mu            sync.Mutex
	cookies       map[string]*http.Cookie
	authenticated bool
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		cookies: make(map[string]*http.Cookie),
	}
}

// Authenticated reports whether the client holds a session.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Login establishes a session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out struct {
		Success bool  `json:"success"`
		User    *User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if !out.Success || out.User == nil {
		return nil, errors.New("login failed: unknown error")
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	return out.User, nil
}

// Players lists every player.
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	var out struct {
		Data []Player `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/players", &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []Player{}
	}
	return out.Data, nil
}

// Player fetches one player by id.
func (c *Client) Player(ctx context.Context, id int) (*Player, error) {
	var out struct {
		Data *Player `json:"data"`
	}
	err := c.getJSON(ctx, "/api/players/"+strconv.Itoa(id), &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: id %d", ErrPlayerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%w: id %d", ErrPlayerNotFound, id)
	}
	return out.Data, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed: HTTP %d", resp.StatusCode)
	}
	c.forget()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.forget()
		return ErrSessionExpired
	default:
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// do sends a request carrying the session cookies and stores any cookies
// the reply sets.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.mu.Lock()
	for _, ck := range resp.Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	c.mu.Unlock()
	return resp, nil
}

func (c *Client) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = false
	c.cookies = make(map[string]*http.Cookie)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
