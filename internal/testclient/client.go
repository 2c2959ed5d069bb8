// Package testclient drives a running Questify server over its public REST
// and WebSocket API. It is used by the integration scenarios in test/.
package testclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/engine"
)

// DefaultPassword satisfies the server's password policy.
const DefaultPassword = "Password123"

// TestClient is one authenticated user talking to the server.
type TestClient struct {
	Name    string
	baseURL string
	http    *http.Client
	token   string

	conn    *websocket.Conn
	updates []engine.UserStatsUpdate
	mu      sync.Mutex
	done    chan struct{}
}

// Credentials holds login/registration information
type Credentials struct {
	Username string
	Password string
	Email    string
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status   int
	Code     string
	Message  string
	Metadata map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// AttackResponse mirrors PUT /api/boss/attack. Rewards is set only on the
// defeating hit.
type AttackResponse struct {
	engine.BossView
	Damage  int                 `json:"damage"`
	Rewards *engine.RewardDelta `json:"rewards,omitempty"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// NewTestClientRaw creates a client with no account. baseURL is the server
// root, e.g. "http://localhost:8080".
func NewTestClientRaw(baseURL string) *TestClient {
	return &TestClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTestClient registers a fresh account named name with DefaultPassword.
// This is the primary way to create test clients.
func NewTestClient(name string, baseURL string) (*TestClient, error) {
	client := NewTestClientRaw(baseURL)
	err := client.Register(Credentials{
		Username: name,
		Password: DefaultPassword,
		Email:    strings.ToLower(name) + "@example.com",
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return client, nil
}

// NewTestClientWithLogin logs in to an existing account.
func NewTestClientWithLogin(creds Credentials, baseURL string) (*TestClient, error) {
	client := NewTestClientRaw(baseURL)
	if err := client.Login(creds); err != nil {
		return nil, fmt.Errorf("login %s: %w", creds.Username, err)
	}
	return client, nil
}

// Register creates the account and keeps the returned token.
func (c *TestClient) Register(creds Credentials) error {
	body := map[string]string{"username": creds.Username, "password": creds.Password}
	if creds.Email != "" {
		body["email"] = creds.Email
	}
	return c.authenticate("/auth/register", body)
}

// Login exchanges credentials for a token.
func (c *TestClient) Login(creds Credentials) error {
	return c.authenticate("/auth/login", map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
}

func (c *TestClient) authenticate(path string, body map[string]string) error {
	var resp tokenResponse
	if err := c.Do(http.MethodPost, path, body, &resp); err != nil {
		return err
	}
	c.Name = resp.Username
	c.token = resp.Token
	return nil
}

// Token returns the bearer token, empty before a successful login.
func (c *TestClient) Token() string {
	return c.token
}

// SetToken replaces the bearer token sent with API calls.
func (c *TestClient) SetToken(token string) {
	c.token = token
}

// Do sends one JSON request. A 2xx body is decoded into out when out is not
// nil; anything else comes back as an *APIError.
func (c *TestClient) Do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code     string            `json:"code"`
				Message  string            `json:"message"`
				Metadata map[string]string `json:"metadata"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Metadata = envelope.Error.Metadata
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ErrorCode returns the API error code carried by err, or "" when err is not
// an *APIError.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func (c *TestClient) Me() (*engine.Profile, error) {
	var p engine.Profile
	return &p, c.Do(http.MethodGet, "/api/users/me", nil, &p)
}

func (c *TestClient) ActiveBoss() (*engine.BossView, error) {
	var b engine.BossView
	return &b, c.Do(http.MethodGet, "/api/boss/active", nil, &b)
}

func (c *TestClient) Selection() ([]boss.Definition, error) {
	var bosses []boss.Definition
	err := c.Do(http.MethodGet, "/api/boss/selection", nil, &bosses)
	return bosses, err
}

func (c *TestClient) SelectBoss(id string) (*engine.BossView, error) {
	var resp struct {
		Boss *engine.BossView `json:"boss"`
	}
	if err := c.Do(http.MethodPost, "/api/boss/select/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Boss, nil
}

func (c *TestClient) Attack(damage int) (*AttackResponse, error) {
	var resp AttackResponse
	return &resp, c.Do(http.MethodPut, "/api/boss/attack", map[string]int{"damage": damage}, &resp)
}

func (c *TestClient) DefeatHistory(limit int) ([]engine.DefeatRecord, error) {
	var records []engine.DefeatRecord
	err := c.Do(http.MethodGet, fmt.Sprintf("/api/boss/history?limit=%d", limit), nil, &records)
	return records, err
}

func (c *TestClient) CreateTask(title, dueDate string) (*engine.TaskView, error) {
	var t engine.TaskView
	body := map[string]string{"title": title, "dueDate": dueDate}
	return &t, c.Do(http.MethodPost, "/api/tasks", body, &t)
}

func (c *TestClient) CompleteTask(id string) (*engine.CompletionResult, error) {
	var r engine.CompletionResult
	return &r, c.Do(http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/complete", nil, &r)
}

func (c *TestClient) CreateHabit(title, frequency, difficulty string) (*engine.HabitView, error) {
	var h engine.HabitView
	body := map[string]string{"title": title, "frequency": frequency, "difficulty": difficulty}
	return &h, c.Do(http.MethodPost, "/api/habits", body, &h)
}

func (c *TestClient) CompleteHabit(id string) (*engine.CompletionResult, error) {
	var r engine.CompletionResult
	return &r, c.Do(http.MethodPut, "/api/habits/"+url.PathEscape(id)+"/complete", nil, &r)
}

func (c *TestClient) ResetHabit(id string) (*engine.HabitView, error) {
	var h engine.HabitView
	return &h, c.Do(http.MethodPut, "/api/habits/"+url.PathEscape(id)+"/reset", nil, &h)
}

// Subscribe opens the user-stats push channel and collects updates in the
// background until Close.
func (c *TestClient) Subscribe() error {
	if c.conn != nil {
		return nil
	}
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/user-stats?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readUpdates()
	return nil
}

func (c *TestClient) readUpdates() {
	defer close(c.done)
	for {
		var update engine.UserStatsUpdate
		if err := c.conn.ReadJSON(&update); err != nil {
			return
		}
		c.mu.Lock()
		c.updates = append(c.updates, update)
		c.mu.Unlock()
	}
}

// GetUpdates returns a copy of all received stat updates.
func (c *TestClient) GetUpdates() []engine.UserStatsUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]engine.UserStatsUpdate, len(c.updates))
	copy(out, c.updates)
	return out
}

// ClearUpdates discards received updates.
func (c *TestClient) ClearUpdates() {
	c.mu.Lock()
	c.updates = nil
	c.mu.Unlock()
}

// WaitForUpdate polls until an update satisfying match arrives or timeout
// elapses.
func (c *TestClient) WaitForUpdate(match func(engine.UserStatsUpdate) bool, timeout time.Duration) (engine.UserStatsUpdate, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, u := range c.GetUpdates() {
			if match(u) {
				return u, true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return engine.UserStatsUpdate{}, false
}

// Close drops the push connection, if any.
func (c *TestClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	c.conn = nil
	return err
}
