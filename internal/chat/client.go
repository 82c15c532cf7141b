// Package chat implements the workspace transport: a cursor-based pending
// events read, a post-message call, and the identity lookups the bot needs
// to recognize mentions and name users and channels.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Event is one pending workspace event returned by events.poll
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // only "message" events are consumed
	Text      string `json:"text"`
	UserID    string `json:"user"`
	ChannelID string `json:"channel"`
	Subtype   string `json:"subtype,omitempty"`
	TS        string `json:"ts"`
}

// User is a workspace member
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"is_bot"`
}

// Channel is a workspace conversation
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiResponse is the generic envelope every workspace call returns
type apiResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Cursor string `json:"cursor,omitempty"`

	Events   []Event   `json:"events,omitempty"`
	Members  []User    `json:"members,omitempty"`
	User     *User     `json:"user,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// Client talks to the workspace API. It is safe for concurrent use: workers
// post replies while the receive loop polls
type Client struct {
	token   string
	botName string
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	cursor   string
	botID    string
	users    map[string]string // user id -> display name
	channels map[string]string // channel id -> name
}

// NewClient creates a workspace client. No network I/O happens until Connect
func NewClient(baseURL, token, botName string) *Client {
	return &Client{
		token:    token,
		botName:  botName,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		users:    make(map[string]string),
		channels: make(map[string]string),
	}
}

// Connect resolves the bot's own user id from the member list so mentions
// can be recognized
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.call(ctx, "users.list", nil)
	if err != nil {
		return fmt.Errorf("workspace users list failed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, member := range resp.Members {
		c.users[member.ID] = member.Name
		if member.Name == c.botName {
			c.botID = member.ID
		}
	}
	if c.botID == "" {
		return fmt.Errorf("bot user %q not found in workspace", c.botName)
	}
	return nil
}

// BotID returns the bot's resolved user id, empty before Connect
func (c *Client) BotID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.botID
}

// Poll reads pending events since the held cursor. The cursor advances only
// on a successful read
func (c *Client) Poll(ctx context.Context) ([]Event, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}

	resp, err := c.call(ctx, "events.poll", params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if resp.Cursor != "" {
		c.cursor = resp.Cursor
	}
	c.mu.Unlock()

	return resp.Events, nil
}

// PostMessage sends a message to a channel
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	_, err := c.call(ctx, "chat.postMessage", map[string]any{
		"channel": channelID,
		"text":    text,
		"as_user": true,
	})
	return err
}

// Username resolves a user id to a display name. Unknown or failed lookups
// return "friend" so formatting never breaks
func (c *Client) Username(ctx context.Context, userID string) string {
	if userID == "" {
		return "friend"
	}

	c.mu.Lock()
	if name, ok := c.users[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	resp, err := c.call(ctx, "users.info", map[string]any{"user": userID})
	if err != nil || resp.User == nil || resp.User.Name == "" {
		return "friend"
	}

	c.mu.Lock()
	c.users[userID] = resp.User.Name
	c.mu.Unlock()
	return resp.User.Name
}

// ChannelName resolves a channel id to its name, or "" when unknown (direct
// message channels have no name)
func (c *Client) ChannelName(ctx context.Context, channelID string) string {
	c.mu.Lock()
	if name, ok := c.channels[channelID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	resp, err := c.call(ctx, "channels.list", nil)
	if err != nil {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range resp.Channels {
		c.channels[ch.ID] = ch.Name
	}
	return c.channels[channelID]
}

// call posts one workspace API method
func (c *Client) call(ctx context.Context, method string, params map[string]any) (*apiResponse, error) {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("workspace API error: %s", apiResp.Error)
	}
	return &apiResp, nil
}
