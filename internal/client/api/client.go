// Package api talks to the HTTP side of the chat backend: the conversation
// list, message history, member lists and message submission.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMembersTTL = 60 * time.Second
)

var ErrNoToken = errors.New("api: no token")

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	MembersTTL time.Duration
	Logger     logrus.FieldLogger
}

// Client is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	members *cache.Cache
	log     logrus.FieldLogger

	mu    sync.RWMutex
	token string
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: timeout,
		}
	}
	ttl := opts.MembersTTL
	if ttl <= 0 {
		ttl = DefaultMembersTTL
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		members: cache.New(ttl, 2*ttl),
		log:     log.WithField("component", "api"),
	}
}

// SetToken replaces the bearer token. Cached member lists are dropped because
// they were fetched on behalf of the previous user.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	changed := token != c.token
	c.token = token
	c.mu.Unlock()
	if changed {
		c.members.Flush()
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Chats fetches the conversation list snapshot.
func (c *Client) Chats(ctx context.Context) ([]models.Conversation, error) {
	body, err := c.get(ctx, "/chat")
	if err != nil {
		return nil, err
	}
	return parseChats(body), nil
}

// History fetches the message history of a conversation, oldest first.
func (c *Client) History(ctx context.Context, chatID string) ([]models.Message, error) {
	body, err := c.get(ctx, "/chat/messages/"+url.PathEscape(chatID))
	if err != nil {
		return nil, err
	}
	return parseMessages(chatID, body), nil
}

// Members returns the members of a conversation, cached for the members TTL.
func (c *Client) Members(ctx context.Context, chatID string) ([]models.Member, error) {
	if v, ok := c.members.Get(chatID); ok {
		return v.([]models.Member), nil
	}
	body, err := c.get(ctx, "/chat/members/"+url.PathEscape(chatID))
	if err != nil {
		return nil, err
	}
	members := parseMembers(body)
	c.members.SetDefault(chatID, members)
	return members, nil
}

// InvalidateMembers drops the cached member list of a conversation.
func (c *Client) InvalidateMembers(chatID string) {
	c.members.Delete(chatID)
}

type sendRequest struct {
	Message  string             `json:"message"`
	Type     models.MessageType `json:"type"`
	ClientID string             `json:"clientId,omitempty"`
}

// SendMessage submits a message. It is never retried: a second attempt could
// post the message twice.
func (c *Client) SendMessage(ctx context.Context, chatID, clientID, text string, typ models.MessageType) error {
	if typ == "" {
		typ = models.Text
	}
	payload, err := json.Marshal(sendRequest{Message: text, Type: typ, ClientID: clientID})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/chat/messages/"+url.PathEscape(chatID)+"/send", payload)
	if err != nil {
		c.log.WithError(err).WithField("chat", chatID).Warn("send message")
	}
	return err
}

// get performs a GET and retries it once on transport errors and 5xx responses.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err == nil || !retryable(err) || ctx.Err() != nil {
		return body, err
	}
	c.log.WithError(err).WithField("path", path).Debug("retrying request")
	return c.do(ctx, http.MethodGet, path, nil)
}

func retryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, ErrNoToken)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNoToken
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	return data, nil
}

func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error", "data.message"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	return http.StatusText(status)
}
