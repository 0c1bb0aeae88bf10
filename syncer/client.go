package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/ims_backend/utils"
)

const siteTokenLifespan = 5 * time.Minute

// TransportError is a network or HTTP failure talking to the sync server.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("sync %s: server returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ClientConfig struct {
	BaseURL   string
	APIKey    string
	JWTSecret string
	SiteId    string
	Timeout   time.Duration
}

// Transport is what the coordinator needs from the sync server.
type Transport interface {
	Pull(ctx context.Context, since int64) (*ChangeSet, error)
	Push(ctx context.Context, payload *ChangeSet) (*PushResponse, error)
}

// Client speaks the JSON sync protocol over HTTP.
type Client struct {
	baseURL   string
	apiKey    string
	jwtSecret []byte
	siteId    string
	http      *http.Client
	signToken func(secret []byte, siteId string, lifespan time.Duration) (string, error)
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sync server url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		jwtSecret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		siteId:    cfg.SiteId,
		http:      &http.Client{Timeout: timeout},
		signToken: utils.SiteTokenGenerate,
	}, nil
}

func (c *Client) Pull(ctx context.Context, since int64) (*ChangeSet, error) {
	var changes ChangeSet
	if err := c.post(ctx, "pull", "/sync/pull", PullRequest{Since: since}, &changes); err != nil {
		return nil, err
	}
	return &changes, nil
}

func (c *Client) Push(ctx context.Context, payload *ChangeSet) (*PushResponse, error) {
	var resp PushResponse
	if err := c.post(ctx, "push", "/sync/push", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Versions == nil {
		resp.Versions = map[string]int64{}
	}
	return &resp, nil
}

func (c *Client) authorization() (string, error) {
	if len(c.jwtSecret) > 0 {
		token, err := c.signToken(c.jwtSecret, c.siteId, siteTokenLifespan)
		if err != nil {
			return "", fmt.Errorf("sign site token: %w", err)
		}
		return "Bearer " + token, nil
	}
	if c.apiKey != "" {
		return "Bearer " + c.apiKey, nil
	}
	return "", nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	auth, err := c.authorization()
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
