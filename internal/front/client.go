// Package front is a narrow, rate-limited reader for the Front conversation
// API. It knows nothing about the migration target; it only lists
// conversations, their messages, and the tag/inbox taxonomy.
package front

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joshsymonds/frontporter/internal/rate"
	"github.com/joshsymonds/frontporter/internal/retry"
)

// DefaultBaseURL is the public Front API endpoint.
const DefaultBaseURL = "https://api2.frontapp.com"

const (
	pageSize      = 100
	maxInFlight   = 2
	clientTimeout = 30 * time.Second
)

// ErrNoCredentials is returned by NewClient when no API token was supplied.
var ErrNoCredentials = errors.New("front: no API token provided")

// AuthError reports a credential rejection. It is never retried; the run
// cannot make forward progress without a valid token.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("front: authentication rejected (status %d): %s", e.StatusCode, e.Body)
}

// StatusError is a non-2xx response that is not an auth rejection.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("front: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable classifies Front API errors for the retry policy: rate
// limiting, server-side failures, and transient connection errors only.
func IsRetryable(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// Config carries the client's construction parameters. Token is required;
// everything else has a default.
type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	// RPS optionally caps requests per second on top of the admission limit.
	RPS    int
	Logger *slog.Logger
}

// Client reads conversations from Front with bounded concurrency and retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	adm     *rate.Admission
	rps     rate.Limiter
	log     *slog.Logger
	policy  retry.Policy
}

// NewClient builds a Front client. It fails fast when the credential
// collaborator could not provide a token.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoCredentials
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: clientTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		adm:     rate.NewAdmission(maxInFlight),
		log:     logger,
		policy:  retry.DefaultPolicy(IsRetryable),
	}
	if cfg.RPS > 0 {
		c.rps = rate.NewTokenBucket(cfg.RPS)
	}
	return c, nil
}

type page[T any] struct {
	Pagination struct {
		Next string `json:"next"`
	} `json:"_pagination"`
	Results []T `json:"_results"`
}

// ListConversations returns every conversation, in pagination order, with
// messages attached. An optional inbox ID restricts the listing to that inbox.
func (c *Client) ListConversations(ctx context.Context, inboxID string) ([]Conversation, error) {
	path := "/conversations"
	if inboxID != "" {
		path = fmt.Sprintf("/inboxes/%s/conversations", url.PathEscape(inboxID))
	}
	convs, err := collect[Conversation](ctx, c, fmt.Sprintf("%s%s?limit=%d", c.baseURL, path, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for i := range convs {
		msgs, err := c.listMessages(ctx, convs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list messages for %s: %w", convs[i].ID, err)
		}
		convs[i].Messages = msgs
	}
	c.log.InfoContext(ctx, "fetched conversations", "count", len(convs), "inbox", inboxID)
	return convs, nil
}

func (c *Client) listMessages(ctx context.Context, conversationID string) ([]Message, error) {
	u := fmt.Sprintf("%s/conversations/%s/messages?limit=%d", c.baseURL, url.PathEscape(conversationID), pageSize)
	return collect[Message](ctx, c, u)
}

// ListInboxes returns the inbox taxonomy. Not paginated beyond the first page
// in practice, but next tokens are followed if present.
func (c *Client) ListInboxes(ctx context.Context) ([]Inbox, error) {
	out, err := collect[Inbox](ctx, c, c.baseURL+"/inboxes")
	if err != nil {
		return nil, fmt.Errorf("list inboxes: %w", err)
	}
	return out, nil
}

// ListTags returns the tag taxonomy.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	out, err := collect[Tag](ctx, c, c.baseURL+"/tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out, nil
}

// collect follows _pagination.next until the provider signals no further pages.
func collect[T any](ctx context.Context, c *Client, firstURL string) ([]T, error) {
	var all []T
	next := firstURL
	for next != "" {
		var pg page[T]
		if err := c.getJSON(ctx, next, &pg); err != nil {
			return nil, err
		}
		all = append(all, pg.Results...)
		next = pg.Pagination.Next
	}
	return all, nil
}

// getJSON performs one admission-limited, retried GET and decodes the body.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.doOnce(ctx, rawURL, out)
	})
	return err
}

func (c *Client) doOnce(ctx context.Context, rawURL string, out any) error {
	if err := c.adm.Acquire(ctx); err != nil {
		return err
	}
	defer c.adm.Release()
	if c.rps != nil {
		if err := c.rps.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
