// Package client talks to the supportdesk HTTP API and exposes it as a
// store.TicketStore, so callers can swap it for any local engine.
package client

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
	"time"

	"github.com/golang-jwt/jwt/v5"

	"supportdesk/internal/auth"
	"supportdesk/internal/model"
	"supportdesk/internal/store"
)

var (
	// ErrUnavailable marks transport failures, timeouts and 5xx answers.
	ErrUnavailable = errors.New("support service unavailable")
	ErrNoSession   = errors.New("staff session required")
)

const defaultTimeout = 10 * time.Second

// Session is the credential a staff member obtains at login. It is passed
// explicitly to every call that needs it.
type Session struct {
	Token     string
	Identity  model.Identity
	ExpiresAt time.Time
}

func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
}

var _ store.TicketStore = (*Client)(nil)

func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
	}
}

// WithSession returns a copy of c that authenticates as session.
func (c *Client) WithSession(session Session) *Client {
	cp := *c
	cp.session = session
	return &cp
}

func (c *Client) Session() Session {
	return c.session
}

type loginResponse struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

type verifyResponse struct {
	Valid bool           `json:"valid"`
	User  model.Identity `json:"user"`
}

type createResponse struct {
	TicketID   string `json:"ticketId"`
	ClientName string `json:"clientName"`
}

func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return Session{}, auth.ErrInvalidCredentials
		}
		return Session{}, err
	}

	session := Session{Token: resp.Token, Identity: resp.User}
	var claims auth.Claims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, &claims); err == nil && claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (c *Client) Verify(ctx context.Context, session Session) (model.Identity, error) {
	if session.Token == "" {
		return model.Identity{}, ErrNoSession
	}
	var resp verifyResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", session.Token, nil, &resp); err != nil {
		return model.Identity{}, err
	}
	return resp.User, nil
}

func (c *Client) CreateTicket(ctx context.Context, clientName string) (model.Ticket, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": clientName}, &resp); err != nil {
		return model.Ticket{}, err
	}
	conv, err := c.GetTicket(ctx, resp.TicketID)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("fetch created ticket %s: %w", resp.TicketID, err)
	}
	return conv.Ticket, nil
}

func (c *Client) GetTicket(ctx context.Context, id string) (model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, http.MethodGet, ticketPath(id), "", nil, &conv); err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

func (c *Client) ListTickets(ctx context.Context) ([]model.Conversation, error) {
	if c.session.Token == "" {
		return nil, ErrNoSession
	}
	var convs []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/tickets", c.session.Token, nil, &convs); err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

// AppendMessage routes support messages through the authenticated reply
// endpoint and everything else through the public one.
func (c *Client) AppendMessage(ctx context.Context, ticketID, content string, sender model.Sender) (model.Message, error) {
	var msg model.Message
	if sender == model.SenderSupport {
		if c.session.Token == "" {
			return model.Message{}, ErrNoSession
		}
		err := c.do(ctx, http.MethodPost, ticketPath(ticketID)+"/reply", c.session.Token,
			map[string]string{"content": content}, &msg)
		return msg, err
	}
	err := c.do(ctx, http.MethodPost, ticketPath(ticketID)+"/messages", "",
		map[string]string{"content": content, "sender": string(sender)}, &msg)
	return msg, err
}

func (c *Client) SetStatus(ctx context.Context, ticketID string, status model.Status) error {
	if c.session.Token == "" {
		return ErrNoSession
	}
	return c.do(ctx, http.MethodPatch, ticketPath(ticketID), c.session.Token,
		map[string]string{"status": string(status)}, nil)
}

func ticketPath(id string) string {
	return "/api/tickets/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func statusError(code int, payload []byte) error {
	var body errorBody
	_ = json.Unmarshal(payload, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch {
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", store.ErrValidation, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", auth.ErrUnauthenticated, msg)
	case code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", auth.ErrInvalidToken, msg)
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, code, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, msg)
	}
}
