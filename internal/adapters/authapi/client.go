package authapi

// Package authapi is the HTTP client for the external authentication API.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
	statusPending   = "pending"
)

var _ ports.AuthBackend = (*Client)(nil)

// Config holds configuration for the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional, built from Timeout when nil
	Mapper     *UserMapper  // Optional, DefaultUserMapping when nil
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client talks to the backend authentication endpoints.
type Client struct {
	base   *url.URL
	http   *http.Client
	mapper *UserMapper
	logger *slog.Logger
	now    func() time.Time

	// timeout bounds shared resolutions, which outlive their first caller.
	timeout   time.Duration
	resolving singleflight.Group
}

// NewClient validates the base URL and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse auth base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("auth base URL must be http(s), got %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, errors.New("auth base URL has no host")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	mapper := cfg.Mapper
	if mapper == nil {
		mapper, err = NewUserMapper(DefaultUserMapping)
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		base:    base,
		http:    httpClient,
		mapper:  mapper,
		logger:  logger.With("component", "auth_api"),
		now:     now,
		timeout: timeout,
	}, nil
}

// credentialsBody is the login / approved-registration payload.
type credentialsBody struct {
	Token     string         `json:"token"`
	User      map[string]any `json:"user"`
	ExpiresAt *time.Time     `json:"expires_at"`
	ExpiresIn int64          `json:"expires_in"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Redirect  string         `json:"redirect_to"`
}

// errorBody is what the backend returns on 4xx.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Field   string `json:"field"`
}

func (e errorBody) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Login exchanges an email/password pair for credentials.
func (c *Client) Login(ctx context.Context, email, password string) (domainauth.Credentials, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domainauth.Credentials{}, err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		var body credentialsBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return domainauth.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode login response")
		}
		return c.credentials(ctx, body)
	case status == http.StatusBadRequest || status == http.StatusUnauthorized ||
		status == http.StatusForbidden || status == http.StatusUnprocessableEntity:
		return domainauth.Credentials{}, apperrors.InvalidCredentials(decodeError(raw).text())
	default:
		// Other statuses (404, 405, ...) indicate a misconfigured backend.
		return domainauth.Credentials{}, apperrors.Network(fmt.Errorf("login: backend status %d", status))
	}
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "register", "", in)
	if err != nil {
		return domainauth.RegistrationResult{}, err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted:
		var body credentialsBody
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				if status == http.StatusAccepted {
					// The account exists; an unreadable body must not turn that into a failure.
					return domainauth.NewPendingApproval(""), nil
				}
				return domainauth.RegistrationResult{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode register response")
			}
		}
		if status == http.StatusAccepted || strings.EqualFold(body.Status, statusPending) || body.Token == "" {
			return domainauth.NewPendingApproval(body.Message), nil
		}
		creds, err := c.credentials(ctx, body)
		if err != nil {
			return domainauth.RegistrationResult{}, err
		}
		return domainauth.NewApproved(domainauth.Approved{RedirectTarget: body.Redirect, Credentials: creds}), nil
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return domainauth.RegistrationResult{}, apperrors.Network(fmt.Errorf("register: backend status %d", status))
	default:
		e := decodeError(raw)
		msg := e.text()
		if msg == "" {
			msg = "Registration was rejected."
		}
		return domainauth.RegistrationResult{}, apperrors.ValidationField(e.Field, msg)
	}
}

// ResolveToken returns the user a token belongs to. Concurrent resolutions
// of the same token share one request.
func (c *Client) ResolveToken(ctx context.Context, token string) (domainauth.User, error) {
	if token == "" {
		return domainauth.User{}, apperrors.SessionExpired(errors.New("empty token"))
	}
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	ch := c.resolving.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.resolve(shared, token)
	})
	select {
	case <-ctx.Done():
		return domainauth.User{}, apperrors.Network(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domainauth.User{}, res.Err
		}
		return res.Val.(domainauth.User).Clone(), nil
	}
}

func (c *Client) resolve(ctx context.Context, token string) (domainauth.User, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "me", token, nil)
	if err != nil {
		return domainauth.User{}, err
	}
	switch {
	case status == http.StatusOK:
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode user")
		}
		if nested, ok := doc["user"].(map[string]any); ok {
			doc = nested
		}
		u, err := c.mapper.Map(doc)
		if err != nil {
			return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "map user")
		}
		return u, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domainauth.User{}, apperrors.SessionExpired(fmt.Errorf("resolve token: backend status %d", status))
	default:
		return domainauth.User{}, apperrors.Network(fmt.Errorf("resolve token: backend status %d", status))
	}
}

// Revoke invalidates a token at the backend.
func (c *Client) Revoke(ctx context.Context, token string) error {
	status, _, err := c.do(ctx, http.MethodPost, "logout", token, nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest && status != http.StatusUnauthorized {
		return fmt.Errorf("revoke token: backend status %d", status)
	}
	return nil
}

func (c *Client) credentials(ctx context.Context, body credentialsBody) (domainauth.Credentials, error) {
	if body.Token == "" {
		return domainauth.Credentials{}, apperrors.Internalf("backend returned no token")
	}
	creds := domainauth.Credentials{Token: body.Token}
	switch {
	case body.ExpiresAt != nil:
		creds.ExpiresAt = *body.ExpiresAt
	case body.ExpiresIn > 0:
		creds.ExpiresAt = c.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	if body.User == nil {
		u, err := c.ResolveToken(ctx, body.Token)
		if err != nil {
			return domainauth.Credentials{}, fmt.Errorf("resolve new token: %w", err)
		}
		creds.User = u
		return creds, nil
	}
	u, err := c.mapper.Map(body.User)
	if err != nil {
		return domainauth.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "map user")
	}
	creds.User = u
	return creds, nil
}

// do sends one request and returns the status and body. Only transport
// failures are returned as errors, already mapped to Network.
func (c *Client) do(ctx context.Context, method, path, bearer string, payload any) (int, []byte, error) {
	endpoint := c.base.JoinPath(path).String()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.http
	if bearer != "" {
		client = oauth2.NewClient(
			context.WithValue(ctx, oauth2.HTTPClient, c.http),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}),
		)
	}

	start := c.now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "auth backend unreachable", "path", path, "error", err)
		return 0, nil, apperrors.Network(err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, apperrors.Network(fmt.Errorf("read %s response: %w", path, err))
	}
	c.logger.DebugContext(ctx, "auth backend call",
		"method", method, "path", path, "status", resp.StatusCode, "elapsed", c.now().Sub(start))
	return resp.StatusCode, raw, nil
}

func decodeError(raw []byte) errorBody {
	var e errorBody
	_ = json.Unmarshal(raw, &e)
	return e
}
