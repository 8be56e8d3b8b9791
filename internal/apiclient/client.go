// Package apiclient talks to the tracker HTTP API on behalf of the terminal client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/app/session"
	"ttrpg-tracker/internal/platform/cache"
)

const (
	KeySessionToken  = "sessionToken"
	KeySessionEmail  = "sessionEmail"
	KeySessionUserID = "sessionUserID"
)

var ErrUnauthorized = errors.New("not signed in")

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache replaces the in-process read cache.
func WithCache(qc *query.Cache) Option {
	return func(c *Client) { c.cache = qc }
}

// Client implements session.Provider and the board syncers over HTTP. Reads
// are cached per user and character; every successful write drops the entry.
type Client struct {
	baseURL string
	http    *http.Client
	store   session.Storage
	cache   *query.Cache
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
}

func New(baseURL string, store session.Storage, logger zerolog.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		mem, err := cache.NewMemoryStore(64, nil)
		if err != nil {
			return nil, err
		}
		c.cache = query.New(mem, query.DefaultTTL, logger)
	}
	if tok, ok := store.Get(KeySessionToken); ok {
		c.token = tok
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// apiError carries a non-2xx response until it is mapped for the caller.
type apiError struct {
	Status int
	Body   errorBody
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Body.Code, e.Body.Error)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("api call")

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &apiError{Status: resp.StatusCode, Body: eb}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Unavailable("decode "+path, err)
	}
	return nil
}

// resourceError maps a failed data call onto the shared error taxonomy.
func resourceError(err error) error {
	var ae *apiError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.Body.Code {
	case "invalid-input":
		return apperr.Invalid("%s", strings.TrimPrefix(ae.Body.Error, apperr.ErrInvalidInput.Error()+": "))
	case "limit-exceeded":
		return fmt.Errorf("%w: %s", apperr.ErrLimitExceeded, ae.Body.Error)
	case "not-found":
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, ae.Body.Error)
	case "unauthorized":
		return ErrUnauthorized
	default:
		return apperr.Unavailable("api", ae)
	}
}

// authError maps a failed sign-in or sign-up onto a provider error code.
func authError(err error) error {
	var ae *apiError
	if !errors.As(err, &ae) {
		return err
	}
	code := session.Code(ae.Body.Code)
	switch code {
	case session.CodeInvalidCredential, session.CodeWrongPassword, session.CodeUserNotFound,
		session.CodeEmailInUse, session.CodeInvalidEmail, session.CodeWeakPassword, session.CodeTooManyRequests:
		return &session.AuthError{Code: code, Err: ae}
	default:
		return &session.AuthError{Code: session.CodeUnknown, Err: ae}
	}
}

type authResult struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Token  string    `json:"token"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (session.User, error) {
	return c.authenticate(ctx, "/v1/auth/login", email, password)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (session.User, error) {
	return c.authenticate(ctx, "/v1/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (session.User, error) {
	var res authResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return session.User{}, authError(err)
	}
	u := session.User{ID: res.UserID, Email: res.Email, Token: res.Token}
	if err := c.persist(u); err != nil {
		return session.User{}, err
	}
	return u, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil); err != nil {
		c.logger.Warn().Err(err).Msg("server logout failed; clearing local session anyway")
	}
	return c.persist(session.User{})
}

// CurrentUser restores the saved session and confirms it with the server.
// A rejected token clears the saved session and reports no user.
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var me struct {
		UserID uuid.UUID `json:"user_id"`
		Email  string    `json:"email"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, &me); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusUnauthorized {
			return nil, c.persist(session.User{})
		}
		return nil, err
	}
	return &session.User{ID: me.UserID, Email: me.Email, Token: c.Token()}, nil
}

func (c *Client) persist(u session.User) error {
	c.mu.Lock()
	c.token = u.Token
	c.mu.Unlock()
	if u.Token == "" {
		return errors.Join(
			c.store.Delete(KeySessionToken),
			c.store.Delete(KeySessionEmail),
			c.store.Delete(KeySessionUserID),
		)
	}
	return errors.Join(
		c.store.Set(KeySessionToken, u.Token),
		c.store.Set(KeySessionEmail, u.Email),
		c.store.Set(KeySessionUserID, u.ID.String()),
	)
}
