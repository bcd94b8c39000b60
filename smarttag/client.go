// Package smarttag is a client for the SMART Tag parent portal API: parent
// account login, token refresh, and retrieval of student and ride records.
package smarttag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultOrigin is the production backend for the parent portal.
const DefaultOrigin = "https://api-parentapp-prod.azurewebsites.net/"

// requestTimeout is the fixed per-request budget. Requests exceeding it fail
// with ErrNetwork and are never retried automatically.
const requestTimeout = 10 * time.Second

// refreshTokenCookie is the cookie carrying the refresh token on login and
// refresh responses. Its value arrives percent-encoded.
const refreshTokenCookie = "refreshToken"

// Client talks to the SMART Tag backend. It owns the credential pair and the
// single-retry refresh protocol for authenticated requests.
//
// A Client is reusable indefinitely but not safe for concurrent use: Login
// and refresh mutate token state, so callers must serialize operations on one
// instance or use one instance per logical session.
type Client struct {
	http   *http.Client
	origin *url.URL
	creds  Credentials
}

// Option configures a Client.
type Option func(*Client) error

// WithOrigin points the client at a different backend origin.
func WithOrigin(origin string) Option {
	return func(c *Client) error {
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("invalid origin %q: %w", origin, err)
		}
		c.origin = u
		return nil
	}
}

// WithCredentials seeds the client with a previously persisted token pair.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) error {
		c.creds = creds
		return nil
	}
}

// New creates a Client using the supplied HTTP client for transport. The
// transport's own timeout, if any, is left alone; every request additionally
// carries the fixed 10 second budget.
func New(httpClient *http.Client, options ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("[smarttag.New] http client is required")
	}

	origin, err := url.Parse(DefaultOrigin)
	if err != nil {
		return nil, err
	}

	c := &Client{http: httpClient, origin: origin}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Credentials returns the token pair currently held, for persistence by the
// host.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// SetCredentials replaces the token pair, typically with one restored from
// the host's storage.
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

// apiResponse is a fully drained HTTP response. Draining inside the request
// path keeps the per-request timeout covering the body read as well.
type apiResponse struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login authenticates with the parent account credentials. Stored tokens are
// cleared first so a failed login never leaves stale credentials behind. The
// provider answers bad credentials with a 400, which is reported as ErrAuth
// rather than the generic classification.
func (c *Client) Login(ctx context.Context, email, password string) error {
	c.creds = Credentials{}

	resp, err := c.apiRequest(ctx, http.MethodPost, "user/login", nil, loginRequest{
		Username: email,
		Password: password,
	})
	if err != nil {
		return err
	}
	if resp.status == http.StatusBadRequest {
		return fmt.Errorf("%w: invalid email or password", ErrAuth)
	}
	if err := c.storeTokens(resp); err != nil {
		return err
	}
	log.Debug().Str("email", email).Msg("logged in to SMART Tag")
	return nil
}

// refreshAccessToken trades the current token pair for a fresh one. Any
// rejection by the refresh endpoint means the session is gone for good and
// the caller has to go through Login again.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	if !c.creds.canRefresh() {
		return fmt.Errorf("%w: not authenticated", ErrAuth)
	}

	resp, err := c.apiRequest(ctx, http.MethodPost, "user/refresh", nil, refreshRequest{
		Token:        c.creds.AccessToken,
		RefreshToken: c.creds.RefreshToken,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNetwork):
		return err
	case isStatusError(err):
		return fmt.Errorf("%w: token refresh rejected, login required (%v)", ErrAuth, err)
	default:
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("%w: token refresh rejected with status %d, login required", ErrAuth, resp.status)
	}
	if err := c.storeTokens(resp); err != nil {
		return err
	}
	log.Debug().Msg("refreshed SMART Tag access token")
	return nil
}

// GetStudents returns the students attached to the parent account.
func (c *Client) GetStudents(ctx context.Context) ([]Student, error) {
	if !c.creds.Authenticated() {
		return nil, fmt.Errorf("%w: not authenticated", ErrAuth)
	}

	resp, err := c.authedGet(ctx, "parent/all-students", nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d listing students", ErrAPI, resp.status)
	}

	var students []Student
	if err := json.Unmarshal(resp.body, &students); err != nil {
		return nil, fmt.Errorf("%w: decode students: %v", ErrAPI, err)
	}
	return students, nil
}

// GetRides returns up to limit of the student's most recent rides, newest
// first as the service orders them.
func (c *Client) GetRides(ctx context.Context, studentID int64, limit int) ([]Ride, error) {
	if !c.creds.Authenticated() {
		return nil, fmt.Errorf("%w: not authenticated", ErrAuth)
	}

	query := url.Values{
		"studentid": {strconv.FormatInt(studentID, 10)},
		"pageIndex": {"0"},
		"pageSize":  {strconv.Itoa(limit)},
	}
	resp, err := c.authedGet(ctx, "student/riding-activity", query)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d listing rides", ErrAPI, resp.status)
	}

	var payload struct {
		Data []Ride `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode rides: %v", ErrAPI, err)
	}
	return payload.Data, nil
}

// authedGet performs an authenticated GET. If the server rejects the bearer
// token (401/403) the client refreshes once and retries the request exactly
// once with the new token; a second failure, or any non-auth failure,
// propagates as-is.
func (c *Client) authedGet(ctx context.Context, path string, query url.Values) (*apiResponse, error) {
	resp, err := c.apiRequest(ctx, http.MethodGet, path, query, nil)
	if err == nil || !errors.Is(err, ErrAuth) || !isStatusError(err) {
		return resp, err
	}

	log.Debug().Str("path", path).Msg("access token rejected, refreshing")
	if err := c.refreshAccessToken(ctx); err != nil {
		return nil, err
	}
	return c.apiRequest(ctx, http.MethodGet, path, query, nil)
}

// storeTokens extracts the access token from a login/refresh response body
// and the optional refresh token from its cookie.
func (c *Client) storeTokens(resp *apiResponse) error {
	var body tokenResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return fmt.Errorf("%w: decode token response: %v", ErrAPI, err)
	}
	if body.Token == "" {
		return fmt.Errorf("%w: token response missing token", ErrAPI)
	}
	c.creds.AccessToken = body.Token

	for _, cookie := range resp.cookies {
		if cookie.Name != refreshTokenCookie {
			continue
		}
		value, err := url.PathUnescape(cookie.Value)
		if err != nil {
			return fmt.Errorf("%w: decode refresh token cookie: %v", ErrAPI, err)
		}
		c.creds.RefreshToken = value
	}
	return nil
}

// statusError marks errors derived from a response status code, as opposed
// to transport failures or local preconditions. The refresh-and-retry path
// only fires on these.
type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isStatusError(err error) bool {
	var se *statusError
	return errors.As(err, &se)
}

// apiRequest issues one HTTP request against the configured origin and
// classifies the outcome. 401/403 always mean ErrAuth regardless of
// endpoint; 400 and 404 are passed through untouched for endpoint-specific
// handling; any other non-success status is an ErrAPI. Timeouts and
// socket/DNS failures are ErrNetwork, and anything else unexpected is
// wrapped into ErrAPI so only the three kinds ever cross the client
// boundary.
func (c *Client) apiRequest(ctx context.Context, method, path string, query url.Values, body any) (*apiResponse, error) {
	u := c.origin.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request body: %v", ErrAPI, err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrAPI, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Attach the bearer token when held. Without one the request still goes
	// out and the server's 401 surfaces through classification below.
	if c.creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		switch {
		case errors.As(err, &urlErr):
			if urlErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: timeout fetching %s: %v", ErrNetwork, path, err)
			}
			return nil, fmt.Errorf("%w: fetching %s: %v", ErrNetwork, path, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrAPI, err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrNetwork, err)
	}

	log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("smarttag api request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &statusError{
			err:    fmt.Errorf("%w: invalid or expired credentials (status %d)", ErrAuth, resp.StatusCode),
			status: resp.StatusCode,
		}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		// Handled per endpoint.
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &statusError{
			err:    fmt.Errorf("%w: unexpected status %d from %s", ErrAPI, resp.StatusCode, path),
			status: resp.StatusCode,
		}
	}

	return &apiResponse{
		status:  resp.StatusCode,
		body:    data,
		cookies: resp.Cookies(),
	}, nil
}
