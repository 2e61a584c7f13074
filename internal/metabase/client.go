package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

const healthPollInterval = 2 * time.Second

// Client is a thin session-authenticated wrapper over the Metabase REST API.
// RetryMax defaults to 0, so every call is attempted exactly once unless the
// operator opts into retries.
type Client struct {
	base    string
	http    *retryablehttp.Client
	session string
}

// NewClient builds a client for the configured Metabase instance.
func NewClient(cfg models.Metabase) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = 60 * time.Second

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: rc,
	}
}

// Session returns the current session id, empty before login.
func (c *Client) Session() string {
	return c.session
}

// do performs one API call. A non-2xx status is returned as both the status
// code and an error carrying a response snippet.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, errors.MetabaseError("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set("X-Metabase-Session", c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.MetabaseError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.MetabaseError("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.New(errors.ErrCodeMetabaseRequest,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)).
			WithContext("body", snippet(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, errors.MetabaseError(
				fmt.Sprintf("failed to decode %s response", path), err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	_, err := c.do(ctx, http.MethodGet, path, nil, out)
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.do(ctx, http.MethodPost, path, body, out)
	return err
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	_, err := c.do(ctx, http.MethodPut, path, body, out)
	return err
}

func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// WaitHealthy polls /api/health until the instance reports ok or the
// deadline passes.
func (c *Client) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var health struct {
			Status string `json:"status"`
		}
		if err := c.get(ctx, "/api/health", &health); err == nil &&
			strings.EqualFold(health.Status, "ok") {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.New(errors.ErrCodeConnectionTimeout,
				fmt.Sprintf("Metabase at %s not healthy after %s", c.base, timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}
}

// Login authenticates against an initialized instance.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var session struct {
		ID string `json:"id"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/session",
		map[string]string{"username": email, "password": password}, &session)
	if err != nil {
		if status == http.StatusUnauthorized {
			return errors.Wrap(err, errors.ErrCodeAuthenticationFailed, "Metabase login rejected")
		}
		return err
	}
	if session.ID == "" {
		return errors.New(errors.ErrCodeAuthenticationFailed, "Metabase login returned no session id")
	}
	c.session = session.ID
	return nil
}

// LoginOrSetup authenticates, running first-time setup when the instance has
// never been initialized. A 401 with a setup token available means the admin
// user does not exist yet; anything else is a real authentication failure.
func (c *Client) LoginOrSetup(ctx context.Context, email, password, siteName string) error {
	err := c.Login(ctx, email, password)
	if err == nil {
		return nil
	}
	if errors.GetErrorCode(err) != errors.ErrCodeAuthenticationFailed {
		return err
	}

	token, propErr := c.setupToken(ctx)
	if propErr != nil || token == "" {
		return errors.Wrap(err, errors.ErrCodeAuthenticationFailed,
			"unauthorized and no setup token available, check MB_EMAIL/MB_PASS")
	}
	return c.setup(ctx, email, password, siteName, token)
}

// setupToken reads the one-time token handed out by an uninitialized
// instance. Both spellings appear across Metabase versions.
func (c *Client) setupToken(ctx context.Context) (string, error) {
	var props map[string]interface{}
	if err := c.get(ctx, "/api/session/properties", &props); err != nil {
		return "", err
	}
	for _, key := range []string{"setup_token", "setup-token"} {
		if token, ok := props[key].(string); ok && token != "" {
			return token, nil
		}
	}
	return "", nil
}

// setup creates the admin user. Different Metabase versions accept the site
// name in different places, so both payload shapes are tried.
func (c *Client) setup(ctx context.Context, email, password, siteName, token string) error {
	user := map[string]string{
		"first_name": "Admin",
		"last_name":  "User",
		"email":      email,
		"password":   password,
	}
	variants := []map[string]interface{}{
		{"token": token, "user": user, "site_name": siteName,
			"prefs": map[string]interface{}{"allow_tracking": false}},
		{"token": token, "user": user,
			"prefs": map[string]interface{}{"site_name": siteName, "allow_tracking": false}},
	}

	var lastErr error
	for _, payload := range variants {
		var session struct {
			ID string `json:"id"`
		}
		if err := c.post(ctx, "/api/setup", payload, &session); err != nil {
			lastErr = err
			continue
		}
		if session.ID != "" {
			c.session = session.ID
			return nil
		}
		lastErr = errors.New(errors.ErrCodeMetabaseSetup, "setup returned no session id")
	}
	return errors.Wrap(lastErr, errors.ErrCodeMetabaseSetup, "first-time setup failed")
}

func snippet(data []byte) string {
	s := string(data)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
