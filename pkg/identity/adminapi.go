package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdminConfig holds configuration for the identity platform admin API.
type AdminConfig struct {
	BaseURL  string        `env:"IDENTITY_ADMIN_URL,required"`
	APIToken string        `env:"IDENTITY_ADMIN_TOKEN,required"`
	Timeout  time.Duration `env:"IDENTITY_ADMIN_TIMEOUT" envDefault:"10s"`
}

// AdminClient implements Provider against the identity platform's admin
// REST API using bearer-token authentication.
type AdminClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewAdminClient creates an admin API client from config. An optional
// *http.Client may be supplied for transport customization; tests use this
// to point at an httptest server.
func NewAdminClient(cfg AdminConfig, httpClient *http.Client) (*AdminClient, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.APIToken == "" {
		return nil, ErrMissingAPIToken
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &AdminClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:   cfg.APIToken,
		httpClient: httpClient,
	}, nil
}

// GetUser implements Provider.
func (c *AdminClient) GetUser(ctx context.Context, uid string) (*User, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(uid), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail implements Provider.
func (c *AdminClient) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrEmailRequired
	}

	var user User
	path := "/v1/users/by-email/" + url.PathEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetCustomClaims implements Provider.
func (c *AdminClient) SetCustomClaims(ctx context.Context, uid string, claims Claims) error {
	if uid == "" {
		return ErrUIDRequired
	}

	body := struct {
		CustomClaims Claims `json:"customClaims"`
	}{CustomClaims: claims}

	return c.do(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(uid)+"/claims", body, nil)
}

// do performs one admin API request, mapping 404 responses to
// ErrUserNotFound and decoding the response body into out when non-nil.
func (c *AdminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create identity admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity admin request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity admin API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode identity admin response: %w", err)
		}
	}
	return nil
}
