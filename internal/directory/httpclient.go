package directory

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

var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client over the platform's JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// HTTPConfig configures the JSON API client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTP creates a Client talking JSON over HTTP to the identity platform.
func NewHTTP(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// do ejecuta un request JSON y decodifica la respuesta en out (si no es nil).
// Mapea 404 → ErrNotFound, 409 → ErrAlreadyExists, 401/403 → ErrUnauthorized.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("directory: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode/100 != 2:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("directory: %s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("directory: decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) RetrieveIntent(ctx context.Context, id, token string) (*IdpIntent, error) {
	var intent IdpIntent
	in := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/v2/idp-intents/"+url.PathEscape(id)+"/consume", in, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) GetIDPByID(ctx context.Context, idpID string) (*IdpConfig, error) {
	var idp IdpConfig
	if err := c.do(ctx, http.MethodGet, "/v2/idps/"+url.PathEscape(idpID), nil, &idp); err != nil {
		return nil, err
	}
	return &idp, nil
}

func (c *HTTPClient) GetUserByID(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/v2/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) ListUsers(ctx context.Context, q ListUsersQuery) ([]User, error) {
	var out struct {
		Result []User `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/users/_search", q, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *HTTPClient) UpdateHuman(ctx context.Context, userID string, upd *UpdateHumanUser) error {
	return c.do(ctx, http.MethodPatch, "/v2/users/"+url.PathEscape(userID), upd, nil)
}

func (c *HTTPClient) AddHuman(ctx context.Context, orgID string, u *AddHumanUser) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	path := "/v2/orgs/" + url.PathEscape(orgID) + "/users"
	if err := c.do(ctx, http.MethodPost, path, u, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *HTTPClient) AddIDPLink(ctx context.Context, idpID, externalUserID, externalUserName, localUserID string) error {
	in := map[string]string{
		"idpId":    idpID,
		"userId":   externalUserID,
		"userName": externalUserName,
	}
	return c.do(ctx, http.MethodPost, "/v2/users/"+url.PathEscape(localUserID)+"/idp-links", in, nil)
}

func (c *HTTPClient) CreateSessionFromIntent(ctx context.Context, req StartSessionRequest) (*SessionResult, error) {
	var out SessionResult
	if err := c.do(ctx, http.MethodPost, "/v2/sessions/idp-intent", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID, sessionToken string) (*Session, error) {
	var s Session
	path := "/v2/sessions/" + url.PathEscape(sessionID) + "?token=" + url.QueryEscape(sessionToken)
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetLoginSettings(ctx context.Context, orgID string) (*LoginSettings, error) {
	var s LoginSettings
	path := "/v2/settings/login?organization=" + url.QueryEscape(orgID)
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetActiveIdentityProviders(ctx context.Context, orgID string, linkingAllowed bool) ([]IdentityProvider, error) {
	var out struct {
		IdentityProviders []IdentityProvider `json:"identityProviders"`
	}
	path := "/v2/settings/login/idps?organization=" + url.QueryEscape(orgID)
	if linkingAllowed {
		path += "&linkingAllowed=true"
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.IdentityProviders, nil
}

func (c *HTTPClient) GetOrgsByDomain(ctx context.Context, domain string) ([]Org, error) {
	var out struct {
		Result []Org `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/orgs?domain="+url.QueryEscape(domain), nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *HTTPClient) GetDefaultOrg(ctx context.Context) (*Org, error) {
	var o Org
	if err := c.do(ctx, http.MethodGet, "/v2/orgs/default", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
