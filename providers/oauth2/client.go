package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

// Client drives one user's OAuth2 session with a vendor. Token changes are
// reported through the notifier registered by the Manager.
type Client struct {
	core.Notifier
	cfg    Config
	userID string
	state  string

	mu          sync.RWMutex
	tokens      core.TokenSet
	attributes  map[string]any
	identityKey string
	idToken     string
}

// New builds a client, seeded from params.Credential when the Manager loaded
// one.
func New(cfg Config, params core.ClientParams) (*Client, error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	state, err := normalized.StateGenerator()
	if err != nil {
		return nil, err
	}
	client := &Client{
		Notifier:   core.NewNotifier(params.Notify),
		cfg:        normalized,
		userID:     strings.TrimSpace(params.UserID),
		state:      state,
		attributes: map[string]any{},
	}
	if credential := params.Credential; credential != nil {
		client.attributes = providers.CloneMap(credential.Attributes)
		client.tokens = core.TokenSet{
			AccessToken:  credential.AccessToken,
			RefreshToken: credential.RefreshToken,
			TokenType:    "bearer",
			ExpiresAt:    parseExpiresAt(credential.Attributes[core.AttributeExpiresAt]),
		}
		client.identityKey = strings.TrimSpace(credential.ExternalID)
	}
	return client, nil
}

// Factory adapts a Config to core.ClientFactory.
func Factory(cfg Config) core.ClientFactory {
	return func(params core.ClientParams) (core.APIClient, error) {
		return New(cfg, params)
	}
}

func (c *Client) Vendor() string {
	return c.cfg.Vendor
}

func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) State() string {
	return c.state
}

// AuthorizationURL renders the authorize url. Placeholders whose attributes
// are not known yet are left for the host to fill in.
func (c *Client) AuthorizationURL() string {
	base, err := providers.Render(c.cfg.AuthURL, c.Attributes())
	if err != nil {
		base = c.cfg.AuthURL
	}
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	if c.cfg.RedirectURI != "" {
		values.Set("redirect_uri", c.cfg.RedirectURI)
	}
	if len(c.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(c.cfg.Scopes, c.cfg.ScopeSeparator))
	}
	if c.state != "" {
		values.Set("state", c.state)
	}
	for key, value := range c.cfg.AuthorizationParams {
		if strings.TrimSpace(key) != "" {
			values.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + values.Encode()
}

// ApplyAuthorizationData keeps the configured attribute fields from the
// callback. Url placeholders must resolve afterwards.
func (c *Client) ApplyAuthorizationData(data map[string]any) error {
	c.mu.Lock()
	for _, field := range c.cfg.AttributeFields {
		value := providers.ReadString(data[field])
		if value == "" {
			continue
		}
		if field == core.AttributeSubdomain || field == core.AttributeDomain {
			value = providers.NormalizeHost(value)
		}
		if c.cfg.NormalizeAttribute != nil {
			value = c.cfg.NormalizeAttribute(field, value)
		}
		c.attributes[field] = value
	}
	attributes := providers.CloneMap(c.attributes)
	c.mu.Unlock()

	for _, field := range c.cfg.requiredAttributes() {
		if providers.ReadString(attributes[field]) == "" {
			return providers.ValidationError(field, field+" is required")
		}
	}
	return nil
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (core.TokenSet, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenSet{}, providers.ValidationError("code", "authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if c.cfg.RedirectURI != "" {
		form.Set("redirect_uri", c.cfg.RedirectURI)
	}
	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.TokenSet{}, err
	}
	tokens := c.applyToken(payload)
	if err := c.Notify(ctx, c, core.NotificationTokenUpdate, tokenUpdatePayload(payload)); err != nil {
		return core.TokenSet{}, err
	}
	return tokens, nil
}

// RefreshAccessToken exchanges the refresh token. A rejected grant emits
// TOKEN_DEAUTHORIZED before the error is returned.
func (c *Client) RefreshAccessToken(ctx context.Context) (core.TokenSet, error) {
	refreshToken := strings.TrimSpace(c.Tokens().RefreshToken)
	if refreshToken == "" {
		return core.TokenSet{}, fmt.Errorf("oauth2: %s refresh token is required", c.cfg.Vendor)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) && tokenErr.InvalidGrant() {
			if notifyErr := c.Notify(ctx, c, core.NotificationDeauthorized, nil); notifyErr != nil {
				return core.TokenSet{}, errors.Join(err, notifyErr)
			}
		}
		return core.TokenSet{}, err
	}
	tokens := c.applyToken(payload)
	if err := c.Notify(ctx, c, core.NotificationTokenUpdate, tokenUpdatePayload(payload)); err != nil {
		return core.TokenSet{}, err
	}
	return tokens, nil
}

// Request sends an authenticated call. Relative urls resolve against the
// API base url. An expired token is refreshed first; a 401 triggers one
// refresh and retry, and a second 401 emits INVALID_AUTH.
func (c *Client) Request(ctx context.Context, kind string, req transport.Request) (transport.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resolved, err := providers.ResolveURL(c.cfg.APIBaseURL, req.URL, c.Attributes())
	if err != nil {
		return transport.Response{}, err
	}
	req.URL = resolved
	adapter, err := c.cfg.Transport.MustGet(kind)
	if err != nil {
		return transport.Response{}, err
	}

	if c.expired() && c.canRefresh() {
		if _, err := c.RefreshAccessToken(ctx); err != nil {
			return transport.Response{}, err
		}
	}

	res, err := adapter.Do(ctx, c.authorize(req))
	if err != nil || !res.Unauthorized() {
		return res, err
	}

	if c.canRefresh() {
		if _, err := c.RefreshAccessToken(ctx); err != nil {
			return res, err
		}
		res, err = adapter.Do(ctx, c.authorize(req))
		if err != nil || !res.Unauthorized() {
			return res, err
		}
	}
	if notifyErr := c.Notify(ctx, c, core.NotificationInvalidAuth, map[string]any{"status_code": res.StatusCode}); notifyErr != nil {
		return res, errors.Join(res.Err(), notifyErr)
	}
	return res, nil
}

func (c *Client) TestAuth(ctx context.Context) error {
	path := strings.TrimSpace(c.cfg.TestAuthPath)
	if path == "" {
		_, err := c.Identity(ctx)
		return err
	}
	res, err := c.Request(ctx, transport.KindREST, transport.Request{Method: http.MethodGet, URL: path})
	if err != nil {
		return err
	}
	return res.Err()
}

func (c *Client) Identity(ctx context.Context) (core.ExternalIdentity, error) {
	var (
		found core.ExternalIdentity
		err   error
	)
	c.mu.RLock()
	idToken := c.idToken
	c.mu.RUnlock()
	if c.cfg.UseIDToken && idToken != "" {
		found, err = c.cfg.Resolver.FromIDToken(idToken, c.cfg.Identity.Mapping)
	}
	if found.ExternalID == "" {
		found, err = c.cfg.Resolver.FromEndpoint(ctx, c.cfg.Identity, c.Request)
	}
	if err != nil {
		return core.ExternalIdentity{}, err
	}
	c.mu.Lock()
	c.identityKey = found.ExternalID
	c.mu.Unlock()
	return found, nil
}

// Tokens returns the current tokens with the vendor attributes the
// credential should keep.
func (c *Client) Tokens() core.TokenSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens := c.tokens
	tokens.Attributes = providers.CloneMap(c.attributes)
	delete(tokens.Attributes, core.AttributeExpiresAt)
	if tokens.ExpiresAt != nil {
		expiresAt := *tokens.ExpiresAt
		tokens.ExpiresAt = &expiresAt
	}
	return tokens
}

func (c *Client) IdentityKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identityKey
}

func (c *Client) Attributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return providers.CloneMap(c.attributes)
}

func (c *Client) applyToken(payload tokenEndpointPayload) core.TokenSet {
	c.mu.Lock()
	c.tokens.AccessToken = strings.TrimSpace(payload.AccessToken)
	if refresh := strings.TrimSpace(payload.RefreshToken); refresh != "" {
		c.tokens.RefreshToken = refresh
	}
	c.tokens.TokenType = normalizeTokenType(payload.TokenType)
	c.tokens.ExpiresAt = c.resolveExpiresAt(payload.ExpiresIn)
	if payload.IDToken != "" {
		c.idToken = payload.IDToken
	}
	c.mu.Unlock()
	return c.Tokens()
}

func (c *Client) authorize(req transport.Request) transport.Request {
	headers := make(map[string]string, len(req.Headers)+1)
	for key, value := range req.Headers {
		headers[key] = value
	}
	tokens := c.Tokens()
	if tokens.AccessToken != "" {
		headers["Authorization"] = "Bearer " + tokens.AccessToken
	}
	req.Headers = headers
	return req
}

func (c *Client) canRefresh() bool {
	return strings.TrimSpace(c.Tokens().RefreshToken) != ""
}

func (c *Client) expired() bool {
	tokens := c.Tokens()
	return tokens.ExpiresAt != nil && !c.cfg.Now().UTC().Before(*tokens.ExpiresAt)
}

func tokenUpdatePayload(payload tokenEndpointPayload) map[string]any {
	out := map[string]any{}
	if scope := strings.TrimSpace(payload.Scope); scope != "" {
		out["scope"] = scope
	}
	return out
}

var _ core.APIClient = (*Client)(nil)
