package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

// Client authorizes vendor calls with an API key. With a Login configured
// the key is exchanged for a token that authorizes every later call.
type Client struct {
	core.Notifier
	cfg    Config
	userID string

	mu          sync.RWMutex
	tokens      core.TokenSet
	attributes  map[string]any
	identityKey string
}

func New(cfg Config, params core.ClientParams) (*Client, error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	client := &Client{
		Notifier:   core.NewNotifier(params.Notify),
		cfg:        normalized,
		userID:     strings.TrimSpace(params.UserID),
		attributes: map[string]any{},
	}
	if credential := params.Credential; credential != nil {
		client.attributes = providers.CloneMap(credential.Attributes)
		delete(client.attributes, core.AttributeExpiresAt)
		client.tokens = core.TokenSet{
			APIKey:       credential.APIKey,
			AccessToken:  credential.AccessToken,
			RefreshToken: credential.RefreshToken,
			ExpiresAt:    parseTime(credential.Attributes[core.AttributeExpiresAt]),
		}
		client.identityKey = strings.TrimSpace(credential.ExternalID)
	}
	return client, nil
}

func Factory(cfg Config) core.ClientFactory {
	return func(params core.ClientParams) (core.APIClient, error) {
		return New(cfg, params)
	}
}

// AuthorizationURL is empty: API-key vendors collect the key through the
// requirements form.
func (c *Client) AuthorizationURL() string {
	return ""
}

func (c *Client) ClientID() string {
	return providers.ReadString(c.Attributes()[FieldClientID])
}

func (c *Client) ApplyAuthorizationData(data map[string]any) error {
	key := providers.ReadString(data[FieldAPIKey])

	c.mu.Lock()
	if key != "" {
		c.tokens.APIKey = key
		c.tokens.AccessToken = ""
		c.tokens.ExpiresAt = nil
	}
	for _, field := range c.cfg.AttributeFields {
		value := providers.ReadString(data[field])
		if value == "" {
			continue
		}
		c.attributes[field] = strings.TrimRight(value, "/")
	}
	hasKey := c.tokens.APIKey != ""
	attributes := providers.CloneMap(c.attributes)
	c.mu.Unlock()

	if !hasKey {
		return providers.ValidationError(FieldAPIKey, "api key is required")
	}
	if raw := providers.ReadString(attributes[core.AttributeAPIURL]); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return providers.ValidationError(core.AttributeAPIURL, "api url must be an absolute http(s) url")
		}
	}
	for _, field := range c.cfg.requiredAttributes() {
		if providers.ReadString(attributes[field]) == "" {
			return providers.ValidationError(field, field+" is required")
		}
	}
	return nil
}

// ExchangeCode ignores code. It logs in when a Login is configured and
// otherwise only checks that a key is present.
func (c *Client) ExchangeCode(ctx context.Context, _ string) (core.TokenSet, error) {
	if c.Tokens().APIKey == "" {
		return core.TokenSet{}, providers.ValidationError(FieldAPIKey, "api key is required")
	}
	if c.cfg.Login == nil {
		return c.Tokens(), nil
	}
	return c.RefreshAccessToken(ctx)
}

// RefreshAccessToken logs in again. Static key clients have nothing to
// refresh and return their current tokens.
func (c *Client) RefreshAccessToken(ctx context.Context) (core.TokenSet, error) {
	if c.cfg.Login == nil {
		return c.Tokens(), nil
	}
	if err := c.login(ctx); err != nil {
		if transport.IsUnauthorized(err) || transport.StatusCode(err) == http.StatusForbidden {
			if notifyErr := c.Notify(ctx, c, core.NotificationInvalidAuth, nil); notifyErr != nil {
				return core.TokenSet{}, errors.Join(err, notifyErr)
			}
		}
		return core.TokenSet{}, err
	}
	if err := c.Notify(ctx, c, core.NotificationTokenUpdate, nil); err != nil {
		return core.TokenSet{}, err
	}
	return c.Tokens(), nil
}

// Request sends an authenticated call against the api base url. Login
// clients re-login once on 401; a remaining 401 emits INVALID_AUTH.
func (c *Client) Request(ctx context.Context, kind string, req transport.Request) (transport.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resolved, err := providers.ResolveURL(c.cfg.APIBaseURL, req.URL, c.Attributes())
	if err != nil {
		return transport.Response{}, err
	}
	req.URL = resolved
	if c.cfg.RequestTimeout > 0 && req.Timeout <= 0 {
		req.Timeout = c.cfg.RequestTimeout
	}
	adapter, err := c.cfg.Transport.MustGet(kind)
	if err != nil {
		return transport.Response{}, err
	}

	if c.cfg.Login != nil && c.needsLogin() {
		if _, err := c.RefreshAccessToken(ctx); err != nil {
			return transport.Response{}, err
		}
	}

	res, err := adapter.Do(ctx, c.authorize(req))
	if err != nil || !res.Unauthorized() {
		return res, err
	}
	if c.cfg.Login != nil {
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

// Identity calls the configured profile endpoint. Vendors without one are
// keyed by IdentityAttribute or a digest of the API key.
func (c *Client) Identity(ctx context.Context) (core.ExternalIdentity, error) {
	var (
		found core.ExternalIdentity
		err   error
	)
	if strings.TrimSpace(c.cfg.Identity.URL) != "" {
		found, err = c.cfg.Resolver.FromEndpoint(ctx, c.cfg.Identity, c.Request)
		if err != nil {
			return core.ExternalIdentity{}, err
		}
	} else {
		found, err = c.keyIdentity()
		if err != nil {
			return core.ExternalIdentity{}, err
		}
	}
	c.mu.Lock()
	c.identityKey = found.ExternalID
	c.mu.Unlock()
	return found, nil
}

func (c *Client) Tokens() core.TokenSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens := c.tokens
	tokens.Attributes = providers.CloneMap(c.attributes)
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

func (c *Client) keyIdentity() (core.ExternalIdentity, error) {
	tokens := c.Tokens()
	if tokens.APIKey == "" {
		return core.ExternalIdentity{}, fmt.Errorf("apikey: %s api key is required for identity", c.cfg.Vendor)
	}
	name := c.cfg.Vendor
	if base, err := providers.Render(c.cfg.APIBaseURL, tokens.Attributes); err == nil {
		if parsed, parseErr := url.Parse(base); parseErr == nil && parsed.Host != "" {
			name = parsed.Host
		}
	}
	if c.cfg.IdentityAttribute != "" {
		externalID := providers.ReadString(tokens.Attributes[c.cfg.IdentityAttribute])
		if externalID == "" {
			return core.ExternalIdentity{}, providers.ValidationError(c.cfg.IdentityAttribute, c.cfg.IdentityAttribute+" is required")
		}
		return core.ExternalIdentity{ExternalID: externalID, Name: name}, nil
	}
	sum := sha256.Sum256([]byte(tokens.APIKey))
	return core.ExternalIdentity{
		ExternalID: "key-" + hex.EncodeToString(sum[:])[:16],
		Name:       name,
	}, nil
}

func (c *Client) login(ctx context.Context) error {
	login := c.cfg.Login
	tokens := c.Tokens()
	if tokens.APIKey == "" {
		return providers.ValidationError(FieldAPIKey, "api key is required")
	}
	endpoint, err := providers.ResolveURL(c.cfg.APIBaseURL, login.Path, tokens.Attributes)
	if err != nil {
		return err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for key, value := range login.Headers {
		rendered, renderErr := providers.Render(value, tokens.Attributes)
		if renderErr != nil {
			return renderErr
		}
		headers[key] = rendered
	}
	if login.KeyHeader != "" {
		headers[login.KeyHeader] = tokens.APIKey
	}
	body := providers.CloneMap(login.Body)
	if login.KeyField != "" {
		body[login.KeyField] = tokens.APIKey
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("apikey: encode login body: %w", err)
	}

	adapter, err := c.cfg.Transport.MustGet(transport.KindREST)
	if err != nil {
		return err
	}
	res, err := adapter.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: headers,
		Body:    encoded,
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	var payload map[string]any
	if err := res.DecodeJSON(&payload); err != nil {
		return err
	}
	accessToken := providers.ReadString(identity.Lookup(payload, login.TokenPath))
	if accessToken == "" {
		return fmt.Errorf("apikey: %s login response missing %q", c.cfg.Vendor, login.TokenPath)
	}

	expiresAt := parseTime(identity.Lookup(payload, login.ExpiresAtPath))
	if expiresAt == nil {
		ttl := c.cfg.TokenTTL
		if seconds := readSeconds(identity.Lookup(payload, login.ExpiresInPath)); seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
		if ttl > 0 {
			at := c.cfg.Now().UTC().Add(ttl)
			expiresAt = &at
		}
	}

	c.mu.Lock()
	c.tokens.AccessToken = accessToken
	c.tokens.TokenType = strings.ToLower(strings.TrimSpace(login.TokenPrefix))
	c.tokens.ExpiresAt = expiresAt
	c.mu.Unlock()
	return nil
}

func (c *Client) authorize(req transport.Request) transport.Request {
	headers := make(map[string]string, len(req.Headers)+1)
	for key, value := range req.Headers {
		headers[key] = value
	}
	tokens := c.Tokens()
	if c.cfg.Login != nil {
		if tokens.AccessToken != "" {
			headers[c.cfg.Login.TokenHeader] = c.cfg.Login.TokenPrefix + tokens.AccessToken
		}
	} else if tokens.APIKey != "" {
		headers[c.cfg.HeaderName] = c.cfg.HeaderPrefix + tokens.APIKey
	}
	req.Headers = headers
	return req
}

func (c *Client) needsLogin() bool {
	tokens := c.Tokens()
	if tokens.AccessToken == "" {
		return true
	}
	return tokens.ExpiresAt != nil && !c.cfg.Now().UTC().Before(*tokens.ExpiresAt)
}

func parseTime(value any) *time.Time {
	raw := providers.ReadString(value)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

func readSeconds(value any) int64 {
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case int:
		return int64(typed)
	case int64:
		return typed
	case string:
		parsed, _ := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		return parsed
	default:
		return 0
	}
}

var _ core.APIClient = (*Client)(nil)
