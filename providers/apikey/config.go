// Package apikey implements core.APIClient for vendors authorized with a
// static API key, optionally exchanged for a short lived bearer token.
package apikey

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

// Callback fields read by ApplyAuthorizationData.
const (
	FieldAPIKey   = "api_key"
	FieldClientID = "client_id"
)

const defaultHeaderName = "X-API-Key"

// Login exchanges the API key for a short lived token. Header values may
// reference credential attributes as {{name}}.
type Login struct {
	Path          string
	KeyHeader     string
	KeyField      string
	Headers       map[string]string
	Body          map[string]any
	TokenPath     string
	ExpiresAtPath string
	ExpiresInPath string
	// TokenHeader carries the issued token on API calls. Defaults to
	// Authorization with a "Bearer " prefix.
	TokenHeader string
	TokenPrefix string
}

func (l Login) withDefaults() Login {
	if strings.TrimSpace(l.TokenPath) == "" {
		l.TokenPath = "access_token"
	}
	if strings.TrimSpace(l.KeyHeader) == "" && strings.TrimSpace(l.KeyField) == "" {
		l.KeyField = FieldAPIKey
	}
	if strings.TrimSpace(l.TokenHeader) == "" {
		l.TokenHeader = "Authorization"
		if l.TokenPrefix == "" {
			l.TokenPrefix = "Bearer "
		}
	}
	return l
}

type Config struct {
	Vendor string
	// APIBaseURL may be a template such as "{{api_url}}".
	APIBaseURL   string
	HeaderName   string
	HeaderPrefix string
	Login        *Login
	// AttributeFields are callback fields kept as credential attributes.
	AttributeFields []string
	TestAuthPath    string
	Identity        identity.Endpoint
	// IdentityAttribute names the credential attribute used as the external
	// id when no Identity endpoint is configured.
	IdentityAttribute string
	TokenTTL          time.Duration
	RequestTimeout    time.Duration
	Now               func() time.Time
	HTTPClient        transport.HTTPDoer
	Transport         *transport.Registry
	Resolver          *identity.Resolver
}

func (c Config) normalized() (Config, error) {
	c.Vendor = strings.TrimSpace(strings.ToLower(c.Vendor))
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	if c.Vendor == "" {
		return Config{}, fmt.Errorf("apikey: vendor is required")
	}
	if c.APIBaseURL == "" {
		return Config{}, fmt.Errorf("apikey: api base url is required for vendor %q", c.Vendor)
	}
	if strings.TrimSpace(c.HeaderName) == "" {
		c.HeaderName = defaultHeaderName
	}
	if c.Login != nil {
		login := c.Login.withDefaults()
		c.Login = &login
	}
	c.IdentityAttribute = strings.TrimSpace(strings.ToLower(c.IdentityAttribute))
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.Transport == nil {
		c.Transport = transport.NewDefaultRegistry(c.HTTPClient)
	}
	if c.Resolver == nil {
		c.Resolver = identity.NewResolver(identity.Config{Transport: c.Transport, RequestTimeout: c.RequestTimeout})
	}
	fields := []string{}
	seen := map[string]struct{}{}
	for _, field := range append(c.AttributeFields, c.requiredAttributes()...) {
		field = strings.TrimSpace(strings.ToLower(field))
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	c.AttributeFields = fields
	return c, nil
}

func (c Config) requiredAttributes() []string {
	names := providers.Placeholders(c.APIBaseURL)
	if c.IdentityAttribute != "" {
		names = append(names, c.IdentityAttribute)
	}
	names = append(names, providers.Placeholders(c.Identity.URL)...)
	if c.Login != nil {
		for _, value := range c.Login.Headers {
			names = append(names, providers.Placeholders(value)...)
		}
	}
	return names
}

// DefaultAttributeFields keeps the api url a user enters with the key.
func DefaultAttributeFields() []string {
	return []string{core.AttributeAPIURL}
}
