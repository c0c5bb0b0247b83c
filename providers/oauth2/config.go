// Package oauth2 implements core.APIClient for vendors that authorize with
// the OAuth2 authorization code grant.
package oauth2

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20
)

// Config describes one vendor's OAuth2 endpoints. URLs may reference
// credential attributes as {{subdomain}} or {{domain}}.
type Config struct {
	Vendor             string
	AuthURL            string
	TokenURL           string
	APIBaseURL         string
	ClientID           string
	ClientSecret       string
	ClientSecretInBody bool
	RedirectURI        string
	Scopes             []string
	// ScopeSeparator joins Scopes in the authorize url. Defaults to a space.
	ScopeSeparator      string
	AuthorizationParams map[string]string
	// AttributeFields are callback fields kept as credential attributes.
	AttributeFields []string
	// NormalizeAttribute rewrites attribute values after host normalization.
	NormalizeAttribute func(field string, value string) string
	TestAuthPath       string
	Identity           identity.Endpoint
	// UseIDToken resolves identity from the id_token returned by the token
	// endpoint before falling back to Identity.
	UseIDToken          bool
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          transport.HTTPDoer
	Transport           *transport.Registry
	Resolver            *identity.Resolver
	StateGenerator      func() (string, error)
}

func (c Config) normalized() (Config, error) {
	c.Vendor = strings.TrimSpace(strings.ToLower(c.Vendor))
	c.AuthURL = strings.TrimSpace(c.AuthURL)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.RedirectURI = strings.TrimSpace(c.RedirectURI)
	if c.Vendor == "" {
		return Config{}, fmt.Errorf("oauth2: vendor is required")
	}
	if c.AuthURL == "" {
		return Config{}, fmt.Errorf("oauth2: auth url is required for vendor %q", c.Vendor)
	}
	if c.TokenURL == "" {
		return Config{}, fmt.Errorf("oauth2: token url is required for vendor %q", c.Vendor)
	}
	if c.ClientID == "" {
		return Config{}, fmt.Errorf("oauth2: client id is required for vendor %q", c.Vendor)
	}
	if c.ScopeSeparator == "" {
		c.ScopeSeparator = " "
	}
	if c.TokenRequestTimeout <= 0 {
		c.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.Transport == nil {
		c.Transport = transport.NewDefaultRegistry(c.HTTPClient)
	}
	if c.Resolver == nil {
		c.Resolver = identity.NewResolver(identity.Config{Transport: c.Transport})
	}
	if c.StateGenerator == nil {
		c.StateGenerator = generateState
	}
	c.AttributeFields = normalizeFields(c.AttributeFields)
	return c, nil
}

// requiredAttributes are the template placeholders used by the vendor urls.
func (c Config) requiredAttributes() []string {
	return normalizeFields(append(append(append(
		providers.Placeholders(c.AuthURL),
		providers.Placeholders(c.TokenURL)...),
		providers.Placeholders(c.APIBaseURL)...),
		providers.Placeholders(c.Identity.URL)...,
	))
}

func normalizeFields(fields []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(strings.ToLower(field))
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}
