// Package zendesk registers the Zendesk Support OAuth2 module. Every URL is
// scoped to the account subdomain collected before authorization.
package zendesk

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/oauth2"
	"github.com/goliatone/go-integrations/transport"
)

const (
	ModuleName = "zendesk"
	AuthURL    = "https://{{subdomain}}.zendesk.com/oauth/authorizations/new"
	TokenURL   = "https://{{subdomain}}.zendesk.com/oauth/tokens"
	APIBaseURL = "https://{{subdomain}}.zendesk.com/api/v2"

	hostSuffix = ".zendesk.com"
)

type Config struct {
	ClientID     string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string        `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string        `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	AuthURL      string        `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL     string        `koanf:"token_url" mapstructure:"token_url"`
	APIBaseURL   string        `koanf:"api_base_url" mapstructure:"api_base_url"`
	TokenTTL     time.Duration `koanf:"token_ttl" mapstructure:"token_ttl"`

	HTTPClient transport.HTTPDoer `koanf:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{"read", "write"},
	}
}

func New(cfg Config) (core.Module, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	clientCfg := oauth2.Config{
		Vendor:             ModuleName,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		APIBaseURL:         cfg.APIBaseURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		RedirectURI:        cfg.RedirectURI,
		Scopes:             cfg.Scopes,
		AttributeFields:    []string{core.AttributeSubdomain},
		NormalizeAttribute: normalizeSubdomain,
		TestAuthPath:       "/users/me.json",
		Identity: identity.Endpoint{
			URL:     "/users/me.json",
			Mapping: identity.Mapping{ExternalID: "user.id", Name: "user.name", Email: "user.email"},
		},
		TokenTTL:   cfg.TokenTTL,
		HTTPClient: cfg.HTTPClient,
	}
	// Surface config errors at registration instead of on first use.
	if _, err := oauth2.New(clientCfg, core.ClientParams{}); err != nil {
		return nil, err
	}
	return core.ModuleSpec{
		ModuleName: ModuleName,
		Auth:       core.AuthTypeOAuth2,
		Factory:    oauth2.Factory(clientCfg),
		Form: []core.FormField{{
			Name:        core.AttributeSubdomain,
			Title:       "Your Subdomain",
			Help:        "The Subdomain for your Application login.",
			Placeholder: "{{subdomain}}.zendesk.com",
			Required:    true,
		}},
		Validate: func(credential core.Credential) error {
			return providers.RequireAttributes(credential, core.AttributeSubdomain)
		},
	}, nil
}

// normalizeSubdomain accepts "acme", "acme.zendesk.com" or a full url.
func normalizeSubdomain(field string, value string) string {
	if field != core.AttributeSubdomain {
		return value
	}
	return strings.TrimSuffix(value, hostSuffix)
}
