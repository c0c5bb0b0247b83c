// Package frontify registers the Frontify OAuth2 module. The account domain
// is collected before authorization and identity comes from the GraphQL
// currentUser query.
package frontify

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/oauth2"
	"github.com/goliatone/go-integrations/transport"
)

const (
	ModuleName = "frontify"
	AuthURL    = "https://{{domain}}/api/oauth/authorize"
	TokenURL   = "https://{{domain}}/api/oauth/accesstoken"
	APIBaseURL = "https://{{domain}}"

	CurrentUserQuery = "query CurrentUser { currentUser { id email name }}"
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
		Scopes:     []string{"basic:read"},
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
		AttributeFields:    []string{core.AttributeDomain},
		Identity: identity.Endpoint{
			URL:           "/graphql",
			Query:         CurrentUserQuery,
			OperationName: "CurrentUser",
			Mapping: identity.Mapping{
				ExternalID: "data.currentUser.id",
				Name:       "data.currentUser.name",
				Email:      "data.currentUser.email",
			},
		},
		TokenTTL:   cfg.TokenTTL,
		HTTPClient: cfg.HTTPClient,
	}
	if _, err := oauth2.New(clientCfg, core.ClientParams{}); err != nil {
		return nil, err
	}
	return core.ModuleSpec{
		ModuleName: ModuleName,
		Auth:       core.AuthTypeOAuth2,
		Factory:    oauth2.Factory(clientCfg),
		Form: []core.FormField{{
			Name:        core.AttributeDomain,
			Title:       "Your Frontify Domain",
			Help:        "An Frontify domain, e.g: lefthook.frontify.com",
			Placeholder: "Your Frontify domain...",
			Required:    true,
		}},
		Validate: func(credential core.Credential) error {
			return providers.RequireAttributes(credential, core.AttributeDomain)
		},
	}, nil
}
