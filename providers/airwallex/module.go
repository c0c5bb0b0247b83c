// Package airwallex registers the Airwallex API-key module. The account
// client id and API key are exchanged at the login endpoint for a bearer
// token that authorizes every later call.
package airwallex

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/apikey"
	"github.com/goliatone/go-integrations/transport"
)

const (
	ModuleName    = "airwallex"
	DefaultAPIURL = "https://api.airwallex.com"
	LoginPath     = "/api/v1/authentication/login"
)

type Config struct {
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	// TokenTTL applies when the login response carries no expiry.
	TokenTTL time.Duration `koanf:"token_ttl" mapstructure:"token_ttl"`

	HTTPClient transport.HTTPDoer `koanf:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{TokenTTL: 30 * time.Minute}
}

func New(cfg Config) (core.Module, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	clientCfg := apikey.Config{
		Vendor:          ModuleName,
		APIBaseURL:      "{{api_url}}",
		AttributeFields: []string{core.AttributeAPIURL, apikey.FieldClientID},
		Login: &apikey.Login{
			Path:          LoginPath,
			KeyHeader:     "x-api-key",
			Headers:       map[string]string{"x-client-id": "{{client_id}}"},
			TokenPath:     "token",
			ExpiresAtPath: "expires_at",
		},
		TestAuthPath: "/api/v1/balances/current",
		Identity: identity.Endpoint{
			URL: "/api/v1/account",
			Mapping: identity.Mapping{
				ExternalID: "id",
				Name:       "account_details.business_details.business_name",
				Email:      "primary_contact.email",
			},
		},
		TokenTTL:       cfg.TokenTTL,
		RequestTimeout: cfg.RequestTimeout,
		HTTPClient:     cfg.HTTPClient,
	}
	if _, err := apikey.New(clientCfg, core.ClientParams{}); err != nil {
		return nil, err
	}
	return core.ModuleSpec{
		ModuleName: ModuleName,
		Auth:       core.AuthTypeAPIKey,
		Factory:    apikey.Factory(clientCfg),
		Form: []core.FormField{
			{
				Name:     apikey.FieldClientID,
				Title:    "Client ID",
				Required: true,
			},
			{
				Name:     apikey.FieldAPIKey,
				Title:    "API Key",
				Required: true,
				Secret:   true,
			},
			{
				Name:        core.AttributeAPIURL,
				Title:       "API URL",
				Help:        "Use https://api-demo.airwallex.com for demo accounts.",
				Placeholder: DefaultAPIURL,
				Required:    true,
			},
		},
		Validate: func(credential core.Credential) error {
			return providers.RequireAttributes(credential, core.AttributeAPIURL, apikey.FieldClientID)
		},
	}, nil
}
