// Package yotpo registers the Yotpo API-key module. The store secret is
// exchanged for an access token sent in the X-Yotpo-Token header.
package yotpo

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/apikey"
	"github.com/goliatone/go-integrations/transport"
)

const (
	ModuleName = "yotpo"
	APIBaseURL = "https://api.yotpo.com/core/v3/stores/{{store_id}}"
)

type Config struct {
	APIBaseURL     string        `koanf:"api_base_url" mapstructure:"api_base_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	TokenTTL       time.Duration `koanf:"token_ttl" mapstructure:"token_ttl"`

	HTTPClient transport.HTTPDoer `koanf:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{APIBaseURL: APIBaseURL, TokenTTL: 24 * time.Hour}
}

func New(cfg Config) (core.Module, error) {
	defaults := DefaultConfig()
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	clientCfg := apikey.Config{
		Vendor:     ModuleName,
		APIBaseURL: cfg.APIBaseURL,
		Login: &apikey.Login{
			Path:        "/access_tokens",
			KeyField:    "secret",
			TokenPath:   "access_token",
			TokenHeader: "X-Yotpo-Token",
		},
		TestAuthPath:      "/products",
		IdentityAttribute: core.AttributeStoreID,
		TokenTTL:          cfg.TokenTTL,
		RequestTimeout:    cfg.RequestTimeout,
		HTTPClient:        cfg.HTTPClient,
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
				Name:     core.AttributeStoreID,
				Title:    "Store ID",
				Help:     "The app key shown in your Yotpo store settings.",
				Required: true,
			},
			{
				Name:     apikey.FieldAPIKey,
				Title:    "Secret Key",
				Required: true,
				Secret:   true,
			},
		},
		Validate: func(credential core.Credential) error {
			return providers.RequireAttributes(credential, core.AttributeStoreID)
		},
	}, nil
}
