package integrations

import (
	"context"
	"fmt"

	"github.com/goliatone/go-config/cfgx"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/airwallex"
	"github.com/goliatone/go-integrations/providers/frontify"
	"github.com/goliatone/go-integrations/providers/yotpo"
	"github.com/goliatone/go-integrations/providers/zendesk"
)

// BuiltinModulesConfig enables a built-in vendor module when its section is
// present.
type BuiltinModulesConfig struct {
	Zendesk   *zendesk.Config   `koanf:"zendesk" mapstructure:"zendesk"`
	Frontify  *frontify.Config  `koanf:"frontify" mapstructure:"frontify"`
	Airwallex *airwallex.Config `koanf:"airwallex" mapstructure:"airwallex"`
	Yotpo     *yotpo.Config     `koanf:"yotpo" mapstructure:"yotpo"`
}

func ZendeskModule(cfg zendesk.Config) (core.Module, error) {
	return zendesk.New(cfg)
}

func FrontifyModule(cfg frontify.Config) (core.Module, error) {
	return frontify.New(cfg)
}

func AirwallexModule(cfg airwallex.Config) (core.Module, error) {
	return airwallex.New(cfg)
}

func YotpoModule(cfg yotpo.Config) (core.Module, error) {
	return yotpo.New(cfg)
}

// BuiltinModules builds every configured module in a fixed order.
func BuiltinModules(cfg BuiltinModulesConfig) ([]core.Module, error) {
	modules := []core.Module{}
	add := func(name string, build func() (core.Module, error)) error {
		module, err := build()
		if err != nil {
			return fmt.Errorf("integrations: build %s module: %w", name, err)
		}
		modules = append(modules, module)
		return nil
	}
	if cfg.Zendesk != nil {
		if err := add(zendesk.ModuleName, func() (core.Module, error) { return ZendeskModule(*cfg.Zendesk) }); err != nil {
			return nil, err
		}
	}
	if cfg.Frontify != nil {
		if err := add(frontify.ModuleName, func() (core.Module, error) { return FrontifyModule(*cfg.Frontify) }); err != nil {
			return nil, err
		}
	}
	if cfg.Airwallex != nil {
		if err := add(airwallex.ModuleName, func() (core.Module, error) { return AirwallexModule(*cfg.Airwallex) }); err != nil {
			return nil, err
		}
	}
	if cfg.Yotpo != nil {
		if err := add(yotpo.ModuleName, func() (core.Module, error) { return YotpoModule(*cfg.Yotpo) }); err != nil {
			return nil, err
		}
	}
	return modules, nil
}

// LoadBuiltinModulesConfig decodes the "vendors" section of the raw config.
func LoadBuiltinModulesConfig(ctx context.Context, loader core.RawConfigLoader) (BuiltinModulesConfig, error) {
	if loader == nil {
		return BuiltinModulesConfig{}, nil
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return BuiltinModulesConfig{}, err
	}
	section, ok := raw["vendors"].(map[string]any)
	if !ok || len(section) == 0 {
		return BuiltinModulesConfig{}, nil
	}
	return cfgx.Build[BuiltinModulesConfig](section)
}
