package core

import (
	"fmt"
	"strings"
)

type AuthorizationConfig struct {
	// AllowDefaultCode lets modules that declare a default authorization code
	// complete a callback without one.
	AllowDefaultCode bool `koanf:"allow_default_code" mapstructure:"allow_default_code"`
}

type ModulesConfig struct {
	Enabled []string `koanf:"enabled" mapstructure:"enabled"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	Authorization AuthorizationConfig `koanf:"authorization" mapstructure:"authorization"`
	Modules       ModulesConfig       `koanf:"modules" mapstructure:"modules"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "integrations",
		Authorization: AuthorizationConfig{},
		Modules:       ModulesConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for _, name := range c.Modules.Enabled {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("core: modules.enabled contains an empty module name")
		}
	}
	return nil
}

// ModuleEnabled reports whether a module may be instantiated. An empty
// allow-list enables every registered module.
func (c Config) ModuleEnabled(name string) bool {
	if len(c.Modules.Enabled) == 0 {
		return true
	}
	name = normalizeModuleName(name)
	for _, enabled := range c.Modules.Enabled {
		if normalizeModuleName(enabled) == name {
			return true
		}
	}
	return false
}
