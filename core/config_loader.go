package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapConfigLoader feeds a fixed map into the cfgx provider.
type MapConfigLoader map[string]any

func (l MapConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l), nil
}

// YAMLConfigLoader reads raw configuration from a YAML document, either
// inline or from Path. A missing file yields an empty layer when Optional.
type YAMLConfigLoader struct {
	Path     string
	Data     []byte
	Optional bool
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	data := l.Data
	if len(data) == 0 {
		path := strings.TrimSpace(l.Path)
		if path == "" {
			return map[string]any{}, nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if l.Optional && os.IsNotExist(err) {
				return map[string]any{}, nil
			}
			return nil, fmt.Errorf("core: read config file: %w", err)
		}
		data = raw
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("core: decode yaml config: %w", err)
	}
	return out, nil
}
