package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// ModulePack is a named set of vendor modules shipped outside this module.
type ModulePack struct {
	Name    string
	Modules []core.Module
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects module packs and command/query bundles from host
// applications. Packs and bundles apply in name order.
type ExtensionHooks struct {
	mu sync.RWMutex

	modulePacks map[string]ModulePack
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		modulePacks: map[string]ModulePack{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterModulePack(pack ModulePack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: module pack name is required")
	}
	if len(pack.Modules) == 0 {
		return fmt.Errorf("integrations: module pack %q has no modules", name)
	}
	for _, module := range pack.Modules {
		if module == nil {
			return fmt.Errorf("integrations: module pack %q contains a nil module", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.modulePacks[name]; exists {
		return fmt.Errorf("integrations: module pack %q already registered", name)
	}
	h.modulePacks[name] = ModulePack{
		Name:    name,
		Modules: append([]core.Module(nil), pack.Modules...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ModuleOptions turns every pack module into a WithModule option.
func (h *ExtensionHooks) ModuleOptions() []Option {
	out := []Option{}
	for _, pack := range h.ModulePacks() {
		for _, module := range pack.Modules {
			out = append(out, core.WithModule(module))
		}
	}
	return out
}

// ApplyModulePacks registers pack modules on a running service. The first
// duplicate name stops the walk.
func (h *ExtensionHooks) ApplyModulePacks(service *Service) error {
	if h == nil {
		return nil
	}
	if service == nil {
		return fmt.Errorf("integrations: service is required")
	}
	for _, pack := range h.ModulePacks() {
		for _, module := range pack.Modules {
			if err := service.RegisterModule(module); err != nil {
				return fmt.Errorf("integrations: module pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range sortedKeys(factories) {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ModulePacks() []ModulePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ModulePack, 0, len(h.modulePacks))
	for _, name := range sortedKeys(h.modulePacks) {
		pack := h.modulePacks[name]
		out = append(out, ModulePack{
			Name:    pack.Name,
			Modules: append([]core.Module(nil), pack.Modules...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
