package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ModuleCatalog struct {
	mu      sync.RWMutex
	modules map[string]Module
}

func NewModuleCatalog() *ModuleCatalog {
	return &ModuleCatalog{modules: make(map[string]Module)}
}

func (r *ModuleCatalog) Register(module Module) error {
	if module == nil {
		return fmt.Errorf("core: module is nil")
	}
	name := normalizeModuleName(module.Name())
	if name == "" {
		return fmt.Errorf("core: module name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("core: module already registered: %s", name)
	}
	r.modules[name] = module
	return nil
}

func (r *ModuleCatalog) Get(name string) (Module, bool) {
	name = normalizeModuleName(name)
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	module, ok := r.modules[name]
	r.mu.RUnlock()
	return module, ok
}

func (r *ModuleCatalog) List() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	modules := make([]Module, 0, len(names))
	for _, name := range names {
		modules = append(modules, r.modules[name])
	}
	return modules
}

// ModuleSpec is a declarative Module for vendors that need nothing beyond a
// client factory and a form.
type ModuleSpec struct {
	ModuleName  string
	Auth        AuthType
	Factory     ClientFactory
	Form        []FormField
	DefaultCode string
	Validate    func(Credential) error
}

func (m ModuleSpec) Name() string { return normalizeModuleName(m.ModuleName) }

func (m ModuleSpec) AuthType() AuthType {
	if m.Auth == "" {
		return AuthTypeOAuth2
	}
	return m.Auth
}

func (m ModuleSpec) NewClient(params ClientParams) (APIClient, error) {
	if m.Factory == nil {
		return nil, fmt.Errorf("core: module %s has no client factory", m.Name())
	}
	return m.Factory(params)
}

func (m ModuleSpec) AuthorizationForm() AuthorizationFormData {
	return AuthorizationForm(m.Form...)
}

func (m ModuleSpec) DefaultAuthorizationCode() string {
	return strings.TrimSpace(m.DefaultCode)
}

func (m ModuleSpec) ValidateCredential(credential Credential) error {
	if m.Validate == nil {
		return nil
	}
	return m.Validate(credential)
}

func normalizeModuleName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
