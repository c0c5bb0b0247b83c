package zendesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/oauth2"
	"github.com/goliatone/go-integrations/store/memory"
	"github.com/goliatone/go-integrations/transport"
)

func newZendeskServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/oauth/tokens", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_secret") != "zd-secret" {
			t.Errorf("expected client secret in body, got %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "zd-access",
			"token_type":   "bearer",
			"scope":        "read write",
		})
	})
	mux.HandleFunc("/acme/api/v2/users/me.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer zd-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": 1001, "name": "Acme Support", "email": "help@acme.test"},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(server *httptest.Server) Config {
	base := server.URL + "/{{subdomain}}"
	return Config{
		ClientID:     "zd-client",
		ClientSecret: "zd-secret",
		RedirectURI:  "https://app.example/callback",
		AuthURL:      base + "/oauth/authorizations/new",
		TokenURL:     base + "/oauth/tokens",
		APIBaseURL:   base + "/api/v2",
		HTTPClient:   server.Client(),
	}
}

func TestNew_DescribesModule(t *testing.T) {
	module, err := New(Config{ClientID: "zd-client"})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	if module.Name() != ModuleName || module.AuthType() != core.AuthTypeOAuth2 {
		t.Fatalf("unexpected module %s/%s", module.Name(), module.AuthType())
	}
	form := module.AuthorizationForm()
	properties, _ := form.JSONSchema["properties"].(map[string]any)
	if _, ok := properties[core.AttributeSubdomain]; !ok {
		t.Fatalf("expected subdomain field, got %#v", form.JSONSchema)
	}
	hints, _ := form.UISchema[core.AttributeSubdomain].(map[string]any)
	if hints["ui:placeholder"] != "{{subdomain}}.zendesk.com" {
		t.Fatalf("unexpected ui schema %#v", form.UISchema)
	}
}

func TestNew_RequiresClientID(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing client id to fail")
	}
}

func TestNormalizeSubdomain(t *testing.T) {
	module, err := New(Config{ClientID: "zd-client"})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	for _, input := range []string{"acme", "Acme.Zendesk.com", "https://acme.zendesk.com/"} {
		client, err := module.NewClient(core.ClientParams{})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if err := client.ApplyAuthorizationData(map[string]any{core.AttributeSubdomain: input}); err != nil {
			t.Fatalf("apply %q: %v", input, err)
		}
		got := client.Tokens().Attributes[core.AttributeSubdomain]
		if got != "acme" {
			t.Fatalf("expected acme for %q, got %v", input, got)
		}
		if !strings.HasPrefix(client.AuthorizationURL(), "https://acme.zendesk.com/oauth/authorizations/new?") {
			t.Fatalf("unexpected authorization url %q", client.AuthorizationURL())
		}
	}
}

func TestModule_AuthorizesAndReloadsThroughService(t *testing.T) {
	server := newZendeskServer(t)
	module, err := New(testConfig(server))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	stores := memory.NewStores()
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithCredentialStore(stores.Credentials),
		core.WithEntityStore(stores.Entities),
		core.WithModule(module),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx := context.Background()
	manager, err := svc.GetInstance(ctx, core.GetInstanceRequest{Vendor: ModuleName, UserID: "user-1"})
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if requirements := manager.GetAuthorizationRequirements(ctx); requirements.Type != core.AuthTypeOAuth2 {
		t.Fatalf("unexpected requirements %#v", requirements)
	}
	result, err := manager.ProcessAuthorizationCallback(ctx, core.AuthorizationCallback{
		Data: map[string]any{"code": "code-1", core.AttributeSubdomain: "acme.zendesk.com"},
	})
	if err != nil {
		t.Fatalf("process callback: %v", err)
	}

	credential, err := stores.Credentials.FindByID(ctx, result.CredentialID)
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if credential.ExternalID != "1001" || credential.AccessToken != "zd-access" {
		t.Fatalf("unexpected credential %#v", credential)
	}
	if credential.Attribute(core.AttributeSubdomain) != "acme" {
		t.Fatalf("expected subdomain attribute, got %#v", credential.Attributes)
	}
	entity, ok := manager.Entity()
	if !ok || entity.Name != "Acme Support" || entity.ExternalID != "1001" {
		t.Fatalf("unexpected entity %#v", entity)
	}

	reloaded, err := svc.GetInstance(ctx, core.GetInstanceRequest{Vendor: ModuleName, UserID: "user-1", EntityID: result.EntityID})
	if err != nil {
		t.Fatalf("reload instance: %v", err)
	}
	client, ok := reloaded.Client().(*oauth2.Client)
	if !ok {
		t.Fatalf("expected oauth2 client, got %T", reloaded.Client())
	}
	res, err := client.Request(ctx, transport.KindREST, transport.Request{Method: http.MethodGet, URL: "/users/me.json"})
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("expected seeded client request to succeed, got %d %v", res.StatusCode, err)
	}
}

func TestModule_RejectsCredentialWithoutSubdomain(t *testing.T) {
	module, err := New(Config{ClientID: "zd-client"})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	validator, ok := module.(core.CredentialValidator)
	if !ok {
		t.Fatalf("expected module to validate credentials")
	}
	if err := validator.ValidateCredential(core.Credential{ID: "c1"}); err == nil {
		t.Fatalf("expected missing subdomain to fail")
	}
	if err := validator.ValidateCredential(core.Credential{ID: "c1", Attributes: map[string]any{"subdomain": "acme"}}); err != nil {
		t.Fatalf("expected valid credential, got %v", err)
	}
}
