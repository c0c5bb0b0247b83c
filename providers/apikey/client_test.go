package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
	"github.com/goliatone/go-integrations/transport"
)

type keyServer struct {
	mu           sync.Mutex
	server       *httptest.Server
	logins       []http.Header
	loginStatus  int
	seenKeys     []string
	seenBearers  []string
	rejectBearer map[string]bool
	nextToken    []string
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	s := &keyServer{
		rejectBearer: map[string]bool{},
		nextToken:    []string{"token-1", "token-2", "token-3"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/authentication/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST login, got %s", r.Method)
		}
		s.mu.Lock()
		s.logins = append(s.logins, r.Header.Clone())
		status := s.loginStatus
		token := "token-x"
		if len(s.nextToken) > 0 {
			token, s.nextToken = s.nextToken[0], s.nextToken[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      token,
			"expires_at": time.Now().UTC().Add(30 * time.Minute).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/api/v1/account", func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		s.seenBearers = append(s.seenBearers, bearer)
		rejected := s.rejectBearer[bearer]
		s.mu.Unlock()
		if rejected {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "acct-9",
			"account_details": map[string]any{
				"business_details": map[string]any{"business_name": "Acme Ltd"},
			},
		})
	})
	mux.HandleFunc("/v2/ping", func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Authorization")
		s.mu.Lock()
		s.seenKeys = append(s.seenKeys, key)
		s.mu.Unlock()
		if key != "Token good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *keyServer) reject(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range tokens {
		s.rejectBearer[token] = true
	}
}

func (s *keyServer) setLoginStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus = status
}

func (s *keyServer) loginHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.logins...)
}

func (s *keyServer) bearers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenBearers...)
}

func (s *keyServer) loginConfig() Config {
	return Config{
		Vendor:          "airwallex",
		APIBaseURL:      "{{api_url}}",
		AttributeFields: DefaultAttributeFields(),
		Login: &Login{
			Path:          "/api/v1/authentication/login",
			KeyHeader:     "x-api-key",
			Headers:       map[string]string{"x-client-id": "{{client_id}}"},
			TokenPath:     "token",
			ExpiresAtPath: "expires_at",
		},
		TestAuthPath: "/api/v1/account",
		Identity: identity.Endpoint{
			URL:     "/api/v1/account",
			Mapping: identity.Mapping{ExternalID: "id", Name: "account_details.business_details.business_name"},
		},
		HTTPClient: s.server.Client(),
	}
}

func (s *keyServer) staticConfig() Config {
	return Config{
		Vendor:       "pinger",
		APIBaseURL:   s.server.URL,
		HeaderName:   "Authorization",
		HeaderPrefix: "Token ",
		TestAuthPath: "/v2/ping",
		HTTPClient:   s.server.Client(),
	}
}

type recordedNotifications struct {
	mu    sync.Mutex
	kinds []core.NotificationKind
}

func (r *recordedNotifications) handler(_ context.Context, _ core.APIClient, n core.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind)
	return nil
}

func (r *recordedNotifications) list() []core.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.NotificationKind(nil), r.kinds...)
}

func newLoggedInClient(t *testing.T, s *keyServer, notes *recordedNotifications) *Client {
	t.Helper()
	client, err := New(s.loginConfig(), core.ClientParams{UserID: "user-1", Notify: notes.handler})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.ApplyAuthorizationData(map[string]any{
		FieldAPIKey:          "key-123",
		FieldClientID:        "client-abc",
		core.AttributeAPIURL: s.server.URL + "/",
	})
	if err != nil {
		t.Fatalf("apply authorization data: %v", err)
	}
	if _, err := client.ExchangeCode(context.Background(), ""); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	return client
}

func TestClient_ApplyAuthorizationDataValidatesKeyAndURL(t *testing.T) {
	s := newKeyServer(t)
	cases := []struct {
		name  string
		data  map[string]any
		field string
	}{
		{name: "missing key", data: map[string]any{FieldClientID: "c", core.AttributeAPIURL: s.server.URL}, field: FieldAPIKey},
		{name: "bad url", data: map[string]any{FieldAPIKey: "k", FieldClientID: "c", core.AttributeAPIURL: "ftp://nope"}, field: core.AttributeAPIURL},
		{name: "missing client id", data: map[string]any{FieldAPIKey: "k", core.AttributeAPIURL: s.server.URL}, field: FieldClientID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(s.loginConfig(), core.ClientParams{})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			err = client.ApplyAuthorizationData(tc.data)
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			validation := rich.AllValidationErrors()
			if len(validation) == 0 || validation[0].Field != tc.field {
				t.Fatalf("expected %s validation field, got %#v", tc.field, validation)
			}
		})
	}
}

func TestClient_ExchangeLogsInAndNotifies(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client := newLoggedInClient(t, s, notes)

	logins := s.loginHeaders()
	if len(logins) != 1 {
		t.Fatalf("expected one login, got %d", len(logins))
	}
	if logins[0].Get("x-api-key") != "key-123" || logins[0].Get("x-client-id") != "client-abc" {
		t.Fatalf("unexpected login headers %v", logins[0])
	}
	tokens := client.Tokens()
	if tokens.AccessToken != "token-1" || tokens.APIKey != "key-123" || tokens.ExpiresAt == nil {
		t.Fatalf("unexpected tokens %#v", tokens)
	}
	if tokens.Attributes[core.AttributeAPIURL] != s.server.URL {
		t.Fatalf("expected trimmed api url attribute, got %v", tokens.Attributes[core.AttributeAPIURL])
	}
	if kinds := notes.list(); len(kinds) != 1 || kinds[0] != core.NotificationTokenUpdate {
		t.Fatalf("expected TOKEN_UPDATE, got %v", kinds)
	}
	if client.ClientID() != "client-abc" {
		t.Fatalf("unexpected client id %q", client.ClientID())
	}
}

func TestClient_IdentityUsesBearerToken(t *testing.T) {
	s := newKeyServer(t)
	client := newLoggedInClient(t, s, &recordedNotifications{})

	found, err := client.Identity(context.Background())
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if found.ExternalID != "acct-9" || found.Name != "Acme Ltd" {
		t.Fatalf("unexpected identity %#v", found)
	}
	if client.IdentityKey() != "acct-9" {
		t.Fatalf("expected identity key to be recorded")
	}
	if bearers := s.bearers(); len(bearers) != 1 || bearers[0] != "token-1" {
		t.Fatalf("unexpected bearer tokens %v", bearers)
	}
}

func TestClient_RequestLogsInAgainOnUnauthorized(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client := newLoggedInClient(t, s, notes)
	s.reject("token-1")

	if err := client.TestAuth(context.Background()); err != nil {
		t.Fatalf("test auth: %v", err)
	}
	if bearers := s.bearers(); len(bearers) != 2 || bearers[1] != "token-2" {
		t.Fatalf("expected retry with new token, got %v", bearers)
	}
	kinds := notes.list()
	if len(kinds) != 2 || kinds[1] != core.NotificationTokenUpdate {
		t.Fatalf("expected second TOKEN_UPDATE, got %v", kinds)
	}
}

func TestClient_RequestEmitsInvalidAuthWhenRetryFails(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client := newLoggedInClient(t, s, notes)
	s.reject("token-1", "token-2")

	res, err := client.Request(context.Background(), transport.KindREST, transport.Request{Method: http.MethodGet, URL: "/api/v1/account"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %d", res.StatusCode)
	}
	kinds := notes.list()
	if len(kinds) != 3 || kinds[2] != core.NotificationInvalidAuth {
		t.Fatalf("expected INVALID_AUTH last, got %v", kinds)
	}
}

func TestClient_RejectedLoginEmitsInvalidAuth(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client := newLoggedInClient(t, s, notes)
	s.setLoginStatus(http.StatusUnauthorized)

	_, err := client.RefreshAccessToken(context.Background())
	if !transport.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized login error, got %v", err)
	}
	kinds := notes.list()
	if len(kinds) != 2 || kinds[1] != core.NotificationInvalidAuth {
		t.Fatalf("expected INVALID_AUTH, got %v", kinds)
	}
}

func TestClient_SeededExpiredTokenLogsInBeforeRequest(t *testing.T) {
	s := newKeyServer(t)
	past := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	client, err := New(s.loginConfig(), core.ClientParams{
		Credential: &core.Credential{
			ExternalID:  "acct-9",
			APIKey:      "key-123",
			AccessToken: "stale",
			Attributes: map[string]any{
				core.AttributeAPIURL:    s.server.URL,
				FieldClientID:           "client-abc",
				core.AttributeExpiresAt: past,
			},
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.IdentityKey() != "acct-9" {
		t.Fatalf("expected seeded identity key")
	}
	if err := client.TestAuth(context.Background()); err != nil {
		t.Fatalf("test auth: %v", err)
	}
	if bearers := s.bearers(); len(bearers) != 1 || bearers[0] != "token-1" {
		t.Fatalf("expected fresh token, got %v", bearers)
	}
	if _, ok := client.Attributes()[core.AttributeExpiresAt]; ok {
		t.Fatalf("expected expires_at to stay out of attributes")
	}
}

func TestClient_StaticKeyHeader(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client, err := New(s.staticConfig(), core.ClientParams{Notify: notes.handler})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.AuthorizationURL() != "" {
		t.Fatalf("expected no authorization url")
	}
	if err := client.ApplyAuthorizationData(map[string]any{FieldAPIKey: "good-key"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	tokens, err := client.ExchangeCode(context.Background(), "")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tokens.APIKey != "good-key" || tokens.AccessToken != "" {
		t.Fatalf("unexpected tokens %#v", tokens)
	}
	if err := client.TestAuth(context.Background()); err != nil {
		t.Fatalf("test auth: %v", err)
	}
	if len(notes.list()) != 0 {
		t.Fatalf("expected no notifications for static keys, got %v", notes.list())
	}

	found, err := client.Identity(context.Background())
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if !strings.HasPrefix(found.ExternalID, "key-") || len(found.ExternalID) != len("key-")+16 {
		t.Fatalf("unexpected derived external id %q", found.ExternalID)
	}
	if !strings.Contains(s.server.URL, found.Name) {
		t.Fatalf("expected host based name, got %q", found.Name)
	}
}

func TestClient_StaticKeyUnauthorizedEmitsInvalidAuth(t *testing.T) {
	s := newKeyServer(t)
	notes := &recordedNotifications{}
	client, err := New(s.staticConfig(), core.ClientParams{Notify: notes.handler})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.ApplyAuthorizationData(map[string]any{FieldAPIKey: "bad-key"}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	err = client.TestAuth(context.Background())
	if !transport.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if kinds := notes.list(); len(kinds) != 1 || kinds[0] != core.NotificationInvalidAuth {
		t.Fatalf("expected INVALID_AUTH, got %v", kinds)
	}
}

func TestClient_NotifyFailureJoinsResponseError(t *testing.T) {
	s := newKeyServer(t)
	boom := errors.New("store down")
	client, err := New(s.staticConfig(), core.ClientParams{
		Notify: func(context.Context, core.APIClient, core.Notification) error { return boom },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.ApplyAuthorizationData(map[string]any{FieldAPIKey: "bad-key"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err = client.Request(context.Background(), transport.KindREST, transport.Request{Method: http.MethodGet, URL: "/v2/ping"})
	if !errors.Is(err, boom) || !transport.IsUnauthorized(err) {
		t.Fatalf("expected joined notify and unauthorized error, got %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	if _, err := New(Config{APIBaseURL: "https://x"}, core.ClientParams{}); err == nil {
		t.Fatalf("expected vendor to be required")
	}
	if _, err := New(Config{Vendor: "x"}, core.ClientParams{}); err == nil {
		t.Fatalf("expected api base url to be required")
	}
	client, err := New(Config{Vendor: "X", APIBaseURL: "https://api.x.test"}, core.ClientParams{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.cfg.HeaderName != defaultHeaderName || client.cfg.Vendor != "x" {
		t.Fatalf("unexpected defaults %#v", client.cfg)
	}
}
