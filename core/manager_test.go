package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func authorize(t *testing.T, manager *Manager, code string) AuthorizationResult {
	t.Helper()
	result, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"code": code, "subdomain": "acme"},
	})
	if err != nil {
		t.Fatalf("process callback: %v", err)
	}
	return result
}

func currentClient(t *testing.T, manager *Manager) *fakeClient {
	t.Helper()
	client, ok := manager.Client().(*fakeClient)
	if !ok {
		t.Fatalf("expected fake api client, got %T", manager.Client())
	}
	return client
}

func TestManager_GetAuthorizationRequirements(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")

	requirements := manager.GetAuthorizationRequirements(context.Background())
	if requirements.Type != AuthTypeOAuth2 {
		t.Fatalf("expected oauth2 requirements, got %q", requirements.Type)
	}
	if !strings.Contains(requirements.URL, "client_id=client-1") {
		t.Fatalf("expected authorization url from client, got %q", requirements.URL)
	}
	schema := requirements.Data.JSONSchema
	if schema["title"] != "Auth Form" || schema["type"] != "object" {
		t.Fatalf("unexpected json schema header: %#v", schema)
	}
	required, _ := schema["required"].([]string)
	if len(required) != 1 || required[0] != AttributeSubdomain {
		t.Fatalf("expected subdomain to be required, got %#v", schema["required"])
	}
	hints, _ := requirements.Data.UISchema[AttributeSubdomain].(map[string]any)
	if hints["ui:placeholder"] != "{{subdomain}}.example.com" {
		t.Fatalf("expected placeholder ui hint, got %#v", hints)
	}
	if harness.credentials.calls() != 0 {
		t.Fatalf("expected requirements to leave storage untouched")
	}
}

func TestManager_ProcessAuthorizationCallbackIsIdempotent(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())

	first := authorize(t, harness.manager(t, "user-1", ""), "code-1")
	second := authorize(t, harness.manager(t, "user-1", ""), "code-2")

	if first.CredentialID == "" || first.EntityID == "" {
		t.Fatalf("expected persisted ids, got %#v", first)
	}
	if first != second {
		t.Fatalf("expected identical results across callbacks, got %#v and %#v", first, second)
	}
	if first.Type != "acme" {
		t.Fatalf("expected module name as result type, got %q", first.Type)
	}
	if harness.credentials.count() != 1 || harness.entities.count() != 1 {
		t.Fatalf("expected one credential and one entity, got %d/%d", harness.credentials.count(), harness.entities.count())
	}

	entity, _ := harness.entities.get(first.EntityID)
	if entity.CredentialID != first.CredentialID {
		t.Fatalf("expected entity to reference credential %q, got %q", first.CredentialID, entity.CredentialID)
	}
	if entity.Name != "Acme Workspace" || entity.ExternalID != "acct-1" {
		t.Fatalf("unexpected entity: %#v", entity)
	}
}

func TestManager_ProcessAuthorizationCallbackAppliesExtraFields(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")
	authorize(t, manager, "code-1")

	client := currentClient(t, manager)
	if client.applied["subdomain"] != "acme" {
		t.Fatalf("expected subdomain applied to client, got %#v", client.applied)
	}
	if _, ok := client.applied["code"]; ok {
		t.Fatalf("expected code to be consumed by the exchange, got %#v", client.applied)
	}
	if len(client.codes) != 1 || client.codes[0] != "code-1" {
		t.Fatalf("expected one exchange with code-1, got %#v", client.codes)
	}

	credential, ok := manager.Credential()
	if !ok {
		t.Fatalf("expected bound credential")
	}
	if credential.AccessToken != "access-1" || credential.RefreshToken != "refresh-1" {
		t.Fatalf("expected exchanged tokens on credential, got %#v", credential)
	}
	if !credential.AuthIsValid || credential.ExternalID != "acct-1" {
		t.Fatalf("expected valid credential for acct-1, got %#v", credential)
	}
}

func TestManager_ProcessAuthorizationCallbackAuthFailurePersistsNothing(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig(), func(v *fakeVendor) {
		v.behavior.testErr = errors.New("401 unauthorized")
	})
	manager := harness.manager(t, "user-1", "")

	_, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"code": "code-1"},
	})
	if err == nil {
		t.Fatalf("expected authentication failure")
	}
	if err.Error() != "Authentication failed" {
		t.Fatalf("expected Authentication failed message, got %q", err.Error())
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected authentication error type, got %T", err)
	}
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected errors.Is authentication failed")
	}
	if harness.credentials.calls() != 0 || harness.entities.findCalls != 0 {
		t.Fatalf("expected no storage lookups on failed auth test")
	}
	if _, ok := manager.Credential(); ok {
		t.Fatalf("expected no credential bound")
	}
}

func TestManager_ProcessAuthorizationCallbackIgnoresFailureNotices(t *testing.T) {
	cases := []struct {
		name      string
		configure func(*fakeVendor)
	}{
		{
			name: "invalid auth from auth test",
			configure: func(v *fakeVendor) {
				v.behavior.testNotice = NotificationInvalidAuth
				v.behavior.testErr = errors.New("401 unauthorized")
			},
		},
		{
			name: "invalid auth from exchange",
			configure: func(v *fakeVendor) {
				v.behavior.exchangeNotice = NotificationInvalidAuth
				v.behavior.exchangeErr = errors.New("login rejected")
			},
		},
		{
			name: "deauthorized from exchange",
			configure: func(v *fakeVendor) {
				v.behavior.exchangeNotice = NotificationDeauthorized
				v.behavior.exchangeErr = errors.New("invalid_grant")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			harness := newTestHarness(t, DefaultConfig(), tc.configure)
			harness.credentials.seed(Credential{
				ID:          "cred_existing",
				UserID:      "user-1",
				Vendor:      "acme",
				ExternalID:  "acct-0",
				AccessToken: "access-0",
				AuthIsValid: true,
			})
			manager := harness.manager(t, "user-1", "")

			_, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
				Data: map[string]any{"code": "code-1"},
			})
			if err == nil {
				t.Fatalf("expected callback failure")
			}
			if harness.credentials.calls() != 0 || harness.entities.findCalls != 0 {
				t.Fatalf("expected no storage calls, got %d credential calls", harness.credentials.calls())
			}
			existing, ok := harness.credentials.get("cred_existing")
			if !ok || !existing.AuthIsValid || existing.AccessToken != "access-0" {
				t.Fatalf("expected earlier credential untouched, got %#v", existing)
			}
			if _, ok := manager.Credential(); ok {
				t.Fatalf("expected no credential bound")
			}
		})
	}
}

func TestManager_ProcessAuthorizationCallbackExchangeFailure(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig(), func(v *fakeVendor) {
		v.behavior.exchangeErr = errors.New("dial tcp: connection refused")
	})
	manager := harness.manager(t, "user-1", "")

	_, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"code": "code-1"},
	})
	if err == nil {
		t.Fatalf("expected exchange failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != IntegrationErrorProviderOperationFailed {
		t.Fatalf("expected provider operation text code, got %q", richErr.TextCode)
	}
	if currentClient(t, manager).testCalls != 0 {
		t.Fatalf("expected auth test to be skipped after failed exchange")
	}
	if harness.credentials.calls() != 0 {
		t.Fatalf("expected no credential writes")
	}
}

func TestManager_ProcessAuthorizationCallbackRequiresCode(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")

	_, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"subdomain": "acme"},
	})
	if err == nil {
		t.Fatalf("expected missing code validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != IntegrationErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}
	if len(currentClient(t, manager).codes) != 0 {
		t.Fatalf("expected no exchange without a code")
	}
}

func TestManager_ProcessAuthorizationCallbackUsesModuleDefaultCode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization.AllowDefaultCode = true
	harness := newTestHarness(t, cfg)
	manager := harness.manager(t, "user-1", "")

	if _, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"subdomain": "acme"},
	}); err != nil {
		t.Fatalf("process callback: %v", err)
	}
	codes := currentClient(t, manager).codes
	if len(codes) != 1 || codes[0] != "test" {
		t.Fatalf("expected module default code, got %#v", codes)
	}
}

func TestManager_ProcessAuthorizationCallbackAcceptsAPIKeyDataWithoutCode(t *testing.T) {
	vendor := newFakeVendor()
	vendor.behavior.exchange = TokenSet{APIKey: "key-1"}
	spec := vendor.module("keyed")
	spec.Auth = AuthTypeAPIKey
	spec.DefaultCode = ""
	svc, err := NewService(DefaultConfig(),
		WithCredentialStore(newMemoryCredentialStore()),
		WithEntityStore(newMemoryEntityStore()),
		WithModule(spec),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	manager, err := svc.GetInstance(context.Background(), GetInstanceRequest{Vendor: "keyed", UserID: "user-1"})
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}

	result, err := manager.ProcessAuthorizationCallback(context.Background(), AuthorizationCallback{
		Data: map[string]any{"api_key": "key-1", "api_url": "https://api.example.com"},
	})
	if err != nil {
		t.Fatalf("process api key callback: %v", err)
	}
	if result.Type != "keyed" || result.CredentialID == "" {
		t.Fatalf("unexpected result %#v", result)
	}
	client := currentClient(t, manager)
	if len(client.codes) != 1 || client.codes[0] != "" {
		t.Fatalf("expected a single exchange with an empty code, got %#v", client.codes)
	}
	if client.applied["api_key"] != "key-1" {
		t.Fatalf("expected api key data applied to the client, got %#v", client.applied)
	}
}

func TestManager_ProcessAuthorizationCallbackFoldsDeferredTokenUpdate(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig(), func(v *fakeVendor) {
		v.behavior.notifyOnExchange = true
	})
	manager := harness.manager(t, "user-1", "")
	result := authorize(t, manager, "code-1")

	if harness.credentials.count() != 1 {
		t.Fatalf("expected a single credential, got %d", harness.credentials.count())
	}
	credential, err := harness.credentials.FindByID(context.Background(), result.CredentialID)
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if credential.Attributes["scope"] != "read" {
		t.Fatalf("expected deferred token update payload on credential, got %#v", credential.Attributes)
	}
	if credential.ExternalID != "acct-1" {
		t.Fatalf("expected credential keyed by external id, got %q", credential.ExternalID)
	}
}

func TestManager_ProcessAuthorizationCallbackReauthorizesBoundCredential(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	first := authorize(t, harness.manager(t, "user-1", ""), "code-1")

	harness.vendor.behavior.exchange = TokenSet{AccessToken: "access-2", RefreshToken: "refresh-2"}
	manager := harness.manager(t, "user-1", first.EntityID)
	second := authorize(t, manager, "code-2")

	if second != first {
		t.Fatalf("expected reauthorization to keep ids, got %#v and %#v", first, second)
	}
	credential, err := harness.credentials.FindByID(context.Background(), first.CredentialID)
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if credential.AccessToken != "access-2" || credential.RefreshToken != "refresh-2" {
		t.Fatalf("expected rotated tokens, got %#v", credential)
	}
}

func TestManager_FindOrCreateEntityIsIdempotent(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")
	ctx := context.Background()

	if err := manager.FindOrCreateEntity(ctx, FindOrCreateEntityRequest{ExternalID: "acct-9", Name: "Nine"}); err != nil {
		t.Fatalf("find or create entity: %v", err)
	}
	first, _ := manager.Entity()
	if err := manager.FindOrCreateEntity(ctx, FindOrCreateEntityRequest{ExternalID: "acct-9", Name: "Nine"}); err != nil {
		t.Fatalf("find or create entity again: %v", err)
	}
	second, _ := manager.Entity()

	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("expected the same entity twice, got %q and %q", first.ID, second.ID)
	}
	if harness.entities.count() != 1 || harness.entities.createCalls != 1 {
		t.Fatalf("expected a single entity creation, got %d", harness.entities.createCalls)
	}
}

func TestManager_FindOrCreateEntityAmbiguousMatch(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	harness.entities.seed(
		Entity{UserID: "user-1", Vendor: "acme", ExternalID: "acct-9"},
		Entity{UserID: "user-1", Vendor: "acme", ExternalID: "acct-9"},
	)
	manager := harness.manager(t, "user-1", "")

	err := manager.FindOrCreateEntity(context.Background(), FindOrCreateEntityRequest{ExternalID: "acct-9"})
	if err == nil {
		t.Fatalf("expected ambiguous entity error")
	}
	if err.Error() != "Multiple entities found with the same external ID: acct-9" {
		t.Fatalf("unexpected error message: %q", err.Error())
	}
	if !errors.Is(err, ErrAmbiguousRecord) {
		t.Fatalf("expected errors.Is ambiguous record")
	}
	if _, ok := manager.Entity(); ok {
		t.Fatalf("expected entity to stay unset")
	}
	if harness.entities.createCalls != 0 {
		t.Fatalf("expected no entity creation on ambiguity")
	}
}

func TestManager_FindOrCreateEntityRequiresExternalID(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")

	if err := manager.FindOrCreateEntity(context.Background(), FindOrCreateEntityRequest{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if harness.entities.findCalls != 0 {
		t.Fatalf("expected no entity lookup")
	}
}

func TestManager_TokenUpdateCreatesCredentialWhenNoneStored(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")
	client := currentClient(t, manager)
	client.tokens = TokenSet{AccessToken: "access-9", RefreshToken: "refresh-9"}

	if err := client.Notify(context.Background(), client, NotificationTokenUpdate, map[string]any{
		"expires_at": "2026-01-01T00:00:00Z",
		"ignored":    nil,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if harness.credentials.count() != 1 || harness.credentials.createCalls != 1 {
		t.Fatalf("expected exactly one credential created, got %d", harness.credentials.count())
	}
	credential, ok := manager.Credential()
	if !ok {
		t.Fatalf("expected credential bound after token update")
	}
	if credential.AccessToken != "access-9" || credential.RefreshToken != "refresh-9" {
		t.Fatalf("expected client tokens on credential, got %#v", credential)
	}
	if credential.UserID != "user-1" || credential.Vendor != "acme" || !credential.AuthIsValid {
		t.Fatalf("unexpected credential ownership: %#v", credential)
	}
	if credential.Attributes[AttributeExpiresAt] != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected expires_at attribute, got %#v", credential.Attributes)
	}
	if _, ok := credential.Attributes["ignored"]; ok {
		t.Fatalf("expected nil payload fields to be dropped")
	}
}

func TestManager_TokenUpdateBindsSingleStoredCredential(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	harness.credentials.seed(Credential{ID: "cred_existing", UserID: "user-1", Vendor: "acme", AccessToken: "old", AuthIsValid: false})
	manager := harness.manager(t, "user-1", "")
	client := currentClient(t, manager)
	client.tokens = TokenSet{AccessToken: "new"}

	if err := client.Notify(context.Background(), client, NotificationTokenUpdate, nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	credential, ok := manager.Credential()
	if !ok || credential.ID != "cred_existing" {
		t.Fatalf("expected stored credential bound, got %#v", credential)
	}
	if credential.AccessToken != "new" || !credential.AuthIsValid {
		t.Fatalf("expected refreshed valid credential, got %#v", credential)
	}
	if harness.credentials.createCalls != 0 {
		t.Fatalf("expected no credential creation")
	}
}

func TestManager_TokenUpdateAmbiguousCredentialsIsReportedOnce(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	harness.credentials.seed(
		Credential{UserID: "user-1", Vendor: "acme", AccessToken: "a"},
		Credential{UserID: "user-1", Vendor: "acme", AccessToken: "b"},
	)
	manager := harness.manager(t, "user-1", "")
	client := currentClient(t, manager)
	client.tokens = TokenSet{AccessToken: "c"}

	if err := client.Notify(context.Background(), client, NotificationTokenUpdate, nil); err != nil {
		t.Fatalf("expected ambiguity to be swallowed, got %v", err)
	}
	if _, ok := manager.Credential(); ok {
		t.Fatalf("expected credential to stay unset")
	}
	if harness.credentials.count() != 2 || harness.credentials.createCalls != 0 || harness.credentials.updateCalls != 0 {
		t.Fatalf("expected storage untouched on ambiguity")
	}

	debugLogs := []capturedLog{}
	for _, item := range harness.logger.snapshot() {
		if item.level == "debug" {
			debugLogs = append(debugLogs, item)
		}
	}
	if len(debugLogs) != 1 {
		t.Fatalf("expected exactly one debug log, got %d", len(debugLogs))
	}
	if debugLogs[0].msg != "Multiple credentials found with the same user ID: user-1" {
		t.Fatalf("unexpected debug message: %q", debugLogs[0].msg)
	}
}

func TestManager_TokenUpdateUpdatesBoundCredential(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	result := authorize(t, harness.manager(t, "user-1", ""), "code-1")

	manager := harness.manager(t, "user-1", result.EntityID)
	client := currentClient(t, manager)
	if client.seed == nil || client.tokens.AccessToken != "access-1" {
		t.Fatalf("expected client seeded from stored credential, got %#v", client.tokens)
	}
	if _, err := client.RefreshAccessToken(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	credential, err := harness.credentials.FindByID(context.Background(), result.CredentialID)
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if credential.AccessToken != "refreshed-access-1" {
		t.Fatalf("expected refreshed token persisted, got %q", credential.AccessToken)
	}
	if harness.credentials.count() != 1 {
		t.Fatalf("expected no extra credential")
	}
}

func TestManager_DeauthorizeClearsCredentialOnce(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	result := authorize(t, harness.manager(t, "user-1", ""), "code-1")
	manager := harness.manager(t, "user-1", result.EntityID)
	client := currentClient(t, manager)
	ctx := context.Background()

	if err := client.Notify(ctx, client, NotificationDeauthorized, nil); err != nil {
		t.Fatalf("notify deauthorized: %v", err)
	}
	if _, ok := manager.Credential(); ok {
		t.Fatalf("expected credential cleared")
	}
	if harness.credentials.count() != 0 || harness.credentials.deleteCalls != 1 {
		t.Fatalf("expected credential deleted once, got %d deletes", harness.credentials.deleteCalls)
	}
	entity, ok := harness.entities.get(result.EntityID)
	if !ok || entity.CredentialID != "" {
		t.Fatalf("expected entity kept with cleared credential, got %#v", entity)
	}
	bound, _ := manager.Entity()
	if bound.CredentialID != "" {
		t.Fatalf("expected bound entity reference cleared, got %q", bound.CredentialID)
	}
	if manager.Client() == APIClient(client) {
		t.Fatalf("expected api client reset")
	}
	fresh := currentClient(t, manager)
	if fresh.seed != nil || !fresh.tokens.Empty() {
		t.Fatalf("expected unauthenticated client, got %#v", fresh.tokens)
	}

	if err := manager.Deauthorize(ctx); err != nil {
		t.Fatalf("second deauthorize: %v", err)
	}
	if err := client.Notify(ctx, client, NotificationDeauthorized, nil); err != nil {
		t.Fatalf("stale client notify: %v", err)
	}
	if harness.credentials.deleteCalls != 1 {
		t.Fatalf("expected credential deleted at most once, got %d", harness.credentials.deleteCalls)
	}
}

func TestManager_DeauthorizeWithoutCredentialIsNoop(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")

	if err := manager.Deauthorize(context.Background()); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}
	if harness.credentials.calls() != 0 || harness.entities.findCalls != 0 {
		t.Fatalf("expected no storage calls")
	}
}

func TestManager_IgnoresForeignAndUnknownNotifications(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	manager := harness.manager(t, "user-1", "")
	ctx := context.Background()

	foreign := &fakeClient{tokens: TokenSet{AccessToken: "foreign"}}
	if err := manager.ReceiveNotification(ctx, foreign, NewNotification(NotificationTokenUpdate, nil)); err != nil {
		t.Fatalf("foreign notification: %v", err)
	}
	if err := manager.ReceiveNotification(ctx, nil, NewNotification(NotificationDeauthorized, nil)); err != nil {
		t.Fatalf("nil source notification: %v", err)
	}
	client := currentClient(t, manager)
	if err := manager.ReceiveNotification(ctx, client, Notification{Kind: "DLGT_TOKEN_REFRESHED"}); err != nil {
		t.Fatalf("unknown kind notification: %v", err)
	}
	if err := client.Notify(ctx, client, NotificationKind("TOKEN_REFRESHED"), nil); err == nil {
		t.Fatalf("expected notifier to reject unknown kinds")
	}

	if harness.credentials.calls() != 0 {
		t.Fatalf("expected ignored notifications to leave storage untouched")
	}
	if harness.vendor.clientCount() != 1 {
		t.Fatalf("expected no client reset from ignored notifications")
	}
}

func TestManager_MarkCredentialsInvalid(t *testing.T) {
	t.Run("single credential", func(t *testing.T) {
		harness := newTestHarness(t, DefaultConfig())
		harness.credentials.seed(Credential{ID: "cred_1", UserID: "user-1", Vendor: "acme", AuthIsValid: true})
		manager := harness.manager(t, "user-1", "")
		client := currentClient(t, manager)

		if err := client.Notify(context.Background(), client, NotificationInvalidAuth, nil); err != nil {
			t.Fatalf("notify invalid auth: %v", err)
		}
		stored, err := harness.credentials.FindByID(context.Background(), "cred_1")
		if err != nil {
			t.Fatalf("find credential: %v", err)
		}
		if stored.AuthIsValid {
			t.Fatalf("expected credential marked invalid")
		}
		if credential, ok := manager.Credential(); !ok || credential.AuthIsValid {
			t.Fatalf("expected bound credential synced, got %#v", credential)
		}
	})

	t.Run("no credential", func(t *testing.T) {
		harness := newTestHarness(t, DefaultConfig())
		manager := harness.manager(t, "user-1", "")

		err := manager.MarkCredentialsInvalid(context.Background())
		var programmerErr *ProgrammerError
		if !errors.As(err, &programmerErr) {
			t.Fatalf("expected programmer error, got %v", err)
		}
	})

	t.Run("multiple credentials", func(t *testing.T) {
		harness := newTestHarness(t, DefaultConfig())
		harness.credentials.seed(
			Credential{UserID: "user-1", Vendor: "acme", AuthIsValid: true},
			Credential{UserID: "user-1", Vendor: "acme", AuthIsValid: true},
		)
		manager := harness.manager(t, "user-1", "")

		err := manager.MarkCredentialsInvalid(context.Background())
		if !errors.Is(err, ErrProgrammerError) {
			t.Fatalf("expected programmer error, got %v", err)
		}
		if !strings.Contains(err.Error(), "multiple credentials") {
			t.Fatalf("unexpected message: %q", err.Error())
		}
		if harness.credentials.updateCalls != 0 {
			t.Fatalf("expected no credential updates")
		}
	})
}

func TestManager_TestAuthReportsFailureAsFalse(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig(), func(v *fakeVendor) {
		v.behavior.testErr = errors.New("timeout")
	})
	manager := harness.manager(t, "user-1", "")

	if manager.TestAuth(context.Background()) {
		t.Fatalf("expected failed auth test")
	}
	if harness.credentials.calls() != 0 {
		t.Fatalf("expected auth test to leave storage untouched")
	}
}

func TestService_GetInstanceRejectsForeignEntity(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	harness.entities.seed(Entity{ID: "ent_other", UserID: "user-2", Vendor: "acme", ExternalID: "acct-2"})

	_, err := harness.service.GetInstance(context.Background(), GetInstanceRequest{
		Vendor:   "acme",
		UserID:   "user-1",
		EntityID: "ent_other",
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != IntegrationErrorRecordNotFound {
		t.Fatalf("expected record not found code, got %q", richErr.TextCode)
	}
}

func TestService_GetInstanceRejectsEntityOfAnotherVendor(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	if err := harness.service.RegisterModule(harness.vendor.module("other")); err != nil {
		t.Fatalf("register module: %v", err)
	}
	harness.credentials.seed(Credential{ID: "cred_a", UserID: "user-1", Vendor: "acme", AccessToken: "acme-secret", AuthIsValid: true})
	harness.entities.seed(Entity{ID: "ent_a", UserID: "user-1", Vendor: "acme", CredentialID: "cred_a", ExternalID: "acct-1"})

	manager, err := harness.service.GetInstance(context.Background(), GetInstanceRequest{
		Vendor:   "other",
		UserID:   "user-1",
		EntityID: "ent_a",
	})
	if manager != nil {
		t.Fatalf("expected no manager for a foreign vendor entity")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != IntegrationErrorRecordNotFound {
		t.Fatalf("expected record not found code, got %q", richErr.TextCode)
	}
	if harness.vendor.clientCount() != 0 {
		t.Fatalf("expected no api client seeded with another vendor's tokens")
	}
}

func TestService_GetInstanceValidatesStoredCredential(t *testing.T) {
	harness := newTestHarness(t, DefaultConfig())
	validated := 0
	if err := harness.service.RegisterModule(ModuleSpec{
		ModuleName: "strict",
		Factory:    harness.vendor.newClient,
		Validate: func(credential Credential) error {
			validated++
			if credential.Attribute(AttributeSubdomain) == "" {
				return errors.New("core: subdomain is required")
			}
			return nil
		},
	}); err != nil {
		t.Fatalf("register module: %v", err)
	}
	harness.credentials.seed(Credential{ID: "cred_1", UserID: "user-1", Vendor: "strict"})
	harness.entities.seed(Entity{ID: "ent_1", UserID: "user-1", Vendor: "strict", CredentialID: "cred_1"})

	_, err := harness.service.GetInstance(context.Background(), GetInstanceRequest{
		Vendor:   "strict",
		UserID:   "user-1",
		EntityID: "ent_1",
	})
	if err == nil || validated != 1 {
		t.Fatalf("expected credential validation failure, got %v", err)
	}
}
