package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Manager binds one user's API client to credential and entity storage for
// the lifetime of a single request. A Manager is not safe for concurrent use;
// build one per call chain with Service.GetInstance.
type Manager struct {
	service    *Service
	module     Module
	userID     string
	client     APIClient
	credential *Credential
	entity     *Entity

	authorizing        bool
	pendingTokenUpdate *Notification
}

func (m *Manager) Name() string {
	if m == nil || m.module == nil {
		return ""
	}
	return m.module.Name()
}

func (m *Manager) UserID() string {
	if m == nil {
		return ""
	}
	return m.userID
}

func (m *Manager) Client() APIClient {
	if m == nil {
		return nil
	}
	return m.client
}

// Credential returns a copy of the bound credential.
func (m *Manager) Credential() (Credential, bool) {
	if m == nil || m.credential == nil {
		return Credential{}, false
	}
	return *m.credential, true
}

// Entity returns a copy of the bound entity.
func (m *Manager) Entity() (Entity, bool) {
	if m == nil || m.entity == nil {
		return Entity{}, false
	}
	return *m.entity, true
}

func (m *Manager) GetAuthorizationRequirements(context.Context) AuthorizationRequirements {
	if m == nil || m.module == nil {
		return AuthorizationRequirements{}
	}
	requirements := AuthorizationRequirements{
		Type: m.module.AuthType(),
		Data: m.module.AuthorizationForm(),
	}
	if m.client != nil {
		requirements.URL = m.client.AuthorizationURL()
	}
	return requirements
}

// ProcessAuthorizationCallback exchanges the authorization code, verifies the
// new tokens and persists the credential and entity for the remote account.
// Nothing is written when the exchange or the auth test fails.
func (m *Manager) ProcessAuthorizationCallback(ctx context.Context, params AuthorizationCallback) (result AuthorizationResult, err error) {
	startedAt := time.Now().UTC()
	fields := m.baseFields()
	defer func() {
		m.service.observeOperation(ctx, startedAt, "process_authorization_callback", err, fields)
	}()

	if err = m.ready(); err != nil {
		return AuthorizationResult{}, err
	}
	code, err := m.authorizationCode(params.Data)
	if err != nil {
		return AuthorizationResult{}, err
	}
	if err = m.client.ApplyAuthorizationData(authorizationExtras(params.Data)); err != nil {
		err = m.service.mapError(err)
		return AuthorizationResult{}, err
	}

	m.authorizing = true
	m.pendingTokenUpdate = nil
	defer func() {
		m.authorizing = false
		m.pendingTokenUpdate = nil
	}()

	if _, err = m.client.ExchangeCode(ctx, code); err != nil {
		err = providerOperationError(err, "core: authorization code exchange failed", fields)
		return AuthorizationResult{}, err
	}
	if !m.TestAuth(ctx) {
		err = &AuthenticationError{Vendor: m.Name()}
		return AuthorizationResult{}, err
	}

	identity, err := m.client.Identity(ctx)
	if err != nil {
		err = providerOperationError(err, "core: identity lookup failed", fields)
		return AuthorizationResult{}, err
	}
	externalID := strings.TrimSpace(identity.ExternalID)
	if externalID == "" {
		err = providerOperationError(
			fmt.Errorf("core: identity response is missing an external id"),
			"core: identity lookup failed",
			fields,
		)
		return AuthorizationResult{}, err
	}
	fields["external_id"] = externalID

	if err = m.service.requireStores(); err != nil {
		return AuthorizationResult{}, err
	}
	credential, err := m.resolveAuthorizedCredential(ctx, externalID)
	if err != nil {
		err = m.service.mapError(err)
		return AuthorizationResult{}, err
	}
	m.credential = &credential
	fields["credential_id"] = credential.ID

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = externalID
	}
	if err = m.FindOrCreateEntity(ctx, FindOrCreateEntityRequest{ExternalID: externalID, Name: name}); err != nil {
		return AuthorizationResult{}, err
	}
	fields["entity_id"] = m.entity.ID

	return AuthorizationResult{
		CredentialID: credential.ID,
		EntityID:     m.entity.ID,
		Type:         m.Name(),
	}, nil
}

// TestAuth issues one authenticated read. Failures are reported as false.
func (m *Manager) TestAuth(ctx context.Context) bool {
	if m == nil || m.client == nil {
		return false
	}
	startedAt := time.Now().UTC()
	err := m.client.TestAuth(ctx)
	m.service.observeOperation(ctx, startedAt, "test_auth", err, m.baseFields())
	return err == nil
}

// FindOrCreateEntity binds the entity for externalID, creating it against the
// bound credential when none exists. Several matches fail the call and leave
// the bound entity untouched.
func (m *Manager) FindOrCreateEntity(ctx context.Context, req FindOrCreateEntityRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := m.baseFields()
	fields["external_id"] = req.ExternalID
	defer func() {
		m.service.observeOperation(ctx, startedAt, "find_or_create_entity", err, fields)
	}()

	if err = m.ready(); err != nil {
		return err
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		err = validationError("external_id", "external id is required")
		return err
	}
	if err = m.service.requireStores(); err != nil {
		return err
	}

	credentialID := ""
	if m.credential != nil {
		credentialID = m.credential.ID
	}
	entity, resolution, err := Resolve[Entity, EntityFilter](
		ctx,
		m.service.entityStore,
		EntityFilter{UserID: m.userID, Vendor: m.Name(), ExternalID: externalID},
		Entity{
			UserID:       m.userID,
			Vendor:       m.Name(),
			CredentialID: credentialID,
			ExternalID:   externalID,
			Name:         req.Name,
		},
		ResolveKey{Kind: RecordKindEntity, Name: "external ID", Value: externalID},
	)
	if err != nil {
		err = m.service.mapError(err)
		return err
	}
	if resolution == ResolutionFound && strings.TrimSpace(entity.CredentialID) == "" && credentialID != "" {
		entity, err = m.service.entityStore.UpdateOne(ctx, entity.ID, EntityPatch{CredentialID: stringPtr(credentialID)})
		if err != nil {
			err = m.service.mapError(err)
			return err
		}
	}
	fields["entity_id"] = entity.ID
	fields["resolution"] = resolution.String()
	m.entity = &entity
	return nil
}

func (m *Manager) ready() error {
	if m == nil || m.service == nil || m.module == nil {
		return &ProgrammerError{Message: "core: manager was not built by Service.GetInstance"}
	}
	if m.client == nil {
		return &ProgrammerError{Message: "core: manager has no api client"}
	}
	return nil
}

func (m *Manager) newClient(credential *Credential) (APIClient, error) {
	params := ClientParams{
		UserID: m.userID,
		Notify: m.ReceiveNotification,
	}
	if credential != nil {
		seed := *credential
		seed.Attributes = copyAnyMap(credential.Attributes)
		params.Credential = &seed
	}
	client, err := m.module.NewClient(params)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("core: module %s returned a nil api client", m.Name())
	}
	return client, nil
}

func (m *Manager) authorizationCode(data map[string]any) (string, error) {
	code := readAnyString(data["code"])
	if code != "" {
		return code, nil
	}
	// API-key modules carry their secrets in the callback data.
	if m.module.AuthType() == AuthTypeAPIKey {
		return "", nil
	}
	if m.service.config.Authorization.AllowDefaultCode {
		if module, ok := m.module.(DefaultCodeModule); ok {
			if fallback := strings.TrimSpace(module.DefaultAuthorizationCode()); fallback != "" {
				return fallback, nil
			}
		}
	}
	return "", validationError("code", "authorization code is required")
}

// resolveAuthorizedCredential reuses the bound credential when it belongs to
// the same account, otherwise resolves by (user, vendor, external id). An
// ambiguous match fails the handshake.
func (m *Manager) resolveAuthorizedCredential(ctx context.Context, externalID string) (Credential, error) {
	store := m.service.credentialStore
	tokens := m.client.Tokens()
	var deferred map[string]any
	if m.pendingTokenUpdate != nil {
		deferred = m.pendingTokenUpdate.Payload
	}
	patch := tokenPatch(tokens, deferred)
	patch.ExternalID = stringPtr(externalID)

	if m.credential != nil && (m.credential.ExternalID == "" || m.credential.ExternalID == externalID) {
		return store.UpdateOne(ctx, m.credential.ID, patch)
	}

	payload := patch.Apply(Credential{
		UserID:      m.userID,
		Vendor:      m.Name(),
		ExternalID:  externalID,
		AuthIsValid: true,
	})
	credential, resolution, err := Resolve[Credential, CredentialFilter](
		ctx,
		store,
		CredentialFilter{UserID: m.userID, Vendor: m.Name(), ExternalID: externalID},
		payload,
		ResolveKey{Kind: RecordKindCredential, Name: "external ID", Value: externalID},
	)
	if err != nil {
		var ambiguous *AmbiguousRecordError
		if errors.As(err, &ambiguous) {
			m.service.logDebug(ctx, ambiguous.Error(), m.baseFields())
		}
		return Credential{}, err
	}
	if resolution == ResolutionFound && (m.pendingTokenUpdate != nil || tokensDiffer(credential, tokens)) {
		return store.UpdateOne(ctx, credential.ID, patch)
	}
	return credential, nil
}

func (m *Manager) baseFields() map[string]any {
	fields := map[string]any{}
	if m == nil {
		return fields
	}
	fields["vendor"] = m.Name()
	fields["user_id"] = m.userID
	if m.credential != nil {
		fields["credential_id"] = m.credential.ID
	}
	if m.entity != nil {
		fields["entity_id"] = m.entity.ID
	}
	return fields
}

func authorizationExtras(data map[string]any) map[string]any {
	extras := copyAnyMap(data)
	delete(extras, "code")
	return extras
}

func tokensDiffer(credential Credential, tokens TokenSet) bool {
	if tokens.AccessToken != "" && tokens.AccessToken != credential.AccessToken {
		return true
	}
	if tokens.RefreshToken != "" && tokens.RefreshToken != credential.RefreshToken {
		return true
	}
	if tokens.APIKey != "" && tokens.APIKey != credential.APIKey {
		return true
	}
	return !credential.AuthIsValid
}

// sameClient compares API clients by identity. Clients of non comparable
// types never match.
func sameClient(a APIClient, b APIClient) bool {
	if a == nil || b == nil {
		return false
	}
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) || !typeA.Comparable() {
		return false
	}
	return a == b
}
