package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ReceiveNotification is the handler the Manager registers on its API
// client. Events from any other client, or with kinds outside the
// vocabulary, are dropped.
func (m *Manager) ReceiveNotification(ctx context.Context, source APIClient, notification Notification) (err error) {
	if m == nil || m.service == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !sameClient(source, m.client) {
		m.service.logDebug(ctx, "notification ignored: unknown source", m.notificationFields(notification))
		return nil
	}
	if !notification.Kind.Valid() {
		m.service.logDebug(ctx, "notification ignored: unknown kind", m.notificationFields(notification))
		return nil
	}
	// A failed handshake is reported by the callback itself and must not
	// touch credentials stored for earlier accounts.
	if m.authorizing && notification.Kind != NotificationTokenUpdate {
		m.service.logDebug(ctx, "notification ignored: authorization in progress", m.notificationFields(notification))
		return nil
	}

	startedAt := time.Now().UTC()
	fields := m.notificationFields(notification)
	defer func() {
		m.service.observeOperation(ctx, startedAt, "receive_notification", err, fields)
	}()

	switch notification.Kind {
	case NotificationTokenUpdate:
		if m.authorizing {
			pending := NewNotification(notification.Kind, notification.Payload)
			m.pendingTokenUpdate = &pending
			fields["deferred"] = true
			return nil
		}
		err = m.applyTokenUpdate(ctx, notification.Payload)
	case NotificationDeauthorized:
		err = m.Deauthorize(ctx)
	case NotificationInvalidAuth:
		err = m.MarkCredentialsInvalid(ctx)
	}
	return err
}

// applyTokenUpdate persists the client's current tokens. An unbound Manager
// resolves the credential first; several candidates are reported at debug
// level and leave the Manager unbound.
func (m *Manager) applyTokenUpdate(ctx context.Context, payload map[string]any) error {
	if err := m.service.requireStores(); err != nil {
		return err
	}
	store := m.service.credentialStore
	tokens := m.client.Tokens()
	patch := tokenPatch(tokens, payload)

	if m.credential != nil {
		updated, err := store.UpdateOne(ctx, m.credential.ID, patch)
		if err != nil {
			return m.service.mapError(err)
		}
		m.credential = &updated
		return nil
	}

	payloadCredential := patch.Apply(Credential{
		UserID:      m.userID,
		Vendor:      m.Name(),
		ExternalID:  strings.TrimSpace(m.client.IdentityKey()),
		AuthIsValid: true,
	})
	credential, resolution, err := Resolve[Credential, CredentialFilter](
		ctx,
		store,
		CredentialFilter{UserID: m.userID, Vendor: m.Name(), ExternalID: payloadCredential.ExternalID},
		payloadCredential,
		ResolveKey{Kind: RecordKindCredential, Name: "user ID", Value: m.userID},
	)
	if err != nil {
		var ambiguous *AmbiguousRecordError
		if errors.As(err, &ambiguous) {
			m.service.logDebug(ctx, ambiguous.Error(), m.baseFields())
			return nil
		}
		return m.service.mapError(err)
	}
	if resolution == ResolutionFound {
		credential, err = store.UpdateOne(ctx, credential.ID, patch)
		if err != nil {
			return m.service.mapError(err)
		}
	}
	m.credential = &credential
	return nil
}

// Deauthorize drops the bound credential: the API client is reset, entity
// references to the credential are cleared, then the credential is deleted.
// Without a bound credential only the client is reset.
func (m *Manager) Deauthorize(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	fields := m.baseFields()
	defer func() {
		m.service.observeOperation(ctx, startedAt, "deauthorize", err, fields)
	}()

	if err = m.ready(); err != nil {
		return err
	}
	client, err := m.newClient(nil)
	if err != nil {
		err = m.service.mapError(err)
		return err
	}
	m.client = client

	if m.credential == nil {
		fields["bound"] = false
		return nil
	}
	if err = m.service.requireStores(); err != nil {
		return err
	}
	credentialID := m.credential.ID

	entities, err := m.service.entityStore.Find(ctx, EntityFilter{
		UserID:       m.userID,
		Vendor:       m.Name(),
		CredentialID: credentialID,
	})
	if err != nil {
		err = m.service.mapError(err)
		return err
	}
	if m.entity != nil && m.entity.CredentialID == credentialID && !containsEntity(entities, m.entity.ID) {
		entities = append(entities, *m.entity)
	}
	for _, entity := range entities {
		updated, updateErr := m.service.entityStore.UpdateOne(ctx, entity.ID, EntityPatch{CredentialID: stringPtr("")})
		if updateErr != nil {
			err = m.service.mapError(updateErr)
			return err
		}
		if m.entity != nil && m.entity.ID == updated.ID {
			m.entity = &updated
		}
	}

	if err = m.service.credentialStore.DeleteOne(ctx, credentialID); err != nil {
		err = m.service.mapError(err)
		return err
	}
	m.credential = nil
	fields["cleared_entities"] = len(entities)
	return nil
}

// MarkCredentialsInvalid flags the user's only credential for this vendor as
// invalid. Zero or several credentials are reported as a ProgrammerError.
func (m *Manager) MarkCredentialsInvalid(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	fields := m.baseFields()
	defer func() {
		m.service.observeOperation(ctx, startedAt, "mark_credentials_invalid", err, fields)
	}()

	if err = m.ready(); err != nil {
		return err
	}
	if err = m.service.requireStores(); err != nil {
		return err
	}
	credentials, err := m.service.credentialStore.Find(ctx, CredentialFilter{UserID: m.userID, Vendor: m.Name()})
	if err != nil {
		err = m.service.mapError(err)
		return err
	}
	switch len(credentials) {
	case 0:
		err = &ProgrammerError{Message: "core: no credentials found to mark invalid for user " + m.userID}
		return err
	case 1:
	default:
		err = &ProgrammerError{Message: "core: user " + m.userID + " has multiple credentials"}
		return err
	}

	updated, err := m.service.credentialStore.UpdateOne(ctx, credentials[0].ID, CredentialPatch{AuthIsValid: boolPtr(false)})
	if err != nil {
		err = m.service.mapError(err)
		return err
	}
	if m.credential == nil || m.credential.ID == updated.ID {
		m.credential = &updated
	}
	fields["credential_id"] = updated.ID
	fields["auth_is_valid"] = false
	return nil
}

func (m *Manager) notificationFields(notification Notification) map[string]any {
	fields := m.baseFields()
	fields["notification_kind"] = notification.Kind.String()
	return fields
}

// tokenPatch builds a credential patch from the client's tokens plus
// notification payload attributes. Empty values are skipped and the
// credential is marked valid.
func tokenPatch(tokens TokenSet, payload map[string]any) CredentialPatch {
	attributes := compactAttributes(tokens.Attributes)
	for key, value := range compactAttributes(payload) {
		switch key {
		case "access_token", "refresh_token", "api_key":
			continue
		}
		attributes[key] = value
	}
	if expiresAt := formatTime(tokens.ExpiresAt); expiresAt != nil {
		attributes[AttributeExpiresAt] = expiresAt
	}

	patch := CredentialPatch{
		AccessToken:  nonEmptyStringPtr(tokens.AccessToken),
		RefreshToken: nonEmptyStringPtr(tokens.RefreshToken),
		APIKey:       nonEmptyStringPtr(tokens.APIKey),
		AuthIsValid:  boolPtr(true),
	}
	if patch.AccessToken == nil {
		patch.AccessToken = nonEmptyStringPtr(readAnyString(payload["access_token"]))
	}
	if patch.RefreshToken == nil {
		patch.RefreshToken = nonEmptyStringPtr(readAnyString(payload["refresh_token"]))
	}
	if patch.APIKey == nil {
		patch.APIKey = nonEmptyStringPtr(readAnyString(payload["api_key"]))
	}
	if len(attributes) > 0 {
		patch.Attributes = attributes
	}
	return patch
}

func containsEntity(entities []Entity, id string) bool {
	for _, entity := range entities {
		if entity.ID == id {
			return true
		}
	}
	return false
}
