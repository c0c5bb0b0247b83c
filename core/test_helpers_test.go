package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	next    int
	records map[string]Credential

	findCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: map[string]Credential{}}
}

func (s *memoryCredentialStore) Find(_ context.Context, filter CredentialFilter) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	out := []Credential{}
	for _, record := range s.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.Vendor != "" && record.Vendor != filter.Vendor {
			continue
		}
		if filter.ExternalID != "" && record.ExternalID != filter.ExternalID {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryCredentialStore) FindByID(_ context.Context, id string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Credential{}, fmt.Errorf("%w: credential %s", ErrRecordNotFound, id)
	}
	return record, nil
}

func (s *memoryCredentialStore) Create(_ context.Context, in Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.next++
	in.ID = fmt.Sprintf("cred_%d", s.next)
	in.Attributes = copyAnyMap(in.Attributes)
	in.CreatedAt = time.Now().UTC()
	in.UpdatedAt = in.CreatedAt
	s.records[in.ID] = in
	return in, nil
}

func (s *memoryCredentialStore) UpdateOne(_ context.Context, id string, patch CredentialPatch) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	record, ok := s.records[id]
	if !ok {
		return Credential{}, fmt.Errorf("%w: credential %s", ErrRecordNotFound, id)
	}
	record = patch.Apply(record)
	record.UpdatedAt = time.Now().UTC()
	s.records[id] = record
	return record, nil
}

func (s *memoryCredentialStore) DeleteOne(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: credential %s", ErrRecordNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func (s *memoryCredentialStore) seed(records ...Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if record.ID == "" {
			s.next++
			record.ID = fmt.Sprintf("cred_%d", s.next)
		}
		s.records[record.ID] = record
	}
}

func (s *memoryCredentialStore) get(id string) (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	return record, ok
}

func (s *memoryCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memoryCredentialStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls + s.createCalls + s.updateCalls + s.deleteCalls
}

type memoryEntityStore struct {
	mu      sync.Mutex
	next    int
	records map[string]Entity

	findCalls   int
	createCalls int
	updateCalls int
}

func newMemoryEntityStore() *memoryEntityStore {
	return &memoryEntityStore{records: map[string]Entity{}}
}

func (s *memoryEntityStore) Find(_ context.Context, filter EntityFilter) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	out := []Entity{}
	for _, record := range s.records {
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		if filter.Vendor != "" && record.Vendor != filter.Vendor {
			continue
		}
		if filter.ExternalID != "" && record.ExternalID != filter.ExternalID {
			continue
		}
		if filter.CredentialID != "" && record.CredentialID != filter.CredentialID {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryEntityStore) FindByID(_ context.Context, id string) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Entity{}, fmt.Errorf("%w: entity %s", ErrRecordNotFound, id)
	}
	return record, nil
}

func (s *memoryEntityStore) Create(_ context.Context, in Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.next++
	in.ID = fmt.Sprintf("ent_%d", s.next)
	in.CreatedAt = time.Now().UTC()
	in.UpdatedAt = in.CreatedAt
	s.records[in.ID] = in
	return in, nil
}

func (s *memoryEntityStore) UpdateOne(_ context.Context, id string, patch EntityPatch) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	record, ok := s.records[id]
	if !ok {
		return Entity{}, fmt.Errorf("%w: entity %s", ErrRecordNotFound, id)
	}
	record = patch.Apply(record)
	record.UpdatedAt = time.Now().UTC()
	s.records[id] = record
	return record, nil
}

func (s *memoryEntityStore) DeleteOne(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: entity %s", ErrRecordNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func (s *memoryEntityStore) seed(records ...Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if record.ID == "" {
			s.next++
			record.ID = fmt.Sprintf("ent_%d", s.next)
		}
		s.records[record.ID] = record
	}
}

func (s *memoryEntityStore) get(id string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	return record, ok
}

func (s *memoryEntityStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeClientBehavior struct {
	exchange         TokenSet
	exchangeErr      error
	testErr          error
	identity         ExternalIdentity
	identityErr      error
	notifyOnExchange bool
	exchangeNotice   NotificationKind
	testNotice       NotificationKind
}

type fakeClient struct {
	Notifier
	behavior    fakeClientBehavior
	userID      string
	seed        *Credential
	tokens      TokenSet
	identityKey string
	applied     map[string]any
	codes       []string
	testCalls   int
}

func (c *fakeClient) AuthorizationURL() string {
	return "https://auth.example.com/oauth/authorize?client_id=client-1&response_type=code"
}

func (c *fakeClient) ExchangeCode(ctx context.Context, code string) (TokenSet, error) {
	c.codes = append(c.codes, code)
	if c.behavior.exchangeNotice != "" {
		if err := c.Notify(ctx, c, c.behavior.exchangeNotice, nil); err != nil {
			return TokenSet{}, err
		}
	}
	if c.behavior.exchangeErr != nil {
		return TokenSet{}, c.behavior.exchangeErr
	}
	c.tokens = c.behavior.exchange
	if c.behavior.notifyOnExchange {
		if err := c.Notify(ctx, c, NotificationTokenUpdate, map[string]any{"scope": "read"}); err != nil {
			return TokenSet{}, err
		}
	}
	return c.tokens, nil
}

func (c *fakeClient) RefreshAccessToken(ctx context.Context) (TokenSet, error) {
	c.tokens.AccessToken = "refreshed-" + c.tokens.AccessToken
	if err := c.Notify(ctx, c, NotificationTokenUpdate, nil); err != nil {
		return TokenSet{}, err
	}
	return c.tokens, nil
}

func (c *fakeClient) TestAuth(ctx context.Context) error {
	c.testCalls++
	if c.behavior.testNotice != "" {
		if err := c.Notify(ctx, c, c.behavior.testNotice, nil); err != nil {
			return err
		}
	}
	return c.behavior.testErr
}

func (c *fakeClient) Identity(context.Context) (ExternalIdentity, error) {
	if c.behavior.identityErr != nil {
		return ExternalIdentity{}, c.behavior.identityErr
	}
	c.identityKey = c.behavior.identity.ExternalID
	return c.behavior.identity, nil
}

func (c *fakeClient) Tokens() TokenSet { return c.tokens }

func (c *fakeClient) ClientID() string { return "client-1" }

func (c *fakeClient) IdentityKey() string { return c.identityKey }

func (c *fakeClient) ApplyAuthorizationData(data map[string]any) error {
	c.applied = copyAnyMap(data)
	return nil
}

type fakeVendor struct {
	mu       sync.Mutex
	behavior fakeClientBehavior
	clients  []*fakeClient
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{behavior: fakeClientBehavior{
		exchange: TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1"},
		identity: ExternalIdentity{ExternalID: "acct-1", Name: "Acme Workspace"},
	}}
}

func (v *fakeVendor) module(name string) ModuleSpec {
	return ModuleSpec{
		ModuleName:  name,
		DefaultCode: "test",
		Form: []FormField{{
			Name:        AttributeSubdomain,
			Title:       "Subdomain",
			Help:        "The subdomain of your account.",
			Placeholder: "{{subdomain}}.example.com",
			Required:    true,
		}},
		Factory: v.newClient,
	}
}

func (v *fakeVendor) newClient(params ClientParams) (APIClient, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	client := &fakeClient{
		Notifier: NewNotifier(params.Notify),
		behavior: v.behavior,
		userID:   params.UserID,
		seed:     params.Credential,
	}
	if params.Credential != nil {
		client.tokens = TokenSet{
			AccessToken:  params.Credential.AccessToken,
			RefreshToken: params.Credential.RefreshToken,
			APIKey:       params.Credential.APIKey,
		}
		client.identityKey = params.Credential.ExternalID
	}
	v.clients = append(v.clients, client)
	return client, nil
}

func (v *fakeVendor) clientCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}

type testHarness struct {
	service     *Service
	vendor      *fakeVendor
	credentials *memoryCredentialStore
	entities    *memoryEntityStore
	logger      *captureLogger
	metrics     *captureMetricsRecorder
}

func newTestHarness(t *testing.T, cfg Config, configure ...func(*fakeVendor)) *testHarness {
	t.Helper()
	vendor := newFakeVendor()
	for _, fn := range configure {
		fn(vendor)
	}
	harness := &testHarness{
		vendor:      vendor,
		credentials: newMemoryCredentialStore(),
		entities:    newMemoryEntityStore(),
		logger:      newCaptureLogger(),
		metrics:     &captureMetricsRecorder{},
	}
	svc, err := NewService(cfg,
		WithLoggerProvider(stubLoggerProvider{logger: harness.logger}),
		WithLogger(harness.logger),
		WithMetricsRecorder(harness.metrics),
		WithCredentialStore(harness.credentials),
		WithEntityStore(harness.entities),
		WithModule(vendor.module("acme")),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	harness.service = svc
	return harness
}

func (h *testHarness) manager(t *testing.T, userID string, entityID string) *Manager {
	t.Helper()
	manager, err := h.service.GetInstance(context.Background(), GetInstanceRequest{
		Vendor:   "acme",
		UserID:   userID,
		EntityID: entityID,
	})
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	return manager
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
