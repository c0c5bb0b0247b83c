// Package security seals credential tokens and API keys with an application
// key before they reach a credential store.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	aead    cipher.AEAD
	window  KeyRotationWindow
}

func (k appKey) ref() string {
	return fmt.Sprintf("%s:%d", k.id, k.version)
}

// AppKeySecretProvider encrypts with its active key and decrypts with the
// active key or any retired key whose rotation window still allows it.
type AppKeySecretProvider struct {
	active  appKey
	retired map[string]appKey
	keyID   string
	version int
	now     func() time.Time
	optErr  error
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

// WithRetiredKey keeps a previous app key available for decryption while
// window allows it.
func WithRetiredKey(keyID string, version int, keyMaterial []byte, window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		if err := window.Validate(); err != nil {
			provider.optErr = err
			return
		}
		key, err := newAppKey(keyID, version, keyMaterial)
		if err != nil {
			provider.optErr = err
			return
		}
		key.window = window
		provider.retired[key.ref()] = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	provider := &AppKeySecretProvider{
		retired: map[string]appKey{},
		keyID:   "app-key",
		version: 1,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.optErr != nil {
		return nil, provider.optErr
	}
	active, err := newAppKey(provider.keyID, provider.version, keyMaterial)
	if err != nil {
		return nil, err
	}
	provider.active = active
	delete(provider.retired, active.ref())
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil || p.active.aead == nil {
		return nil, fmt.Errorf("security: secret provider is not configured")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}

	nonce := make([]byte, p.active.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := p.active.aead.Seal(nil, nonce, plaintext, nil)
	return encodeEnvelope(envelope{
		KeyID:      p.active.id,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil || p.active.aead == nil {
		return nil, fmt.Errorf("security: secret provider is not configured")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := p.keyFor(parsed)
	if err != nil {
		return nil, err
	}

	nonce, err := decodePayload("nonce", parsed.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := decodePayload("ciphertext payload", parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	if len(nonce) != key.aead.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := key.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether ciphertext was sealed by a key other than the
// active one.
func (p *AppKeySecretProvider) NeedsRotation(ciphertext []byte) (bool, error) {
	metadata, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return metadata.KeyID != p.KeyID() || metadata.Version != p.Version(), nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func (p *AppKeySecretProvider) keyFor(env envelope) (appKey, error) {
	if env.KeyID == p.active.id && env.Version == p.active.version {
		return p.active, nil
	}
	ref := appKey{id: env.KeyID, version: env.Version}.ref()
	retired, ok := p.retired[ref]
	if !ok {
		return appKey{}, fmt.Errorf("security: key %s is not available for decryption", ref)
	}
	if !retired.window.Allows(p.now()) {
		return appKey{}, fmt.Errorf("security: key %s is outside its rotation window", ref)
	}
	return retired, nil
}

func newAppKey(keyID string, version int, keyMaterial []byte) (appKey, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return appKey{}, fmt.Errorf("security: key id is required")
	}
	if version <= 0 {
		return appKey{}, fmt.Errorf("security: key version must be positive")
	}
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return appKey{}, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return appKey{}, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return appKey{}, fmt.Errorf("security: create gcm: %w", err)
	}
	return appKey{id: keyID, version: version, aead: gcm}, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
