// Package identity answers "who am I" for an authorized API client, either
// from id_token claims or from a vendor user-info endpoint, and normalizes
// the answer to core.ExternalIdentity.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const defaultRequestTimeout = 10 * time.Second

const maxProfileResponseBytes = 1 << 20

var ErrProfileNotFound = errors.New("identity: profile not found")

type ProfileNotFoundError struct {
	Cause error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

func (e *ProfileNotFoundError) ToServiceError() *goerrors.Error {
	message := ErrProfileNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.IntegrationErrorProviderOperationFailed)
}

func profileNotFound(cause error) error {
	return &ProfileNotFoundError{Cause: cause}
}

// Mapping holds dotted paths into a profile payload, e.g. "user.id" or
// "data.currentUser.id". Numeric segments index into arrays.
type Mapping struct {
	ExternalID string
	Name       string
	Email      string
}

// DefaultMapping reads top level id, name and email fields.
func DefaultMapping() Mapping {
	return Mapping{ExternalID: "id", Name: "name", Email: "email"}
}

// ClaimsMapping reads OIDC id_token claims.
func ClaimsMapping() Mapping {
	return Mapping{ExternalID: "sub", Name: "name", Email: "email"}
}

func (m Mapping) withDefaults(fallback Mapping) Mapping {
	if strings.TrimSpace(m.ExternalID) == "" {
		m.ExternalID = fallback.ExternalID
	}
	if strings.TrimSpace(m.Name) == "" {
		m.Name = fallback.Name
	}
	if strings.TrimSpace(m.Email) == "" {
		m.Email = fallback.Email
	}
	return m
}

// Endpoint describes a vendor "who am I" call. GraphQL endpoints set Query.
type Endpoint struct {
	URL           string
	Method        string
	Query         string
	OperationName string
	Mapping       Mapping
}

func (e Endpoint) kind() string {
	if strings.TrimSpace(e.Query) != "" {
		return transport.KindGraphQL
	}
	return transport.KindREST
}

func (e Endpoint) request() transport.Request {
	req := transport.Request{
		Method:               strings.TrimSpace(e.Method),
		URL:                  strings.TrimSpace(e.URL),
		MaxResponseBodyBytes: maxProfileResponseBytes,
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if query := strings.TrimSpace(e.Query); query != "" {
		req.Metadata = map[string]any{transport.GraphQLQueryKey: query}
		if name := strings.TrimSpace(e.OperationName); name != "" {
			req.Metadata[transport.GraphQLOperationNameKey] = name
		}
	}
	return req
}

// Requester sends an authenticated request through the adapter of kind.
// API clients pass their own so identity calls share auth headers and
// refresh handling.
type Requester func(ctx context.Context, kind string, req transport.Request) (transport.Response, error)

type Config struct {
	Transport      *transport.Registry
	HTTPClient     transport.HTTPDoer
	RequestTimeout time.Duration
	// IDTokenKey verifies HMAC signed id_tokens. Without it claims are read
	// unverified.
	IDTokenKey []byte
}

type Resolver struct {
	transport      *transport.Registry
	requestTimeout time.Duration
	idTokenKey     []byte
}

func NewResolver(cfg Config) *Resolver {
	registry := cfg.Transport
	if registry == nil {
		registry = transport.NewDefaultRegistry(cfg.HTTPClient)
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Resolver{
		transport:      registry,
		requestTimeout: requestTimeout,
		idTokenKey:     append([]byte(nil), cfg.IDTokenKey...),
	}
}

func DefaultResolver() *Resolver {
	return NewResolver(Config{})
}

// FromIDToken reads the identity from id_token claims.
func (r *Resolver) FromIDToken(idToken string, mapping Mapping) (core.ExternalIdentity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return core.ExternalIdentity{}, profileNotFound(fmt.Errorf("identity: id_token is required"))
	}
	claims, err := r.decodeIDToken(idToken)
	if err != nil {
		return core.ExternalIdentity{}, profileNotFound(err)
	}
	return MapIdentity(claims, mapping.withDefaults(ClaimsMapping()))
}

// FromEndpoint fetches the profile from endpoint. Vendor status failures are
// returned as transport errors so callers can react to a 401.
func (r *Resolver) FromEndpoint(ctx context.Context, endpoint Endpoint, send Requester) (core.ExternalIdentity, error) {
	if r == nil {
		return core.ExternalIdentity{}, profileNotFound(nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(endpoint.URL) == "" {
		return core.ExternalIdentity{}, profileNotFound(fmt.Errorf("identity: profile endpoint is required"))
	}
	if send == nil {
		send = r.send
	}

	req := endpoint.request()
	req.Timeout = r.requestTimeout
	res, err := send(ctx, endpoint.kind(), req)
	if err != nil {
		return core.ExternalIdentity{}, err
	}
	if err := res.Err(); err != nil {
		return core.ExternalIdentity{}, err
	}
	var payload map[string]any
	if err := res.DecodeJSON(&payload); err != nil {
		return core.ExternalIdentity{}, profileNotFound(err)
	}
	return MapIdentity(payload, endpoint.Mapping.withDefaults(DefaultMapping()))
}

func (r *Resolver) send(ctx context.Context, kind string, req transport.Request) (transport.Response, error) {
	adapter, err := r.transport.MustGet(kind)
	if err != nil {
		return transport.Response{}, err
	}
	return adapter.Do(ctx, req)
}

func (r *Resolver) decodeIDToken(idToken string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if r != nil && len(r.idTokenKey) > 0 {
		token, err := jwt.ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
			return r.idTokenKey, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil {
			return nil, fmt.Errorf("identity: verify id_token: %w", err)
		}
		if !token.Valid {
			return nil, fmt.Errorf("identity: id_token is not valid")
		}
		return claims, nil
	}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("identity: decode id_token: %w", err)
	}
	return claims, nil
}

// MapIdentity extracts an identity from payload. A missing external id is a
// ProfileNotFoundError.
func MapIdentity(payload map[string]any, mapping Mapping) (core.ExternalIdentity, error) {
	mapping = mapping.withDefaults(DefaultMapping())
	externalID := readString(Lookup(payload, mapping.ExternalID))
	if externalID == "" {
		return core.ExternalIdentity{}, profileNotFound(
			fmt.Errorf("identity: %q is missing from profile", mapping.ExternalID),
		)
	}
	return core.ExternalIdentity{
		ExternalID: externalID,
		Name:       readString(Lookup(payload, mapping.Name)),
		Email:      readString(Lookup(payload, mapping.Email)),
		Raw:        copyMap(payload),
	}, nil
}

// Lookup walks a dotted path through nested maps and arrays.
func Lookup(payload map[string]any, path string) any {
	path = strings.TrimSpace(path)
	if path == "" || payload == nil {
		return nil
	}
	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			value, ok := typed[segment]
			if !ok {
				return nil
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(typed) {
				return nil
			}
			current = typed[index]
		default:
			return nil
		}
	}
	return current
}

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func readString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}
