package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
)

const ErrorCodeInvalidGrant = "invalid_grant"

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	IDToken          string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

// TokenError is a failed token endpoint exchange.
type TokenError struct {
	Vendor      string
	Status      int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	detail := strings.TrimSpace(e.Description)
	if detail == "" {
		detail = strings.TrimSpace(e.Code)
	}
	if detail == "" {
		detail = "unknown error"
	}
	if e.Status > 0 {
		return fmt.Sprintf("oauth2: %s token endpoint error (%d): %s", e.Vendor, e.Status, detail)
	}
	return fmt.Sprintf("oauth2: %s token endpoint error: %s", e.Vendor, detail)
}

// InvalidGrant reports a revoked or expired refresh token or code.
func (e *TokenError) InvalidGrant() bool {
	return e != nil && strings.EqualFold(strings.TrimSpace(e.Code), ErrorCodeInvalidGrant)
}

func (e *TokenError) ToServiceError() *goerrors.Error {
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	textCode := core.IntegrationErrorProviderOperationFailed
	if e.InvalidGrant() {
		category = goerrors.CategoryAuth
		code = http.StatusUnauthorized
		textCode = core.IntegrationErrorAuthenticationFailed
	}
	return goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(map[string]any{
			"vendor":      e.Vendor,
			"status_code": e.Status,
			"error":       e.Code,
		})
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tokenURL, err := providers.Render(c.cfg.TokenURL, c.Attributes())
	if err != nil {
		return tokenEndpointPayload{}, err
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.cfg.ClientID)
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}
	if c.cfg.ClientSecret != "" {
		if c.cfg.ClientSecretInBody {
			values.Set("client_secret", c.cfg.ClientSecret)
		} else {
			headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString(
				[]byte(c.cfg.ClientID+":"+c.cfg.ClientSecret),
			)
		}
	}

	adapter, err := c.cfg.Transport.MustGet(transport.KindREST)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	res, err := adapter.Do(ctx, transport.Request{
		Method:               http.MethodPost,
		URL:                  tokenURL,
		Headers:              headers,
		Body:                 []byte(values.Encode()),
		Timeout:              c.cfg.TokenRequestTimeout,
		MaxResponseBodyBytes: maxTokenResponseBodyBytes,
	})
	if err != nil {
		return tokenEndpointPayload{}, err
	}

	payload, parseErr := parseTokenPayload(res.Body, res.Headers["Content-Type"])
	if !res.Success() {
		if parseErr != nil {
			return tokenEndpointPayload{}, &TokenError{Vendor: c.cfg.Vendor, Status: res.StatusCode}
		}
		return tokenEndpointPayload{}, &TokenError{
			Vendor:      c.cfg.Vendor,
			Status:      res.StatusCode,
			Code:        payload.ErrorCode,
			Description: payload.ErrorDescription,
		}
	}
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("oauth2: decode token response: %w", parseErr)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, &TokenError{
			Vendor:      c.cfg.Vendor,
			Status:      res.StatusCode,
			Code:        payload.ErrorCode,
			Description: payload.ErrorDescription,
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("oauth2: %s token response missing access token", c.cfg.Vendor)
	}
	return payload, nil
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      providers.ReadString(decoded["access_token"]),
		TokenType:        providers.ReadString(decoded["token_type"]),
		RefreshToken:     providers.ReadString(decoded["refresh_token"]),
		IDToken:          providers.ReadString(decoded["id_token"]),
		Scope:            providers.ReadString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        providers.ReadString(decoded["error"]),
		ErrorDescription: providers.ReadString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		IDToken:          strings.TrimSpace(values.Get("id_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func (c *Client) resolveExpiresAt(expiresIn int64) *time.Time {
	ttl := c.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := c.cfg.Now().UTC().Add(ttl)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func parseExpiresAt(value any) *time.Time {
	raw := providers.ReadString(value)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}

func generateState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauth2: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
