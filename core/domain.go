package core

import (
	"strings"
	"time"
)

type AuthType string

const (
	AuthTypeOAuth2 AuthType = "oauth2"
	AuthTypeAPIKey AuthType = "api_key"
)

// Well known credential attribute keys.
const (
	AttributeSubdomain     = "subdomain"
	AttributeDomain        = "domain"
	AttributeAPIURL        = "api_url"
	AttributeCompanyDomain = "company_domain"
	AttributeExpiresAt     = "expires_at"
	AttributeStoreID       = "store_id"
)

// Credential is the stored secret material for one external account.
type Credential struct {
	ID           string
	UserID       string
	Vendor       string
	ExternalID   string
	AccessToken  string
	RefreshToken string
	APIKey       string
	AuthIsValid  bool
	Attributes   map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Credential) Attribute(key string) string {
	return readAnyString(c.Attributes[strings.TrimSpace(key)])
}

// Entity maps one external account identity to its credential.
type Entity struct {
	ID           string
	UserID       string
	Vendor       string
	CredentialID string
	ExternalID   string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CredentialFilter struct {
	UserID     string
	Vendor     string
	ExternalID string
}

type EntityFilter struct {
	UserID       string
	Vendor       string
	ExternalID   string
	CredentialID string
}

// CredentialPatch carries a partial credential update. Nil fields are left
// untouched; attribute keys mapped to nil are removed.
type CredentialPatch struct {
	AccessToken  *string
	RefreshToken *string
	APIKey       *string
	ExternalID   *string
	AuthIsValid  *bool
	Attributes   map[string]any
}

func (p CredentialPatch) IsZero() bool {
	return p.AccessToken == nil &&
		p.RefreshToken == nil &&
		p.APIKey == nil &&
		p.ExternalID == nil &&
		p.AuthIsValid == nil &&
		len(p.Attributes) == 0
}

// Apply returns a copy of credential with the patch applied.
func (p CredentialPatch) Apply(credential Credential) Credential {
	out := credential
	out.Attributes = copyAnyMap(credential.Attributes)
	if p.AccessToken != nil {
		out.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		out.RefreshToken = *p.RefreshToken
	}
	if p.APIKey != nil {
		out.APIKey = *p.APIKey
	}
	if p.ExternalID != nil {
		out.ExternalID = strings.TrimSpace(*p.ExternalID)
	}
	if p.AuthIsValid != nil {
		out.AuthIsValid = *p.AuthIsValid
	}
	for key, value := range p.Attributes {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if value == nil {
			delete(out.Attributes, key)
			continue
		}
		out.Attributes[key] = value
	}
	return out
}

type EntityPatch struct {
	CredentialID *string
	Name         *string
}

func (p EntityPatch) Apply(entity Entity) Entity {
	out := entity
	if p.CredentialID != nil {
		out.CredentialID = strings.TrimSpace(*p.CredentialID)
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	return out
}

// TokenSet is the auth material an API client currently holds.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	APIKey       string
	TokenType    string
	ExpiresAt    *time.Time
	Attributes   map[string]any
}

func (t TokenSet) Empty() bool {
	return strings.TrimSpace(t.AccessToken) == "" &&
		strings.TrimSpace(t.RefreshToken) == "" &&
		strings.TrimSpace(t.APIKey) == ""
}

// ExternalIdentity is the remote account returned by a "who am I" call.
type ExternalIdentity struct {
	ExternalID string
	Name       string
	Email      string
	Raw        map[string]any
}

type GetInstanceRequest struct {
	Vendor   string
	UserID   string
	EntityID string
}

type AuthorizationCallback struct {
	Data map[string]any
}

type AuthorizationResult struct {
	CredentialID string `json:"credential_id"`
	EntityID     string `json:"entity_id"`
	Type         string `json:"type"`
}

type FindOrCreateEntityRequest struct {
	ExternalID string
	Name       string
}

// AuthorizationRequirements describes how a caller starts authorization and
// which extra fields it must collect first.
type AuthorizationRequirements struct {
	Type AuthType              `json:"type"`
	URL  string                `json:"url"`
	Data AuthorizationFormData `json:"data"`
}

type AuthorizationFormData struct {
	JSONSchema map[string]any `json:"jsonSchema"`
	UISchema   map[string]any `json:"uiSchema"`
}

// FormField describes one field a user fills in before authorizing.
type FormField struct {
	Name        string
	Title       string
	Help        string
	Placeholder string
	Required    bool
	Secret      bool
}

// AuthorizationForm renders form fields into the JSON schema and UI schema
// consumed by host front ends.
func AuthorizationForm(fields ...FormField) AuthorizationFormData {
	properties := map[string]any{}
	uiSchema := map[string]any{}
	required := []string{}
	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			continue
		}
		properties[name] = map[string]any{
			"type":  "string",
			"title": strings.TrimSpace(field.Title),
		}
		if field.Required {
			required = append(required, name)
		}
		hints := map[string]any{}
		if help := strings.TrimSpace(field.Help); help != "" {
			hints["ui:help"] = help
		}
		if placeholder := strings.TrimSpace(field.Placeholder); placeholder != "" {
			hints["ui:placeholder"] = placeholder
		}
		if field.Secret {
			hints["ui:widget"] = "password"
		}
		if len(hints) > 0 {
			uiSchema[name] = hints
		}
	}
	return AuthorizationFormData{
		JSONSchema: map[string]any{
			"title":      "Auth Form",
			"type":       "object",
			"required":   required,
			"properties": properties,
		},
		UISchema: uiSchema,
	}
}
