package sso

import (
	"fmt"
	"time"
)

// Protocol identifies the authentication protocol a provider speaks.
type Protocol string

const (
	ProtocolSAML2           Protocol = "saml2"
	ProtocolOAuth2          Protocol = "oauth2"
	ProtocolOIDC            Protocol = "openid_connect"
	ProtocolLDAP            Protocol = "ldap"
	ProtocolAzureAD         Protocol = "azure_ad"
	ProtocolOkta            Protocol = "okta"
	ProtocolGoogleWorkspace Protocol = "google_workspace"
)

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolSAML2, ProtocolOAuth2, ProtocolOIDC, ProtocolLDAP,
		ProtocolAzureAD, ProtocolOkta, ProtocolGoogleWorkspace:
		return true
	}
	return false
}

// OAuthFamily reports whether p uses the authorization-code redirect flow.
func (p Protocol) OAuthFamily() bool {
	switch p {
	case ProtocolOAuth2, ProtocolOIDC, ProtocolAzureAD, ProtocolOkta, ProtocolGoogleWorkspace:
		return true
	}
	return false
}

// SessionStatus represents the state of an SSO session.
type SessionStatus string

const (
	SessionStatusSuccess SessionStatus = "success"
	SessionStatusFailed  SessionStatus = "failed"
	SessionStatusPending SessionStatus = "pending"
	SessionStatusExpired SessionStatus = "expired"
	SessionStatusInvalid SessionStatus = "invalid"
)

// Provider is a configured identity provider. ID and Protocol are immutable
// after creation; changing the protocol requires creating a new provider.
type Provider struct {
	ID               string            `json:"provider_id"`
	Name             string            `json:"name"`
	Protocol         Protocol          `json:"protocol"`
	Enabled          bool              `json:"enabled"`
	SAML             *SAMLConfig       `json:"saml_config,omitempty"`
	OAuth            *OAuthConfig      `json:"oauth_config,omitempty"`
	LDAP             *LDAPConfig       `json:"ldap_config,omitempty"`
	RoleMapping      RoleMapping       `json:"role_mapping"`
	AttributeMapping *AttributeMap     `json:"attribute_mapping,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SAMLConfig holds SAML 2.0 configuration.
type SAMLConfig struct {
	SSOURL       string `json:"sso_url"`
	EntityID     string `json:"entity_id"`
	SLOUrl       string `json:"slo_url,omitempty"`
	Certificate  string `json:"certificate,omitempty"` // PEM-encoded IdP certificate
	NameIDFormat string `json:"name_id_format,omitempty"`
	SignRequests bool   `json:"sign_requests,omitempty"`
}

// Validate checks the required SAML fields.
func (c *SAMLConfig) Validate() error {
	if c.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	return nil
}

// OAuthConfig holds OAuth2 and OpenID Connect configuration. Authorization and
// token endpoints are required so login initiation never performs network I/O;
// IssuerURL additionally enables ID token verification via OIDC discovery.
type OAuthConfig struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	IssuerURL             string   `json:"issuer_url,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
	ResponseType          string   `json:"response_type,omitempty"`
	TenantID              string   `json:"tenant_id,omitempty"` // Azure AD
}

// Validate checks the required OAuth2/OIDC fields.
func (c *OAuthConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.AuthorizationEndpoint == "" {
		return fmt.Errorf("authorization_endpoint is required")
	}
	if c.TokenEndpoint == "" {
		return fmt.Errorf("token_endpoint is required")
	}
	if c.UserinfoEndpoint == "" && c.IssuerURL == "" {
		return fmt.Errorf("userinfo_endpoint or issuer_url is required")
	}
	return nil
}

// LDAPConfig holds directory configuration for bind-and-search authentication.
type LDAPConfig struct {
	ServerURL    string   `json:"server_url"`
	BindDN       string   `json:"bind_dn,omitempty"`
	BindPassword string   `json:"bind_password,omitempty"`
	SearchBase   string   `json:"search_base"`
	SearchFilter string   `json:"search_filter,omitempty"` // defaults to (uid=%s)
	Attributes   []string `json:"attributes,omitempty"`
	StartTLS     bool     `json:"start_tls,omitempty"`
}

// Validate checks the required LDAP fields.
func (c *LDAPConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.SearchBase == "" {
		return fmt.Errorf("search_base is required")
	}
	return nil
}

// RoleMapping resolves group membership to an internal role. Admin groups take
// precedence over user groups; unmatched users get DefaultRole.
type RoleMapping struct {
	AdminGroups []string `json:"admin_groups,omitempty"`
	UserGroups  []string `json:"user_groups,omitempty"`
	DefaultRole string   `json:"default_role,omitempty"`
}

// AttributeMap names the raw claim/attribute carrying each user field.
type AttributeMap struct {
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Groups    string `json:"groups,omitempty"`
}

// Session is an authenticated SSO session. It is valid only while ExpiresAt is
// in the future; reads of an expired session evict it as a side effect.
type Session struct {
	ID           string            `json:"session_id"`
	UserID       string            `json:"user_id"`
	ProviderID   string            `json:"provider_id"`
	Attributes   map[string]string `json:"attributes"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	LastActivity time.Time         `json:"last_activity"`
	Status       SessionStatus     `json:"status"`
}

// MappedUser is the normalized user record produced by the attribute mapper.
type MappedUser struct {
	UserID       string            `json:"user_id"`
	Username     string            `json:"username,omitempty"`
	Email        string            `json:"email,omitempty"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Role         string            `json:"role"`
	AuthProvider string            `json:"auth_provider"`
	AuthMethod   string            `json:"auth_method"`
	Groups       []string          `json:"groups,omitempty"`
	Raw          map[string]string `json:"raw,omitempty"`
}

// TransientState correlates an in-flight redirect login with its callback.
// A record is consumed exactly once; replayed state tokens must not match.
type TransientState struct {
	State       string    `json:"state,omitempty"`
	RedirectURI string    `json:"redirect_uri"`
	ProviderID  string    `json:"provider_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// InitiationResult is returned by login initiation. Either AuthURL is set or
// Error describes why the flow could not start.
type InitiationResult struct {
	AuthURL   string `json:"auth_url,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	State     string `json:"state,omitempty"`
	Method    string `json:"method,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AuthResult is returned by callback handling and LDAP authentication.
type AuthResult struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"session_id,omitempty"`
	User      *MappedUser `json:"user,omitempty"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Statistics is a point-in-time snapshot of provider and session state plus
// monotonic counters accumulated over the process lifetime.
type Statistics struct {
	TotalProviders            int               `json:"total_providers"`
	ActiveProviders           int               `json:"active_providers"`
	ProvidersByProtocol       map[string]int    `json:"providers_by_protocol"`
	ActiveSessions            int               `json:"active_sessions"`
	SessionsExpiringSoon      int               `json:"sessions_expiring_soon"`
	SessionAgeDistribution    map[string]int    `json:"session_age_distribution"`
	TotalAuthentications      uint64            `json:"total_authentications"`
	FailedAuthentications     uint64            `json:"failed_authentications"`
	AuthenticationsByProvider map[string]uint64 `json:"authentications_by_provider"`
	LastAuthentication        *time.Time        `json:"last_authentication,omitempty"`
}

// DefaultAttributeMap returns the attribute-name table used for a protocol
// when the provider does not configure its own mapping.
func DefaultAttributeMap(p Protocol) AttributeMap {
	switch p {
	case ProtocolSAML2:
		return AttributeMap{
			UserID:    "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
			Username:  "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
			Email:     "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
			FirstName: "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
			LastName:  "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
			Groups:    "http://schemas.xmlsoap.org/claims/Group",
		}
	case ProtocolLDAP:
		return AttributeMap{
			UserID:    "uid",
			Username:  "uid",
			Email:     "mail",
			FirstName: "givenName",
			LastName:  "sn",
			Groups:    "memberOf",
		}
	default:
		// OAuth2 family uses standard OIDC claims.
		return AttributeMap{
			UserID:    "sub",
			Username:  "preferred_username",
			Email:     "email",
			FirstName: "given_name",
			LastName:  "family_name",
			Groups:    "groups",
		}
	}
}

// DefaultScopes returns the scope set requested when a provider does not
// configure its own.
func DefaultScopes(p Protocol) []string {
	switch p {
	case ProtocolOkta:
		return []string{"openid", "profile", "email", "groups"}
	default:
		return []string{"openid", "profile", "email"}
	}
}
