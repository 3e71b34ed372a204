package sso

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootstrapFile is the YAML seed document loaded at startup. It declares
// providers that should exist; providers already registered under the same
// name are left untouched so operator edits survive restarts.
type bootstrapFile struct {
	Providers []bootstrapProvider `yaml:"providers"`
}

type bootstrapProvider struct {
	Name             string              `yaml:"name"`
	Protocol         string              `yaml:"protocol"`
	Enabled          bool                `yaml:"enabled"`
	SAML             *SAMLBootstrap      `yaml:"saml,omitempty"`
	OAuth            *OAuthBootstrap     `yaml:"oauth,omitempty"`
	LDAP             *LDAPBootstrap      `yaml:"ldap,omitempty"`
	AdminGroups      []string            `yaml:"admin_groups,omitempty"`
	UserGroups       []string            `yaml:"user_groups,omitempty"`
	DefaultRole      string              `yaml:"default_role,omitempty"`
	AttributeMapping *AttributeBootstrap `yaml:"attribute_mapping,omitempty"`
	Metadata         map[string]string   `yaml:"metadata,omitempty"`
}

// SAMLBootstrap mirrors SAMLConfig with YAML field names.
type SAMLBootstrap struct {
	SSOURL       string `yaml:"sso_url"`
	EntityID     string `yaml:"entity_id"`
	SLOUrl       string `yaml:"slo_url,omitempty"`
	Certificate  string `yaml:"certificate,omitempty"`
	NameIDFormat string `yaml:"name_id_format,omitempty"`
	SignRequests bool   `yaml:"sign_requests,omitempty"`
}

// OAuthBootstrap mirrors OAuthConfig with YAML field names.
type OAuthBootstrap struct {
	ClientID              string   `yaml:"client_id"`
	ClientSecret          string   `yaml:"client_secret,omitempty"`
	AuthorizationEndpoint string   `yaml:"authorization_endpoint"`
	TokenEndpoint         string   `yaml:"token_endpoint"`
	UserinfoEndpoint      string   `yaml:"userinfo_endpoint,omitempty"`
	IssuerURL             string   `yaml:"issuer_url,omitempty"`
	Scopes                []string `yaml:"scopes,omitempty"`
	TenantID              string   `yaml:"tenant_id,omitempty"`
}

// LDAPBootstrap mirrors LDAPConfig with YAML field names.
type LDAPBootstrap struct {
	ServerURL    string   `yaml:"server_url"`
	BindDN       string   `yaml:"bind_dn,omitempty"`
	BindPassword string   `yaml:"bind_password,omitempty"`
	SearchBase   string   `yaml:"search_base"`
	SearchFilter string   `yaml:"search_filter,omitempty"`
	Attributes   []string `yaml:"attributes,omitempty"`
	StartTLS     bool     `yaml:"start_tls,omitempty"`
}

// AttributeBootstrap mirrors AttributeMap with YAML field names.
type AttributeBootstrap struct {
	UserID    string `yaml:"user_id,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Email     string `yaml:"email,omitempty"`
	FirstName string `yaml:"first_name,omitempty"`
	LastName  string `yaml:"last_name,omitempty"`
	Groups    string `yaml:"groups,omitempty"`
}

// BootstrapProviders seeds providers from a YAML file. Returns the number of
// providers created. A missing file is not an error; a malformed file is.
func (f *Framework) BootstrapProviders(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read bootstrap file: %w", err)
	}

	var doc bootstrapFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse bootstrap file: %w", err)
	}

	existing := make(map[string]bool)
	for _, p := range f.ListProviders(false) {
		existing[p.Name] = true
	}

	created := 0
	for i := range doc.Providers {
		entry := &doc.Providers[i]
		if existing[entry.Name] {
			continue
		}
		provider := entry.toProvider()
		if _, err := f.CreateProvider(provider); err != nil {
			f.logger.WithError(err).WithField("provider", entry.Name).Error("skipping invalid bootstrap provider")
			continue
		}
		created++
	}
	if created > 0 {
		f.logger.WithField("count", created).Info("bootstrapped SSO providers")
	}
	return created, nil
}

func (b *bootstrapProvider) toProvider() *Provider {
	p := &Provider{
		Name:     b.Name,
		Protocol: Protocol(b.Protocol),
		Enabled:  b.Enabled,
		RoleMapping: RoleMapping{
			AdminGroups: b.AdminGroups,
			UserGroups:  b.UserGroups,
			DefaultRole: b.DefaultRole,
		},
		Metadata: b.Metadata,
	}
	if b.SAML != nil {
		p.SAML = &SAMLConfig{
			SSOURL:       b.SAML.SSOURL,
			EntityID:     b.SAML.EntityID,
			SLOUrl:       b.SAML.SLOUrl,
			Certificate:  b.SAML.Certificate,
			NameIDFormat: b.SAML.NameIDFormat,
			SignRequests: b.SAML.SignRequests,
		}
	}
	if b.OAuth != nil {
		p.OAuth = &OAuthConfig{
			ClientID:              b.OAuth.ClientID,
			ClientSecret:          b.OAuth.ClientSecret,
			AuthorizationEndpoint: b.OAuth.AuthorizationEndpoint,
			TokenEndpoint:         b.OAuth.TokenEndpoint,
			UserinfoEndpoint:      b.OAuth.UserinfoEndpoint,
			IssuerURL:             b.OAuth.IssuerURL,
			Scopes:                b.OAuth.Scopes,
			TenantID:              b.OAuth.TenantID,
		}
	}
	if b.LDAP != nil {
		p.LDAP = &LDAPConfig{
			ServerURL:    b.LDAP.ServerURL,
			BindDN:       b.LDAP.BindDN,
			BindPassword: b.LDAP.BindPassword,
			SearchBase:   b.LDAP.SearchBase,
			SearchFilter: b.LDAP.SearchFilter,
			Attributes:   b.LDAP.Attributes,
			StartTLS:     b.LDAP.StartTLS,
		}
	}
	if b.AttributeMapping != nil {
		p.AttributeMapping = &AttributeMap{
			UserID:    b.AttributeMapping.UserID,
			Username:  b.AttributeMapping.Username,
			Email:     b.AttributeMapping.Email,
			FirstName: b.AttributeMapping.FirstName,
			LastName:  b.AttributeMapping.LastName,
			Groups:    b.AttributeMapping.Groups,
		}
	}
	return p
}
