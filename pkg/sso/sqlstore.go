package sso

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLProviderStore persists provider records in a relational table. It works
// with both the sqlite3 and postgres drivers ($N placeholders are accepted by
// both).
type SQLProviderStore struct {
	db *sql.DB
}

// NewSQLProviderStore wraps an open database handle.
func NewSQLProviderStore(db *sql.DB) *SQLProviderStore {
	return &SQLProviderStore{db: db}
}

// Migrate creates the provider table if it does not exist.
func (s *SQLProviderStore) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sso_providers (
			provider_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			protocol TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			saml_config TEXT,
			oauth_config TEXT,
			ldap_config TEXT,
			role_mapping TEXT,
			attribute_mapping TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create sso_providers table: %w", err)
	}
	return nil
}

// Save upserts a provider record.
func (s *SQLProviderStore) Save(provider *Provider) error {
	if provider == nil || provider.ID == "" {
		return fmt.Errorf("provider ID is required")
	}

	samlJSON, err := marshalNullable(provider.SAML)
	if err != nil {
		return fmt.Errorf("failed to marshal SAML config: %w", err)
	}
	oauthJSON, err := marshalNullable(provider.OAuth)
	if err != nil {
		return fmt.Errorf("failed to marshal OAuth config: %w", err)
	}
	ldapJSON, err := marshalNullable(provider.LDAP)
	if err != nil {
		return fmt.Errorf("failed to marshal LDAP config: %w", err)
	}
	roleJSON, err := json.Marshal(provider.RoleMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal role mapping: %w", err)
	}
	attrJSON, err := marshalNullable(provider.AttributeMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}
	metaJSON, err := marshalNullable(provider.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sso_providers (
			provider_id, name, protocol, enabled, saml_config, oauth_config,
			ldap_config, role_mapping, attribute_mapping, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider_id) DO UPDATE SET
			name = $2, enabled = $4, saml_config = $5, oauth_config = $6,
			ldap_config = $7, role_mapping = $8, attribute_mapping = $9,
			metadata = $10, updated_at = $12
	`, provider.ID, provider.Name, string(provider.Protocol), provider.Enabled,
		samlJSON, oauthJSON, ldapJSON, string(roleJSON), attrJSON, metaJSON,
		provider.CreatedAt, provider.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save provider %s: %w", provider.ID, err)
	}
	return nil
}

// LoadAll returns every stored provider; rows that fail to decode are skipped.
func (s *SQLProviderStore) LoadAll() ([]*Provider, error) {
	rows, err := s.db.Query(`
		SELECT provider_id, name, protocol, enabled, saml_config, oauth_config,
			ldap_config, role_mapping, attribute_mapping, metadata, created_at, updated_at
		FROM sso_providers
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			// Skip undecodable rows the same way the file store skips
			// malformed files.
			continue
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// Delete removes a provider row.
func (s *SQLProviderStore) Delete(providerID string) error {
	if _, err := s.db.Exec(`DELETE FROM sso_providers WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("failed to delete provider %s: %w", providerID, err)
	}
	return nil
}

func scanProvider(rows *sql.Rows) (*Provider, error) {
	var (
		p         Provider
		protocol  string
		samlJSON  sql.NullString
		oauthJSON sql.NullString
		ldapJSON  sql.NullString
		roleJSON  sql.NullString
		attrJSON  sql.NullString
		metaJSON  sql.NullString
	)

	err := rows.Scan(&p.ID, &p.Name, &protocol, &p.Enabled, &samlJSON, &oauthJSON,
		&ldapJSON, &roleJSON, &attrJSON, &metaJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Protocol = Protocol(protocol)

	if samlJSON.Valid && samlJSON.String != "" {
		p.SAML = &SAMLConfig{}
		if err := json.Unmarshal([]byte(samlJSON.String), p.SAML); err != nil {
			return nil, fmt.Errorf("failed to unmarshal SAML config: %w", err)
		}
	}
	if oauthJSON.Valid && oauthJSON.String != "" {
		p.OAuth = &OAuthConfig{}
		if err := json.Unmarshal([]byte(oauthJSON.String), p.OAuth); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OAuth config: %w", err)
		}
	}
	if ldapJSON.Valid && ldapJSON.String != "" {
		p.LDAP = &LDAPConfig{}
		if err := json.Unmarshal([]byte(ldapJSON.String), p.LDAP); err != nil {
			return nil, fmt.Errorf("failed to unmarshal LDAP config: %w", err)
		}
	}
	if roleJSON.Valid && roleJSON.String != "" {
		if err := json.Unmarshal([]byte(roleJSON.String), &p.RoleMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role mapping: %w", err)
		}
	}
	if attrJSON.Valid && attrJSON.String != "" {
		p.AttributeMapping = &AttributeMap{}
		if err := json.Unmarshal([]byte(attrJSON.String), p.AttributeMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &p, nil
}

// marshalNullable marshals v to a JSON string, returning nil (SQL NULL) for
// nil pointers and empty maps.
func marshalNullable(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *SAMLConfig:
		if t == nil {
			return nil, nil
		}
	case *OAuthConfig:
		if t == nil {
			return nil, nil
		}
	case *LDAPConfig:
		if t == nil {
			return nil, nil
		}
	case *AttributeMap:
		if t == nil {
			return nil, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
