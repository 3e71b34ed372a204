package sso

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootstrapYAML = `
providers:
  - name: corp-okta
    protocol: okta
    enabled: true
    oauth:
      client_id: client
      client_secret: secret
      authorization_endpoint: https://corp.okta.com/oauth2/v1/authorize
      token_endpoint: https://corp.okta.com/oauth2/v1/token
      userinfo_endpoint: https://corp.okta.com/oauth2/v1/userinfo
    admin_groups:
      - platform-admins
  - name: corp-ldap
    protocol: ldap
    enabled: false
    ldap:
      server_url: ldap://ldap.corp.example.com
      search_base: dc=corp,dc=example,dc=com
      search_filter: (sAMAccountName=%s)
    attribute_mapping:
      user_id: sAMAccountName
`

func writeBootstrapFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFramework_BootstrapProviders(t *testing.T) {
	f := newTestFramework(t)

	created, err := f.BootstrapProviders(writeBootstrapFile(t, bootstrapYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	providers := f.ListProviders(false)
	require.Len(t, providers, 2)

	byName := make(map[string]*Provider)
	for _, p := range providers {
		byName[p.Name] = p
	}

	okta := byName["corp-okta"]
	require.NotNil(t, okta)
	assert.Equal(t, ProtocolOkta, okta.Protocol)
	assert.True(t, okta.Enabled)
	assert.Equal(t, []string{"platform-admins"}, okta.RoleMapping.AdminGroups)

	corpLDAP := byName["corp-ldap"]
	require.NotNil(t, corpLDAP)
	assert.False(t, corpLDAP.Enabled)
	assert.Equal(t, "(sAMAccountName=%s)", corpLDAP.LDAP.SearchFilter)
	assert.Equal(t, "sAMAccountName", corpLDAP.AttributeMapping.UserID)
}

func TestFramework_BootstrapProviders_Idempotent(t *testing.T) {
	f := newTestFramework(t)
	path := writeBootstrapFile(t, bootstrapYAML)

	created, err := f.BootstrapProviders(path)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// Second run: names already exist, nothing is duplicated.
	created, err = f.BootstrapProviders(path)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, f.ListProviders(false), 2)
}

func TestFramework_BootstrapProviders_MissingFile(t *testing.T) {
	f := newTestFramework(t)
	created, err := f.BootstrapProviders(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestFramework_BootstrapProviders_MalformedFile(t *testing.T) {
	f := newTestFramework(t)
	_, err := f.BootstrapProviders(writeBootstrapFile(t, "providers: [not valid"))
	assert.Error(t, err)
}

func TestFramework_BootstrapProviders_InvalidEntrySkipped(t *testing.T) {
	f := newTestFramework(t)
	created, err := f.BootstrapProviders(writeBootstrapFile(t, `
providers:
  - name: broken
    protocol: okta
  - name: fine
    protocol: ldap
    enabled: true
    ldap:
      server_url: ldap://ldap.example.com
      search_base: dc=example,dc=com
`))
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	require.Len(t, f.ListProviders(false), 1)
	assert.Equal(t, "fine", f.ListProviders(false)[0].Name)
}
