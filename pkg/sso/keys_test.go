package sso

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readOnlyKeyDir returns a path whose parent directory cannot be written, so
// key persistence fails. Skipped where directory modes are not enforced.
func readOnlyKeyDir(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("directory modes are not meaningful on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("directory modes are not enforced for root")
	}
	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o500))
	t.Cleanup(func() { os.Chmod(base, 0o700) })
	return filepath.Join(base, "keys")
}

func TestKeyManager_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	km := NewKeyManager(dir, nil)

	priv, pub, err := km.EnsureKeys()
	require.NoError(t, err)
	require.NotNil(t, priv)
	require.NotNil(t, pub)

	_, err = os.Stat(filepath.Join(dir, "sso_private.pem"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "sso_public.pem"))
	assert.NoError(t, err)
}

func TestKeyManager_IdempotentAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	km := NewKeyManager(dir, nil)
	priv1, _, err := km.EnsureKeys()
	require.NoError(t, err)

	// Same manager: cached key.
	priv2, _, err := km.EnsureKeys()
	require.NoError(t, err)
	assert.True(t, priv1.Equal(priv2))

	// Fresh manager over the same directory: loaded key, not regenerated.
	km2 := NewKeyManager(dir, nil)
	priv3, _, err := km2.EnsureKeys()
	require.NoError(t, err)
	assert.True(t, priv1.Equal(priv3))
}

func TestKeyManager_PrivateKeyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()
	km := NewKeyManager(dir, nil)
	_, _, err := km.EnsureKeys()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "sso_private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeyManager_CorruptKeyRegenerated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sso_private.pem"), []byte("garbage"), 0o600))

	km := NewKeyManager(dir, nil)
	priv, _, err := km.EnsureKeys()
	require.NoError(t, err)
	assert.NotNil(t, priv)
}

func TestKeyManager_DegradedWhenPersistFails(t *testing.T) {
	km := NewKeyManager(readOnlyKeyDir(t), nil)

	priv, pub, err := km.EnsureKeys()
	assert.Error(t, err)
	assert.Nil(t, priv)
	assert.Nil(t, pub)
	assert.Empty(t, km.PublicKeyPEM())
}

func TestNewFramework_KeyFailureDegradesSigningOnly(t *testing.T) {
	f := NewFramework(FrameworkConfig{
		BaseURL: "https://sso.example.com",
		KeyDir:  readOnlyKeyDir(t),
	}, nil, nil, nil, nil, nil)
	require.NotNil(t, f)

	provider, err := f.CreateProvider(&Provider{
		Name:     "no-signing",
		Protocol: ProtocolOAuth2,
		Enabled:  true,
		OAuth: &OAuthConfig{
			ClientID:              "client",
			AuthorizationEndpoint: "https://idp.example.com/authorize",
			TokenEndpoint:         "https://idp.example.com/token",
			UserinfoEndpoint:      "https://idp.example.com/userinfo",
		},
	})
	require.NoError(t, err)

	result := f.InitiateAuthentication(context.Background(), provider.ID, "https://app/done", "")
	assert.Empty(t, result.Error)
	assert.NotEmpty(t, result.AuthURL)
}

func TestKeyManager_PublicKeyPEM(t *testing.T) {
	km := NewKeyManager(t.TempDir(), nil)
	assert.Empty(t, km.PublicKeyPEM())

	_, _, err := km.EnsureKeys()
	require.NoError(t, err)
	assert.Contains(t, km.PublicKeyPEM(), "BEGIN PUBLIC KEY")
}
