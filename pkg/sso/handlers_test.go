package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Framework, *mux.Router) {
	t.Helper()
	f := newTestFramework(t)
	router := mux.NewRouter()
	NewHandler(f, nil, nil).RegisterRoutes(router)
	return f, router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHandler_CreateProvider(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/sso/providers", oauthProviderSpec("okta-prod"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Provider
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "okta-prod", created.Name)
	// Secrets never leave the process.
	assert.Equal(t, secretPlaceholder, created.OAuth.ClientSecret)
}

func TestHandler_CreateProvider_Invalid(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/sso/providers", &Provider{Name: "x", Protocol: Protocol("kerberos")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/sso/providers", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListProviders(t *testing.T) {
	f, router := newTestRouter(t)
	a := mustCreateProvider(t, f, oauthProviderSpec("on"))
	b := mustCreateProvider(t, f, oauthProviderSpec("off"))
	require.NoError(t, f.DisableProvider(b.ID))

	rec := doJSON(t, router, http.MethodGet, "/sso/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Providers []*Provider `json:"providers"`
		Count     int         `json:"count"`
	}
	decodeBody(t, rec, &all)
	assert.Equal(t, 2, all.Count)

	rec = doJSON(t, router, http.MethodGet, "/sso/providers?enabled=true", nil)
	decodeBody(t, rec, &all)
	require.Equal(t, 1, all.Count)
	assert.Equal(t, a.ID, all.Providers[0].ID)
	assert.Equal(t, secretPlaceholder, all.Providers[0].OAuth.ClientSecret)
}

func TestHandler_GetUpdateDeleteProvider(t *testing.T) {
	f, router := newTestRouter(t)
	created := mustCreateProvider(t, f, oauthProviderSpec("okta-prod"))

	rec := doJSON(t, router, http.MethodGet, "/sso/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/sso/providers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/sso/providers/"+created.ID, &Provider{Name: "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Provider
	decodeBody(t, rec, &updated)
	assert.Equal(t, "renamed", updated.Name)

	rec = doJSON(t, router, http.MethodPut, "/sso/providers/"+created.ID, &Provider{Protocol: ProtocolSAML2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/sso/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/sso/providers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_EnableDisableProvider(t *testing.T) {
	f, router := newTestRouter(t)
	created := mustCreateProvider(t, f, oauthProviderSpec("toggled"))

	rec := doJSON(t, router, http.MethodPost, "/sso/providers/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := f.GetProvider(created.ID)
	assert.False(t, got.Enabled)

	rec = doJSON(t, router, http.MethodPost, "/sso/providers/"+created.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ = f.GetProvider(created.ID)
	assert.True(t, got.Enabled)

	rec = doJSON(t, router, http.MethodPost, "/sso/providers/missing/enable", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_InitiateLogin(t *testing.T) {
	f, router := newTestRouter(t)
	provider := mustCreateProvider(t, f, oauthProviderSpec("okta-prod"))

	rec := doJSON(t, router, http.MethodGet, "/auth/sso/"+provider.ID+"/login?redirect_uri=https://app/done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result InitiationResult
	decodeBody(t, rec, &result)
	assert.NotEmpty(t, result.AuthURL)
	assert.NotEmpty(t, result.State)

	// redirect=true issues a 302 to the IdP.
	rec = doJSON(t, router, http.MethodGet, "/auth/sso/"+provider.ID+"/login?redirect=true", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/auth/sso/missing/login", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.DisableProvider(provider.ID))
	rec = doJSON(t, router, http.MethodGet, "/auth/sso/"+provider.ID+"/login", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Callback_Failure(t *testing.T) {
	f, router := newTestRouter(t)
	provider := mustCreateProvider(t, f, oauthProviderSpec("okta-prod"))

	rec := doJSON(t, router, http.MethodGet, "/auth/sso/"+provider.ID+"/callback?code=c&state=forged", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var result AuthResult
	decodeBody(t, rec, &result)
	assert.False(t, result.Success)
	assert.Equal(t, errInvalidState, result.Error)
}

func TestHandler_LDAP(t *testing.T) {
	f, router := newTestRouter(t)
	provider := mustCreateProvider(t, f, ldapProviderSpec("corp-ldap"))
	f.SetLDAPDirectory(&fakeDirectory{attrs: map[string][]string{"uid": {"jdoe"}}})

	rec := doJSON(t, router, http.MethodPost, "/auth/sso/"+provider.ID+"/ldap", map[string]string{
		"username": "jdoe",
		"password": "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var result AuthResult
	decodeBody(t, rec, &result)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.SessionID)

	rec = doJSON(t, router, http.MethodPost, "/auth/sso/"+provider.ID+"/ldap", map[string]string{
		"username": "jdoe",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Sessions(t *testing.T) {
	f, router := newTestRouter(t)
	provider := mustCreateProvider(t, f, ldapProviderSpec("corp-ldap"))
	f.SetLDAPDirectory(&fakeDirectory{attrs: map[string][]string{"uid": {"jdoe"}}})
	auth := f.AuthenticateLDAP(context.Background(), provider.ID, "jdoe", "pw")
	require.True(t, auth.Success)

	rec := doJSON(t, router, http.MethodGet, "/sso/sessions/"+auth.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session Session
	decodeBody(t, rec, &session)
	assert.Equal(t, "jdoe", session.UserID)

	rec = doJSON(t, router, http.MethodPost, "/sso/sessions/"+auth.SessionID+"/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/sso/sessions/"+auth.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/sso/sessions/"+auth.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Statistics(t *testing.T) {
	f, router := newTestRouter(t)
	mustCreateProvider(t, f, oauthProviderSpec("okta-prod"))

	rec := doJSON(t, router, http.MethodGet, "/sso/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Statistics
	decodeBody(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalProviders)
}

func TestHandler_SAMLMetadata(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/sso/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "EntityDescriptor")
}

func TestHandler_RequestIDHeader(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/sso/statistics", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/sso/statistics", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
