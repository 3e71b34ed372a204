package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// initiateOAuth composes the authorization URL for the OAuth2 family and
// records a transient entry under the state token. The state is generated
// when the caller does not supply one.
func (f *Framework) initiateOAuth(ctx context.Context, provider *Provider, redirectURI, state string) InitiationResult {
	if state == "" {
		generated, err := newStateToken()
		if err != nil {
			return InitiationResult{Error: errAuthenticationFail}
		}
		state = generated
	}

	if err := f.state.Put(ctx, state, &TransientState{
		RedirectURI: redirectURI,
		ProviderID:  provider.ID,
		CreatedAt:   f.nowFn(),
	}); err != nil {
		f.logger.WithError(err).Error("failed to record OAuth state")
		return InitiationResult{Error: errAuthenticationFail}
	}

	cfg := f.oauthConfig(provider, redirectURI)
	var opts []oauth2.AuthCodeOption
	if provider.Protocol == ProtocolAzureAD {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	if rt := provider.OAuth.ResponseType; rt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", rt))
	}

	return InitiationResult{
		AuthURL: cfg.AuthCodeURL(state, opts...),
		State:   state,
		Method:  "redirect",
	}
}

// handleOAuthCallback exchanges the authorization code for tokens and fetches
// the user's identity. The transient state record is consumed exactly once
// before any network call, so a replayed state can never reach the IdP.
func (f *Framework) handleOAuthCallback(ctx context.Context, provider *Provider, callbackData map[string]string) AuthResult {
	if idpError := callbackData["error"]; idpError != "" {
		return f.fail(provider, provider.ID, "idp_error", idpError)
	}

	code := callbackData["code"]
	state := callbackData["state"]
	if code == "" || state == "" {
		return f.fail(provider, provider.ID, "missing_code_or_state", errMissingCodeOrState)
	}

	record, ok := f.state.Consume(ctx, state)
	if !ok || record.ProviderID != provider.ID {
		return f.fail(provider, provider.ID, "state_mismatch", errInvalidState)
	}

	cfg := f.oauthConfig(provider, record.RedirectURI)
	exchangeCtx, cancel := context.WithTimeout(ctx, f.cfg.HTTPTimeout)
	defer cancel()
	exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, f.httpClient)

	start := f.nowFn()
	token, err := cfg.Exchange(exchangeCtx, code)
	if f.metrics != nil {
		f.metrics.TokenExchangeDuration.WithLabelValues(provider.Name).Observe(f.nowFn().Sub(start).Seconds())
	}
	if err != nil {
		f.logger.WithError(err).WithField("provider", provider.Name).Warn("OAuth token exchange failed")
		return f.fail(provider, provider.ID, "token_exchange", errAuthenticationFail)
	}

	var claims map[string]interface{}
	if provider.OAuth.IssuerURL != "" {
		claims, err = f.verifyIDToken(exchangeCtx, provider, token)
		if err != nil {
			f.logger.WithError(err).WithField("provider", provider.Name).Warn("ID token verification failed")
			return f.fail(provider, provider.ID, "id_token", errAuthenticationFail)
		}
	}

	if provider.OAuth.UserinfoEndpoint != "" {
		userinfo, err := f.fetchUserinfo(exchangeCtx, provider.OAuth.UserinfoEndpoint, token.AccessToken)
		if err != nil {
			if claims == nil {
				f.logger.WithError(err).WithField("provider", provider.Name).Warn("userinfo fetch failed")
				return f.fail(provider, provider.ID, "userinfo", errAuthenticationFail)
			}
			// Userinfo is supplemental when ID token claims exist.
			f.logger.WithError(err).WithField("provider", provider.Name).Debug("userinfo fetch failed, using ID token claims")
		} else {
			if claims == nil {
				claims = userinfo
			} else {
				for k, v := range userinfo {
					if _, exists := claims[k]; !exists {
						claims[k] = v
					}
				}
			}
		}
	}
	if claims == nil {
		return f.fail(provider, provider.ID, "no_identity", errAuthenticationFail)
	}

	return f.createSession(provider, claimsToAttributes(claims))
}

// oauthConfig builds the x/oauth2 configuration for a provider. Endpoints
// come from provider config so initiation stays free of network I/O.
func (f *Framework) oauthConfig(provider *Provider, redirectURI string) *oauth2.Config {
	scopes := provider.OAuth.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes(provider.Protocol)
	}
	return &oauth2.Config{
		ClientID:     provider.OAuth.ClientID,
		ClientSecret: provider.OAuth.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.OAuth.AuthorizationEndpoint,
			TokenURL: provider.OAuth.TokenEndpoint,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

// fetchUserinfo performs the Bearer-authenticated userinfo request.
func (f *Framework) fetchUserinfo(ctx context.Context, endpoint, accessToken string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo request returned status %d: %s", resp.StatusCode, string(body))
	}

	var userinfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userinfo); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return userinfo, nil
}

// claimsToAttributes flattens a claims document into the multi-valued
// attribute shape shared with the SAML and LDAP branches.
func claimsToAttributes(claims map[string]interface{}) map[string][]string {
	attrs := make(map[string][]string, len(claims))
	for key, value := range claims {
		switch v := value.(type) {
		case string:
			attrs[key] = []string{v}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					attrs[key] = append(attrs[key], s)
				}
			}
		case bool:
			attrs[key] = []string{fmt.Sprintf("%t", v)}
		case float64:
			attrs[key] = []string{fmt.Sprintf("%g", v)}
		}
	}
	return attrs
}

// newStateToken returns a fresh URL-safe random state token.
func newStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
