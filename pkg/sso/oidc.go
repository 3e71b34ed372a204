package sso

import (
	"context"
	"fmt"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// oidcClient bundles a discovered OIDC provider with an ID token verifier for
// one client ID. Instances are cached per provider revision because discovery
// is a network round trip that must not repeat on every callback.
type oidcClient struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// oidcClientFor returns the cached OIDC client for a provider, running
// discovery on first use. The cache key includes the provider's update time so
// config edits invalidate stale discovery documents.
func (f *Framework) oidcClientFor(ctx context.Context, provider *Provider) (*oidcClient, error) {
	key := provider.ID + "@" + provider.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if client, ok := f.oidcCache.Get(key); ok {
		return client, nil
	}

	discoveryCtx := oidc.ClientContext(ctx, f.httpClient)
	discovered, err := oidc.NewProvider(discoveryCtx, provider.OAuth.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("OIDC discovery failed for %s: %w", provider.OAuth.IssuerURL, err)
	}

	client := &oidcClient{
		provider: discovered,
		verifier: discovered.Verifier(&oidc.Config{ClientID: provider.OAuth.ClientID}),
	}
	f.oidcCache.Add(key, client)
	return client, nil
}

// verifyIDToken validates the id_token from a token response against the
// provider's discovered signing keys and returns its claims.
func (f *Framework) verifyIDToken(ctx context.Context, provider *Provider, token *oauth2.Token) (map[string]interface{}, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("token response contains no id_token")
	}

	client, err := f.oidcClientFor(ctx, provider)
	if err != nil {
		return nil, err
	}

	idToken, err := client.verifier.Verify(oidc.ClientContext(ctx, f.httpClient), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("ID token rejected: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode ID token claims: %w", err)
	}
	return claims, nil
}
