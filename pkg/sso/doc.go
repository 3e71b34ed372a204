// Package sso implements a multi-protocol enterprise SSO integration
// framework: provider configuration management, SAML 2.0, the OAuth2/OIDC
// family (including Azure AD, Okta and Google Workspace), LDAP
// bind-and-search authentication, session tracking and attribute-to-role
// mapping.
//
// # Architecture
//
// The Framework type is the façade. It owns the in-memory provider registry
// backed by a ProviderStore (filesystem or SQL), a TransientStateStore for
// in-flight login correlation (in-memory or Redis), a SessionStore for
// authenticated sessions and a KeyManager for the SAML signing key pair.
//
// Redirect-based flows split into two phases:
//
//	result := framework.InitiateAuthentication(ctx, providerID, redirectURI, "")
//	// browser round trip to the IdP ...
//	auth := framework.HandleCallback(ctx, providerID, callbackData)
//
// Initiation performs no network I/O; its only side effect is a transient
// correlation record consumed exactly once by the matching callback. LDAP
// skips the redirect and authenticates credentials directly:
//
//	auth := framework.AuthenticateLDAP(ctx, providerID, username, password)
//
// All public operations return structured results with an Error field rather
// than panicking across the boundary.
//
// # Security Invariants
//
//   - OAuth state tokens and SAML request IDs validate at most once.
//   - Disabled providers reject every authentication attempt.
//   - Failed authentication never creates a session.
//   - Security-relevant failures share generic error wording.
//
// # Related Packages
//
//   - pkg/observability: structured logging and Prometheus metrics
//   - pkg/audit: append-only authentication audit trail
//   - pkg/config: environment-based service configuration
package sso
