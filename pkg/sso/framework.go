package sso

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/audit"
	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

// Error strings surfaced across the framework boundary. Security-relevant
// failures deliberately share generic wording so a caller cannot tell which
// check rejected the attempt.
const (
	errProviderNotFound    = "Provider not found"
	errProviderDisabled    = "Provider is disabled"
	errUnsupportedProtocol = "Unsupported protocol"
	errInvalidState        = "Invalid state parameter"
	errMissingSAMLResponse = "Missing SAML response"
	errAuthenticationFail  = "Authentication failed"
	errLDAPFail            = "LDAP authentication failed"
	errLDAPNotRedirect     = "LDAP requires direct credential authentication"
	errMissingCredentials  = "Username and password are required"
	errMissingCodeOrState  = "Missing authorization code or state"
)

const oidcCacheSize = 64

// FrameworkConfig carries process-wide SSO settings.
type FrameworkConfig struct {
	// BaseURL is the externally visible base URL of this service provider.
	BaseURL string
	// EntityID identifies this SP in SAML metadata; defaults to BaseURL.
	EntityID string
	// KeyDir holds the signing key pair; empty disables signing entirely.
	KeyDir string
	// SessionTimeout is the session lifetime (default 8h).
	SessionTimeout time.Duration
	// StateTTL bounds transient login state (default 10m).
	StateTTL time.Duration
	// HTTPTimeout bounds IdP token/userinfo calls (default 10s).
	HTTPTimeout time.Duration
	// DefaultRole applies when no group mapping matches (default "user").
	DefaultRole string
}

func (c *FrameworkConfig) applyDefaults() {
	if c.EntityID == "" {
		c.EntityID = c.BaseURL
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 8 * time.Hour
	}
	if c.StateTTL <= 0 {
		c.StateTTL = 10 * time.Minute
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
}

// Framework wires provider storage, key management, transient login state,
// session tracking and the per-protocol authentication flows behind one
// façade. All public operations return structured results instead of
// panicking or raising across the boundary.
type Framework struct {
	cfg FrameworkConfig

	mu        sync.RWMutex
	providers map[string]*Provider

	store    ProviderStore
	state    TransientStateStore
	sessions *SessionStore
	keys     *KeyManager
	mapper   *AttributeMapper

	directory  LDAPDirectory
	oidcCache  *lru.Cache[string, *oidcClient]
	parserFor  func(*Provider) (AssertionParser, error)
	httpClient *http.Client

	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Recorder

	statsMu        sync.Mutex
	totalAuth      uint64
	failedAuth     uint64
	authByProvider map[string]uint64
	lastAuth       *time.Time

	nowFn func() time.Time
}

// NewFramework constructs the framework. Signing key generation failure is
// logged and degrades signing rather than failing construction.
func NewFramework(cfg FrameworkConfig, store ProviderStore, state TransientStateStore,
	logger *observability.Logger, metrics *observability.Metrics, recorder audit.Recorder) *Framework {

	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if state == nil {
		state = NewMemoryStateStore(cfg.StateTTL)
	}

	cache, _ := lru.New[string, *oidcClient](oidcCacheSize)

	f := &Framework{
		cfg:            cfg,
		providers:      make(map[string]*Provider),
		store:          store,
		state:          state,
		sessions:       NewSessionStore(cfg.SessionTimeout),
		mapper:         NewAttributeMapper(cfg.DefaultRole),
		directory:      &ldapDirectory{timeout: cfg.HTTPTimeout},
		oidcCache:      cache,
		httpClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		logger:         logger,
		metrics:        metrics,
		audit:          recorder,
		authByProvider: make(map[string]uint64),
		nowFn:          time.Now,
	}
	f.parserFor = f.newAssertionParser

	if cfg.KeyDir != "" {
		f.keys = NewKeyManager(cfg.KeyDir, logger)
		if _, _, err := f.keys.EnsureKeys(); err != nil {
			logger.WithError(err).Error("signing key generation failed, continuing without signing")
		}
	}

	return f
}

// LoadProviders populates the in-memory provider map from the store.
func (f *Framework) LoadProviders() error {
	if f.store == nil {
		return nil
	}
	providers, err := f.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	f.mu.Lock()
	for _, p := range providers {
		f.providers[p.ID] = p
	}
	f.mu.Unlock()

	f.logger.WithField("count", len(providers)).Info("loaded SSO providers")
	f.updateProviderMetrics()
	return nil
}

// CreateProvider validates and registers a new provider. The protocol-specific
// config is validated here, at creation time, rather than unchecked at auth
// time.
func (f *Framework) CreateProvider(p *Provider) (*Provider, error) {
	if p == nil || p.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if !p.Protocol.Valid() {
		return nil, fmt.Errorf("unsupported protocol: %s", p.Protocol)
	}
	if err := validateProviderConfig(p); err != nil {
		return nil, err
	}

	now := f.nowFn().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.RoleMapping.DefaultRole == "" {
		p.RoleMapping.DefaultRole = f.mapper.defaultRole
	}

	f.mu.Lock()
	f.providers[p.ID] = p
	f.mu.Unlock()

	f.persist(p)
	f.audit.Record(&audit.Event{
		Type: audit.EventTypeProviderCreate, Status: audit.EventStatusSuccess,
		ProviderID: p.ID, Provider: p.Name,
	})
	f.updateProviderMetrics()
	return p, nil
}

// UpdateProvider applies mutable fields to an existing provider. ID and
// protocol are immutable; a protocol change is rejected.
func (f *Framework) UpdateProvider(providerID string, update *Provider) (*Provider, error) {
	f.mu.Lock()
	existing, ok := f.providers[providerID]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("provider %s not found", providerID)
	}
	if update.Protocol != "" && update.Protocol != existing.Protocol {
		f.mu.Unlock()
		return nil, fmt.Errorf("protocol is immutable; create a new provider to change it")
	}

	// Apply the update to a copy so a rejected update leaves the live
	// provider untouched.
	updated := *existing
	if update.Name != "" {
		updated.Name = update.Name
	}
	if update.SAML != nil {
		updated.SAML = update.SAML
	}
	if update.OAuth != nil {
		updated.OAuth = update.OAuth
	}
	if update.LDAP != nil {
		updated.LDAP = update.LDAP
	}
	if update.AttributeMapping != nil {
		updated.AttributeMapping = update.AttributeMapping
	}
	if update.RoleMapping.AdminGroups != nil || update.RoleMapping.UserGroups != nil || update.RoleMapping.DefaultRole != "" {
		updated.RoleMapping = update.RoleMapping
	}
	if update.Metadata != nil {
		updated.Metadata = update.Metadata
	}
	updated.UpdatedAt = f.nowFn().UTC()

	if err := validateProviderConfig(&updated); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.providers[providerID] = &updated
	snapshot := updated
	f.mu.Unlock()

	f.persist(&snapshot)
	f.audit.Record(&audit.Event{
		Type: audit.EventTypeProviderUpdate, Status: audit.EventStatusSuccess,
		ProviderID: snapshot.ID, Provider: snapshot.Name,
	})
	return &snapshot, nil
}

// EnableProvider marks a provider enabled.
func (f *Framework) EnableProvider(providerID string) error {
	return f.setEnabled(providerID, true)
}

// DisableProvider marks a provider disabled; disabled providers reject all
// authentication attempts.
func (f *Framework) DisableProvider(providerID string) error {
	return f.setEnabled(providerID, false)
}

func (f *Framework) setEnabled(providerID string, enabled bool) error {
	f.mu.Lock()
	p, ok := f.providers[providerID]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("provider %s not found", providerID)
	}
	p.Enabled = enabled
	p.UpdatedAt = f.nowFn().UTC()
	snapshot := *p
	f.mu.Unlock()

	f.persist(&snapshot)
	eventType := audit.EventTypeProviderEnable
	if !enabled {
		eventType = audit.EventTypeProviderDisable
	}
	f.audit.Record(&audit.Event{
		Type: eventType, Status: audit.EventStatusSuccess,
		ProviderID: snapshot.ID, Provider: snapshot.Name,
	})
	f.updateProviderMetrics()
	return nil
}

// DeleteProvider removes a provider from memory and durable storage.
func (f *Framework) DeleteProvider(providerID string) error {
	f.mu.Lock()
	p, ok := f.providers[providerID]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("provider %s not found", providerID)
	}
	delete(f.providers, providerID)
	name := p.Name
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.Delete(providerID); err != nil {
			f.logger.WithError(err).WithField("provider_id", providerID).Error("failed to delete provider record")
		}
	}
	f.audit.Record(&audit.Event{
		Type: audit.EventTypeProviderDelete, Status: audit.EventStatusSuccess,
		ProviderID: providerID, Provider: name,
	})
	f.updateProviderMetrics()
	return nil
}

// GetProvider returns the provider by ID.
func (f *Framework) GetProvider(providerID string) (*Provider, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.providers[providerID]
	if !ok {
		return nil, false
	}
	snapshot := *p
	return &snapshot, true
}

// ListProviders returns all providers, optionally only enabled ones.
func (f *Framework) ListProviders(enabledOnly bool) []*Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Provider, 0, len(f.providers))
	for _, p := range f.providers {
		if enabledOnly && !p.Enabled {
			continue
		}
		snapshot := *p
		out = append(out, &snapshot)
	}
	return out
}

// ReplaceProvider swaps a provider record in memory without a store write.
// Used by the directory watcher when a record changes on disk.
func (f *Framework) ReplaceProvider(p *Provider) {
	if p == nil || p.ID == "" {
		return
	}
	f.mu.Lock()
	f.providers[p.ID] = p
	f.mu.Unlock()
	f.updateProviderMetrics()
}

// RemoveProviderLocal drops a provider from memory without a store write.
func (f *Framework) RemoveProviderLocal(providerID string) {
	f.mu.Lock()
	delete(f.providers, providerID)
	f.mu.Unlock()
	f.updateProviderMetrics()
}

// InitiateAuthentication starts a redirect-based login. It performs no network
// I/O; the only side effect is a transient correlation record.
func (f *Framework) InitiateAuthentication(ctx context.Context, providerID, redirectURI, state string) InitiationResult {
	provider, ok := f.GetProvider(providerID)
	if !ok {
		return InitiationResult{Error: errProviderNotFound}
	}
	if !provider.Enabled {
		return InitiationResult{Error: errProviderDisabled}
	}

	switch {
	case provider.Protocol == ProtocolSAML2:
		return f.initiateSAML(ctx, provider, redirectURI, state)
	case provider.Protocol.OAuthFamily():
		return f.initiateOAuth(ctx, provider, redirectURI, state)
	case provider.Protocol == ProtocolLDAP:
		return InitiationResult{Error: errLDAPNotRedirect}
	default:
		return InitiationResult{Error: errUnsupportedProtocol}
	}
}

// HandleCallback completes a redirect-based login from IdP callback data.
// Unexpected panics anywhere below are converted into a generic failure so
// callback handling never crashes the caller.
func (f *Framework) HandleCallback(ctx context.Context, providerID string, callbackData map[string]string) (result AuthResult) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithField("panic", fmt.Sprint(r)).Error("panic during SSO callback handling")
			f.recordFailure(providerID, "panic")
			result = AuthResult{Error: errAuthenticationFail}
		}
	}()

	provider, ok := f.GetProvider(providerID)
	if !ok {
		return f.fail(nil, providerID, "unknown_provider", errProviderNotFound)
	}
	if !provider.Enabled {
		return f.fail(provider, providerID, "provider_disabled", errProviderDisabled)
	}

	switch {
	case provider.Protocol == ProtocolSAML2:
		return f.handleSAMLCallback(ctx, provider, callbackData)
	case provider.Protocol.OAuthFamily():
		return f.handleOAuthCallback(ctx, provider, callbackData)
	default:
		return f.fail(provider, providerID, "unsupported_protocol", errUnsupportedProtocol)
	}
}

// AuthenticateLDAP performs direct credential authentication against an LDAP
// provider. Credentials never reach the logs.
func (f *Framework) AuthenticateLDAP(ctx context.Context, providerID, username, password string) (result AuthResult) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithField("panic", fmt.Sprint(r)).Error("panic during LDAP authentication")
			f.recordFailure(providerID, "panic")
			result = AuthResult{Error: errLDAPFail}
		}
	}()

	provider, ok := f.GetProvider(providerID)
	if !ok {
		return f.fail(nil, providerID, "unknown_provider", errProviderNotFound)
	}
	if !provider.Enabled {
		return f.fail(provider, providerID, "provider_disabled", errProviderDisabled)
	}
	if provider.Protocol != ProtocolLDAP {
		return f.fail(provider, providerID, "unsupported_protocol", errUnsupportedProtocol)
	}
	if username == "" || password == "" {
		return f.fail(provider, providerID, "missing_credentials", errMissingCredentials)
	}

	attrs, err := f.directory.Authenticate(ctx, provider.LDAP, username, password)
	if err != nil {
		f.logger.WithField("provider", provider.Name).Info("LDAP authentication rejected")
		return f.fail(provider, providerID, "ldap_bind", errLDAPFail)
	}
	if _, ok := attrs["uid"]; !ok {
		attrs["uid"] = []string{username}
	}
	return f.createSession(provider, attrs)
}

// GetSession returns the session if it is still valid, evicting it otherwise.
func (f *Framework) GetSession(sessionID string) *Session {
	return f.sessions.Get(sessionID)
}

// InvalidateSession removes a session unconditionally.
func (f *Framework) InvalidateSession(sessionID string) bool {
	ok := f.sessions.Invalidate(sessionID)
	if ok {
		f.audit.Record(&audit.Event{
			Type: audit.EventTypeLogout, Status: audit.EventStatusSuccess,
			SessionID: sessionID,
		})
		if f.metrics != nil {
			f.metrics.ActiveSessions.Set(float64(f.sessions.Active()))
		}
	}
	return ok
}

// RefreshSession extends an unexpired session's lifetime.
func (f *Framework) RefreshSession(sessionID string) bool {
	ok := f.sessions.Refresh(sessionID)
	if ok {
		f.audit.Record(&audit.Event{
			Type: audit.EventTypeSessionRefresh, Status: audit.EventStatusSuccess,
			SessionID: sessionID,
		})
	}
	return ok
}

// CleanupExpiredSessions sweeps expired sessions and transient login state.
func (f *Framework) CleanupExpiredSessions(ctx context.Context) int {
	removed := f.sessions.CleanupExpired()
	swept := f.state.Sweep(ctx)
	if f.metrics != nil {
		f.metrics.SessionCleanupRuns.Inc()
		f.metrics.SessionsEvictedTotal.Add(float64(removed))
		f.metrics.ActiveSessions.Set(float64(f.sessions.Active()))
	}
	if removed > 0 || swept > 0 {
		f.logger.WithFields(map[string]interface{}{
			"sessions": removed,
			"state":    swept,
		}).Debug("cleanup sweep removed expired entries")
	}
	return removed
}

// GetStatistics derives a statistics snapshot from current provider and
// session state plus lifetime counters.
func (f *Framework) GetStatistics() *Statistics {
	stats := &Statistics{
		ProvidersByProtocol:       make(map[string]int),
		SessionAgeDistribution:    map[string]int{"<1h": 0, "1-4h": 0, "4-8h": 0, ">8h": 0},
		AuthenticationsByProvider: make(map[string]uint64),
	}

	f.mu.RLock()
	stats.TotalProviders = len(f.providers)
	for _, p := range f.providers {
		stats.ProvidersByProtocol[string(p.Protocol)]++
		if p.Enabled {
			stats.ActiveProviders++
		}
	}
	f.mu.RUnlock()

	now := f.nowFn()
	for _, session := range f.sessions.Snapshot() {
		stats.ActiveSessions++
		if session.ExpiresAt.Sub(now) <= time.Hour {
			stats.SessionsExpiringSoon++
		}
		age := now.Sub(session.CreatedAt)
		switch {
		case age < time.Hour:
			stats.SessionAgeDistribution["<1h"]++
		case age < 4*time.Hour:
			stats.SessionAgeDistribution["1-4h"]++
		case age < 8*time.Hour:
			stats.SessionAgeDistribution["4-8h"]++
		default:
			stats.SessionAgeDistribution[">8h"]++
		}
	}

	f.statsMu.Lock()
	stats.TotalAuthentications = f.totalAuth
	stats.FailedAuthentications = f.failedAuth
	for provider, count := range f.authByProvider {
		stats.AuthenticationsByProvider[provider] = count
	}
	if f.lastAuth != nil {
		last := *f.lastAuth
		stats.LastAuthentication = &last
	}
	f.statsMu.Unlock()

	return stats
}

// Keys exposes the key manager; nil when no key directory is configured. A
// manager whose key material failed to materialize stays in place so signing
// can recover on a later EnsureKeys call.
func (f *Framework) Keys() *KeyManager {
	return f.keys
}

// SetLDAPDirectory replaces the LDAP collaborator (used by tests and by
// deployments that front the directory with a pool).
func (f *Framework) SetLDAPDirectory(dir LDAPDirectory) {
	f.directory = dir
}

// SetAssertionParserFactory replaces the SAML assertion parser factory.
func (f *Framework) SetAssertionParserFactory(factory func(*Provider) (AssertionParser, error)) {
	f.parserFor = factory
}

// createSession is the shared final step for all successful authentication
// branches: map attributes, allocate the session, record statistics.
func (f *Framework) createSession(provider *Provider, raw map[string][]string) AuthResult {
	user := f.mapper.Map(provider, raw)

	now := f.nowFn()
	session := &Session{
		ID:           uuid.NewString(),
		UserID:       user.UserID,
		ProviderID:   provider.ID,
		Attributes:   sessionAttributes(user),
		CreatedAt:    now,
		ExpiresAt:    now.Add(f.sessions.Timeout()),
		LastActivity: now,
		Status:       SessionStatusSuccess,
	}
	f.sessions.Put(session)

	f.statsMu.Lock()
	f.totalAuth++
	f.authByProvider[provider.ID]++
	last := now
	f.lastAuth = &last
	f.statsMu.Unlock()

	if f.metrics != nil {
		f.metrics.ObserveAuthAttempt(provider.Name, string(provider.Protocol), true)
		f.metrics.SessionsCreatedTotal.WithLabelValues(provider.Name).Inc()
		f.metrics.ActiveSessions.Set(float64(f.sessions.Active()))
	}
	f.audit.Record(&audit.Event{
		Type: audit.EventTypeLogin, Status: audit.EventStatusSuccess,
		ProviderID: provider.ID, Provider: provider.Name,
		UserID: user.UserID, SessionID: session.ID,
	})
	f.logger.WithFields(map[string]interface{}{
		"provider": provider.Name,
		"user_id":  user.UserID,
	}).Info("SSO authentication succeeded")

	return AuthResult{
		Success:   true,
		SessionID: session.ID,
		User:      user,
		ExpiresAt: session.ExpiresAt,
		Provider:  provider.Name,
	}
}

// fail records a failed authentication and returns the caller-visible error.
func (f *Framework) fail(provider *Provider, providerID, reason, message string) AuthResult {
	f.recordFailure(providerID, reason)

	name := providerID
	protocol := "unknown"
	if provider != nil {
		name = provider.Name
		protocol = string(provider.Protocol)
	}
	if f.metrics != nil {
		f.metrics.ObserveAuthAttempt(name, protocol, false)
		f.metrics.AuthFailuresTotal.WithLabelValues(name, reason).Inc()
	}
	f.audit.Record(&audit.Event{
		Type: audit.EventTypeLoginFailed, Status: audit.EventStatusFailure,
		ProviderID: providerID, Provider: name,
		Details: map[string]string{"reason": reason},
	})
	return AuthResult{Error: message}
}

func (f *Framework) recordFailure(providerID, reason string) {
	f.statsMu.Lock()
	f.failedAuth++
	f.statsMu.Unlock()
	f.logger.WithFields(map[string]interface{}{
		"provider_id": providerID,
		"reason":      reason,
	}).Warn("SSO authentication failed")
}

// persist writes a provider record; a save failure must not silently lose the
// in-memory change, so it is logged loudly and the memory copy stands.
func (f *Framework) persist(p *Provider) {
	if f.store == nil {
		return
	}
	if err := f.store.Save(p); err != nil {
		f.logger.WithError(err).WithFields(map[string]interface{}{
			"provider_id": p.ID,
			"provider":    p.Name,
		}).Error("provider save failed; in-memory state retained but NOT durable")
	}
}

func (f *Framework) updateProviderMetrics() {
	if f.metrics == nil {
		return
	}
	counts := make(map[[2]string]int)
	f.mu.RLock()
	for _, p := range f.providers {
		counts[[2]string{string(p.Protocol), fmt.Sprint(p.Enabled)}]++
	}
	f.mu.RUnlock()

	f.metrics.ProvidersConfigured.Reset()
	for key, count := range counts {
		f.metrics.ProvidersConfigured.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}

func validateProviderConfig(p *Provider) error {
	switch {
	case p.Protocol == ProtocolSAML2:
		if p.SAML == nil {
			return fmt.Errorf("saml_config is required for SAML2 providers")
		}
		return p.SAML.Validate()
	case p.Protocol.OAuthFamily():
		if p.OAuth == nil {
			return fmt.Errorf("oauth_config is required for %s providers", p.Protocol)
		}
		return p.OAuth.Validate()
	case p.Protocol == ProtocolLDAP:
		if p.LDAP == nil {
			return fmt.Errorf("ldap_config is required for LDAP providers")
		}
		return p.LDAP.Validate()
	}
	return fmt.Errorf("unsupported protocol: %s", p.Protocol)
}

func sessionAttributes(user *MappedUser) map[string]string {
	attrs := make(map[string]string, len(user.Raw)+6)
	for k, v := range user.Raw {
		attrs[k] = v
	}
	attrs["email"] = user.Email
	attrs["first_name"] = user.FirstName
	attrs["last_name"] = user.LastName
	attrs["role"] = user.Role
	attrs["auth_provider"] = user.AuthProvider
	attrs["auth_method"] = user.AuthMethod
	return attrs
}
