package sso

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

const secretPlaceholder = "********"

// Handler exposes the framework over HTTP. Provider responses are sanitized;
// client secrets and bind passwords never leave the process.
type Handler struct {
	framework *Framework
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewHandler creates the HTTP handler layer.
func NewHandler(framework *Framework, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Handler{framework: framework, logger: logger, metrics: metrics}
}

// RegisterRoutes attaches all SSO routes to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.requestMiddleware)

	r.HandleFunc("/sso/providers", h.createProvider).Methods(http.MethodPost)
	r.HandleFunc("/sso/providers", h.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/sso/providers/{id}", h.getProvider).Methods(http.MethodGet)
	r.HandleFunc("/sso/providers/{id}", h.updateProvider).Methods(http.MethodPut)
	r.HandleFunc("/sso/providers/{id}", h.deleteProvider).Methods(http.MethodDelete)
	r.HandleFunc("/sso/providers/{id}/enable", h.enableProvider).Methods(http.MethodPost)
	r.HandleFunc("/sso/providers/{id}/disable", h.disableProvider).Methods(http.MethodPost)

	r.HandleFunc("/auth/sso/{id}/login", h.initiateLogin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/auth/sso/{id}/callback", h.handleCallback).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/auth/sso/{id}/ldap", h.authenticateLDAP).Methods(http.MethodPost)

	r.HandleFunc("/sso/sessions/{id}", h.getSession).Methods(http.MethodGet)
	r.HandleFunc("/sso/sessions/{id}", h.invalidateSession).Methods(http.MethodDelete)
	r.HandleFunc("/sso/sessions/{id}/refresh", h.refreshSession).Methods(http.MethodPost)

	r.HandleFunc("/sso/statistics", h.statistics).Methods(http.MethodGet)
	r.HandleFunc("/sso/metadata", h.samlMetadata).Methods(http.MethodGet)
}

// requestMiddleware assigns a request ID and records HTTP metrics.
func (h *Handler) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		ctx = observability.WithLogger(ctx, h.logger)
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		if h.metrics != nil {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			h.metrics.ObserveHTTPRequest(r.Method, route, recorder.status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var provider Provider
	if err := json.NewDecoder(r.Body).Decode(&provider); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.framework.CreateProvider(&provider)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, sanitizeProvider(created))
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	providers := h.framework.ListProviders(enabledOnly)
	sanitized := make([]*Provider, 0, len(providers))
	for _, p := range providers {
		sanitized = append(sanitized, sanitizeProvider(p))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": sanitized,
		"count":     len(sanitized),
	})
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.framework.GetProvider(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, http.StatusNotFound, errProviderNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, sanitizeProvider(provider))
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request) {
	var update Provider
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.framework.UpdateProvider(mux.Vars(r)["id"], &update)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, sanitizeProvider(updated))
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.framework.DeleteProvider(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enableProvider(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handler) disableProvider(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := mux.Vars(r)["id"]
	var err error
	if enabled {
		err = h.framework.EnableProvider(id)
	} else {
		err = h.framework.DisableProvider(id)
	}
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider_id": id,
		"enabled":     enabled,
	})
}

func (h *Handler) initiateLogin(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := h.framework.InitiateAuthentication(
		r.Context(),
		mux.Vars(r)["id"],
		query.Get("redirect_uri"),
		query.Get("state"),
	)
	if result.Error != "" {
		h.writeJSON(w, statusForInitiationError(result.Error), result)
		return
	}
	if query.Get("redirect") == "true" {
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	callbackData := make(map[string]string)
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				callbackData[key] = values[0]
			}
		}
	}
	for key, values := range r.URL.Query() {
		if _, exists := callbackData[key]; !exists && len(values) > 0 {
			callbackData[key] = values[0]
		}
	}

	result := h.framework.HandleCallback(r.Context(), mux.Vars(r)["id"], callbackData)
	if !result.Success {
		h.writeJSON(w, http.StatusUnauthorized, result)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) authenticateLDAP(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.framework.AuthenticateLDAP(r.Context(), mux.Vars(r)["id"], credentials.Username, credentials.Password)
	if !result.Success {
		h.writeJSON(w, http.StatusUnauthorized, result)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session := h.framework.GetSession(mux.Vars(r)["id"])
	if session == nil {
		h.writeError(w, http.StatusNotFound, "session not found or expired")
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) invalidateSession(w http.ResponseWriter, r *http.Request) {
	if !h.framework.InvalidateSession(mux.Vars(r)["id"]) {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if !h.framework.RefreshSession(sessionID) {
		h.writeError(w, http.StatusNotFound, "session not found or expired")
		return
	}
	h.writeJSON(w, http.StatusOK, h.framework.GetSession(sessionID))
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.framework.GetStatistics())
}

func (h *Handler) samlMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.framework.GenerateSAMLMetadata()))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func statusForInitiationError(message string) int {
	switch message {
	case errProviderNotFound:
		return http.StatusNotFound
	case errProviderDisabled, errLDAPNotRedirect, errUnsupportedProtocol:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeProvider copies a provider with secret material masked.
func sanitizeProvider(p *Provider) *Provider {
	out := *p
	if p.OAuth != nil {
		oauth := *p.OAuth
		if oauth.ClientSecret != "" {
			oauth.ClientSecret = secretPlaceholder
		}
		out.OAuth = &oauth
	}
	if p.LDAP != nil {
		ldapCfg := *p.LDAP
		if ldapCfg.BindPassword != "" {
			ldapCfg.BindPassword = secretPlaceholder
		}
		out.LDAP = &ldapCfg
	}
	return &out
}
