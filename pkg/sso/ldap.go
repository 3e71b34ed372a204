package sso

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
)

// LDAPDirectory authenticates a user against a directory and returns the
// user's attributes. Implementations must treat bind failures, missing users
// and ambiguous search results uniformly as errors.
type LDAPDirectory interface {
	Authenticate(ctx context.Context, cfg *LDAPConfig, username, password string) (map[string][]string, error)
}

const defaultLDAPFilter = "(uid=%s)"

// ldapDirectory is the production LDAPDirectory backed by go-ldap. It performs
// the classic search-then-bind dance: an optional service bind, a search for
// the user's DN, then a bind as that DN with the supplied password.
type ldapDirectory struct {
	timeout time.Duration
}

func (d *ldapDirectory) Authenticate(ctx context.Context, cfg *LDAPConfig, username, password string) (map[string][]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ldap config is required")
	}

	conn, err := ldap.DialURL(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory: %w", err)
	}
	defer conn.Close()
	if d.timeout > 0 {
		conn.SetTimeout(d.timeout)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && (d.timeout <= 0 || remaining < d.timeout) {
			conn.SetTimeout(remaining)
		}
	}

	if cfg.StartTLS {
		tlsConfig := &tls.Config{}
		if parsed, perr := url.Parse(cfg.ServerURL); perr == nil {
			tlsConfig.ServerName = parsed.Hostname()
		}
		if err := conn.StartTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("service bind failed: %w", err)
		}
	}

	filter := cfg.SearchFilter
	if filter == "" {
		filter = defaultLDAPFilter
	}
	filter = strings.ReplaceAll(filter, "%s", ldap.EscapeFilter(username))

	attrs := cfg.Attributes
	if len(attrs) == 0 {
		attrs = []string{"uid", "cn", "mail", "givenName", "sn", "memberOf"}
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		cfg.SearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter, attrs, nil,
	))
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("user lookup returned %d entries", len(result.Entries))
	}
	entry := result.Entries[0]

	// The user bind is the actual credential check.
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("credential bind failed: %w", err)
	}

	userAttrs := make(map[string][]string, len(entry.Attributes)+1)
	for _, attr := range entry.Attributes {
		userAttrs[attr.Name] = append([]string(nil), attr.Values...)
	}
	userAttrs["dn"] = []string{entry.DN}
	return userAttrs, nil
}
