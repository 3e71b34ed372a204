package sso

// Role names resolved by group mapping. RoleUser is the least-privileged role
// and the safe fallback when no group matches.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AttributeMapper normalizes protocol-specific claims and attributes into the
// internal user shape and resolves the user's role from group membership.
type AttributeMapper struct {
	defaultRole string
}

// NewAttributeMapper creates a mapper. defaultRole applies when a provider
// does not configure its own; empty means RoleUser.
func NewAttributeMapper(defaultRole string) *AttributeMapper {
	if defaultRole == "" {
		defaultRole = RoleUser
	}
	return &AttributeMapper{defaultRole: defaultRole}
}

// Map applies the provider's attribute table (or the protocol default) to the
// raw multi-valued attributes. UserID falls back username -> email ->
// "unknown".
func (m *AttributeMapper) Map(provider *Provider, raw map[string][]string) *MappedUser {
	table := DefaultAttributeMap(provider.Protocol)
	if provider.AttributeMapping != nil {
		table = *provider.AttributeMapping
	}

	user := &MappedUser{
		AuthProvider: provider.Name,
		AuthMethod:   string(provider.Protocol),
		Raw:          make(map[string]string, len(raw)),
	}
	for key, values := range raw {
		if len(values) > 0 {
			user.Raw[key] = values[0]
		}
	}

	user.Username = firstValue(raw, table.Username)
	user.Email = firstValue(raw, table.Email)
	user.FirstName = firstValue(raw, table.FirstName)
	user.LastName = firstValue(raw, table.LastName)
	if table.Groups != "" {
		user.Groups = append(user.Groups, raw[table.Groups]...)
	}

	user.UserID = firstValue(raw, table.UserID)
	if user.UserID == "" {
		user.UserID = user.Username
	}
	if user.UserID == "" {
		user.UserID = user.Email
	}
	if user.UserID == "" {
		user.UserID = "unknown"
	}

	user.Role = m.ResolveRole(user.Groups, provider.RoleMapping)
	return user
}

// ResolveRole checks groups against admin groups first (highest precedence),
// then user groups, then the configured default. It never elevates an
// unmatched user.
func (m *AttributeMapper) ResolveRole(groups []string, mapping RoleMapping) string {
	for _, group := range groups {
		for _, admin := range mapping.AdminGroups {
			if group == admin {
				return RoleAdmin
			}
		}
	}
	for _, group := range groups {
		for _, userGroup := range mapping.UserGroups {
			if group == userGroup {
				return RoleUser
			}
		}
	}
	if mapping.DefaultRole != "" {
		return mapping.DefaultRole
	}
	return m.defaultRole
}

func firstValue(raw map[string][]string, key string) string {
	if key == "" {
		return ""
	}
	if values, ok := raw[key]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}
