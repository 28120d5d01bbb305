package domain

import "slices"

// Member represents a guild member (value object)
type Member struct {
	UserID  string
	Name    string
	RoleIDs []string
	Bot     bool
}

// Mention formats the platform @ mention syntax
func (m *Member) Mention() string {
	return MentionUser(m.UserID)
}

// HasRole checks if the member holds the role
func (m *Member) HasRole(roleID string) bool {
	return slices.Contains(m.RoleIDs, roleID)
}

// HasAllRoles checks if the member holds every one of the roles
func (m *Member) HasAllRoles(roleIDs []string) bool {
	for _, id := range roleIDs {
		if !m.HasRole(id) {
			return false
		}
	}
	return true
}

// MissingRoles returns the roles the member does not hold yet
func (m *Member) MissingRoles(roleIDs []string) []string {
	var missing []string
	for _, id := range roleIDs {
		if !m.HasRole(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// MentionUser formats a mention for a bare user ID
func MentionUser(userID string) string {
	return "<@" + userID + ">"
}
