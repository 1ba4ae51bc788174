package economy

import "strings"

// Authorizer decides whether a caller holds elevated permission.
type Authorizer interface {
	IsAdmin(id string) bool
}

// AdminSet is a fixed set of administrator ids.
type AdminSet map[string]struct{}

// NewAdminSet 建立管理員集合；空白 id 會被忽略。
func NewAdminSet(ids ...string) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// IsAdmin reports membership.
func (s AdminSet) IsAdmin(id string) bool {
	_, ok := s[id]
	return ok
}
