package domain

import "time"

// Session is the active logged-in identity context. Exactly one session may
// be active in a given client context; login overwrites it, logout clears it.
type Session struct {
	Account   Account   `json:"account"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// IsSuperAdmin reports whether the session belongs to the built-in
// administrator.
func (s *Session) IsSuperAdmin() bool {
	return s != nil && s.Account.Role == RoleSuperAdmin
}
