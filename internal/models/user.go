// internal/models/user.go
package models

// Role controls what a principal may do through the API. Credential
// verification happens in the external verification service; we only carry
// the resolved role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)
