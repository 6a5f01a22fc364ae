package domain

import "time"

// AccountStatus represents lifecycle states for a school account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusPending, AccountStatusSuspended:
		return true
	}
	return false
}

// User is the principal record: credentials, role, status and the single
// opaque session slot.
type User struct {
	ID              int64
	Name            string
	Email           string
	PasswordHash    string
	Role            Role
	Status          AccountStatus
	SessionToken    *string
	SessionIssuedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Status == AccountStatusActive
}

// HasSession reports whether an opaque session is currently stored.
func (u *User) HasSession() bool {
	return u != nil && u.SessionToken != nil && *u.SessionToken != ""
}
