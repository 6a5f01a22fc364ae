package domain

import "fmt"

// Role is the closed set of school roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// ParseRole converts a raw value into a Role, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// Credential names the kind of bearer token an identity was resolved from.
type Credential string

const (
	CredentialSigned Credential = "signed"
	CredentialOpaque Credential = "opaque"
)

// Identity is the normalized result of authenticating one request.
// Email is only known when the identity came from a stored session.
type Identity struct {
	SubjectID  int64
	Role       Role
	Email      string
	Credential Credential
}

// FromSession reports whether the identity was backed by a stored session
// at the time of the request.
func (i *Identity) FromSession() bool {
	return i != nil && i.Credential == CredentialOpaque
}
