// Package identity is the read-only view of the user store owned by the
// excluded identity layer. Users are role-tagged variants rather than one
// wide record: only the profile matching the role is populated.
package identity

import "context"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCVerified KYCStatus = "VERIFIED"
	KYCRejected KYCStatus = "REJECTED"
)

type CustomerProfile struct {
	CreditScore int
	KYCStatus   KYCStatus
}

type AdminProfile struct {
	Department string
}

type User struct {
	ID    int64
	Role  Role
	Email string
	Name  string

	// Exactly one of these is set, matching Role.
	Customer *CustomerProfile
	Admin    *AdminProfile
}

func (u *User) IsCustomer() bool {
	return u.Role == RoleCustomer && u.Customer != nil
}

type Directory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}
