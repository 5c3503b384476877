package postgres

import (
	"banking-engine/internal/domain/identity"
	"context"
	"log/slog"
)

// UserDirectory is the read-only view over the users table owned by the
// identity service. Only the profile columns matching the row's role are
// populated on the returned user.
type UserDirectory struct {
	db     DBPool
	logger *slog.Logger
}

func NewUserDirectory(db DBPool, logger *slog.Logger) *UserDirectory {
	return &UserDirectory{db: db, logger: logger.With("component", "UserDirectory")}
}

func (r *UserDirectory) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	sql := `
        SELECT id, role, email, name, credit_score, kyc_status, department
        FROM users
        WHERE id = $1`

	var (
		user        identity.User
		creditScore *int
		kycStatus   *string
		department  *string
	)
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&user.ID, &user.Role, &user.Email, &user.Name,
		&creditScore, &kycStatus, &department,
	)
	if err != nil {
		return nil, translateError(err, "get user")
	}

	switch user.Role {
	case identity.RoleCustomer:
		profile := identity.CustomerProfile{}
		if creditScore != nil {
			profile.CreditScore = *creditScore
		}
		if kycStatus != nil {
			profile.KYCStatus = identity.KYCStatus(*kycStatus)
		}
		user.Customer = &profile
	case identity.RoleAdmin:
		profile := identity.AdminProfile{}
		if department != nil {
			profile.Department = *department
		}
		user.Admin = &profile
	}

	return &user, nil
}
