package auth

import (
	"context"
	"database/sql"
	"fmt"

	"govline/internal/config"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// InactiveProfileError indicates a known user whose account is not activated.
type InactiveProfileError struct {
	UserID string
}

func (e InactiveProfileError) Error() string {
	return fmt.Sprintf("profile %s is not active", e.UserID)
}

// Service provides RBAC helpers. Roles live on profiles; the role to
// permission mapping comes from config.
type Service struct {
	DB     *sql.DB
	Config *config.Config
}

func (s Service) profileRole(ctx context.Context, userID string) (role string, active bool, err error) {
	var activeInt int
	err = s.DB.QueryRowContext(ctx, `SELECT role, active FROM profiles WHERE user_id=?`, userID).Scan(&role, &activeInt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return role, activeInt != 0, err
}

// HasPermission reports whether an active user holds a permission.
func (s Service) HasPermission(ctx context.Context, userID, perm string) (bool, error) {
	role, active, err := s.profileRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if role == "" || !active {
		return false, nil
	}
	for _, p := range s.Config.RolePermissions(role) {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Require returns a ForbiddenError unless the user holds the permission.
func (s Service) Require(ctx context.Context, userID, perm string) error {
	ok, err := s.HasPermission(ctx, userID, perm)
	if err != nil {
		return err
	}
	if !ok {
		role, active, err := s.profileRole(ctx, userID)
		if err != nil {
			return err
		}
		if role != "" && !active {
			return InactiveProfileError{UserID: userID}
		}
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Permissions lists the permissions of a user, empty for inactive profiles.
func (s Service) Permissions(ctx context.Context, userID string) ([]string, error) {
	role, active, err := s.profileRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role == "" || !active {
		return nil, nil
	}
	return s.Config.RolePermissions(role), nil
}
