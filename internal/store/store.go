// Package store persists identities, refresh tokens, profiles and health
// data. Identity writes are immediately durable; everything else goes through
// a UnitOfWork that must be committed.
package store

import (
	"context"
	"errors"

	"github.com/example/healthtracker/internal/models"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrDuplicateEmail = errors.New("store: email already exists")
	ErrDuplicateRole  = errors.New("store: role already exists")
)

// IdentityStore holds users, roles and claims. Lookups of missing rows return
// (nil, nil). Names and emails are matched on their normalized form.
type IdentityStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByNormalizedEmail(ctx context.Context, normalizedEmail string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	CreateRole(ctx context.Context, r *models.Role) error
	GetRoleByNormalizedName(ctx context.Context, normalizedName string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)

	// AddUserToRole returns false when the membership already exists.
	AddUserToRole(ctx context.Context, userID, roleID string) (bool, error)
	// RemoveUserFromRole returns false when there was no membership.
	RemoveUserFromRole(ctx context.Context, userID, roleID string) (bool, error)
	GetUserRoleNames(ctx context.Context, userID string) ([]string, error)

	AddUserClaim(ctx context.Context, userID string, c models.Claim) error
	GetUserClaims(ctx context.Context, userID string) ([]models.Claim, error)
	AddRoleClaim(ctx context.Context, roleID string, c models.Claim) error
	GetRoleClaims(ctx context.Context, roleID string) ([]models.Claim, error)
}

type RefreshTokenRepository interface {
	Add(ctx context.Context, t *models.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	// MarkUsed flips is_used on a live token and reports whether it did.
	// Of two concurrent callers on the same token at most one sees true.
	MarkUsed(ctx context.Context, token string) (bool, error)
	// Revoke flips is_revoked on a live token and reports whether it did.
	Revoke(ctx context.Context, token string) (bool, error)
}

type ProfileRepository interface {
	Add(ctx context.Context, p *models.Profile) error
	All(ctx context.Context) ([]*models.Profile, error)
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByIdentityID(ctx context.Context, identityID string) (*models.Profile, error)
	// UpdateProfile copies the editable contact fields onto the active row.
	UpdateProfile(ctx context.Context, p *models.Profile) (bool, error)
}

type HealthDataRepository interface {
	Add(ctx context.Context, h *models.HealthData) error
	AllForIdentity(ctx context.Context, identityID string) ([]*models.HealthData, error)
	GetByID(ctx context.Context, id string) (*models.HealthData, error)
	Update(ctx context.Context, h *models.HealthData) (bool, error)
}

// UnitOfWork groups repository writes. Nothing is visible to other units
// until Commit. Rollback after Commit is a no-op, so callers can defer it.
type UnitOfWork interface {
	RefreshTokens() RefreshTokenRepository
	Profiles() ProfileRepository
	HealthData() HealthDataRepository
	Commit() error
	Rollback() error
}

type Store interface {
	IdentityStore
	Begin(ctx context.Context) (UnitOfWork, error)
	Ping(ctx context.Context) error
	Close() error
}
