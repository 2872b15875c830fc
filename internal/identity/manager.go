// Package identity manages users, roles and claims on top of a
// store.IdentityStore: email normalisation, the password policy, bcrypt
// hashing and the user-facing error descriptions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/healthtracker/internal/models"
	"github.com/example/healthtracker/internal/store"
	"github.com/google/uuid"
)

var ErrRoleNotFound = errors.New("identity: role not found")

// Error describes why an identity operation was refused. Descriptions are
// safe to show to the caller.
type Error struct {
	Descriptions []string
	cause        error
}

func (e *Error) Error() string { return strings.Join(e.Descriptions, " ") }
func (e *Error) Unwrap() error { return e.cause }

func refused(cause error, descriptions ...string) *Error {
	return &Error{Descriptions: descriptions, cause: cause}
}

// Normalize is the lookup key for emails and role names.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type Manager struct {
	store  store.IdentityStore
	hasher *Hasher
	policy PasswordPolicy
	now    func() time.Time
}

func NewManager(s store.IdentityStore, h *Hasher) *Manager {
	return &Manager{store: s, hasher: h, policy: DefaultPasswordPolicy(), now: time.Now}
}

func (m *Manager) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	return m.store.GetUserByNormalizedEmail(ctx, Normalize(email))
}

func (m *Manager) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.store.GetUserByID(ctx, id)
}

func (m *Manager) Users(ctx context.Context) ([]*models.User, error) {
	return m.store.ListUsers(ctx)
}

// CreateUser validates and stores u with a hash of password. u.ID, the
// normalized email, the hash and CreatedAt are filled in. Policy and
// uniqueness failures come back together as one *Error.
func (m *Manager) CreateUser(ctx context.Context, u *models.User, password string) error {
	u.Email = strings.TrimSpace(u.Email)
	var descs []string
	if u.Email == "" {
		descs = append(descs, "Email '' is invalid.")
	} else {
		existing, err := m.FindByEmail(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if existing != nil {
			descs = append(descs, fmt.Sprintf("Email '%s' is already taken.", u.Email))
		}
	}
	descs = append(descs, m.policy.Validate(password)...)
	if len(descs) > 0 {
		return refused(nil, descs...)
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.NormalizedEmail = Normalize(u.Email)
	u.PasswordHash = hash
	u.CreatedAt = m.now().UTC()

	if err := m.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return refused(err, fmt.Sprintf("Email '%s' is already taken.", u.Email))
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (m *Manager) CheckPassword(_ context.Context, u *models.User, password string) (bool, error) {
	if u == nil {
		return false, nil
	}
	return m.hasher.Matches(u.PasswordHash, password), nil
}

func (m *Manager) GetRoles(ctx context.Context, u *models.User) ([]string, error) {
	return m.store.GetUserRoleNames(ctx, u.ID)
}

func (m *Manager) GetClaims(ctx context.Context, u *models.User) ([]models.Claim, error) {
	return m.store.GetUserClaims(ctx, u.ID)
}

func (m *Manager) AddClaim(ctx context.Context, u *models.User, c models.Claim) error {
	if strings.TrimSpace(c.Type) == "" {
		return refused(nil, "Claim type must not be empty.")
	}
	return m.store.AddUserClaim(ctx, u.ID, c)
}

func (m *Manager) role(ctx context.Context, name string) (*models.Role, error) {
	r, err := m.FindRoleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, refused(ErrRoleNotFound, fmt.Sprintf("Role %s does not exist.", name))
	}
	return r, nil
}

func (m *Manager) AddToRole(ctx context.Context, u *models.User, roleName string) error {
	r, err := m.role(ctx, roleName)
	if err != nil {
		return err
	}
	added, err := m.store.AddUserToRole(ctx, u.ID, r.ID)
	if err != nil {
		return fmt.Errorf("add to role: %w", err)
	}
	if !added {
		return refused(nil, fmt.Sprintf("User already in role '%s'.", r.Name))
	}
	return nil
}

func (m *Manager) RemoveFromRole(ctx context.Context, u *models.User, roleName string) error {
	r, err := m.role(ctx, roleName)
	if err != nil {
		return err
	}
	removed, err := m.store.RemoveUserFromRole(ctx, u.ID, r.ID)
	if err != nil {
		return fmt.Errorf("remove from role: %w", err)
	}
	if !removed {
		return refused(nil, fmt.Sprintf("User is not in role '%s'.", r.Name))
	}
	return nil
}

func (m *Manager) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	return m.store.GetRoleByNormalizedName(ctx, Normalize(name))
}

func (m *Manager) RoleExists(ctx context.Context, name string) (bool, error) {
	r, err := m.FindRoleByName(ctx, name)
	return r != nil, err
}

func (m *Manager) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, refused(nil, "Role name '' is invalid.")
	}
	r := &models.Role{ID: uuid.NewString(), Name: name, NormalizedName: Normalize(name)}
	if err := m.store.CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicateRole) {
			return nil, refused(err, fmt.Sprintf("Role name '%s' is already taken.", name))
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	return r, nil
}

func (m *Manager) Roles(ctx context.Context) ([]*models.Role, error) {
	return m.store.ListRoles(ctx)
}

func (m *Manager) GetRoleClaims(ctx context.Context, r *models.Role) ([]models.Claim, error) {
	return m.store.GetRoleClaims(ctx, r.ID)
}

func (m *Manager) AddRoleClaim(ctx context.Context, r *models.Role, c models.Claim) error {
	return m.store.AddRoleClaim(ctx, r.ID, c)
}

// EnsureRoles creates any of names that do not exist yet.
func (m *Manager) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		exists, err := m.RoleExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := m.CreateRole(ctx, name); err != nil && !errors.Is(err, store.ErrDuplicateRole) {
			return err
		}
	}
	return nil
}
