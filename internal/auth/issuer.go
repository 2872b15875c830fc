// Package auth issues and verifies access tokens and their paired refresh
// tokens, and orchestrates registration, login, refresh and logout.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/models"
	"github.com/example/healthtracker/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config is the token configuration shared by the issuer, the verifier and
// the access validator.
type Config struct {
	Secret              string
	AccessTokenLifetime time.Duration
	// DefaultRole is assigned to every newly registered user.
	DefaultRole string
}

func (c Config) key() []byte { return []byte(c.Secret) }

// Identity is what the auth core needs from the identity provider.
type Identity interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User, password string) error
	CheckPassword(ctx context.Context, u *models.User, password string) (bool, error)
	GetRoles(ctx context.Context, u *models.User) ([]string, error)
	GetClaims(ctx context.Context, u *models.User) ([]models.Claim, error)
	AddToRole(ctx context.Context, u *models.User, role string) error
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	GetRoleClaims(ctx context.Context, r *models.Role) ([]models.Claim, error)
}

// Units opens units of work against the persistence store.
type Units interface {
	Begin(ctx context.Context) (store.UnitOfWork, error)
}

// Refresh tokens live a fixed six months; only the access-token lifetime is
// configurable.
const refreshTokenMonths = 6

const refreshTokenRandomLen = 25

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TokenPair is a freshly signed access token and the refresh token persisted
// alongside it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	JTI          string
	ExpiresAt    time.Time
}

type Issuer struct {
	cfg   Config
	ids   Identity
	units Units
	log   logging.Logger
	now   func() time.Time
}

func NewIssuer(cfg Config, ids Identity, units Units, log logging.Logger) *Issuer {
	return &Issuer{cfg: cfg, ids: ids, units: units, log: log, now: time.Now}
}

// IssueTokens signs a new access token for u and stores its refresh token.
// The refresh token is committed before IssueTokens returns.
func (i *Issuer) IssueTokens(ctx context.Context, u *models.User) (*TokenPair, error) {
	now := i.now().UTC()
	jti := uuid.NewString()

	claims, err := i.claimsFor(ctx, u, jti)
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(i.cfg.AccessTokenLifetime)
	claims["exp"] = expiresAt.Unix()
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.key())
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	random, err := randomString(refreshTokenRandomLen)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &models.RefreshToken{
		Entity:     models.NewEntity(uuid.NewString(), now),
		UserID:     u.ID,
		Token:      random + "_" + uuid.NewString(),
		JwtID:      jti,
		ExpiryDate: now.AddDate(0, refreshTokenMonths, 0),
	}
	if err := i.persist(ctx, rt); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: signed, RefreshToken: rt.Token, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (i *Issuer) claimsFor(ctx context.Context, u *models.User, jti string) (jwt.MapClaims, error) {
	set := newClaimSet()
	set.add(ClaimID, u.ID)
	set.add(ClaimNameID, u.ID)
	set.add(ClaimSubject, u.Email)
	set.add(ClaimEmail, u.Email)
	set.add(ClaimJTI, jti)

	assigned, err := i.ids.GetClaims(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("user claims: %w", err)
	}
	for _, c := range assigned {
		set.addAssigned(c)
	}

	roles, err := i.ids.GetRoles(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("user roles: %w", err)
	}
	for _, name := range roles {
		set.add(ClaimRole, name)
		r, err := i.ids.FindRoleByName(ctx, name)
		if err != nil || r == nil {
			i.log.Debug(ctx, "skipping claims of unresolved role", "role", name, "error", err)
			continue
		}
		rc, err := i.ids.GetRoleClaims(ctx, r)
		if err != nil {
			i.log.Debug(ctx, "skipping role claims", "role", name, "error", err)
			continue
		}
		for _, c := range rc {
			set.addAssigned(c)
		}
	}
	return set.mapClaims(), nil
}

func (i *Issuer) persist(ctx context.Context, rt *models.RefreshToken) error {
	unit, err := i.units.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}
	defer unit.Rollback()

	if err := unit.RefreshTokens().Add(ctx, rt); err != nil {
		return fmt.Errorf("add refresh token: %w", err)
	}
	if err := unit.Commit(); err != nil {
		return fmt.Errorf("commit refresh token: %w", err)
	}
	return nil
}

func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		k, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[k.Int64()]
	}
	return string(b), nil
}
