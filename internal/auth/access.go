package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/healthtracker/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("auth: invalid access token")
	ErrTokenRevoked        = errors.New("auth: access token revoked")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
)

// Denylist records access-token ids that must be refused before they expire.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Principal is the caller identified by a valid access token.
type Principal struct {
	UserID    string
	Email     string
	JTI       string
	Roles     []string
	Claims    []models.Claim
	ExpiresAt time.Time
}

func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClaimValues returns the values of every claim of type typ.
func (p *Principal) ClaimValues(typ string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

// AccessValidator authenticates requests: the token must be HS256 signed with
// the configured secret, inside its lifetime, and not denylisted.
type AccessValidator struct {
	cfg    Config
	deny   Denylist
	now    func() time.Time
	parser *jwt.Parser
}

func NewAccessValidator(cfg Config, deny Denylist) *AccessValidator {
	a := &AccessValidator{cfg: cfg, deny: deny, now: time.Now}
	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	)
	return a
}

func (a *AccessValidator) Validate(ctx context.Context, token string) (*Principal, error) {
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.cfg.key(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	jti, _ := claims[ClaimJTI].(string)
	if jti == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}

	if a.deny != nil {
		revoked, err := a.deny.IsRevoked(ctx, jti)
		if err != nil {
			return nil, fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	p := &Principal{
		JTI:       jti,
		Roles:     ClaimValues(claims, ClaimRole),
		Claims:    flatten(claims),
		ExpiresAt: exp.Time,
	}
	p.UserID, _ = claims[ClaimNameID].(string)
	p.Email, _ = claims[ClaimEmail].(string)
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject id", ErrInvalidToken)
	}
	return p, nil
}
