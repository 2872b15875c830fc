package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier exchanges an expired access token and its paired refresh token
// for a new pair. Every refusal is a Result; nothing panics or escapes as an
// error.
type Verifier struct {
	cfg    Config
	ids    Identity
	units  Units
	issuer *Issuer
	log    logging.Logger
	now    func() time.Time
	parser *jwt.Parser
}

func NewVerifier(cfg Config, ids Identity, units Units, issuer *Issuer, log logging.Logger) *Verifier {
	return &Verifier{
		cfg:    cfg,
		ids:    ids,
		units:  units,
		issuer: issuer,
		log:    log,
		now:    time.Now,
		// Lifetime is checked by hand below: refresh wants the opposite of
		// the library's exp rule.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

func (v *Verifier) keyFunc(*jwt.Token) (any, error) { return v.cfg.key(), nil }

// Verify runs the refresh gate in order: signature, expiry direction, refresh
// token existence, its expiry, used, revoked, jti binding, redemption and
// reissue. The first gate that fails decides the result.
func (v *Verifier) Verify(ctx context.Context, accessToken, refreshToken string) *Result {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(accessToken, claims, v.keyFunc); err != nil {
		v.log.Debug(ctx, "refresh: access token rejected", "error", err)
		return failed(FailureTokenValidation, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return failed(FailureTokenValidation, err)
	}
	now := v.now().UTC()
	if exp.Time.After(now) {
		return failed(FailureTokenNotExpired, nil)
	}
	jti, _ := claims[ClaimJTI].(string)
	if jti == "" {
		return failed(FailureTokenValidation, nil)
	}

	stored, err := v.lookup(ctx, refreshToken)
	if err != nil {
		v.log.Error(ctx, "refresh: token lookup failed", "error", err)
		return failed(FailureTokenValidation, err)
	}
	switch {
	case stored == nil:
		return failed(FailureRefreshTokenNotFound, nil)
	case now.After(stored.ExpiryDate):
		return failed(FailureRefreshTokenExpired, nil)
	case stored.IsUsed:
		return failed(FailureRefreshTokenUsed, nil)
	case stored.IsRevoked:
		return failed(FailureRefreshTokenRevoked, nil)
	case stored.JwtID != jti:
		return failed(FailureTokenMismatch, nil)
	}

	redeemed, err := v.redeem(ctx, refreshToken)
	if err != nil {
		v.log.Error(ctx, "refresh: redemption failed", "error", err, "refresh_token_id", stored.ID)
		return failed(FailureProcessing, err)
	}
	if !redeemed {
		return failed(FailureRefreshTokenUsed, nil)
	}

	u, err := v.ids.FindByID(ctx, stored.UserID)
	if err != nil {
		v.log.Error(ctx, "refresh: user lookup failed", "error", err, "user_id", stored.UserID)
		return failed(FailureProcessing, err)
	}
	if u == nil {
		v.log.Warn(ctx, "refresh: token owner no longer exists", "user_id", stored.UserID)
		return failed(FailureProcessing, nil)
	}

	pair, err := v.issuer.IssueTokens(ctx, u)
	if err != nil {
		v.log.Error(ctx, "refresh: issuing tokens failed", "error", err, "user_id", u.ID)
		return failed(FailureProcessing, err)
	}
	return succeeded(pair)
}

func (v *Verifier) lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	unit, err := v.units.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	defer unit.Rollback()
	return unit.RefreshTokens().GetByToken(ctx, token)
}

// redeem marks token used in its own unit. false means another redemption
// got there first.
func (v *Verifier) redeem(ctx context.Context, token string) (bool, error) {
	unit, err := v.units.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin unit: %w", err)
	}
	defer unit.Rollback()

	ok, err := unit.RefreshTokens().MarkUsed(ctx, token)
	if err != nil || !ok {
		return false, err
	}
	if err := unit.Commit(); err != nil {
		return false, fmt.Errorf("commit redemption: %w", err)
	}
	return true, nil
}
