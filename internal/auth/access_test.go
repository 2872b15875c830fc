package auth

import (
	"context"
	"testing"
	"time"

	"github.com/example/healthtracker/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Principal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "ada@example.com")
	u, err := f.ids.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, f.ids.AddClaim(ctx, u, models.Claim{Type: "Department", Value: "ER"}))
	a = f.svc.Login(ctx, "ada@example.com", testPassword)
	require.True(t, a.Success)

	p, err := f.svc.Validator().Validate(ctx, a.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, []string{"Admin"}, p.Roles)
	assert.True(t, p.HasRole("Admin"))
	assert.False(t, p.HasRole("Doctor"))
	assert.Equal(t, []string{"ER"}, p.ClaimValues("Department"))
	assert.Empty(t, p.ClaimValues("Missing"))
	assert.True(t, p.ExpiresAt.Equal(f.now.Add(time.Minute)), "expires %v", p.ExpiresAt)
	assert.Equal(t, parseClaims(t, a.Token)[ClaimJTI], p.JTI)
}

func TestValidate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "ada@example.com")
	claims := parseClaims(t, a.Token)

	sign := func(m jwt.SigningMethod, key any, c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(m, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	noJTI := jwt.MapClaims{}
	for k, v := range claims {
		noJTI[k] = v
	}
	delete(noJTI, ClaimJTI)
	noExp := jwt.MapClaims{}
	for k, v := range claims {
		noExp[k] = v
	}
	delete(noExp, "exp")

	for name, token := range map[string]string{
		"garbage":   "garbage",
		"HS384":     sign(jwt.SigningMethodHS384, []byte(testSecret), claims),
		"wrong key": sign(jwt.SigningMethodHS256, []byte("nope"), claims),
		"no jti":    sign(jwt.SigningMethodHS256, []byte(testSecret), noJTI),
		"no exp":    sign(jwt.SigningMethodHS256, []byte(testSecret), noExp),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Validator().Validate(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	f.advance(2 * time.Minute)
	_, err := f.svc.Validator().Validate(ctx, a.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Denylisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "ada@example.com")

	jti, _ := parseClaims(t, a.Token)[ClaimJTI].(string)
	require.NoError(t, f.deny.Revoke(ctx, jti, f.now.Add(time.Minute)))

	_, err := f.svc.Validator().Validate(ctx, a.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestValidate_NoDenylist(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com")

	v := NewAccessValidator(f.cfg, nil)
	v.now = func() time.Time { return f.now }
	_, err := v.Validate(context.Background(), a.Token)
	require.NoError(t, err)
}
