package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/healthtracker/internal/identity"
	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/models"
	"github.com/example/healthtracker/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "a-test-secret-that-is-long-enough"
	testPassword = "Passw0rd!"
)

type mapDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (d *mapDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revoked == nil {
		d.revoked = map[string]time.Time{}
	}
	d.revoked[jti] = until
	return nil
}

func (d *mapDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[jti]
	return ok, nil
}

type fixture struct {
	svc   *Service
	ids   *identity.Manager
	store *store.MemoryStore
	deny  *mapDenylist
	cfg   Config
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemoryStore(),
		deny:  &mapDenylist{},
		cfg:   Config{Secret: testSecret, AccessTokenLifetime: time.Minute, DefaultRole: "Admin"},
		now:   time.Now().UTC().Truncate(time.Second),
	}
	f.ids = identity.NewManager(f.store, identity.NewHasher(4))
	require.NoError(t, f.ids.EnsureRoles(context.Background(), "Admin"))
	f.svc = NewService(f.cfg, f.ids, f.store, f.deny, logging.Nop{})
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) register(t *testing.T, email string) *Result {
	t.Helper()
	res := f.svc.Register(context.Background(), RegisterInput{
		Email: email, Password: testPassword, FirstName: "Ada", LastName: "Lovelace",
	})
	require.True(t, res.Success, "register: %v", res.Errors)
	return res
}

func parseClaims(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	return claims
}

func TestRegister_IssuesTokensForEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.register(t, "ada@example.com")
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Empty(t, res.Errors)

	claims := parseClaims(t, res.Token)
	assert.Equal(t, "ada@example.com", claims[ClaimSubject])
	assert.Equal(t, "ada@example.com", claims[ClaimEmail])
	assert.Equal(t, "Admin", claims[ClaimRole])

	u, err := f.ids.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.EmailConfirmed)
	assert.Equal(t, u.ID, claims[ClaimNameID])

	unit, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer unit.Rollback()
	p, err := unit.Profiles().GetByIdentityID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Equal(t, "", p.Phone)
	assert.Equal(t, "", p.Country)
	assert.Equal(t, "", p.Address)
	assert.Equal(t, "", p.MobileNumber)
	assert.Equal(t, "", p.Sex)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	res := f.svc.Register(ctx, RegisterInput{Email: "ADA@example.com", Password: testPassword})
	assert.False(t, res.Success)
	assert.Equal(t, FailureEmailInUse, res.Failure)
	assert.Equal(t, []string{MsgEmailInUse}, res.Errors)
	assert.Empty(t, res.Token)

	users, err := f.ids.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	unit, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer unit.Rollback()
	profiles, err := unit.Profiles().All(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestRegister_IdentityDescriptions(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Register(context.Background(), RegisterInput{Email: "weak@example.com", Password: "password"})
	assert.False(t, res.Success)
	assert.Equal(t, FailureIdentity, res.Failure)
	assert.Equal(t, []string{
		"Passwords must have at least one non alphanumeric character.",
		"Passwords must have at least one digit ('0'-'9').",
		"Passwords must have at least one uppercase ('A'-'Z').",
	}, res.Errors)
}

func TestRegister_MissingDefaultRoleStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.cfg.DefaultRole = "Nurse"
	svc := NewService(f.cfg, f.ids, f.store, f.deny, logging.Nop{})

	res := svc.Register(context.Background(), RegisterInput{Email: "n@example.com", Password: testPassword})
	require.True(t, res.Success)
	_, hasRole := parseClaims(t, res.Token)[ClaimRole]
	assert.False(t, hasRole)
}

func TestRegister_InvalidPayload(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Register(context.Background(), RegisterInput{Email: " ", Password: testPassword})
	assert.Equal(t, FailureInvalidPayload, res.Failure)
	assert.Equal(t, []string{MsgInvalidPayload}, res.Errors)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	res := f.svc.Login(ctx, "Ada@Example.com", testPassword)
	require.True(t, res.Success)
	assert.Equal(t, "ada@example.com", parseClaims(t, res.Token)[ClaimSubject])
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ada@example.com")

	unknown := f.svc.Login(ctx, "nobody@example.com", testPassword)
	wrong := f.svc.Login(ctx, "ada@example.com", "Wr0ng!pass")

	assert.False(t, unknown.Success)
	assert.False(t, wrong.Success)
	assert.Equal(t, unknown.Errors, wrong.Errors)
	assert.Equal(t, unknown.Failure, wrong.Failure)
	assert.Equal(t, []string{MsgInvalidCredentials}, wrong.Errors)
}

func TestRefresh_AfterAccessTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "ada@example.com")

	f.advance(2 * time.Minute)
	res := f.svc.Refresh(ctx, first.Token, first.RefreshToken)
	require.True(t, res.Success, "refresh: %v", res.Errors)
	assert.NotEqual(t, first.RefreshToken, res.RefreshToken)
	assert.NotEqual(t, parseClaims(t, first.Token)[ClaimJTI], parseClaims(t, res.Token)[ClaimJTI])

	again := f.svc.Refresh(ctx, first.Token, first.RefreshToken)
	assert.False(t, again.Success)
	assert.Equal(t, FailureRefreshTokenUsed, again.Failure)
	assert.Equal(t, []string{MsgRefreshTokenUsed}, again.Errors)

	f.advance(2 * time.Minute)
	next := f.svc.Refresh(ctx, res.Token, res.RefreshToken)
	assert.True(t, next.Success)
}

func TestRefresh_LiveAccessTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "ada@example.com")

	res := f.svc.Refresh(context.Background(), first.Token, first.RefreshToken)
	assert.False(t, res.Success)
	assert.Equal(t, FailureTokenNotExpired, res.Failure)
	assert.Equal(t, []string{MsgTokenNotExpired}, res.Errors)

	// The refresh token was not consumed.
	f.advance(time.Hour)
	assert.True(t, f.svc.Refresh(context.Background(), first.Token, first.RefreshToken).Success)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	b := f.svc.Login(ctx, "a@example.com", testPassword)
	require.True(t, b.Success)
	f.advance(2 * time.Minute)

	tests := []struct {
		name    string
		token   string
		refresh string
		failure Failure
		msg     string
	}{
		{"malformed access token", "not-a-jwt", a.RefreshToken, FailureTokenValidation, MsgTokenValidation},
		{"unknown refresh token", a.Token, "nope_" + a.RefreshToken, FailureRefreshTokenNotFound, MsgRefreshTokenNotFound},
		{"refresh token bound to another jti", a.Token, b.RefreshToken, FailureTokenMismatch, MsgTokenMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.svc.Refresh(ctx, tt.token, tt.refresh)
			assert.False(t, res.Success)
			assert.Equal(t, tt.failure, res.Failure)
			assert.Equal(t, []string{tt.msg}, res.Errors)
		})
	}

	// Rejections above consumed nothing.
	assert.True(t, f.svc.Refresh(ctx, a.Token, a.RefreshToken).Success)
	assert.True(t, f.svc.Refresh(ctx, b.Token, b.RefreshToken).Success)
}

func TestRefresh_ForeignSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	f.advance(2 * time.Minute)
	claims := parseClaims(t, a.Token)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{"HS512": hs512, "none": none, "other key": otherKey} {
		t.Run(name, func(t *testing.T) {
			res := f.svc.Refresh(ctx, token, a.RefreshToken)
			assert.Equal(t, FailureTokenValidation, res.Failure)
			assert.Equal(t, []string{MsgTokenValidation}, res.Errors)
		})
	}
}

func TestRefresh_MissingJTI(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a@example.com")
	f.advance(2 * time.Minute)
	claims := parseClaims(t, a.Token)
	delete(claims, ClaimJTI)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	res := f.svc.Refresh(context.Background(), token, a.RefreshToken)
	assert.Equal(t, FailureTokenValidation, res.Failure)
}

func TestRefresh_ExpiryDirectionCheckedBeforeJTI(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a@example.com")
	claims := parseClaims(t, a.Token)
	delete(claims, ClaimJTI)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	res := f.svc.Refresh(context.Background(), token, a.RefreshToken)
	assert.Equal(t, FailureTokenNotExpired, res.Failure)
	assert.Equal(t, []string{MsgTokenNotExpired}, res.Errors)
}

func TestRegister_PasswordTooLongIsAValidationFailure(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Register(context.Background(), RegisterInput{
		Email: "long@example.com", Password: "Aa1!" + strings.Repeat("x", 80),
	})
	assert.False(t, res.Success)
	assert.Equal(t, FailureIdentity, res.Failure)
	assert.Equal(t, []string{"Passwords must be at most 72 bytes."}, res.Errors)
}

func TestRefresh_RefreshTokenExpired(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a@example.com")
	f.now = f.now.AddDate(0, 6, 1)

	res := f.svc.Refresh(context.Background(), a.Token, a.RefreshToken)
	assert.Equal(t, FailureRefreshTokenExpired, res.Failure)
	assert.Equal(t, []string{MsgRefreshTokenExpired}, res.Errors)
}

func TestRefresh_RevokedByLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")

	p, err := f.svc.Validator().Validate(ctx, a.Token)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, p, a.RefreshToken))

	f.advance(2 * time.Minute)
	res := f.svc.Refresh(ctx, a.Token, a.RefreshToken)
	assert.Equal(t, FailureRefreshTokenRevoked, res.Failure)
	assert.Equal(t, []string{MsgRefreshTokenRevoked}, res.Errors)
}

func TestRefresh_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a@example.com")
	f.advance(2 * time.Minute)

	const n = 16
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.Refresh(context.Background(), a.Token, a.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r.Success {
			wins++
			continue
		}
		assert.Equal(t, FailureRefreshTokenUsed, r.Failure)
	}
	assert.Equal(t, 1, wins)
}

func TestRefresh_InvalidPayload(t *testing.T) {
	f := newFixture(t)
	res := f.svc.Refresh(context.Background(), "", "x")
	assert.Equal(t, FailureInvalidPayload, res.Failure)
}

func TestLogout_RequiresOwnRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	b := f.register(t, "b@example.com")

	pa, err := f.svc.Validator().Validate(ctx, a.Token)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Logout(ctx, pa, b.RefreshToken), ErrInvalidRefreshToken)
	assert.ErrorIs(t, f.svc.Logout(ctx, pa, ""), ErrInvalidRefreshToken)

	// Nothing was denylisted by the failed attempts.
	_, err = f.svc.Validator().Validate(ctx, a.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pa, a.RefreshToken))
	_, err = f.svc.Validator().Validate(ctx, a.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, f.svc.Logout(ctx, pa, a.RefreshToken), ErrInvalidRefreshToken)
}

// profileOutage fails profile inserts while down is set.
type profileOutage struct {
	store.Store
	down *atomic.Bool
}

func (o profileOutage) Begin(ctx context.Context) (store.UnitOfWork, error) {
	u, err := o.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return profileOutageUnit{UnitOfWork: u, down: o.down}, nil
}

type profileOutageUnit struct {
	store.UnitOfWork
	down *atomic.Bool
}

func (u profileOutageUnit) Profiles() store.ProfileRepository {
	return profileOutageRepo{ProfileRepository: u.UnitOfWork.Profiles(), down: u.down}
}

type profileOutageRepo struct {
	store.ProfileRepository
	down *atomic.Bool
}

func (r profileOutageRepo) Add(ctx context.Context, p *models.Profile) error {
	if r.down.Load() {
		return errors.New("profiles table unavailable")
	}
	return r.ProfileRepository.Add(ctx, p)
}

func TestLogin_RestoresProfileLostDuringRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	down := &atomic.Bool{}
	down.Store(true)
	svc := NewService(f.cfg, f.ids, profileOutage{Store: f.store, down: down}, f.deny, logging.Nop{})

	res := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: testPassword})
	require.False(t, res.Success)
	assert.Equal(t, FailureProcessing, res.Failure)

	down.Store(false)
	again := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: testPassword})
	assert.Equal(t, FailureEmailInUse, again.Failure)

	login := svc.Login(ctx, "a@example.com", testPassword)
	require.True(t, login.Success, "login: %v", login.Errors)

	u, err := f.ids.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	unit, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer unit.Rollback()
	p, err := unit.Profiles().GetByIdentityID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "a@example.com", p.Email)
	assert.Equal(t, models.StatusActive, p.Status)
}
