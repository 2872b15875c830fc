package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/healthtracker/internal/models"
)

var errUnitClosed = errors.New("store: unit of work already finished")

// MemoryStore keeps everything in maps. Units of work are serialised: Begin
// blocks until the previous unit commits or rolls back, so a goroutine must
// not open a second unit while holding one.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	usersByMail map[string]string
	roles       map[string]*models.Role
	rolesByName map[string]string
	userRoles   map[string]map[string]struct{}
	userClaims  map[string][]models.Claim
	roleClaims  map[string][]models.Claim

	unitMu   sync.Mutex
	tokens   map[string]*models.RefreshToken
	profiles map[string]*models.Profile
	health   map[string]*models.HealthData

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       map[string]*models.User{},
		usersByMail: map[string]string{},
		roles:       map[string]*models.Role{},
		rolesByName: map[string]string{},
		userRoles:   map[string]map[string]struct{}{},
		userClaims:  map[string][]models.Claim{},
		roleClaims:  map[string][]models.Claim{},
		tokens:      map[string]*models.RefreshToken{},
		profiles:    map[string]*models.Profile{},
		health:      map[string]*models.HealthData{},
		now:         time.Now,
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryStore) Close() error                   { return nil }

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByMail[u.NormalizedEmail]; ok {
		return ErrDuplicateEmail
	}
	cp := *u
	m.users[u.ID] = &cp
	m.usersByMail[u.NormalizedEmail] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetUserByNormalizedEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.usersByMail[email]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].NormalizedEmail < out[j].NormalizedEmail
	})
	return out, nil
}

func (m *MemoryStore) CreateRole(_ context.Context, r *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rolesByName[r.NormalizedName]; ok {
		return ErrDuplicateRole
	}
	cp := *r
	m.roles[r.ID] = &cp
	m.rolesByName[r.NormalizedName] = r.ID
	return nil
}

func (m *MemoryStore) GetRoleByNormalizedName(_ context.Context, name string) (*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.rolesByName[name]; ok {
		cp := *m.roles[id]
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListRoles(_ context.Context) ([]*models.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (m *MemoryStore) AddUserToRole(_ context.Context, userID, roleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.userRoles[userID]
	if !ok {
		set = map[string]struct{}{}
		m.userRoles[userID] = set
	}
	if _, exists := set[roleID]; exists {
		return false, nil
	}
	set[roleID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) RemoveUserFromRole(_ context.Context, userID, roleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.userRoles[userID]
	if _, exists := set[roleID]; !exists {
		return false, nil
	}
	delete(set, roleID)
	return true, nil
}

func (m *MemoryStore) GetUserRoleNames(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for roleID := range m.userRoles[userID] {
		if r, ok := m.roles[roleID]; ok {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) AddUserClaim(_ context.Context, userID string, c models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userClaims[userID] = append(m.userClaims[userID], c)
	return nil
}

func (m *MemoryStore) GetUserClaims(_ context.Context, userID string) ([]models.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Claim(nil), m.userClaims[userID]...), nil
}

func (m *MemoryStore) AddRoleClaim(_ context.Context, roleID string, c models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleClaims[roleID] = append(m.roleClaims[roleID], c)
	return nil
}

func (m *MemoryStore) GetRoleClaims(_ context.Context, roleID string) ([]models.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Claim(nil), m.roleClaims[roleID]...), nil
}

func (m *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.unitMu.Lock()
	return &memUnit{s: m}, nil
}

// memUnit applies writes in place and records how to undo each one.
type memUnit struct {
	s    *MemoryStore
	undo []func()
	done bool
}

func (u *memUnit) RefreshTokens() RefreshTokenRepository { return memRefreshTokens{u} }
func (u *memUnit) Profiles() ProfileRepository           { return memProfiles{u} }
func (u *memUnit) HealthData() HealthDataRepository      { return memHealthData{u} }

func (u *memUnit) Commit() error {
	if u.done {
		return errUnitClosed
	}
	u.done = true
	u.undo = nil
	u.s.unitMu.Unlock()
	return nil
}

func (u *memUnit) Rollback() error {
	if u.done {
		return nil
	}
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.done = true
	u.undo = nil
	u.s.unitMu.Unlock()
	return nil
}

func (u *memUnit) check() error {
	if u.done {
		return errUnitClosed
	}
	return nil
}

type memRefreshTokens struct{ u *memUnit }

func (r memRefreshTokens) Add(_ context.Context, t *models.RefreshToken) error {
	if err := r.u.check(); err != nil {
		return err
	}
	tokens := r.u.s.tokens
	if _, ok := tokens[t.Token]; ok {
		return errors.New("store: refresh token already exists")
	}
	cp := *t
	tokens[t.Token] = &cp
	r.u.undo = append(r.u.undo, func() { delete(tokens, t.Token) })
	return nil
}

func (r memRefreshTokens) GetByToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	if t, ok := r.u.s.tokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r memRefreshTokens) flip(token string, set func(*models.RefreshToken)) (bool, error) {
	if err := r.u.check(); err != nil {
		return false, err
	}
	t, ok := r.u.s.tokens[token]
	if !ok || t.IsUsed || t.IsRevoked {
		return false, nil
	}
	prev := *t
	set(t)
	t.UpdateDate = r.u.s.now().UTC()
	r.u.undo = append(r.u.undo, func() { *t = prev })
	return true, nil
}

func (r memRefreshTokens) MarkUsed(_ context.Context, token string) (bool, error) {
	return r.flip(token, func(t *models.RefreshToken) { t.IsUsed = true })
}

func (r memRefreshTokens) Revoke(_ context.Context, token string) (bool, error) {
	return r.flip(token, func(t *models.RefreshToken) { t.IsRevoked = true })
}

type memProfiles struct{ u *memUnit }

func (r memProfiles) Add(_ context.Context, p *models.Profile) error {
	if err := r.u.check(); err != nil {
		return err
	}
	profiles := r.u.s.profiles
	cp := *p
	profiles[p.ID] = &cp
	r.u.undo = append(r.u.undo, func() { delete(profiles, p.ID) })
	return nil
}

func (r memProfiles) All(_ context.Context) ([]*models.Profile, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	var out []*models.Profile
	for _, p := range r.u.s.profiles {
		if p.Status == models.StatusActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedDate.Before(out[j].AddedDate) })
	return out, nil
}

func (r memProfiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	if p, ok := r.u.s.profiles[id]; ok && p.Status == models.StatusActive {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r memProfiles) GetByIdentityID(_ context.Context, identityID string) (*models.Profile, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	for _, p := range r.u.s.profiles {
		if p.IdentityID == identityID && p.Status == models.StatusActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memProfiles) UpdateProfile(_ context.Context, p *models.Profile) (bool, error) {
	if err := r.u.check(); err != nil {
		return false, err
	}
	cur, ok := r.u.s.profiles[p.ID]
	if !ok || cur.Status != models.StatusActive {
		return false, nil
	}
	prev := *cur
	cur.Address = p.Address
	cur.Sex = p.Sex
	cur.MobileNumber = p.MobileNumber
	cur.Country = p.Country
	cur.UpdateDate = r.u.s.now().UTC()
	r.u.undo = append(r.u.undo, func() { *cur = prev })
	return true, nil
}

type memHealthData struct{ u *memUnit }

func (r memHealthData) Add(_ context.Context, h *models.HealthData) error {
	if err := r.u.check(); err != nil {
		return err
	}
	health := r.u.s.health
	cp := *h
	health[h.ID] = &cp
	r.u.undo = append(r.u.undo, func() { delete(health, h.ID) })
	return nil
}

func (r memHealthData) AllForIdentity(_ context.Context, identityID string) ([]*models.HealthData, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	var out []*models.HealthData
	for _, h := range r.u.s.health {
		if h.IdentityID == identityID && h.Status == models.StatusActive {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedDate.Before(out[j].AddedDate) })
	return out, nil
}

func (r memHealthData) GetByID(_ context.Context, id string) (*models.HealthData, error) {
	if err := r.u.check(); err != nil {
		return nil, err
	}
	if h, ok := r.u.s.health[id]; ok && h.Status == models.StatusActive {
		cp := *h
		return &cp, nil
	}
	return nil, nil
}

func (r memHealthData) Update(_ context.Context, h *models.HealthData) (bool, error) {
	if err := r.u.check(); err != nil {
		return false, err
	}
	cur, ok := r.u.s.health[h.ID]
	if !ok || cur.Status != models.StatusActive {
		return false, nil
	}
	prev := *cur
	cur.BloodType = h.BloodType
	cur.Height = h.Height
	cur.Race = h.Race
	cur.Weight = h.Weight
	cur.UseGlasses = h.UseGlasses
	cur.UpdateDate = r.u.s.now().UTC()
	r.u.undo = append(r.u.undo, func() { *cur = prev })
	return true, nil
}
