package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/healthtracker/internal/models"
)

// DBTX is the subset of database/sql used by the repositories. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect adapts the shared queries, written with ? placeholders, to a driver.
type dialect struct {
	name     string
	bindvars bool // rewrite ? to $1, $2, ...
	isUnique func(error) bool
}

func (d dialect) rebind(q string) string {
	if !d.bindvars {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store over database/sql. SQLiteStore and PostgresStore
// embed it.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *sqlStore {
	return &sqlStore{db: db, d: d, now: time.Now}
}

// Timestamps are stored as unix milliseconds in UTC.
func ts(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromTS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlStore) Close() error                   { return s.db.Close() }

const userColumns = `id,email,normalized_email,password_hash,email_confirmed,created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.NormalizedEmail, &u.PasswordHash, &u.EmailConfirmed, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = fromTS(created)
	return &u, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.exec(ctx, `INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?)`,
		u.ID, u.Email, u.NormalizedEmail, u.PasswordHash, u.EmailConfirmed, ts(u.CreatedAt))
	if err != nil {
		if s.d.isUnique(err) {
			return ErrDuplicateEmail
		}
		return dbErr("create user", err)
	}
	return nil
}

func (s *sqlStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+userColumns+` FROM users WHERE `+where+` = ?`), arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbErr("get user", err)
	}
	return u, nil
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *sqlStore) GetUserByNormalizedEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "normalized_email", email)
}

func (s *sqlStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, normalized_email`)
	if err != nil {
		return nil, dbErr("list users", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, dbErr("list users", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqlStore) CreateRole(ctx context.Context, r *models.Role) error {
	_, err := s.exec(ctx, `INSERT INTO roles(id,name,normalized_name) VALUES(?,?,?)`, r.ID, r.Name, r.NormalizedName)
	if err != nil {
		if s.d.isUnique(err) {
			return ErrDuplicateRole
		}
		return dbErr("create role", err)
	}
	return nil
}

func (s *sqlStore) GetRoleByNormalizedName(ctx context.Context, name string) (*models.Role, error) {
	var r models.Role
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT id,name,normalized_name FROM roles WHERE normalized_name = ?`), name).
		Scan(&r.ID, &r.Name, &r.NormalizedName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbErr("get role", err)
	}
	return &r, nil
}

func (s *sqlStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,normalized_name FROM roles ORDER BY normalized_name`)
	if err != nil {
		return nil, dbErr("list roles", err)
	}
	defer rows.Close()
	var out []*models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.NormalizedName); err != nil {
			return nil, dbErr("list roles", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddUserToRole(ctx context.Context, userID, roleID string) (bool, error) {
	res, err := s.exec(ctx, `INSERT INTO user_roles(user_id,role_id) VALUES(?,?) ON CONFLICT (user_id,role_id) DO NOTHING`, userID, roleID)
	if err != nil {
		return false, dbErr("add user to role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("add user to role", err)
	}
	return n == 1, nil
}

func (s *sqlStore) RemoveUserFromRole(ctx context.Context, userID, roleID string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
	if err != nil {
		return false, dbErr("remove user from role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("remove user from role", err)
	}
	return n == 1, nil
}

func (s *sqlStore) GetUserRoleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = ? ORDER BY r.name`), userID)
	if err != nil {
		return nil, dbErr("get user roles", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, dbErr("get user roles", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *sqlStore) addClaim(ctx context.Context, table, owner, ownerID string, c models.Claim) error {
	_, err := s.exec(ctx, `INSERT INTO `+table+`(`+owner+`,claim_type,claim_value) VALUES(?,?,?)`, ownerID, c.Type, c.Value)
	if err != nil {
		return dbErr("add claim", err)
	}
	return nil
}

func (s *sqlStore) claims(ctx context.Context, table, owner, ownerID string) ([]models.Claim, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT claim_type,claim_value FROM `+table+` WHERE `+owner+` = ? ORDER BY id`), ownerID)
	if err != nil {
		return nil, dbErr("get claims", err)
	}
	defer rows.Close()
	var out []models.Claim
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, dbErr("get claims", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddUserClaim(ctx context.Context, userID string, c models.Claim) error {
	return s.addClaim(ctx, "user_claims", "user_id", userID, c)
}

func (s *sqlStore) GetUserClaims(ctx context.Context, userID string) ([]models.Claim, error) {
	return s.claims(ctx, "user_claims", "user_id", userID)
}

func (s *sqlStore) AddRoleClaim(ctx context.Context, roleID string, c models.Claim) error {
	return s.addClaim(ctx, "role_claims", "role_id", roleID, c)
}

func (s *sqlStore) GetRoleClaims(ctx context.Context, roleID string) ([]models.Claim, error) {
	return s.claims(ctx, "role_claims", "role_id", roleID)
}

func (s *sqlStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr("begin", err)
	}
	return &sqlUnit{tx: tx, q: queryer{db: tx, d: s.d}, now: s.now}, nil
}

// queryer binds a DBTX to a dialect.
type queryer struct {
	db DBTX
	d  dialect
}

func (q queryer) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q queryer) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q queryer) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.d.rebind(query), args...)
}

// updated runs an UPDATE and reports whether exactly one row changed.
func (q queryer) updated(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return false, dbErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr(op, err)
	}
	return n == 1, nil
}

type sqlUnit struct {
	tx   *sql.Tx
	q    queryer
	now  func() time.Time
	done bool
}

func (u *sqlUnit) RefreshTokens() RefreshTokenRepository { return sqlRefreshTokens{u.q, u.now} }
func (u *sqlUnit) Profiles() ProfileRepository           { return sqlProfiles{u.q, u.now} }
func (u *sqlUnit) HealthData() HealthDataRepository      { return sqlHealthData{u.q, u.now} }

func (u *sqlUnit) Commit() error {
	if u.done {
		return errUnitClosed
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	return nil
}

func (u *sqlUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return dbErr("rollback", err)
	}
	return nil
}

type sqlRefreshTokens struct {
	q   queryer
	now func() time.Time
}

const refreshTokenColumns = `id,user_id,token,jwt_id,is_used,is_revoked,status,added_date,update_date,expiry_date`

func (r sqlRefreshTokens) Add(ctx context.Context, t *models.RefreshToken) error {
	_, err := r.q.exec(ctx, `INSERT INTO refresh_tokens(`+refreshTokenColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Token, t.JwtID, t.IsUsed, t.IsRevoked, t.Status, ts(t.AddedDate), ts(t.UpdateDate), ts(t.ExpiryDate))
	if err != nil {
		return dbErr("add refresh token", err)
	}
	return nil
}

func (r sqlRefreshTokens) GetByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	var added, updated, expiry int64
	err := r.q.queryRow(ctx, `SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token = ?`, token).
		Scan(&t.ID, &t.UserID, &t.Token, &t.JwtID, &t.IsUsed, &t.IsRevoked, &t.Status, &added, &updated, &expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbErr("get refresh token", err)
	}
	t.AddedDate, t.UpdateDate, t.ExpiryDate = fromTS(added), fromTS(updated), fromTS(expiry)
	return &t, nil
}

func (r sqlRefreshTokens) MarkUsed(ctx context.Context, token string) (bool, error) {
	return r.q.updated(ctx, "mark refresh token used",
		`UPDATE refresh_tokens SET is_used = ?, update_date = ? WHERE token = ? AND is_used = ? AND is_revoked = ?`,
		true, ts(r.now()), token, false, false)
}

func (r sqlRefreshTokens) Revoke(ctx context.Context, token string) (bool, error) {
	return r.q.updated(ctx, "revoke refresh token",
		`UPDATE refresh_tokens SET is_revoked = ?, update_date = ? WHERE token = ? AND is_used = ? AND is_revoked = ?`,
		true, ts(r.now()), token, false, false)
}

type sqlProfiles struct {
	q   queryer
	now func() time.Time
}

const profileColumns = `id,identity_id,first_name,last_name,email,phone,date_of_birth,country,address,mobile_number,sex,status,added_date,update_date`

func scanProfile(row interface{ Scan(...any) error }) (*models.Profile, error) {
	var p models.Profile
	var dob, added, updated int64
	err := row.Scan(&p.ID, &p.IdentityID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &dob,
		&p.Country, &p.Address, &p.MobileNumber, &p.Sex, &p.Status, &added, &updated)
	if err != nil {
		return nil, err
	}
	p.DateOfBirth, p.AddedDate, p.UpdateDate = fromTS(dob), fromTS(added), fromTS(updated)
	return &p, nil
}

func (r sqlProfiles) Add(ctx context.Context, p *models.Profile) error {
	_, err := r.q.exec(ctx, `INSERT INTO profiles(`+profileColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.IdentityID, p.FirstName, p.LastName, p.Email, p.Phone, ts(p.DateOfBirth),
		p.Country, p.Address, p.MobileNumber, p.Sex, p.Status, ts(p.AddedDate), ts(p.UpdateDate))
	if err != nil {
		return dbErr("add profile", err)
	}
	return nil
}

func (r sqlProfiles) All(ctx context.Context) ([]*models.Profile, error) {
	rows, err := r.q.query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE status = ? ORDER BY added_date`, models.StatusActive)
	if err != nil {
		return nil, dbErr("list profiles", err)
	}
	defer rows.Close()
	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, dbErr("list profiles", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r sqlProfiles) get(ctx context.Context, column, value string) (*models.Profile, error) {
	p, err := scanProfile(r.q.queryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE `+column+` = ? AND status = ?`, value, models.StatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbErr("get profile", err)
	}
	return p, nil
}

func (r sqlProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.get(ctx, "id", id)
}

func (r sqlProfiles) GetByIdentityID(ctx context.Context, identityID string) (*models.Profile, error) {
	return r.get(ctx, "identity_id", identityID)
}

func (r sqlProfiles) UpdateProfile(ctx context.Context, p *models.Profile) (bool, error) {
	return r.q.updated(ctx, "update profile",
		`UPDATE profiles SET address = ?, sex = ?, mobile_number = ?, country = ?, update_date = ? WHERE id = ? AND status = ?`,
		p.Address, p.Sex, p.MobileNumber, p.Country, ts(r.now()), p.ID, models.StatusActive)
}

type sqlHealthData struct {
	q   queryer
	now func() time.Time
}

const healthColumns = `id,identity_id,blood_type,height,race,weight,use_glasses,status,added_date,update_date`

func scanHealthData(row interface{ Scan(...any) error }) (*models.HealthData, error) {
	var h models.HealthData
	var added, updated int64
	err := row.Scan(&h.ID, &h.IdentityID, &h.BloodType, &h.Height, &h.Race, &h.Weight, &h.UseGlasses, &h.Status, &added, &updated)
	if err != nil {
		return nil, err
	}
	h.AddedDate, h.UpdateDate = fromTS(added), fromTS(updated)
	return &h, nil
}

func (r sqlHealthData) Add(ctx context.Context, h *models.HealthData) error {
	_, err := r.q.exec(ctx, `INSERT INTO health_data(`+healthColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.IdentityID, h.BloodType, h.Height, h.Race, h.Weight, h.UseGlasses, h.Status, ts(h.AddedDate), ts(h.UpdateDate))
	if err != nil {
		return dbErr("add health data", err)
	}
	return nil
}

func (r sqlHealthData) AllForIdentity(ctx context.Context, identityID string) ([]*models.HealthData, error) {
	rows, err := r.q.query(ctx, `SELECT `+healthColumns+` FROM health_data WHERE identity_id = ? AND status = ? ORDER BY added_date`,
		identityID, models.StatusActive)
	if err != nil {
		return nil, dbErr("list health data", err)
	}
	defer rows.Close()
	var out []*models.HealthData
	for rows.Next() {
		h, err := scanHealthData(rows)
		if err != nil {
			return nil, dbErr("list health data", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r sqlHealthData) GetByID(ctx context.Context, id string) (*models.HealthData, error) {
	h, err := scanHealthData(r.q.queryRow(ctx,
		`SELECT `+healthColumns+` FROM health_data WHERE id = ? AND status = ?`, id, models.StatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbErr("get health data", err)
	}
	return h, nil
}

func (r sqlHealthData) Update(ctx context.Context, h *models.HealthData) (bool, error) {
	return r.q.updated(ctx, "update health data",
		`UPDATE health_data SET blood_type = ?, height = ?, race = ?, weight = ?, use_glasses = ?, update_date = ? WHERE id = ? AND status = ?`,
		h.BloodType, h.Height, h.Race, h.Weight, h.UseGlasses, ts(r.now()), h.ID, models.StatusActive)
}
