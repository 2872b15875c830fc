package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/healthtracker/internal/identity"
	"github.com/example/healthtracker/internal/logging"
	"github.com/example/healthtracker/internal/models"
	"github.com/google/uuid"
)

// RegisterInput is what a new account is created from.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service orchestrates registration, login, refresh and logout.
type Service struct {
	cfg       Config
	ids       Identity
	units     Units
	deny      Denylist
	log       logging.Logger
	now       func() time.Time
	issuer    *Issuer
	verifier  *Verifier
	validator *AccessValidator
}

func NewService(cfg Config, ids Identity, units Units, deny Denylist, log logging.Logger) *Service {
	issuer := NewIssuer(cfg, ids, units, log)
	return &Service{
		cfg:       cfg,
		ids:       ids,
		units:     units,
		deny:      deny,
		log:       log,
		now:       time.Now,
		issuer:    issuer,
		verifier:  NewVerifier(cfg, ids, units, issuer, log),
		validator: NewAccessValidator(cfg, deny),
	}
}

// SetClock replaces the time source of the service and everything it owns.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.issuer.now = now
	s.verifier.now = now
	s.validator.now = now
}

func (s *Service) Validator() *AccessValidator { return s.validator }

func (s *Service) Register(ctx context.Context, in RegisterInput) *Result {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return failed(FailureInvalidPayload, nil)
	}

	existing, err := s.ids.FindByEmail(ctx, in.Email)
	if err != nil {
		s.log.Error(ctx, "register: email lookup failed", "error", err)
		return failed(FailureProcessing, err)
	}
	if existing != nil {
		return failed(FailureEmailInUse, nil)
	}

	u := &models.User{Email: in.Email, EmailConfirmed: true}
	if err := s.ids.CreateUser(ctx, u, in.Password); err != nil {
		var idErr *identity.Error
		if errors.As(err, &idErr) {
			return failed(FailureIdentity, err, idErr.Descriptions...)
		}
		s.log.Error(ctx, "register: create user failed", "error", err)
		return failed(FailureProcessing, err)
	}

	if s.cfg.DefaultRole != "" {
		if err := s.ids.AddToRole(ctx, u, s.cfg.DefaultRole); err != nil {
			s.log.Warn(ctx, "register: default role not assigned", "role", s.cfg.DefaultRole, "user_id", u.ID, "error", err)
		}
	}

	if err := s.createProfile(ctx, u, in); err != nil {
		s.log.Error(ctx, "register: create profile failed", "error", err, "user_id", u.ID)
		return failed(FailureProcessing, err)
	}

	return s.issue(ctx, u)
}

// createProfile adds u's profile unless one already exists.
func (s *Service) createProfile(ctx context.Context, u *models.User, in RegisterInput) error {
	now := s.now().UTC()
	unit, err := s.units.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}
	defer unit.Rollback()

	existing, err := unit.Profiles().GetByIdentityID(ctx, u.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	p := &models.Profile{
		Entity:      models.NewEntity(uuid.NewString(), now),
		IdentityID:  u.ID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       u.Email,
		DateOfBirth: now,
	}
	if err := unit.Profiles().Add(ctx, p); err != nil {
		return err
	}
	return unit.Commit()
}

// Login answers unknown emails and wrong passwords identically.
func (s *Service) Login(ctx context.Context, email, password string) *Result {
	if strings.TrimSpace(email) == "" || password == "" {
		return failed(FailureInvalidPayload, nil)
	}

	u, err := s.ids.FindByEmail(ctx, email)
	if err != nil {
		s.log.Error(ctx, "login: email lookup failed", "error", err)
		return failed(FailureProcessing, err)
	}
	if u == nil {
		return failed(FailureInvalidCredentials, nil)
	}
	ok, err := s.ids.CheckPassword(ctx, u, password)
	if err != nil {
		s.log.Error(ctx, "login: password check failed", "error", err)
		return failed(FailureProcessing, err)
	}
	if !ok {
		return failed(FailureInvalidCredentials, nil)
	}
	// A registration that failed after the identity was written leaves no
	// profile behind; the first login puts it back.
	if err := s.createProfile(ctx, u, RegisterInput{}); err != nil {
		s.log.Error(ctx, "login: restoring profile failed", "error", err, "user_id", u.ID)
		return failed(FailureProcessing, err)
	}
	return s.issue(ctx, u)
}

func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) *Result {
	if accessToken == "" || refreshToken == "" {
		return failed(FailureInvalidPayload, nil)
	}
	return s.verifier.Verify(ctx, accessToken, refreshToken)
}

// Logout revokes refreshToken, which must belong to p, and denylists p's
// access token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, p *Principal, refreshToken string) error {
	if err := s.revokeRefreshToken(ctx, p, refreshToken); err != nil {
		return err
	}
	if s.deny == nil {
		return nil
	}
	if err := s.deny.Revoke(ctx, p.JTI, p.ExpiresAt); err != nil {
		return fmt.Errorf("denylist access token: %w", err)
	}
	return nil
}

func (s *Service) revokeRefreshToken(ctx context.Context, p *Principal, token string) error {
	if token == "" {
		return ErrInvalidRefreshToken
	}
	unit, err := s.units.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}
	defer unit.Rollback()

	rt, err := unit.RefreshTokens().GetByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt == nil || rt.UserID != p.UserID {
		return ErrInvalidRefreshToken
	}
	ok, err := unit.RefreshTokens().Revoke(ctx, token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return ErrInvalidRefreshToken
	}
	return unit.Commit()
}

func (s *Service) issue(ctx context.Context, u *models.User) *Result {
	pair, err := s.issuer.IssueTokens(ctx, u)
	if err != nil {
		s.log.Error(ctx, "issuing tokens failed", "error", err, "user_id", u.ID)
		return failed(FailureProcessing, err)
	}
	return succeeded(pair)
}
