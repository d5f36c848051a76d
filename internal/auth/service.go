package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *SessionManager
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *SessionManager) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// Authenticate validates email/password credentials. Any failure mode maps to
// the same error so callers cannot probe which accounts exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a session token bound to the user's company.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.sessions.Create(ctx, SessionData{UserID: user.ID, CompanyID: user.CompanyID})
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout revokes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve maps a session token to the acting tenant.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Tenant, error) {
	data, err := s.sessions.Get(ctx, token)
	if err != nil {
		return shared.Tenant{}, err
	}
	return shared.Tenant{CompanyID: data.CompanyID, UserID: data.UserID}, nil
}
