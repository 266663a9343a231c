package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/labgig/labgig-crm/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials and confirms the user
// belongs to the requested company. Lookup failures and bad passwords are
// deliberately indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string, companyID int64) (*User, error) {
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
	memberships, err := s.repo.Memberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.CompanyID == companyID {
			return user, nil
		}
	}
	return nil, shared.ErrTenantRequired
}

// Memberships lists the companies a user may sign into.
func (s *Service) Memberships(ctx context.Context, userID int64) ([]Membership, error) {
	return s.repo.Memberships(ctx, userID)
}

// RegisterSession persists the session metadata.
func (s *Service) RegisterSession(ctx context.Context, id string, userID, companyID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, companyID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
