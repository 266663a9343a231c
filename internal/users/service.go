package users

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/labgig/labgig-crm/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, companyID int64) ([]User, error)
	GetUser(ctx context.Context, companyID, id int64) (User, error)
	CreateUser(ctx context.Context, companyID int64, email, name, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, companyID, id int64, name string, isActive bool) (User, error)
}

// Service handles user management logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns the users of a company.
func (s *Service) ListUsers(ctx context.Context, companyID int64) ([]User, error) {
	if companyID == 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListUsers(ctx, companyID)
}

func (s *Service) GetUser(ctx context.Context, companyID, id int64) (User, error) {
	if companyID == 0 {
		return User{}, shared.ErrTenantRequired
	}
	return s.repo.GetUser(ctx, companyID, id)
}

// CreateUser registers an account in the caller's company.
func (s *Service) CreateUser(ctx context.Context, companyID int64, req CreateUserRequest) (User, error) {
	if companyID == 0 {
		return User{}, shared.ErrTenantRequired
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, companyID, req.Email, req.Name, string(hashed))
}

// UpdateUser applies partial updates to name and active flag.
func (s *Service) UpdateUser(ctx context.Context, companyID, id int64, req UpdateUserRequest) (User, error) {
	if companyID == 0 {
		return User{}, shared.ErrTenantRequired
	}
	user, err := s.repo.GetUser(ctx, companyID, id)
	if err != nil {
		return User{}, err
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	return s.repo.UpdateUser(ctx, companyID, id, user.Name, user.IsActive)
}
