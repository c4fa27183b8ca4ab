package services

import (
	"context"
	"errors"
	"strings"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// UserUpdate is the admin patch; nil fields are left alone.
type UserUpdate struct {
	Name     *string      `json:"name" binding:"omitempty,min=1,max=100"`
	Email    *string      `json:"email" binding:"omitempty,email"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
	Password *string      `json:"password" binding:"omitempty,min=8"`
}

// ProfileUpdate is what a user may change on their own account.
type ProfileUpdate struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=100"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

type UserService struct {
	store      repositories.Store
	bcryptCost int
}

func NewUserService(store repositories.Store, bcryptCost int) *UserService {
	return &UserService{store: store, bcryptCost: bcryptCost}
}

func (s *UserService) requireAdmin(p policy.Principal) error {
	if !policy.CanManageUsers(p) {
		return apperrors.PermissionDenied("admin access required")
	}
	return nil
}

func (s *UserService) Me(ctx context.Context, p policy.Principal) (*models.User, error) {
	user, err := s.store.Users().FindByID(ctx, p.ID)
	return user, storeError(err, "user not found")
}

func (s *UserService) UpdateMe(ctx context.Context, p policy.Principal, in ProfileUpdate) (*models.User, error) {
	user, err := s.store.Users().FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if err := s.apply(user, UserUpdate{Name: in.Name, Password: in.Password}); err != nil {
		return nil, err
	}
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, storeError(err, "user not found")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, p policy.Principal, skip, limit int) ([]models.User, error) {
	if err := s.requireAdmin(p); err != nil {
		return nil, err
	}
	users, err := s.store.Users().List(ctx, page(skip, limit))
	return users, storeError(err, "user not found")
}

func (s *UserService) Get(ctx context.Context, p policy.Principal, id uuid.UUID) (*models.User, error) {
	if err := s.requireAdmin(p); err != nil {
		return nil, err
	}
	user, err := s.store.Users().FindByID(ctx, id)
	return user, storeError(err, "user not found")
}

func (s *UserService) Update(ctx context.Context, p policy.Principal, id uuid.UUID, in UserUpdate) (*models.User, error) {
	if err := s.requireAdmin(p); err != nil {
		return nil, err
	}
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	if err := s.apply(user, in); err != nil {
		return nil, err
	}
	if err := s.store.Users().Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperrors.Conflict("email already in use")
		}
		return nil, storeError(err, "user not found")
	}
	return user, nil
}

func (s *UserService) apply(user *models.User, in UserUpdate) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperrors.Validation("name must not be empty")
		}
		user.Name = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			return apperrors.Validation("email must not be empty")
		}
		user.Email = email
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return apperrors.Validationf("invalid role %q", *in.Role)
		}
		user.Role = *in.Role
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return apperrors.Validationf("password must be at least %d characters", minPasswordLength)
		}
		hash, err := HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return apperrors.Internal("failed to hash password", err)
		}
		user.Password = hash
	}
	return nil
}

// Delete refuses to remove the calling admin's own account.
func (s *UserService) Delete(ctx context.Context, p policy.Principal, id uuid.UUID) error {
	if err := s.requireAdmin(p); err != nil {
		return err
	}
	if id == p.ID {
		return apperrors.Validation("admins cannot delete their own account")
	}
	return storeError(s.store.Users().Delete(ctx, id), "user not found")
}

// EnsureAdmin creates the bootstrap admin account when no user holds email.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	_, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return storeError(err, "user not found")
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrator"
	}
	admin := &models.User{Name: name, Email: email, Password: hash, Role: models.RoleAdmin, IsActive: true}
	if err := s.store.Users().Create(ctx, admin); err != nil {
		return storeError(err, "user not found")
	}
	logging.Info().Str("user_id", admin.ID.String()).Msg("Bootstrap admin created")
	return nil
}
