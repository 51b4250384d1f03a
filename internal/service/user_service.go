package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"usertasks/internal/auth"
	apperrors "usertasks/internal/errors"
	"usertasks/internal/model"
	"usertasks/internal/repository"
)

// UserInput carries the writable user fields. An empty Password on update
// keeps the stored hash.
type UserInput struct {
	Username string
	Email    string
	Password string
}

// UserService exposes domain operations.
type UserService interface {
	List(ctx context.Context) ([]model.User, error)
	GetByID(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, in UserInput) (*model.User, error)
	Update(ctx context.Context, id uint, in UserInput) error
	Delete(ctx context.Context, callerID, id uint) error
	ListTasks(ctx context.Context, callerID, id uint) ([]model.Task, error)
}

type userService struct {
	store  repository.Store
	hasher *auth.PasswordHasher
}

// NewUserService builds a UserService on top of the store.
func NewUserService(store repository.Store, hasher *auth.PasswordHasher) UserService {
	return &userService{store: store, hasher: hasher}
}

func (s *userService) List(ctx context.Context) ([]model.User, error) {
	return s.store.Users().List(ctx)
}

func (s *userService) GetByID(ctx context.Context, id uint) (*model.User, error) {
	return findUser(ctx, s.store.Users(), id)
}

func (s *userService) Create(ctx context.Context, in UserInput) (*model.User, error) {
	in.Username, in.Email = strings.TrimSpace(in.Username), strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, apperrors.ErrMissingUsername
	}
	if in.Email == "" || in.Password == "" {
		return nil, apperrors.ErrMissingCredentials
	}

	if err := ensureEmailAvailable(ctx, s.store.Users(), in.Email, 0); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, translateWriteError("create user", err)
	}
	return user, nil
}

func (s *userService) Update(ctx context.Context, id uint, in UserInput) error {
	in.Username, in.Email = strings.TrimSpace(in.Username), strings.TrimSpace(in.Email)
	if in.Username == "" {
		return apperrors.ErrMissingUsername
	}
	if in.Email == "" {
		return apperrors.Validationf("email is required")
	}

	users := s.store.Users()
	user, err := findUser(ctx, users, id)
	if err != nil {
		return err
	}
	if err := ensureEmailAvailable(ctx, users, in.Email, user.ID); err != nil {
		return err
	}

	user.Username = in.Username
	user.Email = in.Email
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}

	if err := users.Update(ctx, user); err != nil {
		return translateWriteError("update user", err)
	}
	return nil
}

// Delete removes the caller's own account. Tasks assigned to it are kept.
func (s *userService) Delete(ctx context.Context, callerID, id uint) error {
	if callerID != id {
		return apperrors.ErrNotOwner
	}

	users := s.store.Users()
	user, err := findUser(ctx, users, id)
	if err != nil {
		return err
	}
	if err := users.Delete(ctx, user); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *userService) ListTasks(ctx context.Context, callerID, id uint) ([]model.Task, error) {
	if callerID != id {
		return nil, apperrors.ErrNotOwner
	}
	if _, err := findUser(ctx, s.store.Users(), id); err != nil {
		return nil, err
	}
	return s.store.Tasks().List(ctx, repository.TaskFilter{AssigneeID: &id})
}

func findUser(ctx context.Context, repo repository.UserRepository, id uint) (*model.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
