// Package authpw manages member accounts: admins add members with a default
// password, members complete their profile and set their own password.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamdesk/api/internal/rbac"
	"teamdesk/api/internal/store"
)

const MinPasswordLength = 5

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Service provides member account operations
type Service struct {
	store           UserStore
	defaultPassword string
	cost            int
}

// UserStore defines the storage interface for accounts
type UserStore interface {
	GetUser(ctx context.Context, id store.Ref) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) error
	UpdateUser(ctx context.Context, id store.Ref, patch store.UserPatch) error
}

// NewService creates a new account service
func NewService(s UserStore, defaultPassword string) *Service {
	return &Service{store: s, defaultPassword: defaultPassword, cost: bcrypt.DefaultCost}
}

// WithCost lowers the bcrypt cost, for tests.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// AddMemberRequest contains add-member parameters
type AddMemberRequest struct {
	Email    string
	Name     string
	Position string
}

// AddMember creates an unregistered member with the default password.
func (s *Service) AddMember(ctx context.Context, req AddMemberRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return store.User{}, ErrEmailRequired
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hash(s.defaultPassword)
	if err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:              store.NewRef(),
		Name:            strings.TrimSpace(req.Name),
		Email:           email,
		Role:            string(rbac.RoleMember),
		Position:        strings.TrimSpace(req.Position),
		PasswordHash:    hash,
		AlreadyRegister: false,
		Experience:      store.Experience{},
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create member: %w", err)
	}
	return user, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks the password and returns the member's profile.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ProfileUpdate carries the profile fields a member may change. A non-nil
// Password also marks the account as registered.
type ProfileUpdate struct {
	Name         *string
	DOB          *string
	Phone        *string
	Address      *string
	Position     *string
	ProfileImage *string
	Password     *string
}

// UpdateProfile applies the update and returns the stored user.
func (s *Service) UpdateProfile(ctx context.Context, id store.Ref, update ProfileUpdate) (store.User, error) {
	patch := store.UserPatch{
		Name:         trimmed(update.Name),
		DOB:          trimmed(update.DOB),
		Phone:        trimmed(update.Phone),
		Address:      trimmed(update.Address),
		Position:     trimmed(update.Position),
		ProfileImage: trimmed(update.ProfileImage),
	}
	if update.Password != nil {
		hash, err := s.hash(*update.Password)
		if err != nil {
			return store.User{}, err
		}
		registered := true
		patch.PasswordHash = &hash
		patch.AlreadyRegister = &registered
	}

	if err := s.store.UpdateUser(ctx, id, patch); err != nil {
		return store.User{}, err
	}
	return s.store.GetUser(ctx, id)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id store.Ref, current, next string) error {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	registered := true
	return s.store.UpdateUser(ctx, id, store.UserPatch{PasswordHash: &hash, AlreadyRegister: &registered})
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
