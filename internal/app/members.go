package app

import (
	"context"
	"errors"
	"net/http"

	"teamdesk/api/internal/authpw"
	"teamdesk/api/internal/rbac"
	"teamdesk/api/internal/store"
)

// accountError turns account failures into responses. Anything unknown is
// passed through for the generic mapping.
func accountError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authpw.ErrEmailRequired), errors.Is(err, authpw.ErrPasswordTooShort):
		return invalid(err.Error())
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	case errors.Is(err, store.ErrNotFound):
		return notFound("User")
	}
	return err
}

// AddMember creates the account and mails the welcome note. A failed email
// is logged and does not undo the account.
func (s *Service) AddMember(ctx context.Context, req authpw.AddMemberRequest) (store.User, error) {
	user, err := s.accounts.AddMember(ctx, req)
	if err != nil {
		return store.User{}, accountError(err)
	}
	if s.mailer != nil {
		var effects Effects
		effects.record("welcome email", s.mailer.SendWelcome(user.Email, user.Name, user.Position))
		s.finish("add member", effects)
	}
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error) {
	user, err := s.accounts.SignIn(ctx, req)
	return user, accountError(err)
}

func (s *Service) UpdateProfile(ctx context.Context, id store.Ref, update authpw.ProfileUpdate) (store.User, error) {
	user, err := s.accounts.UpdateProfile(ctx, id, update)
	return user, accountError(err)
}

func (s *Service) ChangePassword(ctx context.Context, id store.Ref, current, next string) error {
	return accountError(s.accounts.ChangePassword(ctx, id, current, next))
}

func (s *Service) GetUser(ctx context.Context, id store.Ref) (store.User, error) {
	user, err := s.store.GetUser(ctx, id)
	return user, accountError(err)
}

// ListMembers lists non admin-class users for pickers. With excludeProject
// set, the project's leader and members are left out.
func (s *Service) ListMembers(ctx context.Context, query string, excludeProject store.Ref) ([]store.User, error) {
	filter := store.UserFilter{ExcludeRoles: rbac.AdminRoles(), Query: query}
	if !excludeProject.IsZero() {
		project, err := s.GetProject(ctx, excludeProject)
		if err != nil {
			return nil, err
		}
		filter.ExcludeIDs = append([]store.Ref{project.LeaderID}, project.MemberIDs...)
	}
	return s.store.ListUsers(ctx, filter)
}

func (s *Service) RegisteredMembers(ctx context.Context) ([]store.User, error) {
	registered := true
	return s.store.ListUsers(ctx, store.UserFilter{ExcludeRoles: rbac.AdminRoles(), Registered: &registered})
}

func (s *Service) UsersByIDs(ctx context.Context, ids []store.Ref) ([]store.User, error) {
	ids = store.UniqueRefs(ids)
	if len(ids) == 0 {
		return []store.User{}, nil
	}
	return s.store.ListUsers(ctx, store.UserFilter{IDs: ids})
}

func (s *Service) DeleteUser(ctx context.Context, id store.Ref) error {
	return accountError(s.store.DeleteUser(ctx, id))
}
