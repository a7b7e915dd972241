package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type UserService struct {
	Repo *repo.GormRepo
}

func (s *UserService) List(ctx context.Context, actor policy.Subject) ([]models.User, error) {
	if err := authorize(actor, policy.UserList, nil); err != nil {
		return nil, err
	}
	return s.Repo.ListUsers(ctx)
}

// Update changes name, role and the blocked flag. Blocking also revokes the
// user's refresh token. Actors cannot demote or block themselves.
func (s *UserService) Update(ctx context.Context, actor policy.Subject, rawID string, req transport.UpdateUserRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "user.update")

	if err := authorize(actor, policy.UserUpdate, nil); err != nil {
		return nil, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}

	self := user.ID == actor.ID
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		user.Name = name
	}
	if req.Role != nil {
		role, ok := models.ParseRole(*req.Role)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, *req.Role)
		}
		if self && role != user.Role {
			return nil, fmt.Errorf("%w: cannot change own role", ErrValidation)
		}
		user.Role = role
	}
	if req.IsBlocked != nil {
		if self && *req.IsBlocked {
			return nil, fmt.Errorf("%w: cannot block own account", ErrValidation)
		}
		user.IsBlocked = *req.IsBlocked
		if user.IsBlocked {
			user.RefreshTokenHash = ""
		}
	}

	if err := s.Repo.SaveUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		l.Error("user_update_error", "status", 500, "reason", "cannot save user", "error", err)
		return nil, err
	}
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, actor policy.Subject, rawID string) error {
	if err := authorize(actor, policy.UserDelete, nil); err != nil {
		return err
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot delete own account", ErrValidation)
	}

	if err := s.Repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user", ErrNotFound)
		}
		return err
	}
	return nil
}
