package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore"
)

type registration struct {
	Username           string `mapstructure:"username" validate:"required,max=64"`
	Email              string `mapstructure:"email" validate:"required,email"`
	Name               string `mapstructure:"name" validate:"max=128"`
	Password           string `mapstructure:"password" validate:"required"`
	PasswordConfirm    string `mapstructure:"passwordConfirm"`
	EmailNotifications bool   `mapstructure:"emailNotifications"`
	// Accepted but ignored, new accounts are always active users.
	Role     string `mapstructure:"role"`
	IsActive *bool  `mapstructure:"isActive"`
}

type userChanges struct {
	Email              *string `mapstructure:"email" validate:"omitempty,email"`
	Name               *string `mapstructure:"name"`
	Role               *string `mapstructure:"role" validate:"omitempty,oneof=user admin"`
	IsActive           *bool   `mapstructure:"isActive"`
	EmailNotifications *bool   `mapstructure:"emailNotifications"`
	LastLogin          *string `mapstructure:"lastLogin"`
}

func (s *Store) createUser(ctx context.Context, fields recordstore.Record) (recordstore.Record, error) {
	var reg registration
	if err := decodeFields(fields, &reg); err != nil {
		return nil, err
	}
	if len(reg.Password) < s.minPasswordLength {
		return nil, recordstore.NewFieldError("password", fmt.Sprintf("must be at least %d characters", s.minPasswordLength))
	}
	if reg.PasswordConfirm != "" && reg.PasswordConfirm != reg.Password {
		return nil, recordstore.NewFieldError("passwordConfirm", "values don't match")
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	user := &database.User{
		Username:           reg.Username,
		Email:              reg.Email,
		Name:               reg.Name,
		PasswordHash:       hash,
		Role:               database.RoleUser,
		IsActive:           true,
		EmailNotifications: reg.EmailNotifications,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, translate(err)
	}
	return userRecord(user), nil
}

func (s *Store) updateUser(ctx context.Context, id string, fields recordstore.Record) (recordstore.Record, error) {
	caller, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, recordstore.ErrUnauthorized
	}
	isAdmin := caller.Role == database.RoleAdmin
	if caller.ID != id && !isAdmin {
		return nil, recordstore.ErrForbidden
	}

	var changes userChanges
	if err := decodeFields(fields, &changes); err != nil {
		return nil, err
	}

	var update database.UserUpdate
	update.Email = changes.Email
	update.Name = changes.Name
	update.EmailNotifications = changes.EmailNotifications

	if changes.Role != nil || changes.IsActive != nil {
		if !isAdmin || caller.ID == id {
			return nil, recordstore.ErrForbidden
		}
		if changes.Role != nil {
			role := database.Role(*changes.Role)
			update.Role = &role
		}
		update.IsActive = changes.IsActive
	}

	if changes.LastLogin != nil {
		t, err := time.Parse(time.RFC3339Nano, *changes.LastLogin)
		if err != nil {
			return nil, recordstore.NewFieldError("lastLogin", "invalid timestamp")
		}
		update.LastLogin = &t
	}

	user, err := s.db.UpdateUser(ctx, id, update)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, recordstore.ErrNotFound
		}
		return nil, translate(err)
	}
	return userRecord(user), nil
}

func userRecord(u *database.User) recordstore.Record {
	r := recordstore.Record{
		"id":                 u.ID,
		"username":           u.Username,
		"email":              u.Email,
		"name":               u.Name,
		"role":               string(u.Role),
		"isActive":           u.IsActive,
		"emailNotifications": u.EmailNotifications,
		"created":            u.CreatedAt,
		"updated":            u.UpdatedAt,
	}
	if u.LastLogin != nil {
		r["lastLogin"] = *u.LastLogin
	}
	return r
}
