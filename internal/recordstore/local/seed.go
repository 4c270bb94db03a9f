package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/jon4hz/clubhub/internal/database"
)

// SeedAdmin creates an active administrator unless the username or email is already taken.
// It reports whether the account was created.
func SeedAdmin(ctx context.Context, db database.UserStore, username, email, password string) (bool, error) {
	for _, identifier := range []string{username, email} {
		_, err := db.GetUserByIdentifier(ctx, identifier)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return false, fmt.Errorf("failed to look up %q: %w", identifier, err)
		}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	user := &database.User{
		Username:     username,
		Email:        email,
		Name:         username,
		PasswordHash: hash,
		Role:         database.RoleAdmin,
		IsActive:     true,
	}
	if err := db.CreateUser(ctx, user); err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	return true, nil
}
