package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the privilege tier of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a club member account.
// Users are never hard-deleted, deactivation goes through IsActive.
type User struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Username           string `gorm:"uniqueIndex;not null"`
	Email              string `gorm:"uniqueIndex;not null"`
	Name               string
	PasswordHash       string `gorm:"not null" json:"-"`
	Role               Role   `gorm:"size:16;not null"`
	IsActive           bool   `gorm:"not null"`
	EmailNotifications bool   `gorm:"not null"`
	LastLogin          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UserUpdate lists the mutable user fields. Nil fields are left untouched.
type UserUpdate struct {
	Email              *string
	Name               *string
	PasswordHash       *string
	Role               *Role
	IsActive           *bool
	EmailNotifications *bool
	LastLogin          *time.Time
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.Name == nil && u.PasswordHash == nil && u.Role == nil &&
		u.IsActive == nil && u.EmailNotifications == nil && u.LastLogin == nil
}

func (u UserUpdate) columns() map[string]any {
	cols := make(map[string]any)
	if u.Email != nil {
		cols["email"] = normalizeEmail(*u.Email)
	}
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.PasswordHash != nil {
		cols["password_hash"] = *u.PasswordHash
	}
	if u.Role != nil {
		cols["role"] = *u.Role
	}
	if u.IsActive != nil {
		cols["is_active"] = *u.IsActive
	}
	if u.EmailNotifications != nil {
		cols["email_notifications"] = *u.EmailNotifications
	}
	if u.LastLogin != nil {
		cols["last_login"] = *u.LastLogin
	}
	return cols
}

// BeforeCreate assigns the id and normalizes the email.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.Email = normalizeEmail(u.Email)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a user. Usernames and emails share one namespace because logins
// accept either, so a username may not equal another user's email and vice versa.
func (c *Client) CreateUser(ctx context.Context, user *User) error {
	email := normalizeEmail(user.Email)
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).
		Where("username = ? OR LOWER(username) = ? OR email IN ?",
			user.Username, email, []string{email, normalizeEmail(user.Username)}).
		Count(&count).Error; err != nil {
		log.Error("failed to check user uniqueness", "error", err)
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	if err := c.db.WithContext(ctx).Create(user).Error; err != nil {
		err = translate(err)
		if !errors.Is(err, ErrDuplicate) {
			log.Error("failed to create user", "error", err)
		}
		return err
	}
	return nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by ID", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByIdentifier looks a user up by username or email.
func (c *Client) GetUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, normalizeEmail(identifier)).
		First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by identifier", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetAllUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		log.Error("failed to get all users", "error", err)
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	user, err := c.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return user, nil
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		var count int64
		if err := c.db.WithContext(ctx).Model(&User{}).
			Where("id <> ? AND (email = ? OR LOWER(username) = ?)", id, email, email).
			Count(&count).Error; err != nil {
			log.Error("failed to check user uniqueness", "error", err)
			return nil, err
		}
		if count > 0 {
			return nil, ErrDuplicate
		}
	}
	if err := c.db.WithContext(ctx).Model(user).Updates(update.columns()).Error; err != nil {
		err = translate(err)
		if !errors.Is(err, ErrDuplicate) {
			log.Error("failed to update user", "error", err)
		}
		return nil, err
	}
	return c.GetUserByID(ctx, id)
}

func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		log.Error("failed to count users", "error", err)
		return 0, err
	}
	return count, nil
}
