package recordstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Role is the privilege tier of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// User is the canonical user shape. Every user record is normalized into it exactly once,
// when it crosses the store boundary.
type User struct {
	ID                 string     `json:"id" validate:"required"`
	Username           string     `json:"username" validate:"required"`
	Email              string     `json:"email,omitempty" validate:"omitempty,email"`
	Name               string     `json:"name"`
	Role               Role       `json:"role" validate:"oneof=user admin"`
	IsActive           bool       `json:"isActive"`
	EmailNotifications bool       `json:"emailNotifications"`
	LastLogin          *time.Time `json:"lastLogin,omitempty"`
	Created            time.Time  `json:"created"`
	Updated            time.Time  `json:"updated"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type rawUser struct {
	ID                 string `mapstructure:"id"`
	Username           string `mapstructure:"username"`
	Email              string `mapstructure:"email"`
	Name               string `mapstructure:"name"`
	Role               string `mapstructure:"role"`
	Rule               string `mapstructure:"rule"`
	IsActive           *bool  `mapstructure:"isActive"`
	EmailNotifications bool   `mapstructure:"emailNotifications"`
	LastLogin          any    `mapstructure:"lastLogin"`
	Created            any    `mapstructure:"created"`
	Updated            any    `mapstructure:"updated"`
}

// DecodeUser normalizes a user record. Missing optional fields get their defaults:
// role "user", active, and the username as display name.
func DecodeUser(r Record) (User, error) {
	var raw rawUser
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return User{}, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return User{}, fmt.Errorf("%w: malformed user record: %v", ErrValidation, err)
	}

	u := User{
		ID:                 raw.ID,
		Username:           raw.Username,
		Email:              raw.Email,
		Name:               raw.Name,
		Role:               Role(raw.Role),
		IsActive:           raw.IsActive == nil || *raw.IsActive,
		EmailNotifications: raw.EmailNotifications,
	}
	if u.Role == "" {
		u.Role = Role(raw.Rule)
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	if t, ok := parseTime(raw.LastLogin); ok {
		u.LastLogin = &t
	}
	u.Created, _ = parseTime(raw.Created)
	u.Updated, _ = parseTime(raw.Updated)

	if err := validate.Struct(u); err != nil {
		return User{}, fmt.Errorf("%w: invalid user record %q: %v", ErrValidation, u.ID, err)
	}
	return u, nil
}

// Record converts the user back into its record representation.
func (u User) Record() Record {
	r := Record{
		"id":                 u.ID,
		"username":           u.Username,
		"email":              u.Email,
		"name":               u.Name,
		"role":               string(u.Role),
		"isActive":           u.IsActive,
		"emailNotifications": u.EmailNotifications,
		"created":            u.Created,
		"updated":            u.Updated,
	}
	if u.LastLogin != nil {
		r["lastLogin"] = *u.LastLogin
	}
	return r
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000Z",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// TimeHook is a mapstructure decode hook turning the timestamp formats of the stores into time.Time.
// Unparseable values decode to the zero time.
func TimeHook() mapstructure.DecodeHookFuncType {
	timeType := reflect.TypeOf(time.Time{})
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != timeType {
			return data, nil
		}
		t, _ := parseTime(data)
		return t, nil
	}
}

// NewUser holds the fields of a self-registration. Role and activation are decided by the store.
type NewUser struct {
	Username           string
	Email              string
	Name               string
	Secret             string
	EmailNotifications bool
}

func (n NewUser) record() Record {
	return Record{
		"username":           n.Username,
		"email":              n.Email,
		"name":               n.Name,
		"password":           n.Secret,
		"passwordConfirm":    n.Secret,
		"emailNotifications": n.EmailNotifications,
	}
}

// UserPatch lists the user fields to change. Nil fields are left untouched.
type UserPatch struct {
	Name               *string
	Role               *Role
	IsActive           *bool
	EmailNotifications *bool
	LastLogin          *time.Time
}

func (p UserPatch) record() Record {
	r := Record{}
	if p.Name != nil {
		r["name"] = *p.Name
	}
	if p.Role != nil {
		r["role"] = string(*p.Role)
	}
	if p.IsActive != nil {
		r["isActive"] = *p.IsActive
	}
	if p.EmailNotifications != nil {
		r["emailNotifications"] = *p.EmailNotifications
	}
	if p.LastLogin != nil {
		r["lastLogin"] = p.LastLogin.UTC().Format(time.RFC3339Nano)
	}
	return r
}
