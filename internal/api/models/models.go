// Package models holds the JSON views returned by the HTTP API.
package models

import (
	"time"

	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/session"
)

// User is the public view of a member.
type User struct {
	ID                 string           `json:"id"`
	Username           string           `json:"username"`
	Email              string           `json:"email"`
	Name               string           `json:"name"`
	Role               recordstore.Role `json:"role"`
	IsAdmin            bool             `json:"isAdmin"`
	IsActive           bool             `json:"isActive"`
	EmailNotifications bool             `json:"emailNotifications"`
	LastLogin          *time.Time       `json:"lastLogin,omitempty"`
	LastLoginAgo       string           `json:"lastLoginAgo,omitempty"`
	Created            time.Time        `json:"created"`
	AvatarURL          string           `json:"avatarUrl,omitempty"`
}

// Session is the state of the visitor's session.
type Session struct {
	Status      session.Status `json:"status"`
	Loading     bool           `json:"loading"`
	IsAdmin     bool           `json:"isAdmin"`
	CurrentUser *User          `json:"currentUser"`
}

// Manual adds display fields to a catalog manual.
type Manual struct {
	catalog.Manual
	FileSizeHuman string `json:"fileSizeHuman"`
	UploadedAgo   string `json:"uploadedAgo,omitempty"`
}

// Event adds the calendar date to a catalog event.
type Event struct {
	catalog.Event
	ISODate string `json:"isoDate"`
}

// LoginRequest is the body of a login.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// RoleRequest is the body of a role change.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// EmailRequest is the body of a mass email.
type EmailRequest struct {
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}
