package models

import (
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/gravatar"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/session"
	"github.com/mergestat/timediff"
)

// ToUser converts a record store user to its public view.
func ToUser(u recordstore.User, cfg *config.GravatarConfig) User {
	view := User{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Name:               u.Name,
		Role:               u.Role,
		IsAdmin:            u.IsAdmin(),
		IsActive:           u.IsActive,
		EmailNotifications: u.EmailNotifications,
		LastLogin:          u.LastLogin,
		Created:            u.Created,
		AvatarURL:          gravatar.URL(u.Email, cfg),
	}
	if u.LastLogin != nil && !u.LastLogin.IsZero() {
		view.LastLoginAgo = timediff.TimeDiff(*u.LastLogin)
	}
	return view
}

// ToUsers converts a roster.
func ToUsers(users []recordstore.User, cfg *config.GravatarConfig) []User {
	result := make([]User, len(users))
	for i, u := range users {
		result[i] = ToUser(u, cfg)
	}
	return result
}

// ToSession converts a session snapshot. The roster is left out.
func ToSession(s session.State, cfg *config.GravatarConfig) Session {
	view := Session{
		Status:  s.Status,
		Loading: s.Loading,
		IsAdmin: s.IsAdmin,
	}
	if s.CurrentUser != nil {
		u := ToUser(*s.CurrentUser, cfg)
		view.CurrentUser = &u
	}
	return view
}

// ToManual adds the display fields to a manual.
func ToManual(m catalog.Manual) Manual {
	view := Manual{Manual: m}
	size, err := safecast.ToUint64(m.FileSize)
	if err != nil {
		size = 0
	}
	view.FileSizeHuman = humanize.Bytes(size)
	if !m.Created.IsZero() {
		view.UploadedAgo = timediff.TimeDiff(m.Created)
	}
	return view
}

// ToManuals converts a list of manuals.
func ToManuals(manuals []catalog.Manual) []Manual {
	result := make([]Manual, len(manuals))
	for i, m := range manuals {
		result[i] = ToManual(m)
	}
	return result
}

// ToEvent adds the calendar date to an event.
func ToEvent(e catalog.Event) Event {
	return Event{Event: e, ISODate: e.Date().Format(time.DateOnly)}
}

// ToEvents converts a list of events.
func ToEvents(events []catalog.Event) []Event {
	result := make([]Event, len(events))
	for i, e := range events {
		result[i] = ToEvent(e)
	}
	return result
}
