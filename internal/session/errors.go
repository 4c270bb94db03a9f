package session

import "errors"

// Kind categorizes an expected failure of a session operation.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindConflict       Kind = "conflict"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindTransport      Kind = "transport"
)

// Error is returned by session operations. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or an empty Kind if err is not a session error.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Message
	}
	if err == nil {
		return ""
	}
	return "unexpected error"
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

const (
	msgCredentialsRequired = "username and password are required"
	msgInvalidCredentials  = "invalid username or password"
	msgStoreUnavailable    = "the record store is unavailable, please try again later"
	msgAdminOnly           = "only administrators can manage users"
	msgSelfModification    = "you cannot change your own role or status"
	msgAlreadyRegistered   = "username or email is already registered"
	msgUserNotFound        = "user not found"
)
