// Package recordstore defines the contract between clubhub and the record store holding
// users and catalog records, together with the canonical user shape and the error taxonomy
// every implementation maps its failures onto.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Collection names.
const (
	CollectionUsers    = "users"
	CollectionProducts = "products"
	CollectionEvents   = "events"
	CollectionManuals  = "manuals"
	CollectionSections = "sections"
)

// Record is a schemaless record as exchanged with the store.
type Record map[string]any

// ID returns the record id or an empty string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	Token  string `json:"token"`
	Record Record `json:"record"`
}

// Client is the record store as seen by clubhub.
type Client interface {
	// Connect establishes or verifies the connection to the store.
	Connect(ctx context.Context) error
	// Authenticate verifies the credentials and persists the resulting identity.
	Authenticate(ctx context.Context, identifier, secret string) (*AuthResult, error)
	// PersistedIdentity returns the record of the persisted identity, or nil when there is none.
	PersistedIdentity(ctx context.Context) (Record, error)
	// ClearPersistedIdentity forgets the persisted identity.
	ClearPersistedIdentity()

	CreateRecord(ctx context.Context, collection string, fields Record) (Record, error)
	GetRecord(ctx context.Context, collection, id string) (Record, error)
	ListRecords(ctx context.Context, collection string) ([]Record, error)
	UpdateRecord(ctx context.Context, collection, id string, fields Record) (Record, error)
	DeleteRecord(ctx context.Context, collection, id string) error
}

var (
	// ErrInvalidCredentials covers unknown identifiers, wrong secrets and inactive accounts alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("record conflicts with an existing record")
	// ErrUnauthorized is returned when the operation needs an identity and there is none.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden is returned when the identity lacks the privilege for the operation.
	ErrForbidden = errors.New("operation not allowed")
	// ErrNotFound is returned for unknown records or collections.
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned when the store rejects field values.
	ErrValidation = errors.New("validation failed")
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("record store unavailable")
)

// FieldError carries per-field validation messages.
type FieldError struct {
	Fields map[string]string
}

// NewFieldError returns a FieldError for a single field.
func NewFieldError(field, message string) *FieldError {
	return &FieldError{Fields: map[string]string{field: message}}
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", ErrValidation, strings.Join(parts, ", "))
}

func (e *FieldError) Unwrap() error { return ErrValidation }
