// Package local implements the record store in-process on top of the clubhub database.
package local

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"golang.org/x/crypto/bcrypt"
)

var _ recordstore.Client = (*Store)(nil)

// Store is a recordstore.Client bound to a single identity, held in its TokenStore.
type Store struct {
	db                database.DB
	signer            *Signer
	tokens            recordstore.TokenStore
	demoAnySecret     bool
	minPasswordLength int
	now               func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDemoAcceptAnySecret lets active non-admin accounts authenticate with any secret.
func WithDemoAcceptAnySecret(enabled bool) Option {
	return func(s *Store) { s.demoAnySecret = enabled }
}

// WithMinPasswordLength sets the minimum password length enforced on registration.
func WithMinPasswordLength(n int) Option {
	return func(s *Store) { s.minPasswordLength = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store. A nil token store starts with no identity.
func New(db database.DB, signer *Signer, tokens recordstore.TokenStore, opts ...Option) *Store {
	if tokens == nil {
		tokens = recordstore.NewMemoryTokenStore("")
	}
	s := &Store{
		db:                db,
		signer:            signer,
		tokens:            tokens,
		minPasswordLength: 8,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Store) Connect(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", recordstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Authenticate(ctx context.Context, identifier, secret string) (*recordstore.AuthResult, error) {
	user, err := s.db.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, recordstore.ErrInvalidCredentials
		}
		return nil, unavailable(err)
	}

	if !user.IsActive {
		return nil, recordstore.ErrInvalidCredentials
	}

	if user.Role == database.RoleAdmin || !s.demoAnySecret {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
			return nil, recordstore.ErrInvalidCredentials
		}
	}

	token, err := s.signer.Issue(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	s.tokens.Save(token)

	return &recordstore.AuthResult{Token: token, Record: userRecord(user)}, nil
}

func (s *Store) PersistedIdentity(ctx context.Context) (recordstore.Record, error) {
	user, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return userRecord(user), nil
}

func (s *Store) ClearPersistedIdentity() {
	s.tokens.Clear()
}

// Token returns the token of the current identity.
func (s *Store) Token() string {
	return s.tokens.Load()
}

// identity resolves the token to an active user. Stale tokens are cleared.
func (s *Store) identity(ctx context.Context) (*database.User, error) {
	token := s.tokens.Load()
	if token == "" {
		return nil, nil
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		log.Debug("discarding invalid auth token", "error", err)
		s.tokens.Clear()
		return nil, nil
	}
	user, err := s.db.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.tokens.Clear()
			return nil, nil
		}
		return nil, unavailable(err)
	}
	if !user.IsActive {
		s.tokens.Clear()
		return nil, nil
	}
	return user, nil
}

func (s *Store) requireAdmin(ctx context.Context) (*database.User, error) {
	user, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, recordstore.ErrUnauthorized
	}
	if user.Role != database.RoleAdmin {
		return nil, recordstore.ErrForbidden
	}
	return user, nil
}

func (s *Store) CreateRecord(ctx context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionUsers:
		return s.createUser(ctx, fields)
	case recordstore.CollectionProducts, recordstore.CollectionEvents, recordstore.CollectionManuals, recordstore.CollectionSections:
		admin, err := s.requireAdmin(ctx)
		if err != nil {
			return nil, err
		}
		return s.createCatalog(ctx, collection, fields, admin.ID)
	}
	return nil, unknownCollection(collection)
}

func (s *Store) GetRecord(ctx context.Context, collection, id string) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionUsers:
		caller, err := s.identity(ctx)
		if err != nil {
			return nil, err
		}
		if caller == nil {
			return nil, recordstore.ErrUnauthorized
		}
		if caller.ID != id && caller.Role != database.RoleAdmin {
			return nil, recordstore.ErrForbidden
		}
		user, err := s.db.GetUserByID(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		return userRecord(user), nil
	case recordstore.CollectionProducts, recordstore.CollectionEvents, recordstore.CollectionManuals, recordstore.CollectionSections:
		return s.getCatalog(ctx, collection, id)
	}
	return nil, unknownCollection(collection)
}

func (s *Store) ListRecords(ctx context.Context, collection string) ([]recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionUsers:
		if _, err := s.requireAdmin(ctx); err != nil {
			return nil, err
		}
		users, err := s.db.GetAllUsers(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		records := make([]recordstore.Record, 0, len(users))
		for i := range users {
			records = append(records, userRecord(&users[i]))
		}
		return records, nil
	case recordstore.CollectionProducts, recordstore.CollectionEvents, recordstore.CollectionManuals, recordstore.CollectionSections:
		return s.listCatalog(ctx, collection)
	}
	return nil, unknownCollection(collection)
}

func (s *Store) UpdateRecord(ctx context.Context, collection, id string, fields recordstore.Record) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionUsers:
		return s.updateUser(ctx, id, fields)
	case recordstore.CollectionProducts, recordstore.CollectionEvents, recordstore.CollectionManuals, recordstore.CollectionSections:
		if _, err := s.requireAdmin(ctx); err != nil {
			return nil, err
		}
		return s.updateCatalog(ctx, collection, id, fields)
	}
	return nil, unknownCollection(collection)
}

func (s *Store) DeleteRecord(ctx context.Context, collection, id string) error {
	switch collection {
	case recordstore.CollectionUsers:
		return recordstore.ErrForbidden
	case recordstore.CollectionProducts, recordstore.CollectionEvents, recordstore.CollectionManuals, recordstore.CollectionSections:
		if _, err := s.requireAdmin(ctx); err != nil {
			return err
		}
		return s.deleteCatalog(ctx, collection, id)
	}
	return unknownCollection(collection)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// decodeFields decodes record fields into out, rejecting unknown fields.
func decodeFields(fields recordstore.Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(fields)); err != nil {
		return recordstore.NewFieldError("fields", err.Error())
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fe := &recordstore.FieldError{Fields: make(map[string]string, len(verrs))}
			for _, v := range verrs {
				fe.Fields[v.Field()] = "validation_" + v.Tag()
			}
			return fe
		}
		return err
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return recordstore.ErrNotFound
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%w: %v", recordstore.ErrConflict, err)
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", recordstore.ErrUnavailable, err)
}

func unknownCollection(name string) error {
	return fmt.Errorf("%w: unknown collection %q", recordstore.ErrNotFound, name)
}
