package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/jon4hz/clubhub/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// DB is the persistence layer used by the local record store.
type DB interface {
	UserStore
	CatalogStore

	Ping(ctx context.Context) error
	Close() error
}

// UserStore holds the user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// CatalogStore holds the products, events, manuals and home page sections shown on the site.
type CatalogStore interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, id string, fields map[string]any) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	GetEvents(ctx context.Context) ([]Event, error)
	UpdateEvent(ctx context.Context, id string, fields map[string]any) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error

	CreateManual(ctx context.Context, manual *Manual) error
	GetManual(ctx context.Context, id string) (*Manual, error)
	GetManuals(ctx context.Context) ([]Manual, error)
	UpdateManual(ctx context.Context, id string, fields map[string]any) (*Manual, error)
	DeleteManual(ctx context.Context, id string) error

	CreateSection(ctx context.Context, section *Section) error
	GetSection(ctx context.Context, id string) (*Section, error)
	GetSections(ctx context.Context) ([]Section, error)
	UpdateSection(ctx context.Context, id string, fields map[string]any) (*Section, error)
	DeleteSection(ctx context.Context, id string) error
}

var _ DB = (*Client)(nil) // Ensure Client implements DB

// Client wraps the gorm.DB instance.
type Client struct {
	db *gorm.DB
}

// New creates a new database connection and performs migrations.
func New(cfg *config.DatabaseConfig) (*Client, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Client{db: db}, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Product{},
		&Event{},
		&Manual{},
		&Section{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg == nil {
		return nil, errors.New("missing database config")
	}
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case config.DatabaseDriverSQLite, "":
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Ping checks that the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
