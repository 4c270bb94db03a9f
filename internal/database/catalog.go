package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is an item of the club shop.
type Product struct {
	ID              string `gorm:"primaryKey;size:36"`
	Name            string `gorm:"not null"`
	Description     string
	Price           string
	ImageURL        string
	MercadoLibreURL string
	CreatedBy       string `gorm:"size:36"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Event is an entry of the club calendar.
// Month is zero-based to match the calendar widgets that consume it.
type Event struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"not null"`
	Day         int    `gorm:"not null"`
	Month       int    `gorm:"not null"`
	Year        int    `gorm:"not null;index"`
	Time        string
	Description string
	Address     string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Manual is a downloadable vehicle manual.
type Manual struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"not null"`
	Brand     string `gorm:"index"`
	Model     string
	Year      string
	FileName  string
	FileType  string
	FileSize  int64
	FileURL   string
	CreatedBy string `gorm:"size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Section is a block of the club's home page. Sections are shown by ascending Order.
type Section struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"not null"`
	Description string
	ImageURL    string
	Order       int `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Product) BeforeCreate(tx *gorm.DB) error { p.ID = ensureID(p.ID); return nil }
func (e *Event) BeforeCreate(tx *gorm.DB) error   { e.ID = ensureID(e.ID); return nil }
func (m *Manual) BeforeCreate(tx *gorm.DB) error  { m.ID = ensureID(m.ID); return nil }
func (s *Section) BeforeCreate(tx *gorm.DB) error { s.ID = ensureID(s.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func createRow[T any](ctx context.Context, db *gorm.DB, row *T, kind string) error {
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		log.Error("failed to create "+kind, "error", err)
		return translate(err)
	}
	return nil
}

func getRow[T any](ctx context.Context, db *gorm.DB, id, kind string) (*T, error) {
	var row T
	if err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get "+kind, "id", id, "error", err)
		}
		return nil, err
	}
	return &row, nil
}

func listRows[T any](ctx context.Context, db *gorm.DB, order, kind string) ([]T, error) {
	var rows []T
	if err := db.WithContext(ctx).Order(order).Find(&rows).Error; err != nil {
		log.Error("failed to list "+kind, "error", err)
		return nil, err
	}
	return rows, nil
}

func updateRow[T any](ctx context.Context, db *gorm.DB, id string, fields map[string]any, kind string) (*T, error) {
	row, err := getRow[T](ctx, db, id, kind)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return row, nil
	}
	if err := db.WithContext(ctx).Model(row).Updates(fields).Error; err != nil {
		log.Error("failed to update "+kind, "id", id, "error", err)
		return nil, translate(err)
	}
	return getRow[T](ctx, db, id, kind)
}

func deleteRow[T any](ctx context.Context, db *gorm.DB, id, kind string) error {
	result := db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		log.Error("failed to delete "+kind, "id", id, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Products

func (c *Client) CreateProduct(ctx context.Context, product *Product) error {
	return createRow(ctx, c.db, product, "product")
}

func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	return getRow[Product](ctx, c.db, id, "product")
}

func (c *Client) GetProducts(ctx context.Context) ([]Product, error) {
	return listRows[Product](ctx, c.db, "created_at DESC", "products")
}

func (c *Client) UpdateProduct(ctx context.Context, id string, fields map[string]any) (*Product, error) {
	return updateRow[Product](ctx, c.db, id, fields, "product")
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return deleteRow[Product](ctx, c.db, id, "product")
}

// Events

func (c *Client) CreateEvent(ctx context.Context, event *Event) error {
	return createRow(ctx, c.db, event, "event")
}

func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	return getRow[Event](ctx, c.db, id, "event")
}

func (c *Client) GetEvents(ctx context.Context) ([]Event, error) {
	return listRows[Event](ctx, c.db, "year ASC, month ASC, day ASC", "events")
}

func (c *Client) UpdateEvent(ctx context.Context, id string, fields map[string]any) (*Event, error) {
	return updateRow[Event](ctx, c.db, id, fields, "event")
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return deleteRow[Event](ctx, c.db, id, "event")
}

// Manuals

func (c *Client) CreateManual(ctx context.Context, manual *Manual) error {
	return createRow(ctx, c.db, manual, "manual")
}

func (c *Client) GetManual(ctx context.Context, id string) (*Manual, error) {
	return getRow[Manual](ctx, c.db, id, "manual")
}

func (c *Client) GetManuals(ctx context.Context) ([]Manual, error) {
	return listRows[Manual](ctx, c.db, "created_at DESC", "manuals")
}

func (c *Client) UpdateManual(ctx context.Context, id string, fields map[string]any) (*Manual, error) {
	return updateRow[Manual](ctx, c.db, id, fields, "manual")
}

func (c *Client) DeleteManual(ctx context.Context, id string) error {
	return deleteRow[Manual](ctx, c.db, id, "manual")
}

// Sections

func (c *Client) CreateSection(ctx context.Context, section *Section) error {
	return createRow(ctx, c.db, section, "section")
}

func (c *Client) GetSection(ctx context.Context, id string) (*Section, error) {
	return getRow[Section](ctx, c.db, id, "section")
}

func (c *Client) GetSections(ctx context.Context) ([]Section, error) {
	return listRows[Section](ctx, c.db, "sort_order ASC, created_at ASC", "sections")
}

func (c *Client) UpdateSection(ctx context.Context, id string, fields map[string]any) (*Section, error) {
	return updateRow[Section](ctx, c.db, id, fields, "section")
}

func (c *Client) DeleteSection(ctx context.Context, id string) error {
	return deleteRow[Section](ctx, c.db, id, "section")
}
