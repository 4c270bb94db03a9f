package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jon4hz/clubhub/internal/database"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is a mock implementation of database.DB for testing.
type MockDB struct {
	mu sync.RWMutex

	users    map[string]*database.User
	products map[string]*database.Product
	events   map[string]*database.Event
	manuals  map[string]*database.Manual
	sections map[string]*database.Section

	// Error simulation
	PingError                error
	CreateUserError          error
	GetUserByIDError         error
	GetUserByIdentifierError error
	GetAllUsersError         error
	UpdateUserError          error
	CatalogError             error

	// Call counters
	GetAllUsersCalls int
	UpdateUserCalls  int
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	m := &MockDB{}
	m.Reset()
	return m
}

// Reset clears all data and errors from the mock database.
func (m *MockDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[string]*database.User)
	m.products = make(map[string]*database.Product)
	m.events = make(map[string]*database.Event)
	m.manuals = make(map[string]*database.Manual)
	m.sections = make(map[string]*database.Section)

	m.PingError = nil
	m.CreateUserError = nil
	m.GetUserByIDError = nil
	m.GetUserByIdentifierError = nil
	m.GetAllUsersError = nil
	m.UpdateUserError = nil
	m.CatalogError = nil
	m.GetAllUsersCalls = 0
	m.UpdateUserCalls = 0
}

func (m *MockDB) Ping(ctx context.Context) error { return m.PingError }

func (m *MockDB) Close() error { return nil }

// User operations

func (m *MockDB) CreateUser(ctx context.Context, user *database.User) error {
	if m.CreateUserError != nil {
		return m.CreateUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email ||
			strings.EqualFold(u.Email, user.Username) || strings.EqualFold(u.Username, user.Email) {
			return database.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = database.RoleUser
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MockDB) GetUserByID(ctx context.Context, id string) (*database.User, error) {
	if m.GetUserByIDError != nil {
		return nil, m.GetUserByIDError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MockDB) GetUserByIdentifier(ctx context.Context, identifier string) (*database.User, error) {
	if m.GetUserByIdentifierError != nil {
		return nil, m.GetUserByIdentifierError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			clone := *u
			return &clone, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MockDB) GetAllUsers(ctx context.Context) ([]database.User, error) {
	m.mu.Lock()
	m.GetAllUsersCalls++
	m.mu.Unlock()

	if m.GetAllUsersError != nil {
		return nil, m.GetAllUsersError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]database.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *MockDB) UpdateUser(ctx context.Context, id string, update database.UserUpdate) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateUserCalls++
	if m.UpdateUserError != nil {
		return nil, m.UpdateUserError
	}

	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if update.Email != nil {
		for _, other := range m.users {
			if other.ID != id && (other.Email == *update.Email || strings.EqualFold(other.Username, *update.Email)) {
				return nil, database.ErrDuplicate
			}
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	if update.EmailNotifications != nil {
		u.EmailNotifications = *update.EmailNotifications
	}
	if update.LastLogin != nil {
		lastLogin := *update.LastLogin
		u.LastLogin = &lastLogin
	}
	if !update.Empty() {
		u.UpdatedAt = time.Now()
	}
	clone := *u
	return &clone, nil
}

func (m *MockDB) CountUsers(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

// Catalog operations keep the rows in plain maps. Updates only know the columns the record store writes.

func (m *MockDB) CreateProduct(ctx context.Context, product *database.Product) error {
	return createRow(m, m.products, product, &product.ID, &product.CreatedAt, &product.UpdatedAt)
}

func (m *MockDB) GetProduct(ctx context.Context, id string) (*database.Product, error) {
	return getRow(m, m.products, id)
}

func (m *MockDB) GetProducts(ctx context.Context) ([]database.Product, error) {
	rows, err := listRows(m, m.products)
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, err
}

func (m *MockDB) UpdateProduct(ctx context.Context, id string, fields map[string]any) (*database.Product, error) {
	return updateRow(m, m.products, id, func(p *database.Product) {
		setString(fields, "name", &p.Name)
		setString(fields, "description", &p.Description)
		setString(fields, "price", &p.Price)
		setString(fields, "image_url", &p.ImageURL)
		setString(fields, "mercado_libre_url", &p.MercadoLibreURL)
		p.UpdatedAt = time.Now()
	})
}

func (m *MockDB) DeleteProduct(ctx context.Context, id string) error {
	return deleteRow(m, m.products, id)
}

func (m *MockDB) CreateEvent(ctx context.Context, event *database.Event) error {
	return createRow(m, m.events, event, &event.ID, &event.CreatedAt, &event.UpdatedAt)
}

func (m *MockDB) GetEvent(ctx context.Context, id string) (*database.Event, error) {
	return getRow(m, m.events, id)
}

func (m *MockDB) GetEvents(ctx context.Context) ([]database.Event, error) {
	rows, err := listRows(m, m.events)
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Day < b.Day
	})
	return rows, err
}

func (m *MockDB) UpdateEvent(ctx context.Context, id string, fields map[string]any) (*database.Event, error) {
	return updateRow(m, m.events, id, func(e *database.Event) {
		setString(fields, "title", &e.Title)
		setInt(fields, "day", &e.Day)
		setInt(fields, "month", &e.Month)
		setInt(fields, "year", &e.Year)
		setString(fields, "time", &e.Time)
		setString(fields, "description", &e.Description)
		setString(fields, "address", &e.Address)
		setString(fields, "image_url", &e.ImageURL)
		e.UpdatedAt = time.Now()
	})
}

func (m *MockDB) DeleteEvent(ctx context.Context, id string) error {
	return deleteRow(m, m.events, id)
}

func (m *MockDB) CreateManual(ctx context.Context, manual *database.Manual) error {
	return createRow(m, m.manuals, manual, &manual.ID, &manual.CreatedAt, &manual.UpdatedAt)
}

func (m *MockDB) GetManual(ctx context.Context, id string) (*database.Manual, error) {
	return getRow(m, m.manuals, id)
}

func (m *MockDB) GetManuals(ctx context.Context) ([]database.Manual, error) {
	rows, err := listRows(m, m.manuals)
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, err
}

func (m *MockDB) UpdateManual(ctx context.Context, id string, fields map[string]any) (*database.Manual, error) {
	return updateRow(m, m.manuals, id, func(man *database.Manual) {
		setString(fields, "title", &man.Title)
		setString(fields, "brand", &man.Brand)
		setString(fields, "model", &man.Model)
		setString(fields, "year", &man.Year)
		setString(fields, "file_name", &man.FileName)
		setString(fields, "file_type", &man.FileType)
		setString(fields, "file_url", &man.FileURL)
		if v, ok := fields["file_size"].(int64); ok {
			man.FileSize = v
		}
		man.UpdatedAt = time.Now()
	})
}

func (m *MockDB) DeleteManual(ctx context.Context, id string) error {
	return deleteRow(m, m.manuals, id)
}

func (m *MockDB) CreateSection(ctx context.Context, section *database.Section) error {
	return createRow(m, m.sections, section, &section.ID, &section.CreatedAt, &section.UpdatedAt)
}

func (m *MockDB) GetSection(ctx context.Context, id string) (*database.Section, error) {
	return getRow(m, m.sections, id)
}

func (m *MockDB) GetSections(ctx context.Context) ([]database.Section, error) {
	rows, err := listRows(m, m.sections)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows, err
}

func (m *MockDB) UpdateSection(ctx context.Context, id string, fields map[string]any) (*database.Section, error) {
	return updateRow(m, m.sections, id, func(s *database.Section) {
		setString(fields, "title", &s.Title)
		setString(fields, "description", &s.Description)
		setString(fields, "image_url", &s.ImageURL)
		setInt(fields, "sort_order", &s.Order)
		s.UpdatedAt = time.Now()
	})
}

func (m *MockDB) DeleteSection(ctx context.Context, id string) error {
	return deleteRow(m, m.sections, id)
}

func createRow[T any](m *MockDB, rows map[string]*T, row *T, id *string, created, updated *time.Time) error {
	if m.CatalogError != nil {
		return m.CatalogError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now()
	*created = now
	*updated = now
	stored := *row
	rows[*id] = &stored
	return nil
}

func getRow[T any](m *MockDB, rows map[string]*T, id string) (*T, error) {
	if m.CatalogError != nil {
		return nil, m.CatalogError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func listRows[T any](m *MockDB, rows map[string]*T) ([]T, error) {
	if m.CatalogError != nil {
		return nil, m.CatalogError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func updateRow[T any](m *MockDB, rows map[string]*T, id string, apply func(*T)) (*T, error) {
	if m.CatalogError != nil {
		return nil, m.CatalogError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	apply(row)
	clone := *row
	return &clone, nil
}

func deleteRow[T any](m *MockDB, rows map[string]*T, id string) error {
	if m.CatalogError != nil {
		return m.CatalogError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := rows[id]; !ok {
		return database.ErrNotFound
	}
	delete(rows, id)
	return nil
}

func setString(fields map[string]any, key string, dst *string) {
	if v, ok := fields[key].(string); ok {
		*dst = v
	}
}

func setInt(fields map[string]any, key string, dst *int) {
	if v, ok := fields[key].(int); ok {
		*dst = v
	}
}
