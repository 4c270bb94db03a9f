package catalog

import (
	"path/filepath"
	"strings"
	"time"
)

// Product is an item of the club shop.
type Product struct {
	ID              string    `json:"id" mapstructure:"id"`
	Name            string    `json:"name" mapstructure:"name"`
	Description     string    `json:"description" mapstructure:"description"`
	Price           string    `json:"price" mapstructure:"price"`
	ImageURL        string    `json:"imageUrl" mapstructure:"imageUrl"`
	MercadoLibreURL string    `json:"mercadoLibreUrl" mapstructure:"mercadoLibreUrl"`
	CreatedBy       string    `json:"createdBy" mapstructure:"createdBy"`
	Created         time.Time `json:"created" mapstructure:"created"`
	Updated         time.Time `json:"updated" mapstructure:"updated"`
}

// Matches reports whether the name or the description contains query, ignoring case.
func (p Product) Matches(query string) bool {
	return containsFold(p.Name, query) || containsFold(p.Description, query)
}

// Event is an entry of the club calendar. Month is zero based.
type Event struct {
	ID          string    `json:"id" mapstructure:"id"`
	Title       string    `json:"title" mapstructure:"title"`
	Day         int       `json:"date" mapstructure:"date"`
	Month       int       `json:"month" mapstructure:"month"`
	Year        int       `json:"year" mapstructure:"year"`
	Time        string    `json:"time" mapstructure:"time"`
	Description string    `json:"description" mapstructure:"description"`
	Address     string    `json:"address" mapstructure:"address"`
	ImageURL    string    `json:"imageUrl" mapstructure:"imageUrl"`
	Created     time.Time `json:"created" mapstructure:"created"`
	Updated     time.Time `json:"updated" mapstructure:"updated"`
}

// Date returns the day of the event at midnight UTC.
func (e Event) Date() time.Time {
	return time.Date(e.Year, time.Month(e.Month+1), e.Day, 0, 0, 0, 0, time.UTC)
}

// Matches reports whether the title, the description or the address contains query, ignoring case.
func (e Event) Matches(query string) bool {
	return containsFold(e.Title, query) || containsFold(e.Description, query) || containsFold(e.Address, query)
}

// Manual is a service manual of the library.
type Manual struct {
	ID        string    `json:"id" mapstructure:"id"`
	Title     string    `json:"title" mapstructure:"title"`
	Brand     string    `json:"brand" mapstructure:"brand"`
	Model     string    `json:"model" mapstructure:"model"`
	Year      string    `json:"year" mapstructure:"year"`
	FileName  string    `json:"fileName" mapstructure:"fileName"`
	FileType  string    `json:"fileType" mapstructure:"fileType"`
	FileSize  int64     `json:"fileSize" mapstructure:"fileSize"`
	FileURL   string    `json:"fileUrl" mapstructure:"fileUrl"`
	CreatedBy string    `json:"createdBy" mapstructure:"createdBy"`
	Created   time.Time `json:"created" mapstructure:"created"`
	Updated   time.Time `json:"updated" mapstructure:"updated"`
}

// Matches reports whether title, brand or model contain query ignoring case, or the year contains it.
func (m Manual) Matches(query string) bool {
	return containsFold(m.Title, query) ||
		containsFold(m.Brand, query) ||
		containsFold(m.Model, query) ||
		strings.Contains(m.Year, query)
}

// Section is a block of the public landing page. Sections are shown by ascending Order.
type Section struct {
	ID          string    `json:"id" mapstructure:"id"`
	Title       string    `json:"title" mapstructure:"title"`
	Description string    `json:"description" mapstructure:"description"`
	ImageURL    string    `json:"imageUrl" mapstructure:"imageUrl"`
	Order       int       `json:"order" mapstructure:"order"`
	Created     time.Time `json:"created" mapstructure:"created"`
	Updated     time.Time `json:"updated" mapstructure:"updated"`
}

// Matches reports whether the title or the description contains query, ignoring case.
func (s Section) Matches(query string) bool {
	return containsFold(s.Title, query) || containsFold(s.Description, query)
}

// FileTypeOf returns the display name of a document type based on its extension.
func FileTypeOf(fileName string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")) {
	case "pdf":
		return "PDF"
	case "doc", "docx":
		return "Word Document"
	case "txt":
		return "Text File"
	default:
		return "Unknown"
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
