package local

import (
	"context"

	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore"
)

type productFields struct {
	Name            *string `mapstructure:"name"`
	Description     *string `mapstructure:"description"`
	Price           *string `mapstructure:"price"`
	ImageURL        *string `mapstructure:"imageUrl" validate:"omitempty,url"`
	MercadoLibreURL *string `mapstructure:"mercadoLibreUrl" validate:"omitempty,url"`
}

func (f productFields) columns() map[string]any {
	cols := map[string]any{}
	putString(cols, "name", f.Name)
	putString(cols, "description", f.Description)
	putString(cols, "price", f.Price)
	putString(cols, "image_url", f.ImageURL)
	putString(cols, "mercado_libre_url", f.MercadoLibreURL)
	return cols
}

type eventFields struct {
	Title       *string `mapstructure:"title"`
	Day         *int    `mapstructure:"date" validate:"omitempty,min=1,max=31"`
	Month       *int    `mapstructure:"month" validate:"omitempty,min=0,max=11"`
	Year        *int    `mapstructure:"year" validate:"omitempty,min=1900"`
	Time        *string `mapstructure:"time"`
	Description *string `mapstructure:"description"`
	Address     *string `mapstructure:"address"`
	ImageURL    *string `mapstructure:"imageUrl"`
}

func (f eventFields) columns() map[string]any {
	cols := map[string]any{}
	putString(cols, "title", f.Title)
	putInt(cols, "day", f.Day)
	putInt(cols, "month", f.Month)
	putInt(cols, "year", f.Year)
	putString(cols, "time", f.Time)
	putString(cols, "description", f.Description)
	putString(cols, "address", f.Address)
	putString(cols, "image_url", f.ImageURL)
	return cols
}

type manualFields struct {
	Title    *string `mapstructure:"title"`
	Brand    *string `mapstructure:"brand"`
	Model    *string `mapstructure:"model"`
	Year     *string `mapstructure:"year"`
	FileName *string `mapstructure:"fileName"`
	FileType *string `mapstructure:"fileType"`
	FileSize *int64  `mapstructure:"fileSize" validate:"omitempty,min=0"`
	FileURL  *string `mapstructure:"fileUrl"`
}

func (f manualFields) columns() map[string]any {
	cols := map[string]any{}
	putString(cols, "title", f.Title)
	putString(cols, "brand", f.Brand)
	putString(cols, "model", f.Model)
	putString(cols, "year", f.Year)
	putString(cols, "file_name", f.FileName)
	putString(cols, "file_type", f.FileType)
	putString(cols, "file_url", f.FileURL)
	if f.FileSize != nil {
		cols["file_size"] = *f.FileSize
	}
	return cols
}

type sectionFields struct {
	Title       *string `mapstructure:"title"`
	Description *string `mapstructure:"description"`
	ImageURL    *string `mapstructure:"imageUrl"`
	Order       *int    `mapstructure:"order" validate:"omitempty,min=0"`
}

func (f sectionFields) columns() map[string]any {
	cols := map[string]any{}
	putString(cols, "title", f.Title)
	putString(cols, "description", f.Description)
	putString(cols, "image_url", f.ImageURL)
	putInt(cols, "sort_order", f.Order)
	return cols
}

func putString(cols map[string]any, key string, v *string) {
	if v != nil {
		cols[key] = *v
	}
}

func putInt(cols map[string]any, key string, v *int) {
	if v != nil {
		cols[key] = *v
	}
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func (s *Store) createCatalog(ctx context.Context, collection string, fields recordstore.Record, creator string) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionProducts:
		var f productFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		if deref(f.Name) == "" {
			return nil, recordstore.NewFieldError("name", "validation_required")
		}
		p := &database.Product{
			Name:            deref(f.Name),
			Description:     deref(f.Description),
			Price:           deref(f.Price),
			ImageURL:        deref(f.ImageURL),
			MercadoLibreURL: deref(f.MercadoLibreURL),
			CreatedBy:       creator,
		}
		if err := s.db.CreateProduct(ctx, p); err != nil {
			return nil, translate(err)
		}
		return productRecord(p), nil

	case recordstore.CollectionEvents:
		var f eventFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		if deref(f.Title) == "" {
			return nil, recordstore.NewFieldError("title", "validation_required")
		}
		if f.Day == nil || f.Month == nil || f.Year == nil {
			return nil, recordstore.NewFieldError("date", "validation_required")
		}
		e := &database.Event{
			Title:       deref(f.Title),
			Day:         *f.Day,
			Month:       *f.Month,
			Year:        *f.Year,
			Time:        deref(f.Time),
			Description: deref(f.Description),
			Address:     deref(f.Address),
			ImageURL:    deref(f.ImageURL),
		}
		if err := s.db.CreateEvent(ctx, e); err != nil {
			return nil, translate(err)
		}
		return eventRecord(e), nil

	case recordstore.CollectionManuals:
		var f manualFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		if deref(f.Title) == "" {
			return nil, recordstore.NewFieldError("title", "validation_required")
		}
		m := &database.Manual{
			Title:     deref(f.Title),
			Brand:     deref(f.Brand),
			Model:     deref(f.Model),
			Year:      deref(f.Year),
			FileName:  deref(f.FileName),
			FileType:  deref(f.FileType),
			FileSize:  deref(f.FileSize),
			FileURL:   deref(f.FileURL),
			CreatedBy: creator,
		}
		if err := s.db.CreateManual(ctx, m); err != nil {
			return nil, translate(err)
		}
		return manualRecord(m), nil

	default:
		var f sectionFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		if deref(f.Title) == "" {
			return nil, recordstore.NewFieldError("title", "validation_required")
		}
		sec := &database.Section{
			Title:       deref(f.Title),
			Description: deref(f.Description),
			ImageURL:    deref(f.ImageURL),
			Order:       deref(f.Order),
		}
		if err := s.db.CreateSection(ctx, sec); err != nil {
			return nil, translate(err)
		}
		return sectionRecord(sec), nil
	}
}

func (s *Store) getCatalog(ctx context.Context, collection, id string) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionProducts:
		p, err := s.db.GetProduct(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		return productRecord(p), nil
	case recordstore.CollectionEvents:
		e, err := s.db.GetEvent(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		return eventRecord(e), nil
	case recordstore.CollectionManuals:
		m, err := s.db.GetManual(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		return manualRecord(m), nil
	default:
		sec, err := s.db.GetSection(ctx, id)
		if err != nil {
			return nil, translate(err)
		}
		return sectionRecord(sec), nil
	}
}

func (s *Store) listCatalog(ctx context.Context, collection string) ([]recordstore.Record, error) {
	var records []recordstore.Record
	switch collection {
	case recordstore.CollectionProducts:
		rows, err := s.db.GetProducts(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for i := range rows {
			records = append(records, productRecord(&rows[i]))
		}
	case recordstore.CollectionEvents:
		rows, err := s.db.GetEvents(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for i := range rows {
			records = append(records, eventRecord(&rows[i]))
		}
	case recordstore.CollectionManuals:
		rows, err := s.db.GetManuals(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for i := range rows {
			records = append(records, manualRecord(&rows[i]))
		}
	default:
		rows, err := s.db.GetSections(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for i := range rows {
			records = append(records, sectionRecord(&rows[i]))
		}
	}
	if records == nil {
		records = []recordstore.Record{}
	}
	return records, nil
}

func (s *Store) updateCatalog(ctx context.Context, collection, id string, fields recordstore.Record) (recordstore.Record, error) {
	switch collection {
	case recordstore.CollectionProducts:
		var f productFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		p, err := s.db.UpdateProduct(ctx, id, f.columns())
		if err != nil {
			return nil, translate(err)
		}
		return productRecord(p), nil
	case recordstore.CollectionEvents:
		var f eventFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		e, err := s.db.UpdateEvent(ctx, id, f.columns())
		if err != nil {
			return nil, translate(err)
		}
		return eventRecord(e), nil
	case recordstore.CollectionManuals:
		var f manualFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		m, err := s.db.UpdateManual(ctx, id, f.columns())
		if err != nil {
			return nil, translate(err)
		}
		return manualRecord(m), nil
	default:
		var f sectionFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		sec, err := s.db.UpdateSection(ctx, id, f.columns())
		if err != nil {
			return nil, translate(err)
		}
		return sectionRecord(sec), nil
	}
}

func (s *Store) deleteCatalog(ctx context.Context, collection, id string) error {
	var err error
	switch collection {
	case recordstore.CollectionProducts:
		err = s.db.DeleteProduct(ctx, id)
	case recordstore.CollectionEvents:
		err = s.db.DeleteEvent(ctx, id)
	case recordstore.CollectionManuals:
		err = s.db.DeleteManual(ctx, id)
	default:
		err = s.db.DeleteSection(ctx, id)
	}
	if err != nil {
		return translate(err)
	}
	return nil
}

func productRecord(p *database.Product) recordstore.Record {
	return recordstore.Record{
		"id":              p.ID,
		"name":            p.Name,
		"description":     p.Description,
		"price":           p.Price,
		"imageUrl":        p.ImageURL,
		"mercadoLibreUrl": p.MercadoLibreURL,
		"createdBy":       p.CreatedBy,
		"created":         p.CreatedAt,
		"updated":         p.UpdatedAt,
	}
}

func eventRecord(e *database.Event) recordstore.Record {
	return recordstore.Record{
		"id":          e.ID,
		"title":       e.Title,
		"date":        e.Day,
		"month":       e.Month,
		"year":        e.Year,
		"time":        e.Time,
		"description": e.Description,
		"address":     e.Address,
		"imageUrl":    e.ImageURL,
		"created":     e.CreatedAt,
		"updated":     e.UpdatedAt,
	}
}

func manualRecord(m *database.Manual) recordstore.Record {
	return recordstore.Record{
		"id":        m.ID,
		"title":     m.Title,
		"brand":     m.Brand,
		"model":     m.Model,
		"year":      m.Year,
		"fileName":  m.FileName,
		"fileType":  m.FileType,
		"fileSize":  m.FileSize,
		"fileUrl":   m.FileURL,
		"createdBy": m.CreatedBy,
		"created":   m.CreatedAt,
		"updated":   m.UpdatedAt,
	}
}

func sectionRecord(sec *database.Section) recordstore.Record {
	return recordstore.Record{
		"id":          sec.ID,
		"title":       sec.Title,
		"description": sec.Description,
		"imageUrl":    sec.ImageURL,
		"order":       sec.Order,
		"created":     sec.CreatedAt,
		"updated":     sec.UpdatedAt,
	}
}
