// Package catalog is the CRUD layer over the products, events, manuals and content sections collections.
// Listings are cached and dropped whenever the collection changes.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	"github.com/jon4hz/clubhub/internal/cache"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/samber/lo"
)

// Cache key prefixes.
const (
	ProductsCachePrefix = "products-"
	EventsCachePrefix   = "events-"
	ManualsCachePrefix  = "manuals-"
	SectionsCachePrefix = "sections-"
)

const listKey = "all"

// Item is a catalog entry that can be searched.
type Item interface {
	Matches(query string) bool
}

// Service owns the listing caches. Use For to operate on the store as a given identity.
type Service struct {
	products *cache.PrefixedCache[[]Product]
	events   *cache.PrefixedCache[[]Event]
	manuals  *cache.PrefixedCache[[]Manual]
	sections *cache.PrefixedCache[[]Section]
	log      *log.Logger
}

// New creates the catalog service with caches of the configured type.
func New(cfg *config.CacheConfig) *Service {
	store := cache.NewInstance(cfg)
	return &Service{
		products: cache.NewPrefixedCache[[]Product](store, cfg.Type, ProductsCachePrefix),
		events:   cache.NewPrefixedCache[[]Event](store, cfg.Type, EventsCachePrefix),
		manuals:  cache.NewPrefixedCache[[]Manual](store, cfg.Type, ManualsCachePrefix),
		sections: cache.NewPrefixedCache[[]Section](store, cfg.Type, SectionsCachePrefix),
		log:      log.Default().WithPrefix("catalog"),
	}
}

// Catalog is the set of collections bound to one record store client.
type Catalog struct {
	Products *Collection[Product]
	Events   *Collection[Event]
	Manuals  *Collection[Manual]
	Sections *Collection[Section]
}

// For binds the collections to client. The store decides what the client's identity may do.
func (s *Service) For(client recordstore.Client) *Catalog {
	return &Catalog{
		Products: &Collection[Product]{
			name:    recordstore.CollectionProducts,
			client:  client,
			listing: s.products,
			log:     s.log,
			compare: func(a, b Product) int { return b.Created.Compare(a.Created) },
		},
		Events: &Collection[Event]{
			name:    recordstore.CollectionEvents,
			client:  client,
			listing: s.events,
			log:     s.log,
			compare: func(a, b Event) int {
				return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month), cmp.Compare(a.Day, b.Day))
			},
		},
		Manuals: &Collection[Manual]{
			name:    recordstore.CollectionManuals,
			client:  client,
			listing: s.manuals,
			log:     s.log,
			compare: func(a, b Manual) int { return b.Created.Compare(a.Created) },
			prepare: func(fields recordstore.Record) {
				name, _ := fields["fileName"].(string)
				if _, ok := fields["fileType"]; !ok && name != "" {
					fields["fileType"] = FileTypeOf(name)
				}
			},
		},
		Sections: &Collection[Section]{
			name:    recordstore.CollectionSections,
			client:  client,
			listing: s.sections,
			log:     s.log,
			compare: func(a, b Section) int {
				return cmp.Or(cmp.Compare(a.Order, b.Order), a.Created.Compare(b.Created))
			},
		},
	}
}

// Flush drops every cached listing.
func (s *Service) Flush(ctx context.Context) error {
	return s.products.Clear(ctx)
}

// Stats returns the statistics of the listing caches.
func (s *Service) Stats() []*cache.Stats {
	return []*cache.Stats{
		s.products.GetStats(),
		s.events.GetStats(),
		s.manuals.GetStats(),
		s.sections.GetStats(),
	}
}

// Collection is a typed view of one catalog collection.
type Collection[T Item] struct {
	name    string
	client  recordstore.Client
	listing *cache.PrefixedCache[[]T]
	log     *log.Logger
	compare func(a, b T) int
	prepare func(recordstore.Record)
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// List returns all entries in display order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	if items, err := c.listing.Get(ctx, listKey); err == nil {
		return items, nil
	}

	records, err := c.client.ListRecords(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.name, err)
	}

	items := make([]T, 0, len(records))
	for _, r := range records {
		item, err := decode[T](r)
		if err != nil {
			c.log.Warn("skipping malformed record", "collection", c.name, "id", r.ID(), "error", err)
			continue
		}
		items = append(items, item)
	}
	slices.SortStableFunc(items, c.compare)

	if err := c.listing.Set(ctx, listKey, items); err != nil {
		c.log.Warn("failed to cache listing", "collection", c.name, "error", err)
	}
	return items, nil
}

// Search returns the entries matching query. An empty query matches everything.
func (c *Collection[T]) Search(ctx context.Context, query string) ([]T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return items, nil
	}
	return lo.Filter(items, func(item T, _ int) bool { return item.Matches(query) }), nil
}

// Get returns a single entry.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	r, err := c.client.GetRecord(ctx, c.name, id)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s %s: %w", c.name, id, err)
	}
	return decode[T](r)
}

// Create adds an entry.
func (c *Collection[T]) Create(ctx context.Context, fields recordstore.Record) (T, error) {
	var zero T
	fields = fields.Clone()
	if fields == nil {
		fields = recordstore.Record{}
	}
	if c.prepare != nil {
		c.prepare(fields)
	}
	r, err := c.client.CreateRecord(ctx, c.name, fields)
	if err != nil {
		return zero, fmt.Errorf("failed to create %s: %w", c.name, err)
	}
	c.invalidate(ctx)
	c.log.Info("record created", "collection", c.name, "id", r.ID())
	return decode[T](r)
}

// Update changes the given fields of an entry.
func (c *Collection[T]) Update(ctx context.Context, id string, fields recordstore.Record) (T, error) {
	var zero T
	r, err := c.client.UpdateRecord(ctx, c.name, id, fields)
	if err != nil {
		return zero, fmt.Errorf("failed to update %s %s: %w", c.name, id, err)
	}
	c.invalidate(ctx)
	c.log.Info("record updated", "collection", c.name, "id", id)
	return decode[T](r)
}

// Delete removes an entry.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.client.DeleteRecord(ctx, c.name, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", c.name, id, err)
	}
	c.invalidate(ctx)
	c.log.Info("record deleted", "collection", c.name, "id", id)
	return nil
}

func (c *Collection[T]) invalidate(ctx context.Context) {
	if err := c.listing.Delete(ctx, listKey); err != nil {
		c.log.Debug("failed to invalidate listing", "collection", c.name, "error", err)
	}
}

// InMonth returns the events of the given year and zero based month.
func InMonth(events []Event, year, month int) []Event {
	return lo.Filter(events, func(e Event, _ int) bool {
		return e.Year == year && e.Month == month
	})
}

func decode[T any](r recordstore.Record) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       recordstore.TimeHook(),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return out, fmt.Errorf("%w: %v", recordstore.ErrValidation, err)
	}
	return out, nil
}
