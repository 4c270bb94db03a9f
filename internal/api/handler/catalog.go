package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jon4hz/clubhub/internal/api/auth"
	"github.com/jon4hz/clubhub/internal/api/models"
	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/samber/lo"
)

// CatalogHandler serves the catalog collections.
type CatalogHandler struct {
	Products *Resource[catalog.Product, catalog.Product]
	Events   *Resource[catalog.Event, models.Event]
	Manuals  *Resource[catalog.Manual, models.Manual]
	Sections *Resource[catalog.Section, catalog.Section]
}

func NewCatalog(svc *catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		Products: &Resource[catalog.Product, catalog.Product]{
			service: svc,
			single:  "product",
			plural:  "products",
			pick:    func(c *catalog.Catalog) *catalog.Collection[catalog.Product] { return c.Products },
			view:    func(p catalog.Product) catalog.Product { return p },
		},
		Events: &Resource[catalog.Event, models.Event]{
			service: svc,
			single:  "event",
			plural:  "events",
			pick:    func(c *catalog.Catalog) *catalog.Collection[catalog.Event] { return c.Events },
			view:    models.ToEvent,
			filter:  eventsInMonth,
		},
		Manuals: &Resource[catalog.Manual, models.Manual]{
			service: svc,
			single:  "manual",
			plural:  "manuals",
			pick:    func(c *catalog.Catalog) *catalog.Collection[catalog.Manual] { return c.Manuals },
			view:    models.ToManual,
		},
		Sections: &Resource[catalog.Section, catalog.Section]{
			service: svc,
			single:  "section",
			plural:  "sections",
			pick:    func(c *catalog.Catalog) *catalog.Collection[catalog.Section] { return c.Sections },
			view:    func(s catalog.Section) catalog.Section { return s },
		},
	}
}

// Resource exposes one catalog collection over HTTP. T is the stored item, V its JSON view.
type Resource[T catalog.Item, V any] struct {
	service *catalog.Service
	single  string
	plural  string
	pick    func(*catalog.Catalog) *catalog.Collection[T]
	view    func(T) V
	filter  func(*gin.Context, []T) ([]T, error)
}

// the collection acts as the visitor's identity
func (r *Resource[T, V]) collection(c *gin.Context) *catalog.Collection[T] {
	return r.pick(r.service.For(auth.GetVisitor(c).Client))
}

// List returns the collection, narrowed by the "q" search query.
func (r *Resource[T, V]) List(c *gin.Context) {
	coll := r.collection(c)

	var (
		items []T
		err   error
	)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		items, err = coll.Search(c.Request.Context(), q)
	} else {
		items, err = coll.List(c.Request.Context())
	}
	if err != nil {
		respondStoreError(c, err)
		return
	}

	if r.filter != nil {
		if items, err = r.filter(c, items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		r.plural:  lo.Map(items, func(item T, _ int) V { return r.view(item) }),
	})
}

func (r *Resource[T, V]) Get(c *gin.Context) {
	item, err := r.collection(c).Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		r.single:  r.view(item),
	})
}

func (r *Resource[T, V]) Create(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	item, err := r.collection(c).Create(c.Request.Context(), fields)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		r.single:  r.view(item),
	})
}

func (r *Resource[T, V]) Update(c *gin.Context) {
	fields, ok := bindFields(c)
	if !ok {
		return
	}
	item, err := r.collection(c).Update(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		r.single:  r.view(item),
	})
}

func (r *Resource[T, V]) Delete(c *gin.Context) {
	if err := r.collection(c).Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Deleted successfully",
	})
}

// Register adds the routes of the resource. Writes go to the admin group.
func (r *Resource[T, V]) Register(public, admin *gin.RouterGroup) {
	public.GET("/"+r.plural, r.List)
	public.GET("/"+r.plural+"/:id", r.Get)
	admin.POST("/"+r.plural, r.Create)
	admin.PATCH("/"+r.plural+"/:id", r.Update)
	admin.DELETE("/"+r.plural+"/:id", r.Delete)
}

func bindFields(c *gin.Context) (recordstore.Record, bool) {
	var fields recordstore.Record
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return nil, false
	}
	return fields, true
}

// eventsInMonth applies the optional year and month (0-11) query parameters.
func eventsInMonth(c *gin.Context, events []catalog.Event) ([]catalog.Event, error) {
	yearParam, monthParam := c.Query("year"), c.Query("month")
	if yearParam == "" && monthParam == "" {
		return events, nil
	}
	year, err := strconv.Atoi(yearParam)
	if err != nil {
		return nil, errInvalidQuery("year")
	}
	month, err := strconv.Atoi(monthParam)
	if err != nil || month < 0 || month > 11 {
		return nil, errInvalidQuery("month")
	}
	return catalog.InMonth(events, year, month), nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string { return "invalid " + string(e) }
