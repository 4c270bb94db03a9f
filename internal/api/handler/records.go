package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
)

const (
	defaultPerPage = 30
	maxPerPage     = 500
)

// RecordsHandler serves the record store over its REST surface, so that other clubhub
// instances and the CLI can use this server as their remote store.
type RecordsHandler struct {
	db     database.DB
	signer *local.Signer
	opts   []local.Option
}

func NewRecords(db database.DB, signer *local.Signer, opts ...local.Option) *RecordsHandler {
	return &RecordsHandler{
		db:     db,
		signer: signer,
		opts:   opts,
	}
}

// store returns a store acting as the identity of the request's auth token.
func (h *RecordsHandler) store(c *gin.Context) *local.Store {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	return local.New(h.db, h.signer, recordstore.NewMemoryTokenStore(token), h.opts...)
}

type authWithPasswordRequest struct {
	Identity string `json:"identity" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthWithPassword authenticates a user and returns a fresh token.
func (h *RecordsHandler) AuthWithPassword(c *gin.Context) {
	if c.Param("collection") != recordstore.CollectionUsers {
		respondRecordError(c, recordstore.ErrNotFound)
		return
	}
	var req authWithPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondRecordError(c, recordstore.ErrInvalidCredentials)
		return
	}

	res, err := h.store(c).Authenticate(c.Request.Context(), req.Identity, req.Password)
	if err != nil {
		respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AuthRefresh exchanges a valid token for a new one.
func (h *RecordsHandler) AuthRefresh(c *gin.Context) {
	if c.Param("collection") != recordstore.CollectionUsers {
		respondRecordError(c, recordstore.ErrNotFound)
		return
	}
	record, err := h.store(c).PersistedIdentity(c.Request.Context())
	if err != nil {
		respondRecordError(c, err)
		return
	}
	if record == nil {
		respondRecordError(c, recordstore.ErrUnauthorized)
		return
	}

	role, _ := record["role"].(string)
	token, err := h.signer.Issue(record.ID(), role)
	if err != nil {
		respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordstore.AuthResult{Token: token, Record: record})
}

// List returns a page of records.
func (h *RecordsHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := min(queryInt(c, "perPage", defaultPerPage), maxPerPage)

	records, err := h.store(c).ListRecords(c.Request.Context(), c.Param("collection"))
	if err != nil {
		respondRecordError(c, err)
		return
	}

	total := len(records)
	totalPages := (total + perPage - 1) / perPage
	// pages past the end are empty, page is never multiplied beyond the last one
	start := total
	if page <= totalPages {
		start = (page - 1) * perPage
	}
	end := min(start+perPage, total)
	c.JSON(http.StatusOK, gin.H{
		"page":       page,
		"perPage":    perPage,
		"totalItems": total,
		"totalPages": totalPages,
		"items":      records[start:end],
	})
}

func (h *RecordsHandler) Create(c *gin.Context) {
	fields, ok := bindRecord(c)
	if !ok {
		return
	}
	record, err := h.store(c).CreateRecord(c.Request.Context(), c.Param("collection"), fields)
	if err != nil {
		respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordsHandler) Get(c *gin.Context) {
	record, err := h.store(c).GetRecord(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordsHandler) Update(c *gin.Context) {
	fields, ok := bindRecord(c)
	if !ok {
		return
	}
	record, err := h.store(c).UpdateRecord(c.Request.Context(), c.Param("collection"), c.Param("id"), fields)
	if err != nil {
		respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordsHandler) Delete(c *gin.Context) {
	if err := h.store(c).DeleteRecord(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		respondRecordError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Register adds the record routes under group.
func (h *RecordsHandler) Register(group *gin.RouterGroup) {
	collections := group.Group("/collections/:collection")
	collections.POST("/auth-with-password", h.AuthWithPassword)
	collections.POST("/auth-refresh", h.AuthRefresh)
	collections.GET("/records", h.List)
	collections.POST("/records", h.Create)
	collections.GET("/records/:id", h.Get)
	collections.PATCH("/records/:id", h.Update)
	collections.DELETE("/records/:id", h.Delete)
}

func bindRecord(c *gin.Context) (recordstore.Record, bool) {
	var fields recordstore.Record
	if err := c.ShouldBindJSON(&fields); err != nil {
		respondRecordError(c, recordstore.NewFieldError("body", "validation_invalid_json"))
		return nil, false
	}
	return fields, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

type fieldIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondRecordError writes the error body understood by the remote record store client.
func respondRecordError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong while processing your request."
	data := map[string]fieldIssue{}

	var fe *recordstore.FieldError
	switch {
	case errors.As(err, &fe):
		status = http.StatusBadRequest
		message = "Failed to process the record."
		for field, code := range fe.Fields {
			data[field] = fieldIssue{Code: code, Message: code}
		}
	case errors.Is(err, recordstore.ErrInvalidCredentials):
		status = http.StatusBadRequest
		message = "Failed to authenticate."
	case errors.Is(err, recordstore.ErrConflict):
		status = http.StatusBadRequest
		message = "Failed to process the record."
		data["record"] = fieldIssue{Code: "validation_not_unique", Message: "Value must be unique."}
	case errors.Is(err, recordstore.ErrUnauthorized):
		status = http.StatusUnauthorized
		message = "The request requires valid record authorization token."
	case errors.Is(err, recordstore.ErrForbidden):
		status = http.StatusForbidden
		message = "You are not allowed to perform this request."
	case errors.Is(err, recordstore.ErrNotFound):
		status = http.StatusNotFound
		message = "The requested resource wasn't found."
	case errors.Is(err, recordstore.ErrUnavailable):
		status = http.StatusServiceUnavailable
		log.Error("Record request failed", "path", c.Request.URL.Path, "error", err)
	default:
		log.Error("Record request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}
