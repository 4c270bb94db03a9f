package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/clubhub/internal/api/auth"
	"github.com/jon4hz/clubhub/internal/api/models"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/session"
	"github.com/jon4hz/clubhub/internal/version"
)

type Handler struct {
	db     database.DB
	config *config.Config
}

func New(db database.DB, cfg *config.Config) *Handler {
	return &Handler{
		db:     db,
		config: cfg,
	}
}

// Health reports whether the server can reach its database.
func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		log.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    http.StatusServiceUnavailable,
			"message": "database unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "API is healthy.",
		"version": version.Version,
	})
}

// Session returns the state of the visitor's session.
func (h *Handler) Session(c *gin.Context) {
	v := auth.GetVisitor(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": models.ToSession(v.Snapshot(), h.config.Gravatar),
	})
}

// Login authenticates the visitor.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "username and password are required",
		})
		return
	}

	v := auth.GetVisitor(c)
	if err := v.Login(c.Request.Context(), req.Identifier, req.Password); err != nil {
		respondSessionError(c, err)
		return
	}
	h.saveToken(c, v)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": models.ToSession(v.Snapshot(), h.config.Gravatar),
	})
}

// Logout clears the visitor's identity.
func (h *Handler) Logout(c *gin.Context) {
	v := auth.GetVisitor(c)
	if err := v.Logout(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	h.saveToken(c, v)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Register creates a new member account.
func (h *Handler) Register(c *gin.Context) {
	var in session.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	v := auth.GetVisitor(c)
	if err := v.Register(c.Request.Context(), in); err != nil {
		respondSessionError(c, err)
		return
	}
	h.saveToken(c, v)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Account created successfully",
		"session": models.ToSession(v.Snapshot(), h.config.Gravatar),
	})
}

func (h *Handler) saveToken(c *gin.Context, v *session.Visitor) {
	if err := auth.SaveToken(c, v); err != nil {
		log.Error("Failed to save session token", "error", err)
	}
}

func sessionStatus(kind session.Kind) int {
	switch kind {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindAuthentication:
		return http.StatusUnauthorized
	case session.KindAuthorization:
		return http.StatusForbidden
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindConflict:
		return http.StatusConflict
	case session.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondSessionError(c *gin.Context, err error) {
	c.JSON(sessionStatus(session.KindOf(err)), gin.H{
		"success": false,
		"error":   session.MessageOf(err),
	})
}

// storeStatus maps a record store error to an HTTP status and a message safe to show.
func storeStatus(err error) (int, string) {
	var fe *recordstore.FieldError
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, fe.Error()
	case errors.Is(err, recordstore.ErrValidation):
		return http.StatusBadRequest, "invalid data"
	case errors.Is(err, recordstore.ErrInvalidCredentials):
		return http.StatusBadRequest, "Failed to authenticate."
	case errors.Is(err, recordstore.ErrUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, recordstore.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, recordstore.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, recordstore.ErrConflict):
		return http.StatusConflict, "already exists"
	}
	return http.StatusBadGateway, "the record store is unavailable"
}

func respondStoreError(c *gin.Context, err error) {
	status, msg := storeStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Record store request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}
