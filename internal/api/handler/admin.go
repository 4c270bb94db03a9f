package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/clubhub/internal/api/auth"
	"github.com/jon4hz/clubhub/internal/api/models"
	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/notify/email"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/scheduler"
	"github.com/samber/lo"
)

type AdminHandler struct {
	config    *config.Config
	catalog   *catalog.Service
	email     *email.Service
	scheduler *scheduler.Scheduler
}

func NewAdmin(cfg *config.Config, cat *catalog.Service, mailer *email.Service, sched *scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{
		config:    cfg,
		catalog:   cat,
		email:     mailer,
		scheduler: sched,
	}
}

// Users returns the roster as last loaded by the session.
func (h *AdminHandler) Users(c *gin.Context) {
	v := auth.GetVisitor(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   models.ToUsers(v.Users(), h.config.Gravatar),
	})
}

// RefreshUsers reloads the roster from the record store.
func (h *AdminHandler) RefreshUsers(c *gin.Context) {
	v := auth.GetVisitor(c)
	if err := v.RefreshUsers(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   models.ToUsers(v.Users(), h.config.Gravatar),
	})
}

// UpdateUserRole changes the role of a member.
func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	var req models.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	v := auth.GetVisitor(c)
	if err := v.UpdateUserRole(c.Request.Context(), c.Param("id"), recordstore.Role(req.Role)); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Role updated successfully",
		"users":   models.ToUsers(v.Users(), h.config.Gravatar),
	})
}

// ToggleUserStatus activates or deactivates a member.
func (h *AdminHandler) ToggleUserStatus(c *gin.Context) {
	v := auth.GetVisitor(c)
	if err := v.ToggleUserStatus(c.Request.Context(), c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Status updated successfully",
		"users":   models.ToUsers(v.Users(), h.config.Gravatar),
	})
}

// SendMassEmail sends a message to every active member that opted in to notifications.
func (h *AdminHandler) SendMassEmail(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "subject and message are required",
		})
		return
	}

	v := auth.GetVisitor(c)
	if err := v.RefreshUsers(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	recipients := lo.FilterMap(v.Users(), func(u recordstore.User, _ int) (email.Recipient, bool) {
		return email.Recipient{Email: u.Email, Name: u.Name}, u.IsActive && u.EmailNotifications && u.Email != ""
	})
	if len(recipients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "no members with email notifications enabled",
		})
		return
	}

	result, err := h.email.SendMassEmail(c.Request.Context(), email.Message{Subject: req.Subject, Body: req.Message}, recipients)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, email.ErrNotConfigured):
			status = http.StatusServiceUnavailable
		case errors.Is(err, email.ErrInvalidMessage):
			status = http.StatusBadRequest
		default:
			log.Error("Failed to send mass email", "error", err)
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Summary(),
		"results": result,
	})
}

// Jobs lists the maintenance jobs.
func (h *AdminHandler) Jobs(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "jobs": []scheduler.JobInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobs":    h.scheduler.Jobs(),
	})
}

// RunJob triggers a maintenance job.
func (h *AdminHandler) RunJob(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "scheduler not running"})
		return
	}
	id := c.Param("id")
	if _, ok := h.scheduler.Job(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Job not found",
		})
		return
	}
	if err := h.scheduler.RunJobNow(id); err != nil {
		log.Error("Failed to trigger job", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job triggered",
	})
}

// CacheStats returns the statistics of the catalog caches.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"caches":  h.catalog.Stats(),
	})
}

// FlushCache drops the cached catalog listings.
func (h *AdminHandler) FlushCache(c *gin.Context) {
	if err := h.catalog.Flush(c.Request.Context()); err != nil {
		log.Error("Failed to flush catalog cache", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to flush cache",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cache flushed",
	})
}
