package auth

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jon4hz/clubhub/internal/session"
)

// Cookie session keys.
const (
	VisitorIDKey  = "visitor_id"
	StoreTokenKey = "store_token"
)

const visitorContextKey = "visitor"

// Middleware resolves the visitor of every request.
type Middleware struct {
	registry *session.Registry
	factory  VisitorFactory
}

// NewMiddleware creates the visitor middleware.
func NewMiddleware(registry *session.Registry, factory VisitorFactory) *Middleware {
	return &Middleware{registry: registry, factory: factory}
}

// Visitor loads or creates the visitor bound to the cookie session and initializes its Core.
// An unreachable record store does not fail the request, the session reports it in its status.
func (m *Middleware) Visitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)

		id := getSessionString(cookie, VisitorIDKey)
		if id == "" {
			id = uuid.NewString()
			cookie.Set(VisitorIDKey, id)
			if err := cookie.Save(); err != nil {
				log.Error("Failed to save session", "error", err)
			}
		}

		token := getSessionString(cookie, StoreTokenKey)
		visitor, created := m.registry.GetOrCreate(id, func() *session.Visitor {
			return m.factory(token)
		})
		if created {
			log.Debug("New visitor session", "visitor", id, "restoring", token != "")
		}

		if err := visitor.Init(c.Request.Context()); err != nil {
			log.Warn("Session initialization failed", "visitor", id, "error", err)
		}
		// role and status may have changed since the visitor logged in
		if err := visitor.Revalidate(c.Request.Context()); err != nil {
			log.Warn("Session revalidation failed", "visitor", id, "error", err)
		}
		if visitor.Tokens.Load() != token {
			if err := SaveToken(c, visitor); err != nil {
				log.Error("Failed to save session token", "error", err)
			}
		}

		c.Set(visitorContextKey, visitor)
		c.Next()
	}
}

// GetVisitor returns the visitor resolved by the Visitor middleware.
func GetVisitor(c *gin.Context) *session.Visitor {
	return c.MustGet(visitorContextKey).(*session.Visitor)
}

// SaveToken mirrors the visitor's record store token into the cookie session.
func SaveToken(c *gin.Context, v *session.Visitor) error {
	cookie := sessions.Default(c)
	if token := v.Tokens.Load(); token != "" {
		cookie.Set(StoreTokenKey, token)
	} else {
		cookie.Delete(StoreTokenKey)
	}
	return cookie.Save()
}

// RequireAuth rejects requests without a logged in user.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetVisitor(c).CurrentUser(); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests of users that are not administrators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetVisitor(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "forbidden",
			})
			return
		}
		c.Next()
	}
}

func getSessionString(s sessions.Session, key string) string {
	if v, ok := s.Get(key).(string); ok {
		return v
	}
	return ""
}
