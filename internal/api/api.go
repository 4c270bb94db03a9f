// Package api is the HTTP server of clubhub: the browser facing JSON API and the record store surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/clubhub/internal/api/auth"
	"github.com/jon4hz/clubhub/internal/api/handler"
	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/notify/email"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
	"github.com/jon4hz/clubhub/internal/scheduler"
	"github.com/jon4hz/clubhub/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the server is built on. Scheduler may be nil.
type Deps struct {
	DB        database.DB
	Signer    *local.Signer
	Registry  *session.Registry
	Catalog   *catalog.Service
	Email     *email.Service
	Scheduler *scheduler.Scheduler
}

type Server struct {
	cfg       *config.Config
	ginEngine *gin.Engine
	deps      Deps
	visitors  *auth.Middleware
}

func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.DB == nil || deps.Signer == nil || deps.Registry == nil || deps.Catalog == nil || deps.Email == nil {
		return nil, fmt.Errorf("missing server dependencies")
	}

	factory := auth.NewLocalVisitorFactory(deps.DB, deps.Signer, cfg.Auth)

	s := &Server{
		cfg:       cfg,
		ginEngine: gin.New(),
		deps:      deps,
		visitors:  auth.NewMiddleware(deps.Registry, factory),
	}
	s.ginEngine.Use(gin.Recovery(), requestLogger())
	s.setupSession()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupSession() {
	store := cookie.NewStore([]byte(s.cfg.SessionKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   s.cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecurePort(),
		SameSite: http.SameSiteLaxMode,
	})
	s.ginEngine.Use(sessions.Sessions("clubhub_session", store))
}

func (s *Server) setupRoutes() {
	s.ginEngine.Use(gzip.Gzip(gzip.DefaultCompression))

	h := handler.New(s.deps.DB, s.cfg)
	admin := handler.NewAdmin(s.cfg, s.deps.Catalog, s.deps.Email, s.deps.Scheduler)
	cat := handler.NewCatalog(s.deps.Catalog)
	records := handler.NewRecords(s.deps.DB, s.deps.Signer,
		local.WithDemoAcceptAnySecret(s.cfg.Auth.DemoAcceptAnySecret),
		local.WithMinPasswordLength(s.cfg.Auth.MinPasswordLength),
	)

	api := s.ginEngine.Group("/api")
	api.GET("/health", h.Health)
	records.Register(api)

	web := api.Group("")
	web.Use(s.visitors.Visitor())
	web.GET("/session", h.Session)
	web.POST("/auth/login", h.Login)
	web.POST("/auth/logout", h.Logout)
	web.POST("/auth/register", h.Register)

	protected := web.Group("")
	protected.Use(auth.RequireAuth(), auth.RequireAdmin())

	cat.Products.Register(web, protected)
	cat.Events.Register(web, protected)
	cat.Manuals.Register(web, protected)
	cat.Sections.Register(web, protected)

	protected.GET("/users", admin.Users)
	protected.POST("/users/refresh", admin.RefreshUsers)
	protected.PATCH("/users/:id/role", admin.UpdateUserRole)
	protected.POST("/users/:id/toggle-status", admin.ToggleUserStatus)
	protected.POST("/emails/send", admin.SendMassEmail)

	protected.GET("/admin/jobs", admin.Jobs)
	protected.POST("/admin/jobs/:id/run", admin.RunJob)
	protected.GET("/admin/cache/stats", admin.CacheStats)
	protected.POST("/admin/cache/flush", admin.FlushCache)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "listen", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
