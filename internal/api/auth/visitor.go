// Package auth ties browser sessions to Session Cores and guards the routes.
package auth

import (
	"github.com/charmbracelet/log"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/gate"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
	"github.com/jon4hz/clubhub/internal/session"
)

// VisitorFactory creates the visitor of a new browser session. token is the persisted
// record store token from the cookie, possibly empty.
type VisitorFactory func(token string) *session.Visitor

// PolicyFromConfig returns the registration policy configured for the server.
func PolicyFromConfig(cfg *config.AuthConfig) session.Policy {
	return session.Policy{
		MinSecretLength:    cfg.MinPasswordLength,
		RequireUppercase:   cfg.RequireUppercase,
		RequireDigit:       cfg.RequireDigit,
		RequireTerms:       cfg.RequireTerms,
		LoginAfterRegister: cfg.LoginAfterRegister,
	}
}

// NewLocalVisitorFactory returns a factory of visitors backed by the in-process record store.
// All visitors share the connection gate.
func NewLocalVisitorFactory(db database.DB, signer *local.Signer, cfg *config.AuthConfig) VisitorFactory {
	conn := local.New(db, signer, recordstore.NewMemoryTokenStore(""))
	g := gate.New(conn.Connect)
	policy := PolicyFromConfig(cfg)
	logger := log.Default().WithPrefix("session")

	return func(token string) *session.Visitor {
		tokens := recordstore.NewMemoryTokenStore(token)
		store := local.New(db, signer, tokens,
			local.WithDemoAcceptAnySecret(cfg.DemoAcceptAnySecret),
			local.WithMinPasswordLength(cfg.MinPasswordLength),
		)
		core := session.New(store,
			session.WithGate(g),
			session.WithPolicy(policy),
			session.WithLogger(logger),
		)
		return &session.Visitor{Core: core, Client: store, Tokens: tokens}
	}
}
