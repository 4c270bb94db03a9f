// Package session holds the per-visitor session: who is logged in, the user roster visible to
// them and whether they may administer users. All state changes go through the record store.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/clubhub/internal/gate"
	"github.com/jon4hz/clubhub/internal/recordstore"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusAuthenticated Status = "ready-authenticated"
	StatusAnonymous     Status = "ready-anonymous"
	StatusError         Status = "error"
)

// State is a point-in-time copy of the session.
type State struct {
	Status      Status             `json:"status"`
	Loading     bool               `json:"loading"`
	IsAdmin     bool               `json:"isAdmin"`
	CurrentUser *recordstore.User  `json:"currentUser"`
	Users       []recordstore.User `json:"users"`
}

// Core is the session of a single visitor.
type Core struct {
	users  *recordstore.Users
	gate   *gate.Gate
	log    *log.Logger
	policy Policy
	now    func() time.Time

	initMu  sync.Mutex
	pending *initCall

	mu      sync.RWMutex
	status  Status
	loading bool
	current *recordstore.User
	roster  []recordstore.User
	// epoch changes with every identity change, results of calls started under an older
	// identity are dropped
	epoch  uint64
	closed bool
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Core) { c.log = l }
}

// WithGate shares a connection gate between cores talking to the same store.
func WithGate(g *gate.Gate) Option {
	return func(c *Core) { c.gate = g }
}

// WithPolicy sets the registration policy.
func WithPolicy(p Policy) Option {
	return func(c *Core) { c.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// New returns a Core in the initializing state. Call Init before use.
func New(client recordstore.Client, opts ...Option) *Core {
	c := &Core{
		users:   recordstore.NewUsers(client),
		policy:  DefaultPolicy(),
		now:     time.Now,
		status:  StatusInitializing,
		loading: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.Default().WithPrefix("session")
	}
	if c.gate == nil {
		c.gate = gate.New(client.Connect)
	}
	return c
}

type initCall struct {
	done chan struct{}
	err  error
}

func (ic *initCall) failed() bool {
	select {
	case <-ic.done:
		return ic.err != nil
	default:
		return false
	}
}

// Init connects to the store and restores the persisted identity. Concurrent and repeated
// calls share one attempt; after a failed attempt the next call starts a new one.
// A failed restore leaves the session anonymous.
func (c *Core) Init(ctx context.Context) error {
	c.initMu.Lock()
	call := c.pending
	if call == nil || call.failed() {
		call = &initCall{done: make(chan struct{})}
		c.pending = call
		go func() {
			defer close(call.done)
			call.err = c.initialize(context.WithoutCancel(ctx))
		}()
	}
	c.initMu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) initialize(ctx context.Context) error {
	c.log.Debug("initializing session")
	c.update(func() {
		if c.status == StatusError {
			c.status = StatusInitializing
			c.loading = true
		}
	})

	if err := c.gate.Ensure(ctx); err != nil {
		c.log.Error("record store unreachable", "error", err)
		c.update(func() {
			if c.current == nil {
				c.status = StatusError
			}
			c.loading = false
		})
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	c.mu.RLock()
	start := c.epoch
	c.mu.RUnlock()

	user, err := c.users.Persisted(ctx)
	if err != nil {
		c.log.Warn("failed to restore session", "error", err)
		user = nil
	}

	if user == nil {
		c.updateIf(start, func() { c.status = StatusAnonymous })
		c.update(func() { c.loading = false })
		c.log.Debug("session initialized", "status", c.Status())
		return nil
	}

	epoch, ok := c.setIdentityIf(start, *user)
	if !ok {
		c.update(func() { c.loading = false })
		return nil
	}
	if err := c.loadRoster(ctx, epoch); err != nil {
		c.log.Warn("failed to load users after restoring session", "error", err)
	}
	c.update(func() { c.loading = false })
	c.log.Info("session restored", "user", user.Username, "role", user.Role)
	return nil
}

// Login authenticates and replaces the current identity.
func (c *Core) Login(ctx context.Context, identifier, secret string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return newError(KindValidation, msgCredentialsRequired, nil)
	}

	l := c.log.With("identifier", identifier)
	l.Info("login attempt")

	if err := c.gate.Ensure(ctx); err != nil {
		l.Error("login failed, record store unreachable", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	user, err := c.users.Authenticate(ctx, identifier, secret)
	if err != nil {
		if errors.Is(err, recordstore.ErrInvalidCredentials) {
			l.Warn("login failed, invalid credentials")
			return newError(KindAuthentication, msgInvalidCredentials, err)
		}
		l.Error("login failed", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	epoch, ok := c.setIdentity(user)
	if !ok {
		return nil
	}
	l.Info("login successful", "user_id", user.ID, "role", user.Role)

	c.stampLastLogin(ctx, user.ID, epoch)
	if err := c.loadRoster(ctx, epoch); err != nil {
		l.Warn("failed to load users after login", "error", err)
	}
	return nil
}

// stampLastLogin records the login time. Failures only get logged.
func (c *Core) stampLastLogin(ctx context.Context, id string, epoch uint64) {
	now := c.now().UTC()
	updated, err := c.users.Update(ctx, id, recordstore.UserPatch{LastLogin: &now})
	if err != nil {
		c.log.Warn("failed to record last login", "user_id", id, "error", err)
		return
	}
	c.updateIf(epoch, func() { c.current = &updated })
}

// Register creates a new account. The form is validated before the store is contacted.
func (c *Core) Register(ctx context.Context, in RegisterInput) error {
	if verr := c.policy.Validate(in); verr != nil {
		c.log.Debug("registration rejected", "reason", verr.Message)
		return verr
	}

	l := c.log.With("username", in.Username)
	l.Info("registration attempt")

	if err := c.gate.Ensure(ctx); err != nil {
		l.Error("registration failed, record store unreachable", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSpace(in.Username)
	}
	user, err := c.users.Create(ctx, recordstore.NewUser{
		Username:           strings.TrimSpace(in.Username),
		Email:              strings.TrimSpace(in.Email),
		Name:               name,
		Secret:             in.Secret,
		EmailNotifications: in.EmailNotifications,
	})
	if err != nil {
		switch {
		case errors.Is(err, recordstore.ErrConflict):
			l.Warn("registration failed, already registered")
			return newError(KindConflict, msgAlreadyRegistered, err)
		case errors.Is(err, recordstore.ErrValidation):
			l.Warn("registration rejected by record store", "error", err)
			return newError(KindValidation, "the registration data was rejected", err)
		}
		l.Error("registration failed", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}
	l.Info("user registered", "user_id", user.ID)

	if c.policy.LoginAfterRegister {
		return c.Login(ctx, in.Username, in.Secret)
	}
	if err := c.RefreshUsers(ctx); err != nil {
		l.Warn("failed to refresh users after registration", "error", err)
	}
	return nil
}

// Logout clears the identity, the roster and the persisted credential. It never fails.
func (c *Core) Logout(ctx context.Context) error {
	c.users.ClearPersisted()

	var username string
	c.update(func() {
		if c.current != nil {
			username = c.current.Username
		}
		c.epoch++
		c.current = nil
		c.roster = nil
		c.status = StatusAnonymous
		c.loading = false
	})
	if username != "" {
		c.log.Info("logout", "user", username)
	}
	return nil
}

// IsAdmin reports whether the current identity is an administrator.
func (c *Core) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil && c.current.IsAdmin()
}

// Revalidate checks the current identity against the store. A revoked credential or a
// deactivated account logs the session out, a changed role replaces the identity and
// reloads the roster. A transport failure keeps the identity and is returned.
func (c *Core) Revalidate(ctx context.Context) error {
	c.mu.RLock()
	current, epoch := c.current, c.epoch
	c.mu.RUnlock()
	if current == nil {
		return nil
	}

	if err := c.gate.Ensure(ctx); err != nil {
		return newError(KindTransport, msgStoreUnavailable, err)
	}
	user, err := c.users.Persisted(ctx)
	if err != nil {
		c.log.Warn("failed to revalidate session", "user", current.Username, "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	switch {
	case user == nil:
		c.mu.Lock()
		revoked := !c.closed && c.epoch == epoch
		if revoked {
			c.users.ClearPersisted()
			c.swapIdentity(nil)
			c.loading = false
		}
		c.mu.Unlock()
		if revoked {
			c.log.Warn("session revoked", "user", current.Username)
		}
	case user.ID != current.ID || user.Role != current.Role:
		next, ok := c.setIdentityIf(epoch, *user)
		if !ok {
			return nil
		}
		c.log.Info("session identity changed", "user", user.Username, "role", user.Role)
		if err := c.loadRoster(ctx, next); err != nil {
			c.log.Warn("failed to load users after identity change", "error", err)
		}
	default:
		c.updateIf(epoch, func() { c.current = user })
	}
	return nil
}

// UpdateUserRole changes the role of another user.
func (c *Core) UpdateUserRole(ctx context.Context, id string, role recordstore.Role) error {
	if _, err := recordstore.ParseRole(string(role)); err != nil {
		return newError(KindValidation, "unknown role", err)
	}
	if err := c.authorizeUserChange(id); err != nil {
		return err
	}

	l := c.log.With("target", id, "role", role)
	l.Info("role change attempt")

	if err := c.gate.Ensure(ctx); err != nil {
		l.Error("role change failed, record store unreachable", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}
	if _, err := c.users.Update(ctx, id, recordstore.UserPatch{Role: &role}); err != nil {
		l.Error("role change failed", "error", err)
		return mutationError(err)
	}
	l.Info("role changed")

	if err := c.RefreshUsers(ctx); err != nil {
		l.Warn("failed to refresh users after role change", "error", err)
	}
	return nil
}

// ToggleUserStatus activates an inactive user or deactivates an active one.
func (c *Core) ToggleUserStatus(ctx context.Context, id string) error {
	if err := c.authorizeUserChange(id); err != nil {
		return err
	}

	l := c.log.With("target", id)
	l.Info("status change attempt")

	if err := c.gate.Ensure(ctx); err != nil {
		l.Error("status change failed, record store unreachable", "error", err)
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	target, err := c.users.Get(ctx, id)
	if err != nil {
		l.Error("status change failed", "error", err)
		return mutationError(err)
	}
	active := !target.IsActive
	if _, err := c.users.Update(ctx, id, recordstore.UserPatch{IsActive: &active}); err != nil {
		l.Error("status change failed", "error", err)
		return mutationError(err)
	}
	l.Info("status changed", "active", active)

	if err := c.RefreshUsers(ctx); err != nil {
		l.Warn("failed to refresh users after status change", "error", err)
	}
	return nil
}

func (c *Core) authorizeUserChange(id string) *Error {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	if current == nil || !current.IsAdmin() {
		return newError(KindAuthorization, msgAdminOnly, nil)
	}
	if strings.TrimSpace(id) == "" {
		return newError(KindValidation, "a user id is required", nil)
	}
	if current.ID == id {
		return newError(KindAuthorization, msgSelfModification, nil)
	}
	return nil
}

func mutationError(err error) *Error {
	switch {
	case errors.Is(err, recordstore.ErrNotFound):
		return newError(KindNotFound, msgUserNotFound, err)
	case errors.Is(err, recordstore.ErrUnauthorized), errors.Is(err, recordstore.ErrForbidden):
		return newError(KindAuthorization, msgAdminOnly, err)
	case errors.Is(err, recordstore.ErrValidation):
		return newError(KindValidation, "the change was rejected", err)
	}
	return newError(KindTransport, msgStoreUnavailable, err)
}

// RefreshUsers reloads the roster. Without an identity, or without the privilege to list
// users, the roster becomes empty. A transport failure keeps the last known roster.
func (c *Core) RefreshUsers(ctx context.Context) error {
	c.mu.RLock()
	current := c.current
	epoch := c.epoch
	c.mu.RUnlock()

	if current == nil {
		c.update(func() { c.roster = nil })
		return nil
	}
	return c.loadRoster(ctx, epoch)
}

func (c *Core) loadRoster(ctx context.Context, epoch uint64) error {
	if err := c.gate.Ensure(ctx); err != nil {
		return newError(KindTransport, msgStoreUnavailable, err)
	}

	users, err := c.users.List(ctx)
	switch {
	case err == nil:
		c.updateIf(epoch, func() { c.roster = users })
		return nil
	case errors.Is(err, recordstore.ErrUnauthorized), errors.Is(err, recordstore.ErrForbidden):
		c.log.Debug("user list not visible to current identity", "error", err)
		c.updateIf(epoch, func() { c.roster = nil })
		return nil
	}
	c.log.Error("failed to load users", "error", err)
	return newError(KindTransport, msgStoreUnavailable, err)
}

func (c *Core) setIdentity(user recordstore.User) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	return c.swapIdentity(&user), true
}

// setIdentityIf replaces the identity unless it changed since epoch.
func (c *Core) setIdentityIf(epoch uint64, user recordstore.User) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		return 0, false
	}
	return c.swapIdentity(&user), true
}

// swapIdentity starts a new epoch for user, nil meaning anonymous. c.mu must be held.
func (c *Core) swapIdentity(user *recordstore.User) uint64 {
	c.epoch++
	c.current = user
	c.roster = nil
	if user != nil {
		c.status = StatusAuthenticated
	} else {
		c.status = StatusAnonymous
	}
	return c.epoch
}

// update applies fn unless the session has been closed.
func (c *Core) update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn()
}

// updateIf applies fn unless the session has been closed or the identity changed since epoch.
func (c *Core) updateIf(epoch uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		return
	}
	fn()
}

// CurrentUser returns the logged in user.
func (c *Core) CurrentUser() (recordstore.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return recordstore.User{}, false
	}
	return *c.current, true
}

// Users returns a copy of the roster.
func (c *Core) Users() []recordstore.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.roster == nil {
		return []recordstore.User{}
	}
	return slices.Clone(c.roster)
}

// Status returns the lifecycle state.
func (c *Core) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Loading reports whether initialization is still running.
func (c *Core) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Snapshot returns a copy of the whole state.
func (c *Core) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{
		Status:  c.status,
		Loading: c.loading,
		Users:   []recordstore.User{},
	}
	if c.current != nil {
		u := *c.current
		s.CurrentUser = &u
		s.IsAdmin = u.IsAdmin()
	}
	if c.roster != nil {
		s.Users = slices.Clone(c.roster)
	}
	return s
}

// Close ends the session. Operations still in flight no longer change its state.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether Close has been called.
func (c *Core) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
