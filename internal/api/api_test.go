package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/database/mock"
	"github.com/jon4hz/clubhub/internal/notify/email"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
	"github.com/jon4hz/clubhub/internal/recordstore/remote"
	"github.com/jon4hz/clubhub/internal/scheduler"
	"github.com/jon4hz/clubhub/internal/session"
	"github.com/stretchr/testify/suite"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []string
}

func (t *recordingTransport) Send(ctx context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, to)
	return nil
}

func (t *recordingTransport) recipients() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

type ServerTestSuite struct {
	suite.Suite
	cfg       *config.Config
	db        *mock.MockDB
	signer    *local.Signer
	mail      *recordingTransport
	scheduler *scheduler.Scheduler
	server    *httptest.Server
	ids       map[string]string
}

func testConfig() *config.Config {
	return &config.Config{
		Listen:        "127.0.0.1:0",
		ServerURL:     "http://localhost:8090",
		SessionKey:    "test-session-key-with-32-bytes!!",
		SessionMaxAge: 3600,
		Auth: &config.AuthConfig{
			TokenSecret:       "test-token-secret",
			TokenTTL:          time.Hour,
			MinPasswordLength: 8,
			RequireUppercase:  true,
			RequireDigit:      true,
			RequireTerms:      true,
		},
		Cache:    &config.CacheConfig{Type: config.CacheTypeMemory},
		Email:    &config.EmailConfig{Enabled: true, FromEmail: "club@club1500.com", Concurrency: 2},
		Gravatar: &config.GravatarConfig{},
	}
}

func (s *ServerTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.db = mock.NewMockDB()
	s.signer = local.NewSigner(s.cfg.Auth.TokenSecret, s.cfg.Auth.TokenTTL)
	s.mail = &recordingTransport{}
	s.ids = make(map[string]string)

	seed := []struct {
		username, password string
		role               database.Role
		active, notify     bool
	}{
		{"admin", "123", database.RoleAdmin, true, true},
		{"usuario", "usuario123", database.RoleUser, true, true},
		{"maria", "maria123", database.RoleUser, false, true},
		{"pedro", "pedro123", database.RoleUser, true, false},
	}
	for _, u := range seed {
		hash, err := local.HashPassword(u.password)
		s.Require().NoError(err)
		user := &database.User{
			Username:           u.username,
			Email:              u.username + "@club1500.com",
			Name:               u.username,
			PasswordHash:       hash,
			Role:               u.role,
			IsActive:           u.active,
			EmailNotifications: u.notify,
		}
		s.Require().NoError(s.db.CreateUser(context.Background(), user))
		s.ids[u.username] = user.ID
		// keep the creation order stable for the roster
		time.Sleep(time.Millisecond)
	}

	sched, err := scheduler.New()
	s.Require().NoError(err)
	s.scheduler = sched

	registry := session.NewRegistry(time.Hour)
	s.Require().NoError(s.scheduler.Add(scheduler.SweepSessionsJob(registry)))
	s.scheduler.Start()

	s.server = httptest.NewServer(s.newServer(registry).Handler())
}

// newServer builds a server on the shared database.
func (s *ServerTestSuite) newServer(registry *session.Registry) *Server {
	cat := catalog.New(s.cfg.Cache)
	srv, err := New(s.cfg, Deps{
		DB:        s.db,
		Signer:    s.signer,
		Registry:  registry,
		Catalog:   cat,
		Email:     email.NewWithTransport(s.cfg.Email, s.mail),
		Scheduler: s.scheduler,
	})
	s.Require().NoError(err)
	return srv
}

func (s *ServerTestSuite) TearDownTest() {
	s.server.Close()
	_ = s.scheduler.Stop()
}

func (s *ServerTestSuite) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	s.Require().NoError(err)
	return &http.Client{Jar: jar}
}

func (s *ServerTestSuite) do(client *http.Client, method, path string, body any) (int, map[string]any) {
	return s.doURL(client, method, s.server.URL+path, body)
}

func (s *ServerTestSuite) doURL(client *http.Client, method, url string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (s *ServerTestSuite) login(client *http.Client, identifier, password string) {
	status, body := s.do(client, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	s.Require().Equal(http.StatusOK, status, body)
}

func sessionOf(body map[string]any) map[string]any {
	m, _ := body["session"].(map[string]any)
	return m
}

func usersOf(body map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	list, _ := body["users"].([]any)
	for _, item := range list {
		u := item.(map[string]any)
		out[u["username"].(string)] = u
	}
	return out
}

func (s *ServerTestSuite) TestHealth() {
	status, body := s.do(http.DefaultClient, http.MethodGet, "/api/health", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("API is healthy.", body["message"])

	s.db.PingError = context.DeadlineExceeded
	status, _ = s.do(http.DefaultClient, http.MethodGet, "/api/health", nil)
	s.Equal(http.StatusServiceUnavailable, status)
}

func (s *ServerTestSuite) TestLoginLogout() {
	client := s.browser()

	status, body := s.do(client, http.MethodGet, "/api/session", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal(string(session.StatusAnonymous), sessionOf(body)["status"])
	s.Nil(sessionOf(body)["currentUser"])

	status, body = s.do(client, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "admin", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("invalid username or password", body["error"])

	status, _ = s.do(client, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "admin"})
	s.Equal(http.StatusBadRequest, status)

	s.login(client, "admin", "123")
	status, body = s.do(client, http.MethodGet, "/api/session", nil)
	s.Require().Equal(http.StatusOK, status)
	sess := sessionOf(body)
	s.Equal(string(session.StatusAuthenticated), sess["status"])
	s.Equal(true, sess["isAdmin"])
	s.Equal("admin", sess["currentUser"].(map[string]any)["username"])

	status, _ = s.do(client, http.MethodPost, "/api/auth/logout", nil)
	s.Equal(http.StatusOK, status)
	_, body = s.do(client, http.MethodGet, "/api/session", nil)
	s.Equal(string(session.StatusAnonymous), sessionOf(body)["status"])
	s.Equal(false, sessionOf(body)["isAdmin"])
}

func (s *ServerTestSuite) TestInactiveMemberCannotLogin() {
	status, body := s.do(s.browser(), http.MethodPost, "/api/auth/login", map[string]string{"identifier": "maria", "password": "maria123"})
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("invalid username or password", body["error"])
}

func (s *ServerTestSuite) TestIdentityIsRestoredFromCookie() {
	client := s.browser()
	s.login(client, "usuario", "usuario123")

	// a second server knows nothing about the visitor but shares the cookie secret and the store
	other := httptest.NewServer(s.newServer(session.NewRegistry(time.Hour)).Handler())
	defer other.Close()

	status, body := s.doURL(client, http.MethodGet, other.URL+"/api/session", nil)
	s.Require().Equal(http.StatusOK, status)
	sess := sessionOf(body)
	s.Equal(string(session.StatusAuthenticated), sess["status"])
	s.Equal("usuario", sess["currentUser"].(map[string]any)["username"])
}

func (s *ServerTestSuite) TestRegister() {
	client := s.browser()
	form := map[string]any{
		"username":           "juan",
		"email":              "juan@club1500.com",
		"name":               "Juan",
		"password":           "short",
		"passwordConfirm":    "short",
		"emailNotifications": true,
		"acceptTerms":        true,
	}

	status, body := s.do(client, http.MethodPost, "/api/auth/register", form)
	s.Equal(http.StatusBadRequest, status)
	s.Equal("password must be at least 8 characters long", body["error"])

	form["password"], form["passwordConfirm"] = "Secret123", "Secret123"
	status, body = s.do(client, http.MethodPost, "/api/auth/register", form)
	s.Require().Equal(http.StatusCreated, status, body)
	s.Equal(string(session.StatusAnonymous), sessionOf(body)["status"])

	status, body = s.do(client, http.MethodPost, "/api/auth/register", form)
	s.Equal(http.StatusConflict, status)
	s.Equal("username or email is already registered", body["error"])

	s.login(client, "juan", "Secret123")
	_, body = s.do(client, http.MethodGet, "/api/session", nil)
	s.Equal(false, sessionOf(body)["isAdmin"])
}

func (s *ServerTestSuite) TestAdminRoutesNeedAdmin() {
	status, _ := s.do(s.browser(), http.MethodGet, "/api/users", nil)
	s.Equal(http.StatusUnauthorized, status)

	member := s.browser()
	s.login(member, "usuario", "usuario123")
	status, body := s.do(member, http.MethodGet, "/api/users", nil)
	s.Equal(http.StatusForbidden, status)
	s.Equal("forbidden", body["error"])

	admin := s.browser()
	s.login(admin, "admin", "123")
	status, body = s.do(admin, http.MethodGet, "/api/users", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Len(usersOf(body), 4)
}

func (s *ServerTestSuite) TestUserManagement() {
	admin := s.browser()
	s.login(admin, "admin", "123")

	status, body := s.do(admin, http.MethodPost, "/api/users/"+s.ids["usuario"]+"/toggle-status", nil)
	s.Require().Equal(http.StatusOK, status, body)
	s.Equal(false, usersOf(body)["usuario"]["isActive"])

	status, _ = s.do(s.browser(), http.MethodPost, "/api/auth/login", map[string]string{"identifier": "usuario", "password": "usuario123"})
	s.Equal(http.StatusUnauthorized, status)

	status, body = s.do(admin, http.MethodPatch, "/api/users/"+s.ids["pedro"]+"/role", map[string]string{"role": "admin"})
	s.Require().Equal(http.StatusOK, status, body)
	s.Equal("admin", usersOf(body)["pedro"]["role"])
	s.Equal(true, usersOf(body)["pedro"]["isAdmin"])

	status, _ = s.do(admin, http.MethodPatch, "/api/users/"+s.ids["pedro"]+"/role", map[string]string{"role": "owner"})
	s.Equal(http.StatusBadRequest, status)

	status, body = s.do(admin, http.MethodPost, "/api/users/"+s.ids["admin"]+"/toggle-status", nil)
	s.Equal(http.StatusForbidden, status)
	s.Equal("you cannot change your own role or status", body["error"])

	status, _ = s.do(admin, http.MethodPost, "/api/users/missing/toggle-status", nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *ServerTestSuite) TestRevokedAdminLosesAccess() {
	admin := s.browser()
	s.login(admin, "admin", "123")
	status, body := s.do(admin, http.MethodPatch, "/api/users/"+s.ids["pedro"]+"/role", map[string]string{"role": "admin"})
	s.Require().Equal(http.StatusOK, status, body)

	pedro := s.browser()
	s.login(pedro, "pedro", "pedro123")
	status, _ = s.do(pedro, http.MethodGet, "/api/users", nil)
	s.Require().Equal(http.StatusOK, status)

	status, body = s.do(admin, http.MethodPatch, "/api/users/"+s.ids["pedro"]+"/role", map[string]string{"role": "user"})
	s.Require().Equal(http.StatusOK, status, body)

	status, _ = s.do(pedro, http.MethodGet, "/api/users", nil)
	s.Equal(http.StatusForbidden, status)
	status, _ = s.do(pedro, http.MethodPost, "/api/admin/cache/flush", nil)
	s.Equal(http.StatusForbidden, status)
	_, body = s.do(pedro, http.MethodGet, "/api/session", nil)
	s.Equal(false, sessionOf(body)["isAdmin"])
	s.Equal("pedro", sessionOf(body)["currentUser"].(map[string]any)["username"])

	status, body = s.do(admin, http.MethodPost, "/api/users/"+s.ids["pedro"]+"/toggle-status", nil)
	s.Require().Equal(http.StatusOK, status, body)

	status, _ = s.do(pedro, http.MethodGet, "/api/users", nil)
	s.Equal(http.StatusUnauthorized, status)
	status, _ = s.do(pedro, http.MethodPost, "/api/admin/jobs/"+scheduler.JobSweepSessions+"/run", nil)
	s.Equal(http.StatusUnauthorized, status)
	_, body = s.do(pedro, http.MethodGet, "/api/session", nil)
	s.Equal(string(session.StatusAnonymous), sessionOf(body)["status"])
	s.Nil(sessionOf(body)["currentUser"])
}

func (s *ServerTestSuite) TestMassEmail() {
	admin := s.browser()
	s.login(admin, "admin", "123")

	status, _ := s.do(admin, http.MethodPost, "/api/emails/send", map[string]string{"subject": "Rodada"})
	s.Equal(http.StatusBadRequest, status)

	status, body := s.do(admin, http.MethodPost, "/api/emails/send", map[string]string{
		"subject": "Rodada del domingo",
		"message": "Nos juntamos a las 9.\nTraigan casco.",
	})
	s.Require().Equal(http.StatusOK, status, body)
	s.Equal("Emails sent successfully to 2 recipients", body["message"])
	s.ElementsMatch([]string{"admin@club1500.com", "usuario@club1500.com"}, s.mail.recipients())
}

func (s *ServerTestSuite) TestCatalog() {
	guest := s.browser()
	admin := s.browser()
	s.login(admin, "admin", "123")
	member := s.browser()
	s.login(member, "usuario", "usuario123")

	status, body := s.do(guest, http.MethodGet, "/api/products", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Empty(body["products"])

	status, _ = s.do(member, http.MethodPost, "/api/products", map[string]any{"name": "Gorra"})
	s.Equal(http.StatusForbidden, status)

	status, body = s.do(admin, http.MethodPost, "/api/products", map[string]any{"name": "Casco clásico", "price": "$ 45.000"})
	s.Require().Equal(http.StatusCreated, status, body)
	id := body["product"].(map[string]any)["id"].(string)

	status, body = s.do(guest, http.MethodGet, "/api/products/"+id, nil)
	s.Require().Equal(http.StatusOK, status)
	s.Equal("Casco clásico", body["product"].(map[string]any)["name"])

	_, body = s.do(guest, http.MethodGet, "/api/products?q=casco", nil)
	s.Len(body["products"], 1)
	_, body = s.do(guest, http.MethodGet, "/api/products?q=remera", nil)
	s.Empty(body["products"])

	status, _ = s.do(admin, http.MethodPost, "/api/products", map[string]any{"description": "sin nombre"})
	s.Equal(http.StatusBadRequest, status)

	status, _ = s.do(admin, http.MethodDelete, "/api/products/"+id, nil)
	s.Equal(http.StatusOK, status)
	status, _ = s.do(guest, http.MethodGet, "/api/products/"+id, nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *ServerTestSuite) TestEventsAndManuals() {
	admin := s.browser()
	s.login(admin, "admin", "123")

	for _, e := range []map[string]any{
		{"title": "Rodada a Tigre", "date": 14, "month": 2, "year": 2026},
		{"title": "Asado de fin de año", "date": 20, "month": 11, "year": 2025},
	} {
		status, body := s.do(admin, http.MethodPost, "/api/events", e)
		s.Require().Equal(http.StatusCreated, status, body)
	}

	guest := s.browser()
	status, body := s.do(guest, http.MethodGet, "/api/events?year=2026&month=2", nil)
	s.Require().Equal(http.StatusOK, status)
	events := body["events"].([]any)
	s.Require().Len(events, 1)
	s.Equal("2026-03-14", events[0].(map[string]any)["isoDate"])

	status, _ = s.do(guest, http.MethodGet, "/api/events?year=2026&month=12", nil)
	s.Equal(http.StatusBadRequest, status)

	status, body = s.do(admin, http.MethodPost, "/api/manuals", map[string]any{
		"title":    "Manual de taller",
		"brand":    "Ford",
		"fileName": "taller.pdf",
		"fileSize": 2500000,
	})
	s.Require().Equal(http.StatusCreated, status, body)
	manual := body["manual"].(map[string]any)
	s.Equal("PDF", manual["fileType"])
	s.Equal("2.5 MB", manual["fileSizeHuman"])
}

func (s *ServerTestSuite) TestContentSections() {
	admin := s.browser()
	s.login(admin, "admin", "123")
	member := s.browser()
	s.login(member, "usuario", "usuario123")

	status, _ := s.do(member, http.MethodPost, "/api/sections", map[string]any{"title": "Historia"})
	s.Equal(http.StatusForbidden, status)

	ids := map[string]string{}
	for _, sec := range []map[string]any{
		{"title": "Eventos", "description": "Encuentros mensuales", "order": 2},
		{"title": "Historia", "description": "Fundado en 1985", "imageUrl": "/img/historia.jpg", "order": 0},
		{"title": "Socios", "order": 1},
	} {
		status, body := s.do(admin, http.MethodPost, "/api/sections", sec)
		s.Require().Equal(http.StatusCreated, status, body)
		ids[sec["title"].(string)] = body["section"].(map[string]any)["id"].(string)
	}

	guest := s.browser()
	status, body := s.do(guest, http.MethodGet, "/api/sections", nil)
	s.Require().Equal(http.StatusOK, status)
	sections := body["sections"].([]any)
	s.Require().Len(sections, 3)
	titles := make([]string, 0, len(sections))
	for _, sec := range sections {
		titles = append(titles, sec.(map[string]any)["title"].(string))
	}
	s.Equal([]string{"Historia", "Socios", "Eventos"}, titles)
	s.Equal("/img/historia.jpg", sections[0].(map[string]any)["imageUrl"])

	status, body = s.do(admin, http.MethodPatch, "/api/sections/"+ids["Eventos"], map[string]any{"order": -1})
	s.Equal(http.StatusBadRequest, status, body)

	status, body = s.do(admin, http.MethodPatch, "/api/sections/"+ids["Eventos"], map[string]any{"order": 0})
	s.Require().Equal(http.StatusOK, status, body)
	s.EqualValues(0, body["section"].(map[string]any)["order"])

	status, _ = s.do(admin, http.MethodPost, "/api/sections", map[string]any{"description": "sin título"})
	s.Equal(http.StatusBadRequest, status)

	status, _ = s.do(admin, http.MethodDelete, "/api/sections/"+ids["Socios"], nil)
	s.Equal(http.StatusOK, status)
	_, body = s.do(guest, http.MethodGet, "/api/sections", nil)
	s.Len(body["sections"], 2)
}

func (s *ServerTestSuite) TestJobsAndCache() {
	admin := s.browser()
	s.login(admin, "admin", "123")

	status, body := s.do(admin, http.MethodGet, "/api/admin/jobs", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Len(body["jobs"], 1)

	status, _ = s.do(admin, http.MethodPost, "/api/admin/jobs/unknown/run", nil)
	s.Equal(http.StatusNotFound, status)

	status, body = s.do(admin, http.MethodGet, "/api/admin/cache/stats", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Len(body["caches"], 4)

	status, _ = s.do(admin, http.MethodPost, "/api/admin/cache/flush", nil)
	s.Equal(http.StatusOK, status)
}

// TestRemoteStore drives a session over the record store surface of the server.
func (s *ServerTestSuite) TestRemoteStore() {
	ctx := context.Background()
	tokens := recordstore.NewMemoryTokenStore("")
	core := session.New(remote.New(s.server.URL, tokens))
	s.Require().NoError(core.Init(ctx))
	s.Equal(session.StatusAnonymous, core.Status())

	err := core.Login(ctx, "admin", "wrong")
	s.Equal(session.KindAuthentication, session.KindOf(err))

	s.Require().NoError(core.Login(ctx, "admin", "123"))
	s.True(core.IsAdmin())
	s.NotEmpty(tokens.Load())
	s.Len(core.Users(), 4)

	s.Require().NoError(core.ToggleUserStatus(ctx, s.ids["pedro"]))
	for _, u := range core.Users() {
		if u.Username == "pedro" {
			s.False(u.IsActive)
		}
	}

	err = core.Register(ctx, session.RegisterInput{
		Username:           "usuario",
		Email:              "otro@club1500.com",
		Secret:             "Secret123",
		SecretConfirmation: "Secret123",
		AcceptTerms:        true,
	})
	s.Equal(session.KindConflict, session.KindOf(err))

	// a new core on the persisted token restores the identity
	restored := session.New(remote.New(s.server.URL, recordstore.NewMemoryTokenStore(tokens.Load())))
	s.Require().NoError(restored.Init(ctx))
	user, ok := restored.CurrentUser()
	s.Require().True(ok)
	s.Equal("admin", user.Username)

	s.Require().NoError(core.Logout(ctx))
	s.Empty(tokens.Load())
	s.Empty(core.Users())
}

func (s *ServerTestSuite) TestRecordPagination() {
	admin := s.browser()
	s.login(admin, "admin", "123")
	for _, name := range []string{"Casco", "Gorra", "Llavero"} {
		status, body := s.do(admin, http.MethodPost, "/api/products", map[string]any{"name": name})
		s.Require().Equal(http.StatusCreated, status, body)
	}

	status, body := s.do(http.DefaultClient, http.MethodGet, "/api/collections/products/records?page=2&perPage=2", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Len(body["items"], 1)
	s.EqualValues(2, body["totalPages"])
	s.EqualValues(3, body["totalItems"])

	status, body = s.do(http.DefaultClient, http.MethodGet, "/api/collections/products/records?page=9223372036854775807&perPage=500", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Empty(body["items"])
	s.EqualValues(3, body["totalItems"])
}

func (s *ServerTestSuite) TestRecordErrors() {
	status, body := s.do(http.DefaultClient, http.MethodGet, "/api/collections/users/records", nil)
	s.Equal(http.StatusUnauthorized, status)
	s.EqualValues(http.StatusUnauthorized, body["code"])

	status, _ = s.do(http.DefaultClient, http.MethodGet, "/api/collections/garage/records", nil)
	s.Equal(http.StatusNotFound, status)

	status, body = s.do(http.DefaultClient, http.MethodPost, "/api/collections/users/records", map[string]any{
		"username": "admin",
		"email":    "admin2@club1500.com",
		"password": "Secret123",
	})
	s.Require().Equal(http.StatusBadRequest, status)
	issue := body["data"].(map[string]any)["record"].(map[string]any)
	s.Equal("validation_not_unique", issue["code"])

	status, _ = s.do(http.DefaultClient, http.MethodPost, "/api/collections/users/auth-refresh", nil)
	s.Equal(http.StatusUnauthorized, status)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
