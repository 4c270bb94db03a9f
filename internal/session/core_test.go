package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CoreTestSuite struct {
	suite.Suite
	client *fakeClient
	ids    map[string]string
	core   *Core
	now    time.Time
}

func (s *CoreTestSuite) SetupTest() {
	s.client = newFakeClient()
	s.ids = s.client.seed()
	s.now = time.Date(2025, 10, 9, 18, 30, 0, 0, time.UTC)
	s.core = s.newCore()
	s.Require().NoError(s.core.Init(context.Background()))
}

func (s *CoreTestSuite) newCore(opts ...Option) *Core {
	opts = append([]Option{WithClock(func() time.Time { return s.now })}, opts...)
	return New(s.client, opts...)
}

func (s *CoreTestSuite) login(username, secret string) {
	s.Require().NoError(s.core.Login(context.Background(), username, secret))
}

func (s *CoreTestSuite) TestInitWithoutPersistedIdentity() {
	s.Equal(StatusAnonymous, s.core.Status())
	s.False(s.core.Loading())
	_, ok := s.core.CurrentUser()
	s.False(ok)
	s.Empty(s.core.Users())
	s.False(s.core.IsAdmin())
}

func (s *CoreTestSuite) TestInitRestoresPersistedIdentity() {
	s.client.identity = s.ids["admin"]

	core := s.newCore()
	s.Require().NoError(core.Init(context.Background()))

	s.Equal(StatusAuthenticated, core.Status())
	s.False(core.Loading())
	s.True(core.IsAdmin())
	s.Len(core.Users(), 3)
}

func (s *CoreTestSuite) TestInitIsIdempotent() {
	s.Require().NoError(s.core.Init(context.Background()))
	connect, _, _, _, _ := s.client.calls()
	s.Equal(1, connect)
}

func (s *CoreTestSuite) TestInitWithUnreachableStore() {
	s.client.connectErr = recordstore.ErrUnavailable

	core := s.newCore()
	err := core.Init(context.Background())
	s.Equal(KindTransport, KindOf(err))
	s.Equal(StatusError, core.Status())
	s.False(core.Loading())
	s.False(core.IsAdmin())
}

func (s *CoreTestSuite) TestLoginAsAdmin() {
	s.login("admin", "123")

	user, ok := s.core.CurrentUser()
	s.Require().True(ok)
	s.Equal(s.ids["admin"], user.ID)
	s.True(s.core.IsAdmin())
	s.Equal(StatusAuthenticated, s.core.Status())
	s.Len(s.core.Users(), 3)

	s.Require().NotNil(user.LastLogin)
	s.True(user.LastLogin.Equal(s.now))
	s.NotNil(s.client.user(s.ids["admin"]).LastLogin)
}

func (s *CoreTestSuite) TestLoginAsUser() {
	s.login("usuario", "usuario123")

	user, ok := s.core.CurrentUser()
	s.Require().True(ok)
	s.Equal(s.ids["usuario"], user.ID)
	s.False(s.core.IsAdmin())
	s.Empty(s.core.Users())
}

func (s *CoreTestSuite) TestLoginFailures() {
	tests := []struct {
		name       string
		identifier string
		secret     string
		kind       Kind
	}{
		{"inactive user with correct password", "maria", "maria123", KindAuthentication},
		{"wrong password", "usuario", "wrong", KindAuthentication},
		{"unknown user", "nadie", "whatever", KindAuthentication},
		{"admin with wrong password", "admin", "1234", KindAuthentication},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.core.Login(context.Background(), tt.identifier, tt.secret)
			s.Equal(tt.kind, KindOf(err))
			s.Equal(msgInvalidCredentials, MessageOf(err))
			_, ok := s.core.CurrentUser()
			s.False(ok)
		})
	}
}

func (s *CoreTestSuite) TestFailedLoginKeepsCurrentIdentity() {
	s.login("admin", "123")

	err := s.core.Login(context.Background(), "usuario", "wrong")
	s.Equal(KindAuthentication, KindOf(err))

	user, ok := s.core.CurrentUser()
	s.Require().True(ok)
	s.Equal(s.ids["admin"], user.ID)
	s.True(s.core.IsAdmin())
}

func (s *CoreTestSuite) TestLoginReplacesIdentity() {
	s.login("admin", "123")
	s.login("usuario", "usuario123")

	user, _ := s.core.CurrentUser()
	s.Equal(s.ids["usuario"], user.ID)
	s.False(s.core.IsAdmin())
	s.Empty(s.core.Users())
}

func (s *CoreTestSuite) TestLoginWithEmptyInputSkipsStore() {
	for _, in := range [][2]string{{"", "secret"}, {"admin", ""}, {"   ", "x"}} {
		err := s.core.Login(context.Background(), in[0], in[1])
		s.Equal(KindValidation, KindOf(err))
	}
	_, auth, _, _, _ := s.client.calls()
	s.Zero(auth)
}

func (s *CoreTestSuite) TestDemoPolicy() {
	s.client.demo = true

	s.login("usuario", "anything")
	user, _ := s.core.CurrentUser()
	s.Equal(s.ids["usuario"], user.ID)

	s.Equal(KindAuthentication, KindOf(s.core.Login(context.Background(), "admin", "anything")))
	s.Equal(KindAuthentication, KindOf(s.core.Login(context.Background(), "maria", "anything")))
}

func (s *CoreTestSuite) TestLogout() {
	s.login("admin", "123")

	s.NoError(s.core.Logout(context.Background()))
	_, ok := s.core.CurrentUser()
	s.False(ok)
	s.False(s.core.IsAdmin())
	s.Empty(s.core.Users())
	s.Equal(StatusAnonymous, s.core.Status())
	s.Empty(s.client.identity)

	s.NoError(s.core.Logout(context.Background()))
	s.Equal(StatusAnonymous, s.core.Status())
}

func (s *CoreTestSuite) TestRegisterValidationNeverTouchesStore() {
	valid := RegisterInput{
		Username:           "newuser",
		Email:              "newuser@example.com",
		Secret:             "Password123",
		SecretConfirmation: "Password123",
		AcceptTerms:        true,
	}
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		msg    string
	}{
		{"missing username", func(in *RegisterInput) { in.Username = "" }, "username is required"},
		{"missing email", func(in *RegisterInput) { in.Email = " " }, "email is required"},
		{"missing password", func(in *RegisterInput) { in.Secret = "" }, "password is required"},
		{"missing confirmation", func(in *RegisterInput) { in.SecretConfirmation = "" }, "please confirm your password"},
		{"short password", func(in *RegisterInput) { in.Secret, in.SecretConfirmation = "Pa1", "Pa1" }, "password must be at least 8 characters long"},
		{"no uppercase", func(in *RegisterInput) { in.Secret, in.SecretConfirmation = "password123", "password123" }, "password must contain at least one uppercase letter"},
		{"no digit", func(in *RegisterInput) { in.Secret, in.SecretConfirmation = "Passwordxx", "Passwordxx" }, "password must contain at least one number"},
		{"mismatch", func(in *RegisterInput) { in.SecretConfirmation = "Password124" }, "passwords do not match"},
		{"terms not accepted", func(in *RegisterInput) { in.AcceptTerms = false }, "you must accept the terms and conditions"},
		{"first problem wins", func(in *RegisterInput) { in.Username = ""; in.SecretConfirmation = "x" }, "username is required"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			in := valid
			tt.mutate(&in)
			err := s.core.Register(context.Background(), in)
			s.Equal(KindValidation, KindOf(err))
			s.Equal(tt.msg, MessageOf(err))
		})
	}

	_, _, create, _, _ := s.client.calls()
	s.Zero(create)
}

func (s *CoreTestSuite) TestRegister() {
	err := s.core.Register(context.Background(), RegisterInput{
		Username:           "newuser",
		Email:              "newuser@example.com",
		Secret:             "Password123",
		SecretConfirmation: "Password123",
		AcceptTerms:        true,
	})
	s.Require().NoError(err)

	_, ok := s.core.CurrentUser()
	s.False(ok, "registration does not log in by default")

	s.login("admin", "123")
	var found bool
	for _, u := range s.core.Users() {
		if u.Username == "newuser" {
			found = true
			s.Equal(recordstore.RoleUser, u.Role)
			s.True(u.IsActive)
			s.Equal("newuser", u.Name)
		}
	}
	s.True(found)
}

func (s *CoreTestSuite) TestRegisterAndLogin() {
	policy := DefaultPolicy()
	policy.LoginAfterRegister = true
	core := s.newCore(WithPolicy(policy))
	s.Require().NoError(core.Init(context.Background()))

	err := core.Register(context.Background(), RegisterInput{
		Username:           "newuser",
		Email:              "newuser@example.com",
		Secret:             "Password123",
		SecretConfirmation: "Password123",
		AcceptTerms:        true,
	})
	s.Require().NoError(err)

	user, ok := core.CurrentUser()
	s.Require().True(ok)
	s.Equal("newuser", user.Username)
}

func (s *CoreTestSuite) TestRegisterDuplicate() {
	s.login("admin", "123")
	before := len(s.core.Users())

	for _, in := range []RegisterInput{
		{Username: "usuario", Email: "fresh@example.com"},
		{Username: "fresh", Email: "usuario@club1500.com"},
	} {
		in.Secret, in.SecretConfirmation, in.AcceptTerms = "Password123", "Password123", true
		err := s.core.Register(context.Background(), in)
		s.Equal(KindConflict, KindOf(err))
	}

	s.NoError(s.core.RefreshUsers(context.Background()))
	s.Len(s.core.Users(), before)
}

func (s *CoreTestSuite) TestNonAdminCannotChangeUsers() {
	s.login("usuario", "usuario123")
	_, _, _, _, updatesBefore := s.client.calls()

	err := s.core.UpdateUserRole(context.Background(), s.ids["maria"], recordstore.RoleAdmin)
	s.Equal(KindAuthorization, KindOf(err))

	err = s.core.ToggleUserStatus(context.Background(), s.ids["maria"])
	s.Equal(KindAuthorization, KindOf(err))

	_, _, _, _, updatesAfter := s.client.calls()
	s.Equal(updatesBefore, updatesAfter)
	maria := s.client.user(s.ids["maria"])
	s.Equal(recordstore.RoleUser, maria.Role)
	s.False(maria.IsActive)
}

func (s *CoreTestSuite) TestAnonymousCannotChangeUsers() {
	err := s.core.UpdateUserRole(context.Background(), s.ids["usuario"], recordstore.RoleAdmin)
	s.Equal(KindAuthorization, KindOf(err))
}

func (s *CoreTestSuite) TestAdminCannotChangeSelf() {
	s.login("admin", "123")

	err := s.core.UpdateUserRole(context.Background(), s.ids["admin"], recordstore.RoleUser)
	s.Equal(KindAuthorization, KindOf(err))
	s.Equal(msgSelfModification, MessageOf(err))

	err = s.core.ToggleUserStatus(context.Background(), s.ids["admin"])
	s.Equal(KindAuthorization, KindOf(err))
	s.True(s.core.IsAdmin())
}

func (s *CoreTestSuite) TestUpdateUserRoleRoundTrip() {
	s.login("admin", "123")

	s.Require().NoError(s.core.UpdateUserRole(context.Background(), s.ids["usuario"], recordstore.RoleAdmin))
	s.Require().NoError(s.core.RefreshUsers(context.Background()))

	for _, u := range s.core.Users() {
		if u.ID == s.ids["usuario"] {
			s.Equal(recordstore.RoleAdmin, u.Role)
			return
		}
	}
	s.Fail("usuario missing from roster")
}

func (s *CoreTestSuite) TestUpdateUserRoleRejectsUnknownRole() {
	s.login("admin", "123")
	err := s.core.UpdateUserRole(context.Background(), s.ids["usuario"], recordstore.Role("owner"))
	s.Equal(KindValidation, KindOf(err))
}

func (s *CoreTestSuite) TestToggleUserStatus() {
	s.login("admin", "123")

	s.Require().NoError(s.core.ToggleUserStatus(context.Background(), s.ids["maria"]))
	for _, u := range s.core.Users() {
		if u.ID == s.ids["maria"] {
			s.True(u.IsActive)
		}
	}

	s.Require().NoError(s.core.ToggleUserStatus(context.Background(), s.ids["maria"]))
	s.False(s.client.user(s.ids["maria"]).IsActive)

	err := s.core.ToggleUserStatus(context.Background(), "missing")
	s.Equal(KindNotFound, KindOf(err))
}

func (s *CoreTestSuite) TestRefreshUsersAnonymous() {
	s.NoError(s.core.RefreshUsers(context.Background()))
	s.Empty(s.core.Users())
	_, _, _, list, _ := s.client.calls()
	s.Zero(list)
}

func (s *CoreTestSuite) TestRefreshFailureKeepsLastKnownRoster() {
	s.login("admin", "123")
	s.Require().Len(s.core.Users(), 3)

	s.client.mu.Lock()
	s.client.listErr = recordstore.ErrUnavailable
	s.client.mu.Unlock()

	err := s.core.RefreshUsers(context.Background())
	s.Equal(KindTransport, KindOf(err))
	s.Len(s.core.Users(), 3)
}

func (s *CoreTestSuite) TestRefreshStraddlingLogoutIsDropped() {
	s.login("admin", "123")

	started := make(chan struct{})
	release := make(chan struct{})
	s.client.mu.Lock()
	s.client.listHook = func() {
		close(started)
		<-release
	}
	s.client.mu.Unlock()

	done := make(chan error)
	go func() { done <- s.core.RefreshUsers(context.Background()) }()
	<-started
	s.NoError(s.core.Logout(context.Background()))
	// the store would still answer as admin
	s.client.mu.Lock()
	s.client.identity = s.ids["admin"]
	s.client.listHook = nil
	s.client.mu.Unlock()
	close(release)
	s.NoError(<-done)

	s.Empty(s.core.Users())
	_, ok := s.core.CurrentUser()
	s.False(ok)
}

func (s *CoreTestSuite) TestClosedCoreIgnoresResults() {
	s.core.Close()
	s.True(s.core.Closed())

	s.NoError(s.core.Login(context.Background(), "admin", "123"))
	_, ok := s.core.CurrentUser()
	s.False(ok)
	s.Equal(StatusAnonymous, s.core.Status())
}

func (s *CoreTestSuite) TestSnapshot() {
	s.login("admin", "123")
	snap := s.core.Snapshot()

	s.Equal(StatusAuthenticated, snap.Status)
	s.True(snap.IsAdmin)
	s.Require().NotNil(snap.CurrentUser)
	s.Equal("admin", snap.CurrentUser.Username)
	s.Len(snap.Users, 3)

	snap.Users[0].Role = "mutated"
	s.NotEqual(recordstore.Role("mutated"), s.core.Users()[0].Role)
}

func (s *CoreTestSuite) TestInitRetriesAfterUnreachableStore() {
	s.client.connectErr = recordstore.ErrUnavailable
	s.client.identity = s.ids["admin"]

	core := s.newCore()
	s.Equal(KindTransport, KindOf(core.Init(context.Background())))
	s.Equal(StatusError, core.Status())

	s.client.mu.Lock()
	s.client.connectErr = nil
	s.client.mu.Unlock()

	s.Require().NoError(core.Init(context.Background()))
	s.Equal(StatusAuthenticated, core.Status())
	s.False(core.Loading())
	s.True(core.IsAdmin())

	s.Require().NoError(core.Init(context.Background()))
	connect, _, _, _, _ := s.client.calls()
	// one call for the suite's core, two for this one
	s.Equal(3, connect)
}

func (s *CoreTestSuite) TestLoginDuringInitIsKept() {
	core := s.newCore()
	s.client.persistHook = func() {
		s.NoError(core.Login(context.Background(), "admin", "123"))
	}

	s.Require().NoError(core.Init(context.Background()))
	s.Equal(StatusAuthenticated, core.Status())
	s.False(core.Loading())
	user, ok := core.CurrentUser()
	s.Require().True(ok)
	s.Equal("admin", user.Username)
}

func (s *CoreTestSuite) TestRevalidateDemotedAdmin() {
	s.client.add("pedro", "pedro123", recordstore.RoleAdmin, true)
	s.login("pedro", "pedro123")
	s.Require().True(s.core.IsAdmin())
	s.Require().NotEmpty(s.core.Users())

	user, _ := s.core.CurrentUser()
	s.client.setRole(user.ID, recordstore.RoleUser)
	s.Require().NoError(s.core.Revalidate(context.Background()))

	s.False(s.core.IsAdmin())
	s.Empty(s.core.Users())
	current, ok := s.core.CurrentUser()
	s.Require().True(ok)
	s.Equal(recordstore.RoleUser, current.Role)
	s.Equal(StatusAuthenticated, s.core.Status())
}

func (s *CoreTestSuite) TestRevalidateDeactivatedUser() {
	s.login("usuario", "usuario123")
	s.client.setActive(s.ids["usuario"], false)

	s.Require().NoError(s.core.Revalidate(context.Background()))
	_, ok := s.core.CurrentUser()
	s.False(ok)
	s.False(s.core.IsAdmin())
	s.Equal(StatusAnonymous, s.core.Status())
	s.Empty(s.client.identity)
}

func (s *CoreTestSuite) TestRevalidateKeepsIdentityOnTransportError() {
	s.login("admin", "123")
	s.client.mu.Lock()
	s.client.identityErr = recordstore.ErrUnavailable
	s.client.mu.Unlock()

	err := s.core.Revalidate(context.Background())
	s.Equal(KindTransport, KindOf(err))
	s.True(s.core.IsAdmin())
}

func (s *CoreTestSuite) TestRevalidateAnonymousIsNoop() {
	s.Require().NoError(s.core.Revalidate(context.Background()))
	_, ok := s.core.CurrentUser()
	s.False(ok)
}

func TestCoreTestSuite(t *testing.T) {
	suite.Run(t, new(CoreTestSuite))
}

func TestConcurrentInitConnectsOnce(t *testing.T) {
	client := newFakeClient()
	client.seed()
	client.connectCh = make(chan struct{})
	core := New(client)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = core.Init(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusInitializing, core.Status())
	assert.True(t, core.Loading())
	close(client.connectCh)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	connect, _, _, _, _ := client.calls()
	assert.Equal(t, 1, connect)
	assert.Equal(t, StatusAnonymous, core.Status())
}

func TestInitWaitHonorsContext(t *testing.T) {
	client := newFakeClient()
	client.connectCh = make(chan struct{})
	defer close(client.connectCh)
	core := New(client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, core.Init(ctx), context.DeadlineExceeded)
}
