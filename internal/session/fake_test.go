package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jon4hz/clubhub/internal/recordstore"
)

type fakeUser struct {
	user   recordstore.User
	secret string
}

// fakeClient is an in-memory recordstore.Client following the club's collection rules.
type fakeClient struct {
	mu sync.Mutex

	users     map[string]*fakeUser
	order     []string
	identity  string
	demo      bool
	nextID    int
	connectCh chan struct{}

	connectErr  error
	listErr     error
	identityErr error
	listHook    func()
	// persistHook runs once inside the next PersistedIdentity, after the identity was read
	persistHook func()

	connectCalls int
	authCalls    int
	createCalls  int
	listCalls    int
	updateCalls  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{users: make(map[string]*fakeUser)}
}

// seed adds the default club accounts and returns their ids by username.
func (f *fakeClient) seed() map[string]string {
	ids := map[string]string{}
	for _, u := range []struct {
		username, secret string
		role             recordstore.Role
		active           bool
	}{
		{"admin", "123", recordstore.RoleAdmin, true},
		{"usuario", "usuario123", recordstore.RoleUser, true},
		{"maria", "maria123", recordstore.RoleUser, false},
	} {
		ids[u.username] = f.add(u.username, u.secret, u.role, u.active)
	}
	return ids
}

func (f *fakeClient) add(username, secret string, role recordstore.Role, active bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("id%03d", f.nextID)
	f.users[id] = &fakeUser{
		user: recordstore.User{
			ID:       id,
			Username: username,
			Email:    username + "@club1500.com",
			Name:     username,
			Role:     role,
			IsActive: active,
		},
		secret: secret,
	}
	f.order = append(f.order, id)
	return id
}

func (f *fakeClient) user(id string) recordstore.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].user
}

func (f *fakeClient) setRole(id string, role recordstore.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].user.Role = role
}

func (f *fakeClient) setActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].user.IsActive = active
}

func (f *fakeClient) calls() (connect, auth, create, list, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.authCalls, f.createCalls, f.listCalls, f.updateCalls
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	ch := f.connectCh
	err := f.connectErr
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return err
}

func (f *fakeClient) Authenticate(ctx context.Context, identifier, secret string) (*recordstore.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	for _, id := range f.order {
		u := f.users[id]
		if u.user.Username != identifier && u.user.Email != identifier {
			continue
		}
		if !u.user.IsActive {
			return nil, recordstore.ErrInvalidCredentials
		}
		if (u.user.IsAdmin() || !f.demo) && u.secret != secret {
			return nil, recordstore.ErrInvalidCredentials
		}
		f.identity = id
		return &recordstore.AuthResult{Token: "token-" + id, Record: u.user.Record()}, nil
	}
	return nil, recordstore.ErrInvalidCredentials
}

func (f *fakeClient) PersistedIdentity(ctx context.Context) (recordstore.Record, error) {
	f.mu.Lock()
	id := f.identity
	hook := f.persistHook
	f.persistHook = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	u, ok := f.users[id]
	if !ok || !u.user.IsActive {
		return nil, nil
	}
	return u.user.Record(), nil
}

func (f *fakeClient) ClearPersistedIdentity() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = ""
}

func (f *fakeClient) CreateRecord(ctx context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	f.mu.Lock()
	f.createCalls++
	for _, u := range f.users {
		if u.user.Username == fields["username"] || u.user.Email == fields["email"] {
			f.mu.Unlock()
			return nil, recordstore.ErrConflict
		}
	}
	f.mu.Unlock()

	name, _ := fields["name"].(string)
	secret, _ := fields["password"].(string)
	id := f.add(fields["username"].(string), secret, recordstore.RoleUser, true)

	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.user.Email = fields["email"].(string)
	u.user.Name = name
	u.user.EmailNotifications, _ = fields["emailNotifications"].(bool)
	return u.user.Record(), nil
}

func (f *fakeClient) GetRecord(ctx context.Context, collection, id string) (recordstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, recordstore.ErrNotFound
	}
	return u.user.Record(), nil
}

func (f *fakeClient) ListRecords(ctx context.Context, collection string) ([]recordstore.Record, error) {
	f.mu.Lock()
	f.listCalls++
	hook := f.listHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	caller, ok := f.users[f.identity]
	if !ok {
		return nil, recordstore.ErrUnauthorized
	}
	if !caller.user.IsAdmin() {
		return nil, recordstore.ErrForbidden
	}
	recs := make([]recordstore.Record, 0, len(f.order))
	for _, id := range f.order {
		recs = append(recs, f.users[id].user.Record())
	}
	return recs, nil
}

func (f *fakeClient) UpdateRecord(ctx context.Context, collection, id string, fields recordstore.Record) (recordstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++

	caller, ok := f.users[f.identity]
	if !ok {
		return nil, recordstore.ErrUnauthorized
	}
	target, ok := f.users[id]
	if !ok {
		return nil, recordstore.ErrNotFound
	}
	_, changesRole := fields["role"]
	_, changesStatus := fields["isActive"]
	if (changesRole || changesStatus) && (!caller.user.IsAdmin() || caller.user.ID == id) {
		return nil, recordstore.ErrForbidden
	}
	if role, ok := fields["role"].(string); ok {
		target.user.Role = recordstore.Role(role)
	}
	if active, ok := fields["isActive"].(bool); ok {
		target.user.IsActive = active
	}
	if ts, ok := fields["lastLogin"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, recordstore.ErrValidation
		}
		target.user.LastLogin = &t
	}
	return target.user.Record(), nil
}

func (f *fakeClient) DeleteRecord(ctx context.Context, collection, id string) error {
	return recordstore.ErrForbidden
}
