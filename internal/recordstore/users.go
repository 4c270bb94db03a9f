package recordstore

import (
	"context"

	"github.com/charmbracelet/log"
)

// Users is the typed view of the users collection.
type Users struct {
	client Client
}

// NewUsers wraps a Client.
func NewUsers(client Client) *Users {
	return &Users{client: client}
}

// Authenticate verifies the credentials and returns the authenticated user.
func (u *Users) Authenticate(ctx context.Context, identifier, secret string) (User, error) {
	res, err := u.client.Authenticate(ctx, identifier, secret)
	if err != nil {
		return User{}, err
	}
	return DecodeUser(res.Record)
}

// Persisted returns the persisted identity, or nil when there is none.
func (u *Users) Persisted(ctx context.Context) (*User, error) {
	rec, err := u.client.PersistedIdentity(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	user, err := DecodeUser(rec)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ClearPersisted forgets the persisted identity.
func (u *Users) ClearPersisted() {
	u.client.ClearPersistedIdentity()
}

func (u *Users) Create(ctx context.Context, n NewUser) (User, error) {
	rec, err := u.client.CreateRecord(ctx, CollectionUsers, n.record())
	if err != nil {
		return User{}, err
	}
	return DecodeUser(rec)
}

func (u *Users) Get(ctx context.Context, id string) (User, error) {
	rec, err := u.client.GetRecord(ctx, CollectionUsers, id)
	if err != nil {
		return User{}, err
	}
	return DecodeUser(rec)
}

// List returns every user visible to the current identity. Records that do not decode are skipped.
func (u *Users) List(ctx context.Context) ([]User, error) {
	recs, err := u.client.ListRecords(ctx, CollectionUsers)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		user, err := DecodeUser(rec)
		if err != nil {
			log.Warn("skipping malformed user record", "id", rec.ID(), "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (u *Users) Update(ctx context.Context, id string, p UserPatch) (User, error) {
	rec, err := u.client.UpdateRecord(ctx, CollectionUsers, id, p.record())
	if err != nil {
		return User{}, err
	}
	return DecodeUser(rec)
}
