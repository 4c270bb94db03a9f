package session

import (
	"sync"
	"time"

	"github.com/jon4hz/clubhub/internal/recordstore"
	gocache "github.com/patrickmn/go-cache"
)

// Visitor is a browser session: its Core, the store client acting as the visitor and the token
// store holding its persisted identity.
type Visitor struct {
	*Core
	Client recordstore.Client
	Tokens recordstore.TokenStore
}

// Registry keeps one Visitor per browser session. Idle visitors expire after the ttl and are closed
// when swept.
type Registry struct {
	mu       sync.Mutex
	visitors *gocache.Cache
}

// NewRegistry returns a Registry whose entries expire after ttl without access.
func NewRegistry(ttl time.Duration) *Registry {
	visitors := gocache.New(ttl, 0)
	visitors.OnEvicted(func(_ string, v any) {
		if visitor, ok := v.(*Visitor); ok {
			visitor.Close()
		}
	})
	return &Registry{visitors: visitors}
}

// Get returns the visitor for key and extends its lifetime.
func (r *Registry) Get(key string) (*Visitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touch(key)
}

// GetOrCreate returns the visitor for key, creating it with factory if needed.
// The returned bool reports whether the visitor was created.
func (r *Registry) GetOrCreate(key string, factory func() *Visitor) (*Visitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if visitor, ok := r.touch(key); ok {
		return visitor, false
	}
	// an expired entry that was not swept yet still has to be closed
	r.visitors.Delete(key)

	visitor := factory()
	r.visitors.SetDefault(key, visitor)
	return visitor, true
}

func (r *Registry) touch(key string) (*Visitor, bool) {
	v, ok := r.visitors.Get(key)
	if !ok {
		return nil, false
	}
	visitor := v.(*Visitor)
	r.visitors.SetDefault(key, visitor)
	return visitor, true
}

// Remove closes and forgets the visitor for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visitors.Delete(key)
}

// Sweep closes and forgets expired visitors.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visitors.DeleteExpired()
}

// Len returns the number of tracked visitors, including expired ones not swept yet.
func (r *Registry) Len() int {
	return r.visitors.ItemCount()
}
