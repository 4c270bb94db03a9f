// Package gate guards the connection to the record store: concurrent callers share a single
// in-flight connection attempt and a successful connection is remembered.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ConnectFunc establishes the connection.
type ConnectFunc func(ctx context.Context) error

// Gate memoizes a connection attempt.
type Gate struct {
	connect   ConnectFunc
	group     singleflight.Group
	connected atomic.Bool
}

// New returns a Gate around connect.
func New(connect ConnectFunc) *Gate {
	return &Gate{connect: connect}
}

// Ensure connects unless already connected. Callers arriving while an attempt is running wait
// for that attempt and share its result. Failures are not remembered, the next call retries.
func (g *Gate) Ensure(ctx context.Context) error {
	if g.connected.Load() {
		return nil
	}
	ch := g.group.DoChan("connect", func() (any, error) {
		if g.connected.Load() {
			return nil, nil
		}
		// the attempt is shared, so one caller giving up must not cancel it for the others
		if err := g.connect(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		g.connected.Store(true)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection has been established.
func (g *Gate) Connected() bool {
	return g.connected.Load()
}

// Disconnect forgets the connection so the next Ensure connects again.
func (g *Gate) Disconnect() {
	g.connected.Store(false)
}
