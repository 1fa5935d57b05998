package tdslock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/quay/tdslock/tds"
)

// Guard is an owned handle to a currently-held lock.
//
// A Guard is created only by a successful acquisition and exclusively owns
// the borrowed connection for its lifetime: the lock is scoped to that
// session, so using the connection for anything else while held would run
// under the lock's identity. The connection is handed back by
// [Guard.Release].
//
// A Guard has exactly two states, held and released, and the transition is
// one-way. Both the explicit and the deferred path release at most once.
type Guard struct {
	mu   sync.Mutex
	id   uuid.UUID
	lock Lock
	got  Outcome
	conn tds.Conn
}

func newGuard(l Lock, conn tds.Conn, o Outcome) *Guard {
	heldGauge.Inc()
	return &Guard{
		id:   uuid.New(),
		lock: l,
		got:  o,
		conn: conn,
	}
}

// ID identifies the guard in diagnostics.
func (g *Guard) ID() uuid.UUID { return g.id }

// Resource returns the held lock's resource name.
func (g *Guard) Resource() string { return g.lock.resource }

// Outcome returns the acquisition outcome that created the guard, either
// [Granted] or [GrantedAfterWait].
func (g *Guard) Outcome() Outcome { return g.got }

// Release releases the lock and returns ownership of the connection to the
// caller.
//
// The guard is consumed even when the server-side release fails: a failed
// release must not leave this layer insisting it still holds the lock, and
// whether to retry is the caller's decision, made with the returned
// connection. Releasing an already-released guard is a no-op returning
// (nil, nil).
func (g *Guard) Release(ctx context.Context) (tds.Conn, error) {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn == nil {
		return nil, nil
	}
	heldGauge.Dec()
	err := g.lock.Release(ctx, conn)
	return conn, err
}

// Close is the scope-exit release path, for use with defer.
//
// It performs the same release invocation as [Guard.Release], but routes
// any failure to the log rather than treating it as control flow: cleanup
// on the unwind path must never become a second failure the caller has to
// handle. The returned error is informational and safe to ignore. After
// Close the caller may resume using the connection it lent to Acquire.
func (g *Guard) Close() error {
	ctx := zlog.ContextWithValues(context.Background(),
		"component", "tdslock/Guard.Close",
		"guard_id", g.id.String(),
		"resource", g.lock.resource)
	conn, err := g.Release(ctx)
	if conn == nil {
		// Already released explicitly.
		return nil
	}
	if err != nil {
		zlog.Warn(ctx).Err(err).Msg("best-effort lock release failed")
	}
	return err
}
