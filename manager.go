package tdslock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quay/zlog"

	"github.com/quay/tdslock/internal/lockkey"
	"github.com/quay/tdslock/tds"
)

// Manager sentinel errors, reported via the Err method of the contexts
// returned from Lock and TryLock.
var (
	// ErrMutualExclusion signifies another session holds the requested
	// lock.
	ErrMutualExclusion = errors.New("another session is holding the requested lock")

	// ErrSessionLost signifies the manager's connection failed. Locks are
	// session-owned and do not survive the session; the manager must be
	// rebuilt on a fresh connection.
	ErrSessionLost = errors.New("lock session lost")

	// ErrManagerClosed signifies the manager's parent context was canceled
	// or the manager shut down.
	ErrManagerClosed = errors.New("lock manager closed")

	// ErrMaxLocks informs the caller the maximum number of locks have been
	// taken.
	ErrMaxLocks = errors.New("maximum number of locks acquired")
)

// Manager multiplexes many named session locks over one dedicated
// connection.
//
// It is the key-oriented alternative to holding a [Guard] per lock: the
// Manager owns its connection outright, serializes every acquire and
// release on it, and hands out contexts whose lifetimes track the locks.
// Because all requests share the single session, acquisitions are made
// with no server-side wait; a blocking server wait would starve releases
// for every other key.
//
// Manager must not be copied after construction.
type Manager struct {
	pool *reqPool
	s    *session
}

// session is the serialized owner of the manager's connection and lock
// table.
//
// All field access happens on the ioLoop goroutine.
type session struct {
	max     uint64
	counter uint64
	mode    Mode
	chanMu  sync.Mutex
	reqChan chan request
	conn    tds.Conn
	locks   map[string]*lockctx
	online  atomic.Bool
	closed  atomic.Bool
}

// Opt configures a Manager.
type Opt func(*Manager)

// WithMax caps the number of locks held at once.
func WithMax(max uint64) Opt {
	return func(m *Manager) {
		m.s.max = max
	}
}

// WithMode sets the mode requested for every managed lock. The default is
// [Exclusive].
func WithMode(mode Mode) Opt {
	return func(m *Manager) {
		m.s.mode = mode
	}
}

// NewManager returns a Manager owning the given established connection.
//
// The connection must not be used by anything else afterwards: every lock
// the manager grants is owned by that connection's session. The manager
// runs until ctx is canceled, at which point all held locks are canceled
// and the connection is considered surrendered.
func NewManager(ctx context.Context, conn tds.Conn, opts ...Opt) (*Manager, error) {
	if conn == nil {
		return nil, errors.New("tdslock: NewManager: nil connection")
	}
	s := &session{
		mode:    Exclusive,
		reqChan: make(chan request, 1024),
		conn:    conn,
		locks:   make(map[string]*lockctx),
	}
	m := &Manager{
		pool: newReqPool(50),
		s:    s,
	}
	for _, f := range opts {
		f(m)
	}
	if s.max == 0 {
		s.max = math.MaxUint64
	}
	s.online.Store(true)
	go s.ioLoop(ctx)
	return m, nil
}

// ioLoop is a serialized event loop ensuring synchronized access to the
// session's connection and lock table.
func (s *session) ioLoop(ctx context.Context) {
	ctx = zlog.ContextWithValues(ctx, "component", "tdslock/session.ioLoop")
	zlog.Info(ctx).Msg("lock manager online")
	for {
		select {
		case req := <-s.reqChan:
			s.handleRequest(ctx, req)
		case <-ctx.Done():
			s.quit(ctx)
			return
		}
	}
}

// handleRequest multiplexes requests to the acquire and release paths.
//
// Guaranteed exclusive access to the session's data structures.
func (s *session) handleRequest(ctx context.Context, req request) {
	if !s.online.Load() {
		req.respChan <- response{ok: false, ctx: canceled(ErrSessionLost)}
		return
	}
	switch req.op {
	case opAcquire:
		req.respChan <- s.acquire(ctx, req.key)
	case opRelease:
		req.respChan <- s.release(ctx, req.key)
	default:
	}
}

// acquire attempts a no-wait acquisition of key on the session's
// connection.
func (s *session) acquire(ctx context.Context, key string) response {
	if _, ok := s.locks[key]; ok {
		return response{false, canceled(ErrMutualExclusion)}
	}
	if s.counter >= s.max {
		return response{false, canceled(ErrMaxLocks)}
	}

	lk := Lock{resource: key, mode: s.mode, scope: Session, timeout: NoWait}
	o, err := lk.acquire(ctx, s.conn, NoWait)
	switch {
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrUnknownStatus):
		// The session's lock state is no longer knowable.
		s.offline(ctx, err)
		return response{false, canceled(fmt.Errorf("%w: %w", ErrSessionLost, err))}
	case err != nil:
		return response{false, canceled(err)}
	case o == TimedOut:
		return response{false, canceled(ErrMutualExclusion)}
	case !o.Acquired():
		return response{false, canceled(lk.outcomeErr("Manager.Lock", o))}
	}

	lock := &lockctx{done: make(chan struct{})}
	s.locks[key] = lock
	s.counter++
	managerGauge.Inc()
	return response{true, lock}
}

// release releases key on the session's connection.
func (s *session) release(ctx context.Context, key string) response {
	lock, ok := s.locks[key]
	if !ok {
		return response{false, canceled(fmt.Errorf("no lock for key %q", key))}
	}

	// Cancelation and bookkeeping happen whether or not the server-side
	// release succeeds; the client must never insist it still holds a
	// lock the caller has let go of.
	defer func() {
		lock.cancel(context.Canceled)
		delete(s.locks, key)
		s.counter--
		managerGauge.Dec()
	}()

	lk := Lock{resource: key, mode: s.mode, scope: Session, timeout: NoWait}
	if err := lk.Release(ctx, s.conn); err != nil {
		if errors.Is(err, ErrProtocol) || errors.Is(err, ErrUnknownStatus) {
			s.offline(ctx, err)
		}
		return response{false, canceled(err)}
	}
	return response{true, nil}
}

// offline marks the session unusable. There is no reconnect path: the
// locks were owned by the lost session and a new connection would be a
// different owner, so the manager reports ErrSessionLost until rebuilt.
func (s *session) offline(ctx context.Context, err error) {
	s.online.Store(false)
	zlog.Warn(ctx).Err(err).Msg("connection failure; manager offline")
	for key, lock := range s.locks {
		lock.cancel(ErrSessionLost)
		delete(s.locks, key)
		s.counter--
		managerGauge.Dec()
	}
}

// request delivers r to the ioLoop and returns its response.
//
// Guaranteed to return a response. The push happens under chanMu so quit
// can fence off new requests, but the wait happens outside it: a pushed
// request is answered by either handleRequest or quit's drain, and the
// drain must be able to take the mutex.
func (s *session) request(r request) response {
	s.chanMu.Lock()
	rc := s.reqChan
	if rc == nil {
		s.chanMu.Unlock()
		return response{ok: false, ctx: canceled(ErrManagerClosed)}
	}
	select {
	case rc <- r:
	default:
		// Request backlog full; refuse rather than block shutdown.
		s.chanMu.Unlock()
		return response{ok: false, ctx: canceled(ErrManagerClosed)}
	}
	s.chanMu.Unlock()
	// If a request is pushed, a response is guaranteed.
	return <-r.respChan
}

// quit ensures graceful termination of the session.
//
// Guaranteed exclusive access to the session's data structures.
func (s *session) quit(ctx context.Context) {
	zlog.Info(ctx).Msg("graceful quit of lock manager started")
	s.closed.Store(true)
	s.online.Store(false)

	// Replace the channel with nil so in-flight requests fail fast.
	s.chanMu.Lock()
	rc := s.reqChan
	s.reqChan = nil
	s.chanMu.Unlock()
	close(rc)

	// Drain requests that made it onto the channel before the swap.
	for req := range rc {
		req.respChan <- response{ok: false, ctx: canceled(ErrManagerClosed)}
	}

	for key, lock := range s.locks {
		lock.cancel(ErrManagerClosed)
		delete(s.locks, key)
		s.counter--
		managerGauge.Dec()
	}
	zlog.Info(ctx).Msg("graceful quit of lock manager succeeded")
}

// TryLock attempts a no-wait acquisition of key.
//
// Regardless of success or failure a context is returned and its Err
// method must be checked: nil means the lock is held and the context's
// lifetime tracks it, non-nil explains why not ([ErrMutualExclusion],
// [ErrSessionLost], [ErrManagerClosed], [ErrMaxLocks], or a validation
// error). The CancelFunc releases the lock and is safe to call on failure.
func (m *Manager) TryLock(ctx context.Context, key string) (context.Context, context.CancelFunc) {
	if err := ctx.Err(); err != nil {
		return canceled(err), func() {}
	}
	if m.s.closed.Load() {
		return canceled(ErrManagerClosed), func() {}
	}
	if !m.s.online.Load() {
		return canceled(ErrSessionLost), func() {}
	}
	if err := lockkey.Validate(key); err != nil {
		return canceled(&Error{
			Op:       "Manager.TryLock",
			Kind:     ErrValidation,
			Resource: key,
			Inner:    err,
		}), func() {}
	}

	req := m.pool.Get()
	req.op, req.key = opAcquire, key

	resp := m.s.request(req)
	m.pool.Put(req)

	if !resp.ok {
		return resp.ctx, func() {}
	}

	m.propagateCancel(ctx, resp.ctx, key)
	return resp.ctx, func() {
		m.unlock(key)
	}
}

// Lock acquires key, polling until it is granted, the incoming context is
// canceled, or the session is lost.
//
// The wait happens client-side with repeated no-wait attempts: the
// manager's single serialized connection cannot sit in a server-side wait
// without stalling every other key's release.
func (m *Manager) Lock(ctx context.Context, key string) (context.Context, context.CancelFunc) {
	for {
		if err := ctx.Err(); err != nil {
			return canceled(err), func() {}
		}
		if m.s.closed.Load() {
			return canceled(ErrManagerClosed), func() {}
		}
		if !m.s.online.Load() {
			return canceled(ErrSessionLost), func() {}
		}

		lctx, cancel := m.TryLock(ctx, key)
		if lctx.Err() == nil {
			return lctx, cancel
		}
		if errors.Is(lctx.Err(), ErrMutualExclusion) {
			select {
			case <-time.After(250 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}
		return lctx, cancel
	}
}

// propagateCancel chains the parent context's lifespan to the lock's,
// releasing the lock when the parent is canceled first.
func (m *Manager) propagateCancel(parent context.Context, child *lockctx, key string) {
	if err := parent.Err(); err != nil {
		m.unlock(key)
		return
	}
	go func() {
		select {
		case <-parent.Done():
			m.unlock(key)
		case <-child.Done():
		}
	}()
}

// unlock issues a release request for key.
func (m *Manager) unlock(key string) {
	if !m.s.online.Load() {
		return
	}

	req := m.pool.Get()
	req.op, req.key = opRelease, key

	resp := m.s.request(req)
	m.pool.Put(req)

	if !resp.ok {
		ctx := zlog.ContextWithValues(context.Background(),
			"component", "tdslock/Manager.unlock",
			"resource", key)
		zlog.Warn(ctx).Err(resp.ctx.Err()).Msg("unlock failed")
	}
}
