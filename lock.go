// Package tdslock provides session-scoped application locks for databases
// reached over a TDS-style stateful wire protocol.
//
// An application lock is a cooperative named mutex implemented by
// server-side procedures, independent of any row or table locking. The
// server owns the lock state; this package never caches or infers it, only
// requests a mode and decodes the server's decision from the procedure
// return status. Assuming anything else (for example, that silence means
// success) would let a caller proceed under a false mutual-exclusion
// guarantee.
//
// Exclusivity between processes is entirely server-enforced. The
// client-side ownership rules here (a [Guard] holding its connection, a
// [Manager] owning its connection) only prevent misuse of a single handle;
// distinct connections contending for one resource name is the intended
// use.
//
// If a caller abandons an in-flight acquisition (cancels the context
// mid-round-trip), the server may still grant the lock with no Guard ever
// created. The only remediation is an untracked release or tearing down
// the connection; callers own that policy.
package tdslock

import (
	"context"
	"fmt"

	"github.com/quay/zlog"

	"github.com/quay/tdslock/internal/lockkey"
	"github.com/quay/tdslock/tds"
)

// Server procedures implementing the named-lock contract.
const (
	procAcquire = `sp_getapplock`
	procRelease = `sp_releaseapplock`
)

// Lock is an immutable descriptor of a named application lock: the
// resource name, the requested mode, the owner scope, and the wait budget.
//
// A Lock has no server-side identity until acquired. The value is safely
// shareable across goroutines and repeated attempts.
type Lock struct {
	resource string
	mode     Mode
	scope    Scope
	timeout  LockTimeout
}

// NewLock returns a Lock for the named resource with Exclusive mode,
// Session scope, and a Forever wait budget.
//
// The resource name is validated client-side against the server's limits
// before any wire traffic.
func NewLock(resource string) (Lock, error) {
	if err := lockkey.Validate(resource); err != nil {
		return Lock{}, &Error{
			Op:       "NewLock",
			Kind:     ErrValidation,
			Resource: resource,
			Inner:    err,
		}
	}
	return Lock{
		resource: resource,
		mode:     Exclusive,
		scope:    Session,
		timeout:  Forever,
	}, nil
}

// WithMode returns a copy of the Lock requesting the given mode.
func (l Lock) WithMode(m Mode) Lock {
	l.mode = m
	return l
}

// WithScope returns a copy of the Lock with the given owner scope.
func (l Lock) WithScope(s Scope) Lock {
	l.scope = s
	return l
}

// WithTimeout returns a copy of the Lock with the given wait budget.
func (l Lock) WithTimeout(t LockTimeout) Lock {
	l.timeout = t
	return l
}

// Resource returns the resource name.
func (l Lock) Resource() string { return l.resource }

// Mode returns the requested lock mode.
func (l Lock) Mode() Mode { return l.mode }

// Scope returns the owner scope.
func (l Lock) Scope() Scope { return l.scope }

// Timeout returns the wait budget.
func (l Lock) Timeout() LockTimeout { return l.timeout }

// acquire performs one acquisition round trip and decodes the outcome.
//
// The timeout is a parameter rather than read from the Lock so TryAcquire
// can force NoWait without copying the descriptor.
func (l Lock) acquire(ctx context.Context, conn tds.Conn, timeout LockTimeout) (Outcome, error) {
	const op = `Lock.Acquire`
	ctx = zlog.ContextWithValues(ctx,
		"component", "tdslock/Lock.Acquire",
		"resource", l.resource)
	res, err := tds.Call(ctx, conn, procAcquire,
		tds.String(l.resource),
		tds.String(l.mode.String()),
		tds.String(l.scope.String()),
		tds.Int32(int32(timeout)),
	)
	if err != nil {
		return outcomeInvalid, &Error{
			Op:       op,
			Kind:     ErrProtocol,
			Resource: l.resource,
			Inner:    err,
		}
	}
	status, err := res.Status()
	if err != nil {
		// An absent status is unknown lock state, never success.
		return outcomeInvalid, &Error{
			Op:       op,
			Kind:     ErrUnknownStatus,
			Resource: l.resource,
			Inner:    err,
		}
	}
	o, ok := outcomeForStatus(status)
	if !ok {
		return outcomeInvalid, &Error{
			Op:       op,
			Kind:     ErrProtocol,
			Resource: l.resource,
			Message:  fmt.Sprintf("unexpected %s status %d", procAcquire, status),
		}
	}
	acquireCounter.WithLabelValues(l.mode.String(), o.String()).Inc()
	zlog.Debug(ctx).
		Stringer("mode", l.mode).
		Stringer("outcome", o).
		Int32("status", status).
		Msg("acquisition attempt decided")
	return o, nil
}

// Acquire requests the lock, waiting up to the Lock's budget, and returns
// a [Guard] owning the connection while the lock is held.
//
// Non-granted outcomes are errors: [TimedOut], [Cancelled], and
// [DeadlockVictim] surface wrapped in an [ErrAcquisition] Error, a server
// validation status in an [ErrValidation] Error. In every error case the
// connection is unlocked and immediately usable by the caller.
//
// Abandoning the call mid-round-trip may leak a server-side grant; see the
// package documentation.
func (l Lock) Acquire(ctx context.Context, conn tds.Conn) (*Guard, error) {
	o, err := l.acquire(ctx, conn, l.timeout)
	if err != nil {
		return nil, err
	}
	if !o.Acquired() {
		return nil, l.outcomeErr("Lock.Acquire", o)
	}
	return newGuard(l, conn, o), nil
}

// TryAcquire requests the lock without waiting.
//
// A timed-out attempt is an expected outcome for a probe, not a failure:
// it returns (nil, nil). All other non-granted outcomes error exactly as
// [Lock.Acquire] does.
func (l Lock) TryAcquire(ctx context.Context, conn tds.Conn) (*Guard, error) {
	o, err := l.acquire(ctx, conn, NoWait)
	switch {
	case err != nil:
		return nil, err
	case o.Acquired():
		return newGuard(l, conn, o), nil
	case o == TimedOut:
		return nil, nil
	}
	return nil, l.outcomeErr("Lock.TryAcquire", o)
}

// outcomeErr wraps a non-granted Outcome in the appropriate Error kind.
func (l Lock) outcomeErr(op string, o Outcome) error {
	kind := ErrAcquisition
	if o == ValidationFailed {
		kind = ErrValidation
	}
	return &Error{
		Op:       op,
		Kind:     kind,
		Resource: l.resource,
		Inner:    o,
	}
}

// Release releases the lock on the given connection.
//
// The release procedure is invoked exactly once per call; a failure does
// not retroactively un-release, and retry policy belongs to the caller. A
// server report that the session does not hold the lock surfaces as an
// [ErrRelease] Error wrapping [ErrNotHeld].
func (l Lock) Release(ctx context.Context, conn tds.Conn) error {
	const op = `Lock.Release`
	ctx = zlog.ContextWithValues(ctx,
		"component", "tdslock/Lock.Release",
		"resource", l.resource)
	res, err := tds.Call(ctx, conn, procRelease,
		tds.String(l.resource),
		tds.String(l.scope.String()),
	)
	if err != nil {
		releaseCounter.WithLabelValues("false").Inc()
		return &Error{
			Op:       op,
			Kind:     ErrProtocol,
			Resource: l.resource,
			Inner:    err,
		}
	}
	status, err := res.Status()
	if err != nil {
		releaseCounter.WithLabelValues("false").Inc()
		return &Error{
			Op:       op,
			Kind:     ErrUnknownStatus,
			Resource: l.resource,
			Inner:    err,
		}
	}
	switch {
	case status >= 0:
		releaseCounter.WithLabelValues("true").Inc()
		zlog.Debug(ctx).Msg("lock released")
		return nil
	case status <= -999:
		releaseCounter.WithLabelValues("false").Inc()
		return &Error{
			Op:       op,
			Kind:     ErrRelease,
			Resource: l.resource,
			Inner:    ErrNotHeld,
		}
	}
	releaseCounter.WithLabelValues("false").Inc()
	return &Error{
		Op:       op,
		Kind:     ErrRelease,
		Resource: l.resource,
		Message:  fmt.Sprintf("unexpected %s status %d", procRelease, status),
	}
}
