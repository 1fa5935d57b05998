package tdslock_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/quay/tdslock"
	"github.com/quay/tdslock/tdstest"
)

func newManager(ctx context.Context, t *testing.T, conn *tdstest.Conn, opts ...tdslock.Opt) *tdslock.Manager {
	t.Helper()
	m, err := tdslock.NewManager(ctx, conn, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// waitFor polls until the condition holds or the test deadline is near.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func TestManagerTryLock(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	conn.ReplyStatus(0)
	lctx, cancel := m.TryLock(ctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}

	conn.ReplyStatus(0)
	cancel()
	if err := lctx.Err(); err == nil {
		t.Error("lock context still live after release")
	}

	// The key is acquirable again.
	conn.ReplyStatus(0)
	lctx, cancel = m.TryLock(ctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}
	conn.ReplyStatus(0)
	cancel()
}

func TestManagerMutualExclusion(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	conn.ReplyStatus(0)
	lctx, cancel := m.TryLock(ctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// A second request for a held key is refused in-process, without a
	// round trip.
	l2, c2 := m.TryLock(ctx, "R1")
	if !errors.Is(l2.Err(), tdslock.ErrMutualExclusion) {
		t.Errorf("got %v, want %v", l2.Err(), tdslock.ErrMutualExclusion)
	}
	c2()
	if got := len(conn.Invocations()); got != 1 {
		t.Errorf("got %d invocations, want 1", got)
	}
}

func TestManagerContention(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	// Another session holds R1: the server answers -1 to the no-wait
	// probe.
	conn.ReplyStatus(-1)
	lctx, _ := m.TryLock(ctx, "R1")
	if !errors.Is(lctx.Err(), tdslock.ErrMutualExclusion) {
		t.Errorf("got %v, want %v", lctx.Err(), tdslock.ErrMutualExclusion)
	}
}

func TestManagerMaxLocks(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn, tdslock.WithMax(1))

	conn.ReplyStatus(0)
	lctx, cancel := m.TryLock(ctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}
	defer cancel()

	l2, _ := m.TryLock(ctx, "R2")
	if !errors.Is(l2.Err(), tdslock.ErrMaxLocks) {
		t.Errorf("got %v, want %v", l2.Err(), tdslock.ErrMaxLocks)
	}
}

func TestManagerValidation(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	lctx, _ := m.TryLock(ctx, "")
	if !errors.Is(lctx.Err(), tdslock.ErrValidation) {
		t.Errorf("got %v, want kind %v", lctx.Err(), tdslock.ErrValidation)
	}
	if got := len(conn.Invocations()); got != 0 {
		t.Errorf("got %d invocations, want 0", got)
	}
}

func TestManagerSessionLost(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	conn.ReplyStatus(0)
	held, _ := m.TryLock(ctx, "R1")
	if err := held.Err(); err != nil {
		t.Fatal(err)
	}

	conn.ReplyError(errors.New("broken pipe"))
	lctx, _ := m.TryLock(ctx, "R2")
	if !errors.Is(lctx.Err(), tdslock.ErrSessionLost) {
		t.Errorf("got %v, want %v", lctx.Err(), tdslock.ErrSessionLost)
	}

	// Locks held through the lost session are canceled.
	waitFor(t, func() bool { return held.Err() != nil })
	if !errors.Is(held.Err(), tdslock.ErrSessionLost) {
		t.Errorf("got %v, want %v", held.Err(), tdslock.ErrSessionLost)
	}

	// The manager stays offline without further wire traffic.
	before := len(conn.Invocations())
	l3, _ := m.TryLock(ctx, "R3")
	if !errors.Is(l3.Err(), tdslock.ErrSessionLost) {
		t.Errorf("got %v, want %v", l3.Err(), tdslock.ErrSessionLost)
	}
	if got := len(conn.Invocations()); got != before {
		t.Errorf("offline manager still produced wire traffic: %d -> %d", before, got)
	}
}

func TestManagerParentCancelation(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	pctx, pcancel := context.WithCancel(ctx)
	conn.ReplyStatus(0)
	lctx, _ := m.TryLock(pctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}

	// Canceling the parent releases the lock.
	conn.ReplyStatus(0)
	pcancel()
	waitFor(t, func() bool { return lctx.Err() != nil })
	waitFor(t, func() bool { return len(conn.Invocations()) == 2 })
	inv := conn.Invocations()
	if got, want := inv[1].Proc, "sp_releaseapplock"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestManagerClosed(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	conn.ReplyStatus(0)
	held, _ := m.TryLock(ctx, "R1")
	if err := held.Err(); err != nil {
		t.Fatal(err)
	}

	done()
	waitFor(t, func() bool { return held.Err() != nil })
	if !errors.Is(held.Err(), tdslock.ErrManagerClosed) {
		t.Errorf("got %v, want %v", held.Err(), tdslock.ErrManagerClosed)
	}

	lctx, _ := m.TryLock(ctx, "R2")
	if !errors.Is(lctx.Err(), tdslock.ErrManagerClosed) {
		t.Errorf("got %v, want %v", lctx.Err(), tdslock.ErrManagerClosed)
	}
}

func TestManagerLockBlocks(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	// Busy on the first probe, granted on the second.
	conn.ReplyStatus(-1)
	conn.ReplyStatus(0)

	lctx, cancel := m.Lock(ctx, "R1")
	if err := lctx.Err(); err != nil {
		t.Fatal(err)
	}
	conn.ReplyStatus(0)
	cancel()
}

func TestManagerConcurrentTryLock(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	mctx, done := context.WithCancel(ctx)
	defer done()

	conn := new(tdstest.Conn)
	m := newManager(mctx, t, conn)

	// Exactly one winner: the first request reaches the wire, the rest
	// are refused by the in-process table.
	conn.ReplyStatus(0)

	var won atomic.Int64
	eg, ectx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			lctx, _ := m.TryLock(ectx, "R1")
			switch err := lctx.Err(); {
			case err == nil:
				won.Add(1)
			case errors.Is(err, tdslock.ErrMutualExclusion):
			default:
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := won.Load(); got != 1 {
		t.Errorf("got %d winners, want 1", got)
	}
}
