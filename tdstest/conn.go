// Package tdstest provides scripted fakes for code that consumes the tds
// interfaces.
//
// A [Conn] replays canned result streams in FIFO order and records every
// invocation it sees, so tests can assert on the exact procedure names and
// positional parameters that hit the wire.
package tdstest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quay/tdslock/tds"
)

// Invocation is one recorded command execution.
//
// Proc is set for CallProc invocations, SQL for Exec.
type Invocation struct {
	Proc string
	SQL  string
	Args []tds.Value
}

// Conn is a scripted tds.Conn.
//
// The zero value is usable. Replies are consumed in the order enqueued; an
// invocation with no scripted reply fails, since that is a test bug.
type Conn struct {
	mu          sync.Mutex
	replies     []reply
	invocations []Invocation
}

type reply struct {
	items     []tds.Item
	connErr   error
	streamErr error
}

var _ tds.Conn = (*Conn)(nil)

// Reply enqueues a stream yielding the given items then EOF.
func (c *Conn) Reply(items ...tds.Item) {
	c.push(reply{items: items})
}

// ReplyStatus enqueues a stream yielding a single terminal summary with
// the given return status.
func (c *Conn) ReplyStatus(status int32) {
	c.Reply(tds.Done{Status: &status})
}

// ReplyNoStatus enqueues a stream yielding a terminal summary with the
// given affected-row count and no return status.
func (c *Conn) ReplyNoStatus(rowsAffected uint64) {
	c.Reply(tds.Done{RowsAffected: rowsAffected})
}

// ReplyError enqueues a connection-level failure: the next invocation
// errors before producing a stream.
func (c *Conn) ReplyError(err error) {
	c.push(reply{connErr: err})
}

// ReplyStreamError enqueues a stream that yields the given items and then
// fails with err instead of ending.
func (c *Conn) ReplyStreamError(err error, items ...tds.Item) {
	c.push(reply{items: items, streamErr: err})
}

func (c *Conn) push(r reply) {
	c.mu.Lock()
	c.replies = append(c.replies, r)
	c.mu.Unlock()
}

// Invocations returns a copy of every recorded invocation, oldest first.
func (c *Conn) Invocations() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Invocation, len(c.invocations))
	copy(out, c.invocations)
	return out
}

// Exec implements tds.Conn.
func (c *Conn) Exec(ctx context.Context, sql string, args []tds.Value) (tds.Stream, error) {
	return c.next(ctx, Invocation{SQL: sql, Args: args})
}

// CallProc implements tds.Conn.
func (c *Conn) CallProc(ctx context.Context, proc string, args []tds.Value) (tds.Stream, error) {
	return c.next(ctx, Invocation{Proc: proc, Args: args})
}

func (c *Conn) next(ctx context.Context, inv Invocation) (tds.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations = append(c.invocations, inv)
	if len(c.replies) == 0 {
		return nil, fmt.Errorf("tdstest: unscripted invocation: %+v", inv)
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	if r.connErr != nil {
		return nil, r.connErr
	}
	return &stream{items: r.items, err: r.streamErr}, nil
}

// stream replays a scripted item sequence.
type stream struct {
	items []tds.Item
	err   error
}

func (s *stream) Next(ctx context.Context) (tds.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	it := s.items[0]
	s.items = s.items[1:]
	return it, nil
}

func (s *stream) Close() error {
	s.items = nil
	return nil
}
