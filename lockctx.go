package tdslock

import (
	"sync"
	"time"
)

var closedchan = make(chan struct{})

func init() {
	close(closedchan)
}

// lockctx implements context.Context for a lock held through a [Manager].
//
// Its Done channel closes and its Err becomes non-nil when the lock is no
// longer held, with the error explaining why.
type lockctx struct {
	sync.Mutex
	err  error
	done chan struct{}
}

var emptyTime = time.Time{}

func (c *lockctx) Deadline() (deadline time.Time, ok bool) {
	return emptyTime, false
}

func (c *lockctx) Done() <-chan struct{} {
	c.Lock()
	d := c.done
	c.Unlock()
	return d
}

func (c *lockctx) Err() error {
	c.Lock()
	e := c.err
	c.Unlock()
	return e
}

func (c *lockctx) Value(key interface{}) interface{} {
	return nil
}

func (c *lockctx) cancel(err error) {
	if err == nil {
		panic("lockctx: internal error: missing cancel error")
	}
	c.Lock()
	if c.err != nil {
		c.Unlock()
		return // already canceled
	}
	c.err = err
	if c.done == nil {
		c.done = closedchan
	} else {
		close(c.done)
	}
	c.Unlock()
}

// canceled returns a pre-canceled lockctx carrying err.
func canceled(err error) *lockctx {
	return &lockctx{done: closedchan, err: err}
}
