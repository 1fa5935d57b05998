package tdslock

// reqOp discriminates manager requests.
type reqOp int

const (
	opInvalid reqOp = iota
	opAcquire
	opRelease
)

// request is an internal request for a managed lock.
type request struct {
	op       reqOp
	key      string
	respChan chan response
}

// response is the manager's answer to a request.
type response struct {
	// ok is true if the lock was acquired or released.
	ok  bool
	ctx *lockctx
}

// reqPool recycles request structs and their response channels so the
// per-acquisition allocation cost stays flat.
type reqPool struct {
	c chan request
}

func newReqPool(seed int) *reqPool {
	c := make(chan request, seed*2)
	for i := 0; i < seed; i++ {
		r := request{respChan: make(chan response)}
		select {
		case c <- r:
		default:
		}
	}
	return &reqPool{c}
}

func (p *reqPool) Get() request {
	select {
	case r := <-p.c:
		return r
	default:
		return request{respChan: make(chan response)}
	}
}

func (p *reqPool) Put(r request) {
	select {
	case <-r.respChan:
	default:
	}
	r.key = ""
	r.op = opInvalid
	select {
	case p.c <- r:
	default:
	}
}
