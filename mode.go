package tdslock

import (
	"fmt"
	"math"
	"time"
)

// Mode is the requested lock mode.
//
// The String form is the exact value sent as the procedure's mode
// parameter.
type Mode uint

const (
	modeInvalid Mode = iota

	// Shared is compatible with other Shared and Update holders.
	Shared
	// Update is compatible with Shared holders only.
	Update
	// Exclusive is compatible with nothing.
	Exclusive
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Shared:
		return "Shared"
	case Update:
		return "Update"
	case Exclusive:
		return "Exclusive"
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m == modeInvalid || m > Exclusive {
		return nil, fmt.Errorf("invalid lock mode %d", uint(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Shared":
		*m = Shared
	case "Update":
		*m = Update
	case "Exclusive":
		*m = Exclusive
	default:
		return fmt.Errorf("invalid lock mode %q", string(text))
	}
	return nil
}

// CompatibleWith reports whether two concurrent holders of the given modes
// can coexist.
//
// This table is advisory metadata: the server is the sole enforcer of
// compatibility, and the client only requests a mode and interprets the
// grant or deny decision. The table exists for documentation and tests.
func (m Mode) CompatibleWith(o Mode) bool {
	switch {
	case m == Shared && o == Shared:
		return true
	case m == Shared && o == Update, m == Update && o == Shared:
		return true
	}
	return false
}

// Scope determines the lock's owner: a Session lock persists until
// explicitly released or the session ends, a Transaction lock is released
// automatically when the owning transaction ends.
//
// The String form is the exact value sent as the procedure's owner
// parameter.
type Scope uint

const (
	scopeInvalid Scope = iota

	Session
	Transaction
)

// String implements fmt.Stringer.
func (s Scope) String() string {
	switch s {
	case Session:
		return "Session"
	case Transaction:
		return "Transaction"
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if s == scopeInvalid || s > Transaction {
		return nil, fmt.Errorf("invalid lock scope %d", uint(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Session":
		*s = Session
	case "Transaction":
		*s = Transaction
	default:
		return fmt.Errorf("invalid lock scope %q", string(text))
	}
	return nil
}

// LockTimeout is a lock wait budget in milliseconds, as the server's
// timeout parameter defines it.
//
// It is deliberately not a [time.Duration]: the wire value is integral
// milliseconds with two reserved values, and sub-millisecond durations
// would truncate silently.
type LockTimeout int32

const (
	// Forever blocks until the lock is granted or the request fails.
	Forever LockTimeout = -1
	// NoWait fails immediately if the lock cannot be granted.
	NoWait LockTimeout = 0
)

// Wait converts a duration into a LockTimeout, clamping to the
// representable range. Negative durations mean Forever.
func Wait(d time.Duration) LockTimeout {
	if d < 0 {
		return Forever
	}
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return LockTimeout(ms)
}

// String implements fmt.Stringer.
func (t LockTimeout) String() string {
	switch t {
	case Forever:
		return "forever"
	case NoWait:
		return "nowait"
	}
	return (time.Duration(t) * time.Millisecond).String()
}
