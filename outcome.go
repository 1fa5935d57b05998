package tdslock

// Outcome is the server's decision on an acquisition attempt, decoded from
// the procedure return status.
type Outcome int

const (
	outcomeInvalid Outcome = iota

	// Granted means the lock was granted synchronously.
	Granted
	// GrantedAfterWait means the lock was granted after other requests
	// released it.
	GrantedAfterWait
	// TimedOut means the wait budget elapsed before the lock was granted.
	TimedOut
	// Cancelled means the request was cancelled server-side.
	Cancelled
	// DeadlockVictim means the request was chosen as a deadlock victim.
	DeadlockVictim
	// ValidationFailed means the server rejected the call's parameters.
	ValidationFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case GrantedAfterWait:
		return "granted after wait"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	case DeadlockVictim:
		return "deadlock victim"
	case ValidationFailed:
		return "validation failed"
	}
	return "invalid"
}

// Error implements error so that non-success Outcomes can travel in error
// chains and be tested with [errors.Is], the same way [ErrorKind] does.
func (o Outcome) Error() string {
	return o.String()
}

// Acquired reports whether the Outcome holds the lock.
//
// Only acquired Outcomes produce a [Guard]; every other Outcome leaves the
// connection unlocked and immediately usable.
func (o Outcome) Acquired() bool {
	return o == Granted || o == GrantedAfterWait
}

// outcomeForStatus maps a procedure return status to an Outcome.
//
// The mapping is a fixed external contract and must not be reinterpreted:
//
//	     0  granted
//	     1  granted after waiting
//	    -1  timed out
//	    -2  cancelled
//	    -3  deadlock victim
//	<= -999  parameter validation or other call error
//
// The second return is false for statuses outside the contract, which the
// caller treats as a protocol error.
func outcomeForStatus(status int32) (Outcome, bool) {
	switch {
	case status == 0:
		return Granted, true
	case status == 1:
		return GrantedAfterWait, true
	case status == -1:
		return TimedOut, true
	case status == -2:
		return Cancelled, true
	case status == -3:
		return DeadlockVictim, true
	case status <= -999:
		return ValidationFailed, true
	}
	return outcomeInvalid, false
}
