// Package tds models the result side of a TDS-style stateful wire protocol:
// the heterogeneous item stream a connection produces when a command is
// executed, and the two ways that stream gets consumed.
//
// Connection establishment, authentication, and the encoding of outgoing
// packets are deliberately not here. A transport hands this package an
// established [Conn]; everything in this package operates on the items that
// come back.
//
// A command's result stream interleaves column metadata, rows, and one or
// more terminal summaries. A summary carries the affected-row count and,
// for stored-procedure invocations, the procedure's return status. The
// return status is an out-of-band channel: it is not a row, and a stream
// that completes without one is not an error for plain queries. Procedure
// callers that need the status must check [Result.ReturnStatus] rather than
// assuming silence means success.
package tds

import "context"

// Conn is an established database connection.
//
// A Conn is single-request-in-flight: callers must not issue a second
// command until the Stream from the first has been consumed or closed.
// Implementations are provided by the transport layer.
type Conn interface {
	// Exec executes a parameterized SQL batch.
	Exec(ctx context.Context, sql string, args []Value) (Stream, error)

	// CallProc invokes the named stored procedure with positional
	// arguments. Argument order must match the procedure's declared
	// signature; no reordering happens below this point.
	CallProc(ctx context.Context, proc string, args []Value) (Stream, error)
}

// Stream is the sequence of Items produced by executing one command.
type Stream interface {
	// Next returns the next item in the stream, or io.EOF once the stream
	// is exhausted. Any other error is a protocol-level failure and the
	// stream must not be used afterwards.
	Next(ctx context.Context) (Item, error)

	// Close releases resources held by the stream. Close must be called
	// even when Next returned an error.
	Close() error
}
