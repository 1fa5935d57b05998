package tds

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNoReturnStatus is reported when a caller requires a procedure return
// status but the stream completed without the server sending one. It must
// never be coerced to success: an absent status means the lock (or other
// procedure outcome) state is unknown.
var ErrNoReturnStatus = errors.New("tds: stream completed without a return status")

// Result is the folded summary of one command's result stream.
//
// ReturnStatus is nil when no status token was observed. That is normal for
// plain queries and a hard error for callers that invoked a procedure for
// its status; such callers check against [ErrNoReturnStatus].
type Result struct {
	RowsAffected uint64
	ReturnStatus *int32
}

// Status returns the procedure return status, or ErrNoReturnStatus if the
// stream carried none.
func (r Result) Status() (int32, error) {
	if r.ReturnStatus == nil {
		return 0, ErrNoReturnStatus
	}
	return *r.ReturnStatus, nil
}

// CollectResult drains the stream, discarding rows and metadata, and folds
// the terminal summaries into a Result.
//
// This is the consumption mode for procedure invocations made for their
// side effect and status code. Affected-row counts are summed across result
// sets; the status of the summary that carries one becomes ReturnStatus.
// A protocol-level error anywhere in the stream aborts the fold.
func CollectResult(ctx context.Context, s Stream) (Result, error) {
	return consume(ctx, s, nil)
}

// ForEachRow drains the stream, invoking fn for every row alongside the
// metadata of its result set, and folds the terminal summaries into a
// Result.
//
// This is the general-query consumption mode over the same stream shape
// that CollectResult folds. An error from fn aborts consumption.
func ForEachRow(ctx context.Context, s Stream, fn func(ColumnMetadata, Row) error) (Result, error) {
	if fn == nil {
		return Result{}, errors.New("tds: ForEachRow: nil row func")
	}
	return consume(ctx, s, fn)
}

func consume(ctx context.Context, s Stream, fn func(ColumnMetadata, Row) error) (Result, error) {
	var (
		res  Result
		meta ColumnMetadata
	)
	defer s.Close()
	for {
		it, err := s.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return res, nil
		case err != nil:
			return res, fmt.Errorf("tds: result stream: %w", err)
		}
		switch it := it.(type) {
		case ColumnMetadata:
			meta = it
		case Row:
			if fn == nil {
				continue
			}
			if err := fn(meta, it); err != nil {
				return res, err
			}
		case Done:
			res.RowsAffected += it.RowsAffected
			if it.Status != nil {
				status := *it.Status
				res.ReturnStatus = &status
			}
		default:
			return res, fmt.Errorf("tds: result stream: unexpected item %T", it)
		}
	}
}
