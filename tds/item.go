package tds

// Item is one element of a command's result stream.
//
// The set of implementations is closed: [ColumnMetadata], [Row], and
// [Done]. Consumers type-switch over these.
type Item interface {
	item()
}

// Column describes a single result-set column.
type Column struct {
	Name     string
	TypeName string
}

// ColumnMetadata announces the shape of the rows that follow, one per
// result set.
type ColumnMetadata struct {
	Columns []Column
}

// Row is a single row of data, positionally matching the most recent
// ColumnMetadata.
type Row struct {
	Values []Value
}

// Done is a terminal summary for a result set or procedure invocation.
//
// Status is non-nil only when the server reported a procedure return
// status. More reports whether further result sets follow in the same
// stream.
type Done struct {
	RowsAffected uint64
	Status       *int32
	More         bool
}

func (ColumnMetadata) item() {}
func (Row) item()            {}
func (Done) item()           {}
