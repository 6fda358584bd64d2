// Package rowstore abstracts the relational file overpass persists its
// tables into. internal/storage never issues SQL directly; it only calls
// through this interface, so the concrete engine (SQLite today) stays a
// swappable implementation detail, exactly as spec.md describes the row
// store as "a particular relational-file library" hidden behind the
// content engine.
package rowstore

import "context"

// ColumnType is the small fixed set of column types overpass's tables
// need: every stored value is either opaque ciphertext/IV bytes, a
// searchable hash string, or an integer identifier/counter.
type ColumnType int

const (
	ColumnBlob ColumnType = iota
	ColumnText
	ColumnInteger
)

// Column describes one table column.
type Column struct {
	Name     string
	Type     ColumnType
	NotNull  bool
	Unique   bool
}

// ForeignKey describes a single-column foreign key constraint, mirroring
// original_source/app/storage/sql/raw.py's ForeignKey dataclass.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Row is one retrieved record, addressable by column name.
type Row map[string]interface{}

// RowIterator streams rows out of a query in batches, mirroring
// iterate_query_raw's fetchmany-based generator. Callers must call Close
// once done, even after Next returns false.
type RowIterator interface {
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Store is the full row store contract internal/storage is built against.
type Store interface {
	// CreateTable issues CREATE TABLE with the given columns, optional
	// primary key column (empty for none), and optional single foreign
	// key (nil for none). Uniqueness is set per column via Column.Unique.
	CreateTable(ctx context.Context, table string, columns []Column, primaryKey string, fk *ForeignKey) error
	DropTable(ctx context.Context, table string) error
	CreateIndex(ctx context.Context, table, column string) error

	// Insert adds one row. If returnRowID is true the new integer rowid
	// is returned; otherwise the second return value is 0.
	Insert(ctx context.Context, table string, columns []string, values []interface{}, returnRowID bool) (int64, error)
	// GetByColumn fetches the first row whose column equals value, or
	// found=false if none matches.
	GetByColumn(ctx context.Context, table, column string, value interface{}) (row Row, found bool, err error)
	UpdateByColumn(ctx context.Context, table, column string, value interface{}, set map[string]interface{}) error
	DeleteByColumn(ctx context.Context, table, column string, value interface{}) error

	// Iterate streams every row of table in primary-key or rowid order.
	Iterate(ctx context.Context, table string) (RowIterator, error)
	Count(ctx context.Context, table string) (int64, error)

	TableExists(ctx context.Context, table string) (bool, error)
	ListTables(ctx context.Context) ([]string, error)
	TableColumns(ctx context.Context, table string) ([]string, error)

	// ChangedRows returns the cumulative number of rows this connection
	// has inserted/updated/deleted, mirroring get_changed_rows_count's
	// use of sqlite3's total_changes.
	ChangedRows(ctx context.Context) (int64, error)

	// WithTransaction runs fn against a transaction-scoped Store,
	// committing on a nil return and rolling back otherwise. Nested calls
	// are not supported: the content engine never needs them.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// PragmaSchemaVersion is the liveness probe original_source's
	// db_connect runs immediately after opening a file, before any
	// manifest read is attempted.
	PragmaSchemaVersion(ctx context.Context) (int64, error)

	Close() error
}
