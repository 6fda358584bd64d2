package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every query
// method below run unchanged whether sqliteStore wraps a plain
// connection or a transaction started by WithTransaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteStore is the concrete Store backed by database/sql over
// github.com/mattn/go-sqlite3, grounded on
// original_source/app/storage/sql/raw.py's db_connect/db_create_new
// connection setup (EXCLUSIVE isolation, foreign_keys pragma on,
// schema_version liveness probe) and kryptco-kr/command.go's direct use
// of the cgo sqlite3 binding as the pack's confirmation that this domain
// is SQLite-shaped.
type sqliteStore struct {
	db   *sql.DB // nil for a transaction-scoped store
	conn execer
}

// Open connects to an existing SQLite file at path, running the same
// liveness probe and pragma setup original_source's db_connect does.
func Open(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=exclusive", path))
	if err != nil {
		return nil, fmt.Errorf("rowstore: open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA schema_version"); err != nil {
		db.Close()
		return nil, fmt.Errorf("rowstore: connection test failed for %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("rowstore: enabling foreign_keys for %s: %w", path, err)
	}
	return &sqliteStore{db: db, conn: db}, nil
}

// Create makes a brand new SQLite file at path and opens it. If rewrite
// is true, any existing file at path is removed first, mirroring
// db_create_new(rewrite=True).
func Create(ctx context.Context, path string, rewrite bool) (Store, error) {
	if rewrite {
		_ = removeIfExists(path)
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=exclusive", path))
	if err != nil {
		return nil, fmt.Errorf("rowstore: create %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("rowstore: enabling foreign_keys for %s: %w", path, err)
	}
	return &sqliteStore{db: db, conn: db}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnTypeSQL(t ColumnType) string {
	switch t {
	case ColumnBlob:
		return "BLOB"
	case ColumnText:
		return "TEXT"
	case ColumnInteger:
		return "INTEGER"
	default:
		panic("rowstore: unknown column type")
	}
}

func (s *sqliteStore) CreateTable(ctx context.Context, table string, columns []Column, primaryKey string, fk *ForeignKey) error {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		def := quoteIdent(c.Name) + " " + columnTypeSQL(c.Type)
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	if primaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(primaryKey)))
	}
	if fk != nil {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
			quoteIdent(fk.Column), quoteIdent(fk.RefTable), quoteIdent(fk.RefColumn)))
	}
	query := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("rowstore: create table %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) DropTable(ctx context.Context, table string) error {
	if _, err := s.conn.ExecContext(ctx, "DROP TABLE "+quoteIdent(table)); err != nil {
		return fmt.Errorf("rowstore: drop table %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) CreateIndex(ctx context.Context, table, column string) error {
	indexName := fmt.Sprintf("index_%s_%s", table, column)
	query := fmt.Sprintf("CREATE INDEX %s ON %s(%s)", quoteIdent(indexName), quoteIdent(table), quoteIdent(column))
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("rowstore: create index on %s(%s): %w", table, column, err)
	}
	return nil
}

func (s *sqliteStore) Insert(ctx context.Context, table string, columns []string, values []interface{}, returnRowID bool) (int64, error) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	result, err := s.conn.ExecContext(ctx, query, values...)
	if err != nil {
		return 0, fmt.Errorf("rowstore: insert into %s: %w", table, err)
	}
	if !returnRowID {
		return 0, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rowstore: last insert id for %s: %w", table, err)
	}
	return id, nil
}

func (s *sqliteStore) GetByColumn(ctx context.Context, table, column string, value interface{}) (Row, bool, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(table), quoteIdent(column))
	rows, err := s.conn.QueryContext(ctx, query, value)
	if err != nil {
		return nil, false, fmt.Errorf("rowstore: select from %s: %w", table, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (s *sqliteStore) UpdateByColumn(ctx context.Context, table, column string, value interface{}, set map[string]interface{}) error {
	if len(set) == 0 {
		return fmt.Errorf("rowstore: update on %s with no columns to set", table)
	}
	assignments := make([]string, 0, len(set))
	args := make([]interface{}, 0, len(set)+1)
	for name, v := range set {
		assignments = append(assignments, quoteIdent(name)+" = ?")
		args = append(args, v)
	}
	args = append(args, value)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quoteIdent(table), strings.Join(assignments, ", "), quoteIdent(column))
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("rowstore: update %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) DeleteByColumn(ctx context.Context, table, column string, value interface{}) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(table), quoteIdent(column))
	if _, err := s.conn.ExecContext(ctx, query, value); err != nil {
		return fmt.Errorf("rowstore: delete from %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) Iterate(ctx context.Context, table string) (RowIterator, error) {
	query := "SELECT * FROM " + quoteIdent(table)
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rowstore: iterate %s: %w", table, err)
	}
	return &sqlRowIterator{rows: rows}, nil
}

func (s *sqliteStore) Count(ctx context.Context, table string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + quoteIdent(table)
	var count int64
	if err := s.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("rowstore: count %s: %w", table, err)
	}
	return count, nil
}

func (s *sqliteStore) TableExists(ctx context.Context, table string) (bool, error) {
	var count int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("rowstore: table exists check for %s: %w", table, err)
	}
	return count > 0, nil
}

func (s *sqliteStore) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("rowstore: list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("rowstore: list tables scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqliteStore) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("rowstore: table columns for %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	nameIdx := -1
	for i, c := range cols {
		if c == "name" {
			nameIdx = i
		}
	}
	var names []string
	dest := make([]interface{}, len(cols))
	for i := range dest {
		var v interface{}
		dest[i] = &v
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if nameIdx >= 0 {
			if v, ok := (*dest[nameIdx].(*interface{})).(string); ok {
				names = append(names, v)
			}
		}
	}
	return names, rows.Err()
}

// ChangedRows reports sqlite's total_changes(): the cumulative number of
// rows inserted, updated or deleted on the database connection that runs
// the query. database/sql pools connections, so rows changed through a
// different pooled connection are not counted.
func (s *sqliteStore) ChangedRows(ctx context.Context) (int64, error) {
	var total int64
	if err := s.conn.QueryRowContext(ctx, "SELECT total_changes()").Scan(&total); err != nil {
		return 0, fmt.Errorf("rowstore: changed rows: %w", err)
	}
	return total, nil
}

func (s *sqliteStore) PragmaSchemaVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.conn.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("rowstore: pragma schema_version: %w", err)
	}
	return version, nil
}

func (s *sqliteStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		return fmt.Errorf("rowstore: nested transactions are not supported")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rowstore: begin transaction: %w", err)
	}
	txStore := &sqliteStore{db: nil, conn: tx}
	if err := fn(ctx, txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rowstore: commit transaction: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return fmt.Errorf("rowstore: cannot Close a transaction-scoped store")
	}
	return s.db.Close()
}

func scanRow(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(Row, len(cols))
	for i, c := range cols {
		row[c] = values[i]
	}
	return row, nil
}

type sqlRowIterator struct {
	rows *sql.Rows
}

func (it *sqlRowIterator) Next(ctx context.Context) (Row, bool, error) {
	if !it.rows.Next() {
		return nil, false, it.rows.Err()
	}
	row, err := scanRow(it.rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (it *sqlRowIterator) Close() error {
	return it.rows.Close()
}
