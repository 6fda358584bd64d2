package rowstore

import (
	"context"
	"fmt"
	"sort"
)

// memoryStore is an in-process Store double used by internal/storage's
// tests so they don't need cgo/sqlite at test time, mirroring the
// teacher's preference for a hand-rolled fake over a mocking framework
// (see kryptco-kr's test helpers). It implements enough of Store's
// semantics (equality lookups, streaming iteration in insertion order,
// foreign-key-free table create/drop) to exercise internal/storage's
// manifest/description/content logic; it does not enforce SQL-level
// constraints like UNIQUE or FOREIGN KEY.
type memoryStore struct {
	tables  map[string]*memoryTable
	changed int64
}

type memoryTable struct {
	columns  []Column
	pkColumn string
	rows     []Row
	nextID   int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{tables: make(map[string]*memoryTable)}
}

func (s *memoryStore) CreateTable(ctx context.Context, table string, columns []Column, primaryKey string, fk *ForeignKey) error {
	if _, exists := s.tables[table]; exists {
		return fmt.Errorf("rowstore: table %s already exists", table)
	}
	s.tables[table] = &memoryTable{columns: columns, pkColumn: primaryKey}
	return nil
}

func (s *memoryStore) DropTable(ctx context.Context, table string) error {
	if _, exists := s.tables[table]; !exists {
		return fmt.Errorf("rowstore: table %s does not exist", table)
	}
	delete(s.tables, table)
	return nil
}

func (s *memoryStore) CreateIndex(ctx context.Context, table, column string) error {
	if _, exists := s.tables[table]; !exists {
		return fmt.Errorf("rowstore: table %s does not exist", table)
	}
	return nil
}

func (s *memoryStore) table(name string) (*memoryTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("rowstore: table %s does not exist", name)
	}
	return t, nil
}

func (s *memoryStore) Insert(ctx context.Context, table string, columns []string, values []interface{}, returnRowID bool) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	if len(columns) != len(values) {
		return 0, fmt.Errorf("rowstore: %d columns but %d values", len(columns), len(values))
	}
	t.nextID++
	row := make(Row, len(columns)+2)
	row["rowid"] = t.nextID
	for i, c := range columns {
		row[c] = values[i]
	}
	// Mirror SQLite's INTEGER PRIMARY KEY rowid aliasing: if the caller
	// didn't supply the integer primary key column explicitly (relying
	// on auto-assignment, as every content-table insert does), populate
	// it with the generated id so later GetByColumn(table, pk, id) reads
	// find it the same way a real sqlite-backed Store would.
	if t.pkColumn != "" {
		if _, supplied := row[t.pkColumn]; !supplied {
			row[t.pkColumn] = t.nextID
		}
	}
	t.rows = append(t.rows, row)
	s.changed++
	if returnRowID {
		return t.nextID, nil
	}
	return 0, nil
}

func (s *memoryStore) GetByColumn(ctx context.Context, table, column string, value interface{}) (Row, bool, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, false, err
	}
	for _, row := range t.rows {
		if equalValues(row[column], value) {
			return cloneRow(row), true, nil
		}
	}
	return nil, false, nil
}

func (s *memoryStore) UpdateByColumn(ctx context.Context, table, column string, value interface{}, set map[string]interface{}) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	for i, row := range t.rows {
		if equalValues(row[column], value) {
			for k, v := range set {
				t.rows[i][k] = v
			}
			s.changed++
		}
	}
	return nil
}

func (s *memoryStore) DeleteByColumn(ctx context.Context, table, column string, value interface{}) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	out := t.rows[:0]
	for _, row := range t.rows {
		if equalValues(row[column], value) {
			s.changed++
			continue
		}
		out = append(out, row)
	}
	t.rows = out
	return nil
}

func (s *memoryStore) Iterate(ctx context.Context, table string) (RowIterator, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = cloneRow(r)
	}
	return &memoryIterator{rows: rows}, nil
}

func (s *memoryStore) Count(ctx context.Context, table string) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (s *memoryStore) TableExists(ctx context.Context, table string) (bool, error) {
	_, ok := s.tables[table]
	return ok, nil
}

func (s *memoryStore) ListTables(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) TableColumns(ctx context.Context, table string) ([]string, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names, nil
}

func (s *memoryStore) ChangedRows(ctx context.Context) (int64, error) {
	return s.changed, nil
}

func (s *memoryStore) PragmaSchemaVersion(ctx context.Context) (int64, error) {
	return int64(len(s.tables)), nil
}

func (s *memoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	snapshot := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

// snapshot/restore give memoryStore's WithTransaction rollback semantics
// without a real write-ahead log: good enough for exercising
// internal/storage's rollback-on-error paths in tests.
func (s *memoryStore) snapshot() map[string]*memoryTable {
	snap := make(map[string]*memoryTable, len(s.tables))
	for name, t := range s.tables {
		rows := make([]Row, len(t.rows))
		for i, r := range t.rows {
			rows[i] = cloneRow(r)
		}
		snap[name] = &memoryTable{columns: t.columns, pkColumn: t.pkColumn, rows: rows, nextID: t.nextID}
	}
	return snap
}

func (s *memoryStore) restore(snap map[string]*memoryTable) {
	s.tables = snap
}

func cloneRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func equalValues(a, b interface{}) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return false
		}
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

type memoryIterator struct {
	rows []Row
	pos  int
}

func (it *memoryIterator) Next(ctx context.Context) (Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *memoryIterator) Close() error {
	return nil
}
