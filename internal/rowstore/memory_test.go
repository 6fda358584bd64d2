package rowstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	columns := []Column{{Name: "id", Type: ColumnText, Unique: true}, {Name: "data", Type: ColumnBlob}}
	if err := s.CreateTable(ctx, "widgets", columns, "id", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, err := s.Insert(ctx, "widgets", []string{"id", "data"}, []interface{}{"a", []byte("hello")}, false); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	row, found, err := s.GetByColumn(ctx, "widgets", "id", "a")
	if err != nil {
		t.Fatalf("GetByColumn: %v", err)
	}
	if !found {
		t.Fatal("expected row to be found")
	}
	if string(row["data"].([]byte)) != "hello" {
		t.Fatalf("unexpected data: %v", row["data"])
	}

	count, err := s.Count(ctx, "widgets")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if err := s.DeleteByColumn(ctx, "widgets", "id", "a"); err != nil {
		t.Fatalf("DeleteByColumn: %v", err)
	}
	_, found, err = s.GetByColumn(ctx, "widgets", "id", "a")
	if err != nil {
		t.Fatalf("GetByColumn after delete: %v", err)
	}
	if found {
		t.Fatal("expected row to be gone after delete")
	}
}

func TestMemoryStoreIterate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	if err := s.CreateTable(ctx, "t", []Column{{Name: "id", Type: ColumnInteger}}, "", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Insert(ctx, "t", []string{"id"}, []interface{}{int64(i)}, false); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	it, err := s.Iterate(ctx, "t")
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	defer it.Close()
	var seen []int64
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen = append(seen, row["id"].(int64))
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(seen))
	}
}

func TestMemoryStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	if err := s.CreateTable(ctx, "t", []Column{{Name: "id", Type: ColumnInteger}}, "", nil); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := s.Insert(ctx, "t", []string{"id"}, []interface{}{int64(1)}, false); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	sentinel := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Insert(ctx, "t", []string{"id"}, []interface{}{int64(2)}, false); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	count, err := s.Count(ctx, "t")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave count at 1, got %d", count)
	}
}
