package storage

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/elseecay/overpass/internal/rowstore"
)

func newTestConnection(t *testing.T, password string) *Connection {
	t.Helper()
	store := rowstore.NewMemory()
	conn, err := Create(context.Background(), store, password, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return conn
}

func TestCreateThenOpenWithCorrectPassword(t *testing.T) {
	ctx := context.Background()
	store := rowstore.NewMemory()
	conn, err := Create(ctx, store, "hunter2", Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	conn2, err := Open(ctx, store, "hunter2")
	if err != nil {
		t.Fatalf("Open with correct password: %v", err)
	}
	defer conn2.Close()
}

func TestOpenWithWrongPasswordFails(t *testing.T) {
	ctx := context.Background()
	store := rowstore.NewMemory()
	conn, err := Create(ctx, store, "hunter2", Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	conn.Close()

	_, err = Open(ctx, store, "wrong password")
	if err == nil {
		t.Fatalf("expected Open with wrong password to fail")
	}
	var keyErr *KeyCheckError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected *KeyCheckError, got %T: %v", err, err)
	}
}

func TestDBIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	dbid, err := conn.GetDBID(ctx)
	if err != nil {
		t.Fatalf("GetDBID: %v", err)
	}
	if len(dbid) != 6 {
		t.Fatalf("expected a 3-byte hex dbid (6 chars), got %q", dbid)
	}

	if err := conn.SetDBID(ctx, "AABBCC"); err != nil {
		t.Fatalf("SetDBID: %v", err)
	}
	got, err := conn.GetDBID(ctx)
	if err != nil {
		t.Fatalf("GetDBID after SetDBID: %v", err)
	}
	if got != "AABBCC" {
		t.Fatalf("expected dbid AABBCC, got %q", got)
	}

	if err := conn.SetDBID(ctx, "not-hex"); err == nil {
		t.Fatalf("expected SetDBID to reject a non-hex dbid")
	}
	if err := conn.SetDBID(ctx, "AA"); err == nil {
		t.Fatalf("expected SetDBID to reject a dbid shorter than 3 bytes")
	}
}

func TestGetAppVersion(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	version, err := conn.GetAppVersion(ctx)
	if err != nil {
		t.Fatalf("GetAppVersion: %v", err)
	}
	if version != AppVersion {
		t.Fatalf("expected app version %q, got %q", AppVersion, version)
	}
}

func TestInsertGetRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	attribs := map[string]string{"login": "alice", "password": "s3cret"}
	if err := conn.InsertRecord(ctx, "passwords", "github.com", attribs); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	got, found, err := conn.GetRecord(ctx, "passwords", "github.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !found {
		t.Fatalf("expected record to be found")
	}
	if got["login"] != "alice" || got["password"] != "s3cret" {
		t.Fatalf("unexpected attribs: %#v", got)
	}

	if err := conn.InsertRecord(ctx, "passwords", "github.com", attribs); err == nil {
		t.Fatalf("expected InsertRecord to reject a duplicate key")
	}

	count, err := conn.CountRecords(ctx, "passwords")
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	_, found, err = conn.GetRecord(ctx, "passwords", "missing.example")
	if err != nil {
		t.Fatalf("GetRecord for missing key: %v", err)
	}
	if found {
		t.Fatalf("expected missing key to not be found")
	}
}

func TestUpdateRecordMergeAndReplace(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := conn.InsertRecord(ctx, "passwords", "github.com", map[string]string{"login": "alice", "password": "old"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	if err := conn.UpdateRecord(ctx, "passwords", "github.com", map[string]string{"password": "new"}, nil, false); err != nil {
		t.Fatalf("UpdateRecord (merge): %v", err)
	}
	got, _, err := conn.GetRecord(ctx, "passwords", "github.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got["login"] != "alice" || got["password"] != "new" {
		t.Fatalf("expected merge to keep login and update password, got %#v", got)
	}

	if err := conn.UpdateRecord(ctx, "passwords", "github.com", map[string]string{"password": "replaced"}, nil, true); err != nil {
		t.Fatalf("UpdateRecord (replace): %v", err)
	}
	got, _, err = conn.GetRecord(ctx, "passwords", "github.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if _, hasLogin := got["login"]; hasLogin {
		t.Fatalf("expected replace=true to drop the previous login field, got %#v", got)
	}
	if got["password"] != "replaced" {
		t.Fatalf("expected replaced password, got %#v", got)
	}
}

func TestUpdateRecordRenameKeyWithHashSearch(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", true); err != nil {
		t.Fatalf("CreateTable with hash search: %v", err)
	}
	if err := conn.InsertRecord(ctx, "passwords", "old.example", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	newKey := "new.example"
	if err := conn.UpdateRecord(ctx, "passwords", "old.example", map[string]string{"a": "2"}, &newKey, true); err != nil {
		t.Fatalf("UpdateRecord rename: %v", err)
	}

	if _, found, err := conn.GetRecord(ctx, "passwords", "old.example"); err != nil {
		t.Fatalf("GetRecord old key: %v", err)
	} else if found {
		t.Fatalf("expected old key to no longer resolve")
	}
	got, found, err := conn.GetRecord(ctx, "passwords", "new.example")
	if err != nil {
		t.Fatalf("GetRecord new key: %v", err)
	}
	if !found || got["a"] != "2" {
		t.Fatalf("expected renamed key to carry the updated attribs, got found=%v attribs=%#v", found, got)
	}
}

func TestDelRecord(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := conn.InsertRecord(ctx, "passwords", "k", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := conn.DelRecord(ctx, "passwords", "k"); err != nil {
		t.Fatalf("DelRecord: %v", err)
	}
	if _, found, err := conn.GetRecord(ctx, "passwords", "k"); err != nil {
		t.Fatalf("GetRecord after delete: %v", err)
	} else if found {
		t.Fatalf("expected key to be gone after DelRecord")
	}
	// deleting an absent key is a no-op, not an error
	if err := conn.DelRecord(ctx, "passwords", "k"); err != nil {
		t.Fatalf("DelRecord on absent key should be a no-op, got: %v", err)
	}
}

func TestKeysAndIterateWithDecryption(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	want := []string{"a.example", "b.example", "c.example"}
	for _, k := range want {
		if err := conn.InsertRecord(ctx, "passwords", k, map[string]string{"k": k}); err != nil {
			t.Fatalf("InsertRecord(%q): %v", k, err)
		}
	}

	keys, err := conn.Keys(ctx, "passwords")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(want)
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected sorted keys %v, got %v", want, keys)
		}
	}

	it, err := conn.IterateWithDecryption(ctx, "passwords")
	if err != nil {
		t.Fatalf("IterateWithDecryption: %v", err)
	}
	defer it.Close()
	seen := 0
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("iterator Next: %v", err)
		}
		if !ok {
			break
		}
		if rec.Attribs["k"] != rec.Key {
			t.Fatalf("record %q carried mismatched attribs %#v", rec.Key, rec.Attribs)
		}
		seen++
	}
	if seen != len(want) {
		t.Fatalf("expected to iterate %d records, saw %d", len(want), seen)
	}
}

func TestCreateTableDuplicateAndDeleteTable(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "notes", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := conn.CreateTable(ctx, "notes", false); err == nil {
		t.Fatalf("expected CreateTable to reject a duplicate table name")
	}
	if err := conn.DeleteTable(ctx, "notes"); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if err := conn.DeleteTable(ctx, "notes"); err == nil {
		t.Fatalf("expected DeleteTable to fail on an already-deleted table")
	}
	// deleted names must become free again for a brand-new table
	if err := conn.CreateTable(ctx, "notes", false); err != nil {
		t.Fatalf("CreateTable after delete: %v", err)
	}
}

func TestDeleteTableInvalidatesConnectionCache(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "notes", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	// Populate the long-lived Connection-level description cache
	// directly, the same way GetRecord/InsertRecord/etc. do, before
	// deleting — DeleteTable must not leave this entry stale.
	if !conn.TableExists(ctx, "notes") {
		t.Fatalf("expected TableExists to report notes as present")
	}

	if err := conn.DeleteTable(ctx, "notes"); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if err := conn.CreateTable(ctx, "notes", false); err != nil {
		t.Fatalf("CreateTable after delete should succeed, cache must not report a stale entry: %v", err)
	}
}

func TestCopyTableData(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "src", false); err != nil {
		t.Fatalf("CreateTable src: %v", err)
	}
	if err := conn.CreateTable(ctx, "dst", true); err != nil {
		t.Fatalf("CreateTable dst: %v", err)
	}
	if err := conn.InsertRecord(ctx, "src", "k1", map[string]string{"v": "1"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := conn.InsertRecord(ctx, "src", "k2", map[string]string{"v": "2"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	if err := conn.CopyTableData(ctx, "src", "dst"); err != nil {
		t.Fatalf("CopyTableData: %v", err)
	}

	count, err := conn.CountRecords(ctx, "dst")
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 copied records, got %d", count)
	}
	got, found, err := conn.GetRecord(ctx, "dst", "k1")
	if err != nil || !found {
		t.Fatalf("GetRecord(dst, k1): found=%v err=%v", found, err)
	}
	if got["v"] != "1" {
		t.Fatalf("unexpected copied attribs: %#v", got)
	}

	if err := conn.CopyTableData(ctx, "src", "dst"); err == nil {
		t.Fatalf("expected CopyTableData to refuse copying into a non-empty destination")
	}
}

func TestExportThenImportTable(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	if err := conn.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := conn.InsertRecord(ctx, "passwords", "k1", map[string]string{"v": "1"}); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	dump := rowstore.NewMemory()
	if err := conn.ExportTable(ctx, dump, "passwords"); err != nil {
		t.Fatalf("ExportTable: %v", err)
	}
	// re-exporting into the same dump must be refused
	if err := conn.ExportTable(ctx, dump, "passwords"); err == nil {
		t.Fatalf("expected ExportTable to refuse a dump table that already exists")
	}

	// the dump table is named after the exported table, so the import
	// target is a "passwords" table in a second, fresh database
	conn2 := newTestConnection(t, "another password")
	defer conn2.Close()
	if err := conn2.CreateTable(ctx, "passwords", false); err != nil {
		t.Fatalf("CreateTable passwords in second database: %v", err)
	}
	if err := conn2.ImportTable(ctx, dump, "passwords"); err != nil {
		t.Fatalf("ImportTable: %v", err)
	}
	got, found, err := conn2.GetRecord(ctx, "passwords", "k1")
	if err != nil || !found {
		t.Fatalf("GetRecord(passwords, k1) in second database: found=%v err=%v", found, err)
	}
	if got["v"] != "1" {
		t.Fatalf("unexpected imported attribs: %#v", got)
	}

	// importing again into a now-non-empty table must be refused
	if err := conn2.ImportTable(ctx, dump, "passwords"); err == nil {
		t.Fatalf("expected ImportTable to refuse a non-empty destination table")
	}
}

func TestManyTablesCounterAllocation(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, "hunter2")
	defer conn.Close()

	for i := 0; i < 5; i++ {
		name := "t" + string(rune('a'+i))
		if err := conn.CreateTable(ctx, name, false); err != nil {
			t.Fatalf("CreateTable(%q): %v", name, err)
		}
	}
	if err := conn.DeleteTable(ctx, "tc"); err != nil {
		t.Fatalf("DeleteTable(tc): %v", err)
	}
	// re-creating a table should reuse the freed counter slot rather than
	// growing unboundedly
	if err := conn.CreateTable(ctx, "tf", false); err != nil {
		t.Fatalf("CreateTable(tf) after freeing a slot: %v", err)
	}
}
