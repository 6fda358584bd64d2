package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/elseecay/overpass/internal/encoding"
	"github.com/elseecay/overpass/internal/primitives"
	"github.com/elseecay/overpass/internal/rowstore"
)

const (
	rawTablePrefix  = "table_"
	dumpTablePrefix = "content_"
	ivTablePrefix   = "iv_"
	hsTablePrefix   = "hs_"

	idCol     = "id"
	keyCol    = "key"
	dataCol   = "data"
	ivKeyCol  = "iv_key"
	ivDataCol = "iv_data"
	hsHashCol = "hs_hash"

	minHSDataSize = 30
	maxHSDataSize = 60

	minKeyPadSize     = 12
	maxKeyPadRndSize  = 6
	maxDataPadRndSize = 6

	maxTableCount = 1000
)

// Record is one decrypted row: its user key, its attribute map, and the
// physical rowid shared by its data/iv/hs rows.
type Record struct {
	ID      int64
	Key     string
	Attribs map[string]string
}

// TableExists is a non-error-returning probe for callers (such as
// cmd/overpassctl) that only need a boolean before deciding whether to
// create a table, mirroring descriptionStore.Exists at the Connection
// level.
func (c *Connection) TableExists(ctx context.Context, name string) bool {
	return c.desc.Exists(ctx, name)
}

// CreateTable allocates a free table counter, creates the data/iv
// (and, if requested, hash-search) physical tables, and writes the
// table's description. Mirrors content.py's create_table.
func (c *Connection) CreateTable(ctx context.Context, name string, enableHashSearch bool) error {
	if c.desc.Exists(ctx, name) {
		return NewStorageError(fmt.Sprintf("table %q already exists", name))
	}
	counter, err := c.allocateTableCounter(ctx)
	if err != nil {
		return err
	}
	desc := &tableDescription{
		RawName:           rawTablePrefix + counter,
		Name:              name,
		HashSearchEnabled: enableHashSearch,
	}
	desc.IVName = ivTablePrefix + desc.RawName
	if enableHashSearch {
		desc.HSName = hsTablePrefix + desc.RawName
		hsData, err := randomHSData()
		if err != nil {
			return WrapStorageError("generate hs_data", err)
		}
		desc.HSData = hsData
	}

	return c.store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		contentColumns := []rowstore.Column{
			{Name: keyCol, Type: rowstore.ColumnText, NotNull: true},
			{Name: dataCol, Type: rowstore.ColumnText, NotNull: true},
			{Name: idCol, Type: rowstore.ColumnInteger, NotNull: true},
		}
		if err := tx.CreateTable(ctx, desc.RawName, contentColumns, idCol, nil); err != nil {
			return WrapStorageError(fmt.Sprintf("create content table for %q", name), err)
		}
		ivColumns := []rowstore.Column{
			{Name: ivKeyCol, Type: rowstore.ColumnText, NotNull: true},
			{Name: ivDataCol, Type: rowstore.ColumnText, NotNull: true},
			{Name: idCol, Type: rowstore.ColumnInteger, NotNull: true},
		}
		ivFK := &rowstore.ForeignKey{Column: idCol, RefTable: desc.RawName, RefColumn: idCol}
		if err := tx.CreateTable(ctx, desc.IVName, ivColumns, idCol, ivFK); err != nil {
			return WrapStorageError(fmt.Sprintf("create iv table for %q", name), err)
		}
		if enableHashSearch {
			hsColumns := []rowstore.Column{
				{Name: hsHashCol, Type: rowstore.ColumnText, NotNull: true, Unique: true},
				{Name: idCol, Type: rowstore.ColumnInteger, NotNull: true},
			}
			hsFK := &rowstore.ForeignKey{Column: idCol, RefTable: desc.RawName, RefColumn: idCol}
			if err := tx.CreateTable(ctx, desc.HSName, hsColumns, idCol, hsFK); err != nil {
				return WrapStorageError(fmt.Sprintf("create hs table for %q", name), err)
			}
			if err := tx.CreateIndex(ctx, desc.HSName, hsHashCol); err != nil {
				return WrapStorageError(fmt.Sprintf("create hs index for %q", name), err)
			}
		}
		descStore := newDescriptionStore(tx, c.mx)
		if err := descStore.Insert(ctx, desc); err != nil {
			return err
		}
		return nil
	})
}

// allocateTableCounter picks the smallest unused counter in [0, 1000).
// Mirrors _get_free_table_counter; spec.md only requires uniqueness and
// the 1000-table ceiling, not a specific policy.
func (c *Connection) allocateTableCounter(ctx context.Context) (string, error) {
	descs, err := c.desc.All(ctx)
	if err != nil {
		return "", err
	}
	used := make(map[int]bool, len(descs))
	for _, d := range descs {
		numStr := strings.TrimPrefix(d.RawName, rawTablePrefix)
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		used[n] = true
	}
	for i := 0; i < maxTableCount; i++ {
		if !used[i] {
			return fmt.Sprintf("%03d", i), nil
		}
	}
	return "", NewStorageError("tables limit exceeded (1000)")
}

func randomHSData() ([]byte, error) {
	span, err := rand.Int(rand.Reader, big.NewInt(int64(maxHSDataSize-minHSDataSize)))
	if err != nil {
		return nil, err
	}
	size := minHSDataSize + int(span.Int64())
	out := make([]byte, size)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTable removes the description row, then drops the hs_, iv_, and
// data physical tables in that order. Mirrors content.py's delete_table.
func (c *Connection) DeleteTable(ctx context.Context, name string) error {
	desc, err := c.desc.Get(ctx, name)
	if err != nil {
		return err
	}
	err = c.store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		descStore := newDescriptionStore(tx, c.mx)
		if err := descStore.Delete(ctx, name); err != nil {
			return err
		}
		if desc.HashSearchEnabled {
			if err := tx.DropTable(ctx, desc.HSName); err != nil {
				return WrapStorageError(fmt.Sprintf("drop hs table for %q", name), err)
			}
		}
		if err := tx.DropTable(ctx, desc.IVName); err != nil {
			return WrapStorageError(fmt.Sprintf("drop iv table for %q", name), err)
		}
		if err := tx.DropTable(ctx, desc.RawName); err != nil {
			return WrapStorageError(fmt.Sprintf("drop content table for %q", name), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// descStore above is scoped to the transaction-local Store and only
	// evicts its own fresh cache; the long-lived c.desc.cache (populated
	// by c.desc.Get/Exists against this same name) must be invalidated
	// here too, or a later CreateTable reusing name spuriously sees a
	// stale "already exists" entry.
	c.desc.cache.Remove(name)
	return nil
}

// InsertRecord fails if key already exists in table; otherwise encrypts
// key and attribs under fresh Mixer IVs and inserts the matching
// data/iv/(optional hs) rows under a shared rowid. Mirrors
// content.py's insert_record.
func (c *Connection) InsertRecord(ctx context.Context, table, key string, attribs map[string]string) error {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return err
	}
	if _, found, err := c.rowIDByKey(ctx, desc, key); err != nil {
		return err
	} else if found {
		return NewStorageError(fmt.Sprintf("key %q already exists", key))
	}

	ivKeyB64, cipherKeyB64, keyHashB64, err := c.encryptKey(desc, key)
	if err != nil {
		return err
	}
	ivDataB64, cipherDataB64, err := c.encryptData(attribs)
	if err != nil {
		return err
	}

	return c.store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		rowID, err := tx.Insert(ctx, desc.RawName, []string{keyCol, dataCol}, []interface{}{cipherKeyB64, cipherDataB64}, true)
		if err != nil {
			return WrapStorageError(fmt.Sprintf("insert content row into %q", table), err)
		}
		if _, err := tx.Insert(ctx, desc.IVName, []string{ivKeyCol, ivDataCol, idCol}, []interface{}{ivKeyB64, ivDataB64, rowID}, false); err != nil {
			return WrapStorageError(fmt.Sprintf("insert iv row into %q", table), err)
		}
		if desc.HashSearchEnabled {
			if _, err := tx.Insert(ctx, desc.HSName, []string{hsHashCol, idCol}, []interface{}{*keyHashB64, rowID}, false); err != nil {
				return WrapStorageError(fmt.Sprintf("insert hs row into %q", table), err)
			}
		}
		return nil
	})
}

// UpdateRecord fails if key is absent, or if newKey is given and already
// taken. With replace=false the previous attribute map is fetched and
// merged with attribs (new values win); with replace=true attribs
// becomes the entire stored map. Both columns are re-encrypted with
// fresh IVs regardless. Mirrors content.py's update_record.
func (c *Connection) UpdateRecord(ctx context.Context, table, key string, attribs map[string]string, newKey *string, replace bool) error {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return err
	}
	rowID, found, err := c.rowIDByKey(ctx, desc, key)
	if err != nil {
		return err
	}
	if !found {
		return NewStorageError(fmt.Sprintf("key %q does not exist", key))
	}
	effectiveKey := key
	if newKey != nil {
		if _, found, err := c.rowIDByKey(ctx, desc, *newKey); err != nil {
			return err
		} else if found {
			return NewStorageError(fmt.Sprintf("key %q already exists", *newKey))
		}
		effectiveKey = *newKey
	}

	newData := map[string]string{}
	if !replace {
		previous, err := c.getRecordByID(ctx, desc, rowID)
		if err != nil {
			return err
		}
		for k, v := range previous {
			newData[k] = v
		}
	}
	for k, v := range attribs {
		newData[k] = v
	}

	ivKeyB64, cipherKeyB64, keyHashB64, err := c.encryptKey(desc, effectiveKey)
	if err != nil {
		return err
	}
	ivDataB64, cipherDataB64, err := c.encryptData(newData)
	if err != nil {
		return err
	}

	return c.store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		if err := tx.UpdateByColumn(ctx, desc.RawName, idCol, rowID, map[string]interface{}{keyCol: cipherKeyB64, dataCol: cipherDataB64}); err != nil {
			return WrapStorageError(fmt.Sprintf("update content row in %q", table), err)
		}
		if err := tx.UpdateByColumn(ctx, desc.IVName, idCol, rowID, map[string]interface{}{ivKeyCol: ivKeyB64, ivDataCol: ivDataB64}); err != nil {
			return WrapStorageError(fmt.Sprintf("update iv row in %q", table), err)
		}
		if desc.HashSearchEnabled {
			if err := tx.UpdateByColumn(ctx, desc.HSName, idCol, rowID, map[string]interface{}{hsHashCol: *keyHashB64}); err != nil {
				return WrapStorageError(fmt.Sprintf("update hs row in %q", table), err)
			}
		}
		return nil
	})
}

// GetRecord returns the decrypted attribute map for key, or found=false
// if key is absent. Mirrors content.py's get_record.
func (c *Connection) GetRecord(ctx context.Context, table, key string) (attribs map[string]string, found bool, err error) {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return nil, false, err
	}
	rowID, found, err := c.rowIDByKey(ctx, desc, key)
	if err != nil || !found {
		return nil, false, err
	}
	attribs, err = c.getRecordByID(ctx, desc, rowID)
	if err != nil {
		return nil, false, err
	}
	return attribs, true, nil
}

// DelRecord is a no-op if key is absent; otherwise it deletes the hs (if
// enabled), iv, and data rows sharing key's rowid. Mirrors
// content.py's del_record.
func (c *Connection) DelRecord(ctx context.Context, table, key string) error {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return err
	}
	rowID, found, err := c.rowIDByKey(ctx, desc, key)
	if err != nil || !found {
		return err
	}
	return c.store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		if desc.HashSearchEnabled {
			if err := tx.DeleteByColumn(ctx, desc.HSName, idCol, rowID); err != nil {
				return WrapStorageError(fmt.Sprintf("delete hs row in %q", table), err)
			}
		}
		if err := tx.DeleteByColumn(ctx, desc.IVName, idCol, rowID); err != nil {
			return WrapStorageError(fmt.Sprintf("delete iv row in %q", table), err)
		}
		if err := tx.DeleteByColumn(ctx, desc.RawName, idCol, rowID); err != nil {
			return WrapStorageError(fmt.Sprintf("delete content row in %q", table), err)
		}
		return nil
	})
}

// CountRecords mirrors content.py's count_records.
func (c *Connection) CountRecords(ctx context.Context, table string) (int64, error) {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return 0, err
	}
	count, err := c.store.Count(ctx, desc.RawName)
	if err != nil {
		return 0, WrapStorageError(fmt.Sprintf("count records in %q", table), err)
	}
	return count, nil
}

// rowIDByKey resolves key to its physical rowid, using the hash-search
// index if enabled, otherwise a decrypt-and-compare linear scan. Mirrors
// content.py's get_rowid_by_key.
func (c *Connection) rowIDByKey(ctx context.Context, desc *tableDescription, key string) (int64, bool, error) {
	if desc.HashSearchEnabled {
		keyHash, err := c.calcKeyHash(desc, key)
		if err != nil {
			return 0, false, err
		}
		row, found, err := c.store.GetByColumn(ctx, desc.HSName, hsHashCol, keyHash)
		if err != nil {
			return 0, false, WrapStorageError(fmt.Sprintf("lookup hs row in %q", desc.Name), err)
		}
		if !found {
			return 0, false, nil
		}
		return asInt64(row[idCol]), true, nil
	}
	it, err := c.IterateWithDecryption(ctx, desc.Name)
	if err != nil {
		return 0, false, err
	}
	defer it.Close()
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if rec.Key == key {
			return rec.ID, true, nil
		}
	}
}

func (c *Connection) getRecordByID(ctx context.Context, desc *tableDescription, rowID int64) (map[string]string, error) {
	contentRow, found, err := c.store.GetByColumn(ctx, desc.RawName, idCol, rowID)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("read content row in %q", desc.Name), err)
	}
	if !found {
		return nil, NewStorageError(fmt.Sprintf("record %d not found in %q", rowID, desc.Name))
	}
	ivRow, found, err := c.store.GetByColumn(ctx, desc.IVName, idCol, rowID)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("read iv row in %q", desc.Name), err)
	}
	if !found {
		return nil, NewStorageError(fmt.Sprintf("iv row %d not found in %q", rowID, desc.Name))
	}
	return c.decryptDataCol(contentRow[dataCol].(string), ivRow[ivDataCol].(string))
}

// RecordIterator streams decrypted records out of one table, joining
// each content row against its iv row as it is read. Rowstore has no
// native join support (internal/rowstore.Store deliberately stays a
// plain keyed-access abstraction), so the join happens here, one iv
// lookup per content row.
type RecordIterator struct {
	rows  rowstore.RowIterator
	conn  *Connection
	ivTable string
}

func (it *RecordIterator) Next(ctx context.Context) (*Record, bool, error) {
	row, ok, err := it.rows.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	id := asInt64(row[idCol])
	ivRow, found, err := it.conn.store.GetByColumn(ctx, it.ivTable, idCol, id)
	if err != nil {
		return nil, false, WrapStorageError("read iv row during iteration", err)
	}
	if !found {
		return nil, false, NewStorageError(fmt.Sprintf("iv row %d missing during iteration", id))
	}
	key, err := it.conn.decryptKeyCol(row[keyCol].(string), ivRow[ivKeyCol].(string))
	if err != nil {
		return nil, false, err
	}
	attribs, err := it.conn.decryptDataCol(row[dataCol].(string), ivRow[ivDataCol].(string))
	if err != nil {
		return nil, false, err
	}
	return &Record{ID: id, Key: key, Attribs: attribs}, true, nil
}

func (it *RecordIterator) Close() error {
	return it.rows.Close()
}

// IterateWithDecryption streams every record of table in physical rowid
// order. Mirrors content.py's iterate_with_decryption.
func (c *Connection) IterateWithDecryption(ctx context.Context, table string) (*RecordIterator, error) {
	desc, err := c.desc.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.Iterate(ctx, desc.RawName)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("iterate %q", table), err)
	}
	return &RecordIterator{rows: rows, conn: c, ivTable: desc.IVName}, nil
}

// Keys returns every key currently stored in table, decrypted, sorted
// in ascending string order. Mirrors content.py's find/keys helper
// (iterate_with_decryption restricted to the key column).
func (c *Connection) Keys(ctx context.Context, table string) ([]string, error) {
	it, err := c.IterateWithDecryption(ctx, table)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var keys []string
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		keys = append(keys, rec.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// CopyTableData copies every decrypted record from src into dst,
// re-encrypting under dst's own IV/hash-search parameters. Refuses if
// either table is missing or dst is non-empty. Supplemented from
// content.py's copy_data (spec.md §C.1); distinct from ExportTable/
// ImportTable, which cross a row store file boundary.
func (c *Connection) CopyTableData(ctx context.Context, src, dst string) error {
	if !c.desc.Exists(ctx, src) {
		return NewStorageError(fmt.Sprintf("table %q does not exist", src))
	}
	if !c.desc.Exists(ctx, dst) {
		return NewStorageError(fmt.Sprintf("table %q does not exist", dst))
	}
	count, err := c.CountRecords(ctx, dst)
	if err != nil {
		return err
	}
	if count > 0 {
		return NewStorageError("copy not allowed to non-empty tables")
	}
	it, err := c.IterateWithDecryption(ctx, src)
	if err != nil {
		return err
	}
	defer it.Close()
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.InsertRecord(ctx, dst, rec.Key, rec.Attribs); err != nil {
			return err
		}
	}
}

// ExportTable writes every decrypted record of table into dump as
// plaintext JSON, under the table name "content_<table>" with columns
// (key, data). Mirrors content.py's export_table.
func (c *Connection) ExportTable(ctx context.Context, dump rowstore.Store, table string) error {
	dumpTable := dumpTablePrefix + table
	exists, err := dump.TableExists(ctx, dumpTable)
	if err != nil {
		return WrapStorageError("check dump table existence", err)
	}
	if exists {
		return NewStorageError(fmt.Sprintf("table in dump already exists %q", table))
	}
	if !c.desc.Exists(ctx, table) {
		return NewStorageError(fmt.Sprintf("table does not exist %q", table))
	}
	columns := []rowstore.Column{
		{Name: keyCol, Type: rowstore.ColumnText, NotNull: true},
		{Name: dataCol, Type: rowstore.ColumnText, NotNull: true},
	}
	if err := dump.CreateTable(ctx, dumpTable, columns, "", nil); err != nil {
		return WrapStorageError("create dump table", err)
	}
	it, err := c.IterateWithDecryption(ctx, table)
	if err != nil {
		return err
	}
	defer it.Close()
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		jsonText, err := encodeAttribs(rec.Attribs)
		if err != nil {
			return err
		}
		if _, err := dump.Insert(ctx, dumpTable, []string{keyCol, dataCol}, []interface{}{rec.Key, jsonText}, false); err != nil {
			return WrapStorageError("insert into dump table", err)
		}
	}
}

// ImportTable reads plaintext records back out of dump and re-inserts
// them, encrypted, into table. Refuses if the dump table is missing, the
// destination table was never created, or the destination is non-empty.
// Mirrors content.py's import_table.
func (c *Connection) ImportTable(ctx context.Context, dump rowstore.Store, table string) error {
	dumpTable := dumpTablePrefix + table
	exists, err := dump.TableExists(ctx, dumpTable)
	if err != nil {
		return WrapStorageError("check dump table existence", err)
	}
	if !exists {
		return NewStorageError(fmt.Sprintf("table in dump does not exist %q", table))
	}
	if !c.desc.Exists(ctx, table) {
		return NewStorageError(fmt.Sprintf("table not created %q", table))
	}
	count, err := c.CountRecords(ctx, table)
	if err != nil {
		return err
	}
	if count > 0 {
		return NewStorageError(fmt.Sprintf("table is not empty %q", table))
	}
	it, err := dump.Iterate(ctx, dumpTable)
	if err != nil {
		return WrapStorageError("iterate dump table", err)
	}
	defer it.Close()
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			return WrapStorageError("iterate dump table", err)
		}
		if !ok {
			return nil
		}
		attribs, err := decodeAttribs(row[dataCol].(string))
		if err != nil {
			return err
		}
		if err := c.InsertRecord(ctx, table, row[keyCol].(string), attribs); err != nil {
			return err
		}
	}
}

func (c *Connection) encryptKey(desc *tableDescription, key string) (ivKeyB64, cipherKeyB64 string, keyHashB64 *string, err error) {
	if desc.HashSearchEnabled {
		h, err := c.calcKeyHash(desc, key)
		if err != nil {
			return "", "", nil, err
		}
		keyHashB64 = &h
	}
	padded, err := encoding.EncodeAddPadding([]byte(key), minKeyPadSize, maxKeyPadRndSize)
	if err != nil {
		return "", "", nil, WrapStorageError("pad key", err)
	}
	iv, err := c.mx.SetIVRandom(randBytes)
	if err != nil {
		return "", "", nil, WrapStorageError("generate key iv", err)
	}
	cipherBytes, err := c.mx.Process(padded)
	if err != nil {
		return "", "", nil, WrapStorageError("encrypt key", err)
	}
	return encoding.EncodeBase64(iv), encoding.EncodeBase64(cipherBytes), keyHashB64, nil
}

func (c *Connection) encryptData(attribs map[string]string) (ivDataB64, cipherDataB64 string, err error) {
	jsonText, err := encodeAttribs(attribs)
	if err != nil {
		return "", "", err
	}
	padded, err := encoding.EncodeAddPadding([]byte(jsonText), 0, maxDataPadRndSize)
	if err != nil {
		return "", "", WrapStorageError("pad data", err)
	}
	iv, err := c.mx.SetIVRandom(randBytes)
	if err != nil {
		return "", "", WrapStorageError("generate data iv", err)
	}
	cipherBytes, err := c.mx.Process(padded)
	if err != nil {
		return "", "", WrapStorageError("encrypt data", err)
	}
	return encoding.EncodeBase64(iv), encoding.EncodeBase64(cipherBytes), nil
}

func (c *Connection) decryptKeyCol(cipherB64, ivB64 string) (string, error) {
	plain, err := c.decryptBytes(cipherB64, ivB64)
	if err != nil {
		return "", err
	}
	unpadded, err := encoding.DecodeAddPadding(plain)
	if err != nil {
		return "", WrapStorageError("unpad key", err)
	}
	return string(unpadded), nil
}

func (c *Connection) decryptDataCol(cipherB64, ivB64 string) (map[string]string, error) {
	plain, err := c.decryptBytes(cipherB64, ivB64)
	if err != nil {
		return nil, err
	}
	unpadded, err := encoding.DecodeAddPadding(plain)
	if err != nil {
		return nil, WrapStorageError("unpad data", err)
	}
	return decodeAttribs(string(unpadded))
}

func (c *Connection) decryptBytes(cipherB64, ivB64 string) ([]byte, error) {
	cipherBytes, err := encoding.DecodeBase64(cipherB64)
	if err != nil {
		return nil, WrapStorageError("decode ciphertext", err)
	}
	iv, err := encoding.DecodeBase64(ivB64)
	if err != nil {
		return nil, WrapStorageError("decode iv", err)
	}
	opp, err := c.mx.Opposite()
	if err != nil {
		return nil, WrapStorageError("derive opposite mixer", err)
	}
	if err := opp.SetIV(iv, true); err != nil {
		return nil, WrapStorageError("set iv", err)
	}
	plain, err := opp.Process(cipherBytes)
	if err != nil {
		return nil, WrapStorageError("decrypt", err)
	}
	return plain, nil
}

// calcKeyHash computes the hash-search digest for key against desc's
// per-table salt, mirroring content.py's calc_key_hash.
func (c *Connection) calcKeyHash(desc *tableDescription, key string) (string, error) {
	mid := len(desc.HSData) / 2
	part1 := append(append([]byte{}, desc.HSData[:mid]...), key...)
	part2 := append(append([]byte{}, desc.HSData[mid:]...), []byte(desc.RawName+key+desc.Name)...)
	sha3 := primitives.NewFixSHA3_512()
	h1, err := sha3.Process(part1)
	if err != nil {
		return "", WrapStorageError("hash key part 1", err)
	}
	h2, err := sha3.Process(part2)
	if err != nil {
		return "", WrapStorageError("hash key part 2", err)
	}
	input := append(h1, h2...)
	digest, err := c.hsHasher.Process(input)
	if err != nil {
		return "", WrapStorageError("hash key for lookup", err)
	}
	return encoding.EncodeBase64(digest), nil
}

func encodeAttribs(attribs map[string]string) (string, error) {
	out, err := json.Marshal(attribs)
	if err != nil {
		return "", WrapStorageError("encode attributes", err)
	}
	return string(out), nil
}

func decodeAttribs(text string) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, WrapStorageError("decode attributes", err)
	}
	return out, nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		panic(fmt.Sprintf("storage: expected integer rowid, got %T", v))
	}
}
