package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/elseecay/overpass/internal/encoding"
	"github.com/elseecay/overpass/internal/mixer"
	"github.com/elseecay/overpass/internal/rowstore"
)

const (
	descriptionTable   = "description"
	ivDescriptionTable = "iv_description"

	descKeyCol   = "key"
	descDataCol  = "data"
	descIVDataCol = "iv_data"

	minDescPadSize     = 100
	maxDescPadRndSize  = 20

	descriptionCacheSize = 16
)

// tableDescription is the decrypted record held for one user-visible
// table: its physical raw table name, its user-facing name, whether
// hash-search lookup is enabled, the physical IV/hash-search table
// names, and (when hash search is enabled) the per-table hash-search
// salt. Mirrors description.py's TableDescription dataclass.
type tableDescription struct {
	RawName           string
	Name              string
	HashSearchEnabled bool
	IVName            string
	HSName            string
	HSData            []byte
}

// descriptionStore owns the description/iv_description table pair: the
// encrypted registry mapping a user-visible table name to its physical
// layout. Mirrors original_source/app/storage/sql/description.py,
// including its lru_cache(maxsize=16) memoization of Get, replaced here
// by github.com/hashicorp/golang-lru (spec.md's domain-stack slot for
// the per-connection description cache).
type descriptionStore struct {
	store rowstore.Store
	mx    *mixer.Mixer
	cache *lru.Cache
}

func newDescriptionStore(store rowstore.Store, mx *mixer.Mixer) *descriptionStore {
	cache, err := lru.New(descriptionCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which
		// descriptionCacheSize never is.
		panic(fmt.Sprintf("storage: constructing description cache: %v", err))
	}
	return &descriptionStore{store: store, mx: mx, cache: cache}
}

// Init creates the description and iv_description tables. Mirrors
// init_description_table.
func (d *descriptionStore) Init(ctx context.Context) error {
	descColumns := []rowstore.Column{
		{Name: descKeyCol, Type: rowstore.ColumnText, NotNull: true, Unique: true},
		{Name: descDataCol, Type: rowstore.ColumnText, NotNull: true},
	}
	if err := d.store.CreateTable(ctx, descriptionTable, descColumns, descKeyCol, nil); err != nil {
		return WrapStorageError("create description table", err)
	}
	ivColumns := []rowstore.Column{
		{Name: descKeyCol, Type: rowstore.ColumnText, NotNull: true, Unique: true},
		{Name: descIVDataCol, Type: rowstore.ColumnText, NotNull: true},
	}
	fk := &rowstore.ForeignKey{Column: descKeyCol, RefTable: descriptionTable, RefColumn: descKeyCol}
	if err := d.store.CreateTable(ctx, ivDescriptionTable, ivColumns, descKeyCol, fk); err != nil {
		return WrapStorageError("create iv_description table", err)
	}
	return nil
}

// Insert encrypts desc and stores it keyed by its user-visible name,
// generating a fresh Mixer IV for this one row. Mirrors description.py's
// insert/_encrypt_desc.
func (d *descriptionStore) Insert(ctx context.Context, desc *tableDescription) error {
	cipherB64, ivB64, err := d.encrypt(desc)
	if err != nil {
		return err
	}
	if _, err := d.store.Insert(ctx, descriptionTable, []string{descKeyCol, descDataCol}, []interface{}{desc.Name, cipherB64}, false); err != nil {
		return WrapStorageError(fmt.Sprintf("insert description %q", desc.Name), err)
	}
	if _, err := d.store.Insert(ctx, ivDescriptionTable, []string{descKeyCol, descIVDataCol}, []interface{}{desc.Name, ivB64}, false); err != nil {
		return WrapStorageError(fmt.Sprintf("insert iv_description %q", desc.Name), err)
	}
	return nil
}

// Delete removes both the description and iv_description rows for name
// and evicts it from the memoization cache.
func (d *descriptionStore) Delete(ctx context.Context, name string) error {
	if err := d.store.DeleteByColumn(ctx, ivDescriptionTable, descKeyCol, name); err != nil {
		return WrapStorageError(fmt.Sprintf("delete iv_description %q", name), err)
	}
	if err := d.store.DeleteByColumn(ctx, descriptionTable, descKeyCol, name); err != nil {
		return WrapStorageError(fmt.Sprintf("delete description %q", name), err)
	}
	d.cache.Remove(name)
	return nil
}

// Get returns the decrypted description for name, memoized per
// connection the way the Python lru_cache does. Mirrors description.py's
// get.
func (d *descriptionStore) Get(ctx context.Context, name string) (*tableDescription, error) {
	if cached, ok := d.cache.Get(name); ok {
		return cached.(*tableDescription), nil
	}
	descRow, found, err := d.store.GetByColumn(ctx, descriptionTable, descKeyCol, name)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("read description %q", name), err)
	}
	if !found {
		return nil, NewTableNotExistError(name)
	}
	ivRow, found, err := d.store.GetByColumn(ctx, ivDescriptionTable, descKeyCol, name)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("read iv_description %q", name), err)
	}
	if !found {
		return nil, NewTableNotExistError(name)
	}
	desc, err := d.decrypt(descRow[descDataCol].(string), ivRow[descIVDataCol].(string))
	if err != nil {
		return nil, err
	}
	d.cache.Add(name, desc)
	return desc, nil
}

// Exists is a non-error-returning probe used by CreateTable,
// CopyTableData, ExportTable, and ImportTable to avoid allocating an
// error value on the common "does this table exist" path. Mirrors
// description.py's get_unsafe/is_table_exist (spec.md supplement C.2).
func (d *descriptionStore) Exists(ctx context.Context, name string) bool {
	_, err := d.Get(ctx, name)
	return err == nil
}

// All decrypts every stored description, used by counter allocation and
// by ListTables-style enumeration. Mirrors iterate_with_decryption over
// the description table.
func (d *descriptionStore) All(ctx context.Context) ([]*tableDescription, error) {
	names, err := d.listNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*tableDescription, 0, len(names))
	for _, name := range names {
		desc, err := d.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func (d *descriptionStore) listNames(ctx context.Context) ([]string, error) {
	it, err := d.store.Iterate(ctx, descriptionTable)
	if err != nil {
		return nil, WrapStorageError("iterate description table", err)
	}
	defer it.Close()
	var names []string
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			return nil, WrapStorageError("iterate description table", err)
		}
		if !ok {
			break
		}
		names = append(names, row[descKeyCol].(string))
	}
	return names, nil
}

func (d *descriptionStore) encrypt(desc *tableDescription) (cipherB64, ivB64 string, err error) {
	tree := []interface{}{
		desc.RawName,
		desc.Name,
		desc.HashSearchEnabled,
		nullableString(desc.IVName),
		nullableString(desc.HSName),
		nullableBytes(desc.HSData),
	}
	jsonText, err := encoding.EncodeJSON(tree)
	if err != nil {
		return "", "", WrapStorageError("serialize description", err)
	}
	padded, err := encoding.EncodeAddPadding([]byte(jsonText), minDescPadSize, maxDescPadRndSize)
	if err != nil {
		return "", "", WrapStorageError("pad description", err)
	}
	iv, err := d.mx.SetIVRandom(randBytes)
	if err != nil {
		return "", "", WrapStorageError("generate description iv", err)
	}
	cipherBytes, err := d.mx.Process(padded)
	if err != nil {
		return "", "", WrapStorageError("encrypt description", err)
	}
	return encoding.EncodeBase64(cipherBytes), encoding.EncodeBase64(iv), nil
}

func (d *descriptionStore) decrypt(cipherB64, ivB64 string) (*tableDescription, error) {
	cipherBytes, err := encoding.DecodeBase64(cipherB64)
	if err != nil {
		return nil, WrapStorageError("decode description ciphertext", err)
	}
	iv, err := encoding.DecodeBase64(ivB64)
	if err != nil {
		return nil, WrapStorageError("decode description iv", err)
	}
	opp, err := d.mx.Opposite()
	if err != nil {
		return nil, WrapStorageError("derive opposite mixer", err)
	}
	if err := opp.SetIV(iv, true); err != nil {
		return nil, WrapStorageError("set description iv", err)
	}
	padded, err := opp.Process(cipherBytes)
	if err != nil {
		return nil, WrapStorageError("decrypt description", err)
	}
	jsonBytes, err := encoding.DecodeAddPadding(padded)
	if err != nil {
		return nil, WrapStorageError("unpad description", err)
	}
	decoded, err := encoding.DecodeJSON(string(jsonBytes))
	if err != nil {
		return nil, WrapStorageError("deserialize description", err)
	}
	tree, ok := decoded.([]interface{})
	if !ok {
		return nil, NewStorageError("malformed description tuple")
	}
	if len(tree) != 6 {
		return nil, NewStorageError("malformed description tuple")
	}
	desc := &tableDescription{
		RawName:           tree[0].(string),
		Name:              tree[1].(string),
		HashSearchEnabled: tree[2].(bool),
		IVName:            asNullableString(tree[3]),
		HSName:            asNullableString(tree[4]),
		HSData:            asNullableBytes(tree[5]),
	}
	return desc, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func asNullableString(v interface{}) string {
	if v == nil {
		return ""
	}
	return v.(string)
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return encoding.EncodeBase64(b)
}

func asNullableBytes(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := encoding.DecodeBase64(v.(string))
	if err != nil {
		panic(fmt.Sprintf("storage: malformed hs_data in decrypted description: %v", err))
	}
	return raw
}
