package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/elseecay/overpass/internal/encoding"
	"github.com/elseecay/overpass/internal/mixer"
	"github.com/elseecay/overpass/internal/primitives"
	"github.com/elseecay/overpass/internal/rowstore"
	"github.com/elseecay/overpass/internal/serialize"
)

// AppVersion is written into every freshly created manifest and read back
// by GetAppVersion. Grounded on original_source/app/version.py's VERSION.
const AppVersion = "1.0.0"

const (
	manifestTable = "manifest"
	manifestKeyCol = "key"
	manifestDataCol = "data"
)

const keyCheckSize = 1337

// manifest owns the manifest table: the database's app version, random
// DBID, serialized Mixer/KeyHasher/hs Hasher trees, and the key-check
// triple used to recognize a wrong password before any content is
// touched. Grounded on original_source/app/storage/sql/manifest.py.
type manifest struct {
	store rowstore.Store
	reg   *serialize.Registry
}

func newManifest(store rowstore.Store, reg *serialize.Registry) *manifest {
	return &manifest{store: store, reg: reg}
}

// Init creates the manifest table and populates it for a brand-new
// database: app version, random DBID, the three serialized algorithm
// trees, and a fresh key-check triple. Mirrors init_manifest_table.
func (m *manifest) Init(ctx context.Context, mx *mixer.Mixer, keyHasher *mixer.KeyHasher, hsHasher *mixer.Hasher) error {
	columns := []rowstore.Column{
		{Name: manifestKeyCol, Type: rowstore.ColumnText, NotNull: true, Unique: true},
		{Name: manifestDataCol, Type: rowstore.ColumnText, NotNull: true},
	}
	if err := m.store.CreateTable(ctx, manifestTable, columns, manifestKeyCol, nil); err != nil {
		return WrapStorageError("create manifest table", err)
	}
	if err := m.insertAppVersion(ctx); err != nil {
		return err
	}
	if err := m.insertDBID(ctx); err != nil {
		return err
	}
	if err := m.insertAlgorithm(ctx, "mixer", mx); err != nil {
		return err
	}
	if err := m.insertAlgorithm(ctx, "key_hasher", keyHasher); err != nil {
		return err
	}
	if err := m.insertAlgorithm(ctx, "hs_hasher", hsHasher); err != nil {
		return err
	}
	if err := m.insertKeyCheck(ctx, mx); err != nil {
		return err
	}
	return nil
}

func (m *manifest) insertRow(ctx context.Context, key, data string) error {
	_, err := m.store.Insert(ctx, manifestTable, []string{manifestKeyCol, manifestDataCol}, []interface{}{key, data}, false)
	if err != nil {
		return WrapStorageError(fmt.Sprintf("insert manifest row %q", key), err)
	}
	return nil
}

func (m *manifest) getRow(ctx context.Context, key string) (string, error) {
	row, found, err := m.store.GetByColumn(ctx, manifestTable, manifestKeyCol, key)
	if err != nil {
		return "", WrapStorageError(fmt.Sprintf("read manifest row %q", key), err)
	}
	if !found {
		return "", NewStorageError(fmt.Sprintf("manifest row %q missing", key))
	}
	return row[manifestDataCol].(string), nil
}

func (m *manifest) insertAppVersion(ctx context.Context) error {
	return m.insertRow(ctx, "app_version", AppVersion)
}

func (m *manifest) insertDBID(ctx context.Context) error {
	raw := make([]byte, 3)
	if _, err := rand.Read(raw); err != nil {
		return WrapStorageError("generate dbid", err)
	}
	dbid := strings.ToUpper(hex.EncodeToString(raw))
	return m.insertRow(ctx, "dbid", dbid)
}

func (m *manifest) insertAlgorithm(ctx context.Context, key string, alg serialize.Algorithm) error {
	tree, err := m.reg.Serialize(alg)
	if err != nil {
		return WrapStorageError(fmt.Sprintf("serialize %s", key), err)
	}
	encoded, err := encoding.EncodeJSONBase64(tree)
	if err != nil {
		return WrapStorageError(fmt.Sprintf("encode %s", key), err)
	}
	return m.insertRow(ctx, key, encoded)
}

// insertKeyCheck generates 1337 random bytes, hashes them with a fixed
// SHAKE-128 (16-byte digest) regardless of the database's configured
// hs_hasher, encrypts them under a fresh Mixer IV, and stores the
// base64 ciphertext/IV/hash triple. Mirrors _insert_key_check.
func (m *manifest) insertKeyCheck(ctx context.Context, mx *mixer.Mixer) error {
	checkBytes := make([]byte, keyCheckSize)
	if _, err := rand.Read(checkBytes); err != nil {
		return WrapStorageError("generate key-check bytes", err)
	}
	checkHash := checkHashShake128(checkBytes)
	iv, err := mx.SetIVRandom(randBytes)
	if err != nil {
		return WrapStorageError("generate key-check iv", err)
	}
	cipherBytes, err := mx.Process(checkBytes)
	if err != nil {
		return WrapStorageError("encrypt key-check bytes", err)
	}
	if err := m.insertRow(ctx, "key_check", encoding.EncodeBase64(cipherBytes)); err != nil {
		return err
	}
	if err := m.insertRow(ctx, "iv_key_check", encoding.EncodeBase64(iv)); err != nil {
		return err
	}
	return m.insertRow(ctx, "shake128_key_check", encoding.EncodeBase64(checkHash))
}

// CheckKey decrypts the stored key-check ciphertext with mx's opposite
// (decrypting) direction and compares its SHAKE-128 digest to the stored
// one, returning a *KeyCheckError on mismatch. Mirrors check_key.
func (m *manifest) CheckKey(ctx context.Context, mx *mixer.Mixer) error {
	cipherB64, err := m.getRow(ctx, "key_check")
	if err != nil {
		return err
	}
	ivB64, err := m.getRow(ctx, "iv_key_check")
	if err != nil {
		return err
	}
	hashB64, err := m.getRow(ctx, "shake128_key_check")
	if err != nil {
		return err
	}
	cipherBytes, err := encoding.DecodeBase64(cipherB64)
	if err != nil {
		return WrapStorageError("decode key-check ciphertext", err)
	}
	iv, err := encoding.DecodeBase64(ivB64)
	if err != nil {
		return WrapStorageError("decode key-check iv", err)
	}
	wantHash, err := encoding.DecodeBase64(hashB64)
	if err != nil {
		return WrapStorageError("decode key-check hash", err)
	}
	opp, err := mx.Opposite()
	if err != nil {
		return WrapStorageError("derive opposite mixer", err)
	}
	if err := opp.SetIV(iv, true); err != nil {
		return WrapStorageError("set key-check iv", err)
	}
	checkBytes, err := opp.Process(cipherBytes)
	if err != nil {
		return WrapStorageError("decrypt key-check bytes", err)
	}
	gotHash := checkHashShake128(checkBytes)
	if string(gotHash) != string(wantHash) {
		log.Warning("check_key: digest mismatch, rejecting password")
		return NewKeyCheckError()
	}
	return nil
}

func checkHashShake128(data []byte) []byte {
	h, err := primitives.NewVarShake128(16)
	if err != nil {
		panic(fmt.Sprintf("storage: constructing fixed shake128 key-check hash: %v", err))
	}
	digest, err := h.Process(data)
	if err != nil {
		panic(fmt.Sprintf("storage: fixed shake128 key-check hash failed: %v", err))
	}
	return digest
}

// IsDBCreatedByApp reports whether the manifest carries a dbid row whose
// value decodes as a 3-byte hex string. Mirrors is_db_created_by_app.
func (m *manifest) IsDBCreatedByApp(ctx context.Context) bool {
	dbid, err := m.getRow(ctx, "dbid")
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(dbid)
	if err != nil {
		return false
	}
	return len(raw) == 3
}

func (m *manifest) GetMixer(ctx context.Context) (*mixer.Mixer, error) {
	tree, err := m.getAlgorithmTree(ctx, "mixer")
	if err != nil {
		return nil, err
	}
	value, err := m.reg.Deserialize(tree)
	if err != nil {
		return nil, WrapStorageError("deserialize mixer", err)
	}
	mx, ok := value.(*mixer.Mixer)
	if !ok {
		return nil, NewStorageError("manifest mixer row is not a Mixer")
	}
	return mx, nil
}

func (m *manifest) GetKeyHasher(ctx context.Context) (*mixer.KeyHasher, error) {
	tree, err := m.getAlgorithmTree(ctx, "key_hasher")
	if err != nil {
		return nil, err
	}
	value, err := m.reg.Deserialize(tree)
	if err != nil {
		return nil, WrapStorageError("deserialize key_hasher", err)
	}
	kh, ok := value.(*mixer.KeyHasher)
	if !ok {
		return nil, NewStorageError("manifest key_hasher row is not a KeyHasher")
	}
	return kh, nil
}

func (m *manifest) GetHsHasher(ctx context.Context) (*mixer.Hasher, error) {
	tree, err := m.getAlgorithmTree(ctx, "hs_hasher")
	if err != nil {
		return nil, err
	}
	value, err := m.reg.Deserialize(tree)
	if err != nil {
		return nil, WrapStorageError("deserialize hs_hasher", err)
	}
	hs, ok := value.(*mixer.Hasher)
	if !ok {
		return nil, NewStorageError("manifest hs_hasher row is not a Hasher")
	}
	return hs, nil
}

func (m *manifest) getAlgorithmTree(ctx context.Context, key string) (serialize.Tree, error) {
	encoded, err := m.getRow(ctx, key)
	if err != nil {
		return nil, err
	}
	tree, err := encoding.DecodeJSONBase64(encoded)
	if err != nil {
		return nil, WrapStorageError(fmt.Sprintf("decode %s", key), err)
	}
	return tree, nil
}

func (m *manifest) GetAppVersion(ctx context.Context) (string, error) {
	return m.getRow(ctx, "app_version")
}

func (m *manifest) GetDBID(ctx context.Context) (string, error) {
	return m.getRow(ctx, "dbid")
}

// SetDBID requires new_dbid to be a 3-byte hex string, normalizing to
// uppercase before writing. Mirrors set_dbid.
func (m *manifest) SetDBID(ctx context.Context, newDBID string) error {
	raw, err := hex.DecodeString(newDBID)
	if err != nil {
		return NewStorageError(fmt.Sprintf("expected hexadecimal string, having %q", newDBID))
	}
	if len(raw) != 3 {
		return NewStorageError("size of dbid should be 3 bytes")
	}
	upper := strings.ToUpper(newDBID)
	if err := m.store.UpdateByColumn(ctx, manifestTable, manifestKeyCol, "dbid", map[string]interface{}{manifestDataCol: upper}); err != nil {
		return WrapStorageError("update dbid", err)
	}
	return nil
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
