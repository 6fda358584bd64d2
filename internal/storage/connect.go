package storage

import (
	"context"

	"github.com/elseecay/overpass/internal/cryptoreg"
	"github.com/elseecay/overpass/internal/mixer"
	"github.com/elseecay/overpass/internal/rowstore"
	"github.com/elseecay/overpass/internal/serialize"
)

// Options carries the knobs an external config loader would otherwise
// supply (spec.md §1 places configuration loading itself out of scope).
// A zero Options uses DefaultMixer/DefaultKeyHasher/DefaultHsHasher.
type Options struct {
	Mixer     *mixer.Mixer
	KeyHasher *mixer.KeyHasher
	HsHasher  *mixer.Hasher
}

// Connection is one open database context: the row store, the keyed
// Mixer ready to encrypt, the fixed hs_hasher, and the memoized
// description table. Mirrors spec.md §4.7's "attach (connection, mixer,
// hs_hasher) as a context". Exactly one Connection should be open per
// row store file at a time (spec.md §5).
type Connection struct {
	store    rowstore.Store
	mx       *mixer.Mixer
	hsHasher *mixer.Hasher
	manifest *manifest
	desc     *descriptionStore
	reg      *serialize.Registry
}

// Create initializes a brand-new, empty row store: the manifest and
// description tables, a derived key applied to opts' Mixer (or the
// default recipe), and a key-check triple. Mirrors init_empty_database,
// failing closed if the freshly-written key-check cannot itself be
// verified.
func Create(ctx context.Context, store rowstore.Store, password string, opts Options) (conn *Connection, err error) {
	defer closeOnError(store, &err)

	tables, err := store.ListTables(ctx)
	if err != nil {
		return nil, WrapStorageError("list tables before init", err)
	}
	if len(tables) > 0 {
		return nil, NewStorageError("database is not empty for initializing")
	}

	mx := opts.Mixer
	if mx == nil {
		mx, err = DefaultMixer()
		if err != nil {
			return nil, WrapStorageError("build default mixer", err)
		}
	}
	keyHasher := opts.KeyHasher
	if keyHasher == nil {
		keyHasher, err = DefaultKeyHasher()
		if err != nil {
			return nil, WrapStorageError("build default key hasher", err)
		}
	}
	hsHasher := opts.HsHasher
	if hsHasher == nil {
		hsHasher, err = DefaultHsHasher()
		if err != nil {
			return nil, WrapStorageError("build default hs hasher", err)
		}
	}

	keys, err := keyHasher.Process([]byte(password))
	if err != nil {
		return nil, WrapStorageError("derive keys from password", err)
	}
	if err := mx.SetKeys(keys); err != nil {
		return nil, WrapStorageError("apply derived keys to mixer", err)
	}

	reg := cryptoreg.New()
	man := newManifest(store, reg)
	desc := newDescriptionStore(store, mx)

	err = store.WithTransaction(ctx, func(ctx context.Context, tx rowstore.Store) error {
		txMan := newManifest(tx, reg)
		txDesc := newDescriptionStore(tx, mx)
		if err := txMan.Init(ctx, mx, keyHasher, hsHasher); err != nil {
			return err
		}
		return txDesc.Init(ctx)
	})
	if err != nil {
		return nil, err
	}

	if err := man.CheckKey(ctx, mx); err != nil {
		return nil, WrapStorageError("verify key immediately after initialization", err)
	}

	log.Notice("storage: created new database")
	return &Connection{store: store, mx: mx, hsHasher: hsHasher, manifest: man, desc: desc, reg: reg}, nil
}

// Open attaches to an existing row store: verifies it is a well-formed
// overpass database, loads the serialized Mixer/KeyHasher/hs_hasher,
// derives keys from password, and verifies them via CheckKey. Any
// failure releases the row store handle. Mirrors spec.md §4.7's Open.
func Open(ctx context.Context, store rowstore.Store, password string) (conn *Connection, err error) {
	defer closeOnError(store, &err)

	if _, err := store.PragmaSchemaVersion(ctx); err != nil {
		return nil, WrapStorageError("connection liveness probe", err)
	}

	reg := cryptoreg.New()
	man := newManifest(store, reg)

	if !man.IsDBCreatedByApp(ctx) {
		return nil, NewStorageError("database does not carry a well-formed dbid")
	}

	mx, err := man.GetMixer(ctx)
	if err != nil {
		return nil, err
	}
	keyHasher, err := man.GetKeyHasher(ctx)
	if err != nil {
		return nil, err
	}
	hsHasher, err := man.GetHsHasher(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := keyHasher.Process([]byte(password))
	if err != nil {
		return nil, WrapStorageError("derive keys from password", err)
	}
	if err := mx.SetKeys(keys); err != nil {
		return nil, WrapStorageError("apply derived keys to mixer", err)
	}

	if err := man.CheckKey(ctx, mx); err != nil {
		return nil, err
	}

	desc := newDescriptionStore(store, mx)
	log.Notice("storage: opened database")
	return &Connection{store: store, mx: mx, hsHasher: hsHasher, manifest: man, desc: desc, reg: reg}, nil
}

// Close releases the row store handle. After this call the Connection
// must not be used again.
func (c *Connection) Close() error {
	log.Debug("storage: closing connection")
	if err := c.store.Close(); err != nil {
		return WrapStorageError("close row store", err)
	}
	return nil
}

// GetDBID, SetDBID, GetAppVersion expose the manifest's metadata
// operations directly, per spec.md §4.6.
func (c *Connection) GetDBID(ctx context.Context) (string, error) { return c.manifest.GetDBID(ctx) }
func (c *Connection) SetDBID(ctx context.Context, dbid string) error {
	return c.manifest.SetDBID(ctx, dbid)
}
func (c *Connection) GetAppVersion(ctx context.Context) (string, error) {
	return c.manifest.GetAppVersion(ctx)
}

func closeOnError(store rowstore.Store, err *error) {
	if *err != nil {
		store.Close()
	}
}
