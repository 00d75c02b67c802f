// Package store is the durable prefix-to-ASN table, backed by an embedded
// LevelDB instance with msgpack-encoded values. It exposes the logical
// schema spec.md §6 calls for — prefixes(prefix TEXT, asn INTEGER, timestamp
// INTEGER) — as a LevelDB key range, with atomic replace-all-rows semantics
// for the persistence worker's periodic snapshot.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"gixflow/internal/model"
)

const (
	prefixRowKey  = "prefix:"
	metaKeySchema = "meta:schema"
	metaBuiltAt   = "meta:built_at"

	schemaVersion = 1
)

// DB wraps a LevelDB instance holding the prefixes table.
type DB struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Row is one (prefix, asn, timestamp) row.
type Row struct {
	Prefix string
	Entry  model.PrefixEntry
}

// storedValue is the msgpack payload for a prefix row.
type storedValue struct {
	ASN    uint32
	Expiry int64
}

// Open opens or creates a LevelDB database at path. If the schema version
// metadata key is absent (a fresh or pre-existing-but-uninitialized file),
// it is initialized — satisfying spec.md §4.5's "if the store is missing or
// uninitialized, create the schema and proceed."
func Open(path string) (*DB, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
		WriteBuffer: 16 * 1024 * 1024,
	}

	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable store: %w", err)
	}

	d := &DB{db: ldb, path: path}
	version, err := d.GetSchemaVersion()
	if err != nil {
		ldb.Close()
		return nil, err
	}
	if version == 0 {
		if err := d.initSchema(); err != nil {
			ldb.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *DB) initSchema() error {
	if err := d.SetSchemaVersion(schemaVersion); err != nil {
		return err
	}
	return d.SetMetadata(metaBuiltAt, time.Now().Format(time.RFC3339))
}

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return model.ErrStoreUnavailable
	}
	d.closed = true
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// SetMetadata sets a metadata key/value pair.
func (d *DB) SetMetadata(key, value string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return model.ErrStoreUnavailable
	}
	return d.db.Put([]byte(key), []byte(value), nil)
}

// GetMetadata retrieves a metadata value, returning "" if absent.
func (d *DB) GetMetadata(key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", model.ErrStoreUnavailable
	}
	value, err := d.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata failed: %w", err)
	}
	return string(value), nil
}

// SetSchemaVersion records the schema version.
func (d *DB) SetSchemaVersion(version int) error {
	return d.SetMetadata(metaKeySchema, fmt.Sprintf("%d", version))
}

// GetSchemaVersion returns the recorded schema version, or 0 if unset.
func (d *DB) GetSchemaVersion() (int, error) {
	value, err := d.GetMetadata(metaKeySchema)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, fmt.Errorf("invalid schema version: %w", err)
	}
	return version, nil
}

// ReplaceAll atomically replaces every row in the prefixes table with rows,
// implementing spec.md §4.5's "delete all rows, insert every current cache
// entry, commit" in a single LevelDB batch write.
func (d *DB) ReplaceAll(rows []Row) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return model.ErrStoreUnavailable
	}

	batch := new(leveldb.Batch)

	iter := d.db.NewIterator(util.BytesPrefix([]byte(prefixRowKey)), nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scanning existing rows: %w", err)
	}

	for _, row := range rows {
		value, err := msgpack.Marshal(storedValue{ASN: row.Entry.ASN, Expiry: row.Entry.Expiry})
		if err != nil {
			return fmt.Errorf("encoding row for %s: %w", row.Prefix, err)
		}
		batch.Put([]byte(prefixRowKey+row.Prefix), value)
	}

	return d.db.Write(batch, nil)
}

// LoadAll reads every row currently in the prefixes table.
func (d *DB) LoadAll() ([]Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, model.ErrStoreUnavailable
	}

	var rows []Row
	iter := d.db.NewIterator(util.BytesPrefix([]byte(prefixRowKey)), nil)
	defer iter.Release()
	for iter.Next() {
		var sv storedValue
		if err := msgpack.Unmarshal(iter.Value(), &sv); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		prefix := string(iter.Key()[len(prefixRowKey):])
		rows = append(rows, Row{Prefix: prefix, Entry: model.PrefixEntry{ASN: sv.ASN, Expiry: sv.Expiry}})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rows, nil
}
