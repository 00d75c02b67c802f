package daemon

import (
	"context"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"gixflow/internal/model"
	"gixflow/internal/store"
)

func newTestConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		ListenPort: 0,
		QueueDepth: 16,
		Workers:    2,
		IP2ASN:     true,
		StorePath:  filepath.Join(dir, "gixflow.db"),
		Debug:      false,
	}
}

func TestNewHydratesFromDurableStore(t *testing.T) {
	cfg := newTestConfig(t)

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := db.ReplaceAll([]store.Row{
		{Prefix: "198.51.100.0/24", Entry: model.PrefixEntry{ASN: 64500, Expiry: time.Now().Add(time.Hour).Unix()}},
	}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.db.Close()

	entry, ok := d.cache.Lookup(netip.MustParseAddr("198.51.100.5"))
	if !ok {
		t.Fatal("expected the hydrated prefix to be present in the cache")
	}
	if entry.ASN != 64500 {
		t.Errorf("ASN = %d, want 64500", entry.ASN)
	}
}

func TestPersistSnapshotRoundTrips(t *testing.T) {
	cfg := newTestConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.db.Close()

	d.cache.Insert(netip.MustParsePrefix("203.0.113.0/24"), model.PrefixEntry{ASN: 65000, Expiry: time.Now().Add(time.Hour).Unix()})
	if err := d.persistSnapshot(); err != nil {
		t.Fatalf("persistSnapshot: %v", err)
	}

	rows, err := d.db.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.Prefix == "203.0.113.0/24" && row.Entry.ASN == 65000 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 203.0.113.0/24 to be persisted, got rows=%v", rows)
	}
}

func TestLookupResolvesSeededPrefix(t *testing.T) {
	cfg := newTestConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	entry := d.Lookup(ctx, netip.MustParseAddr("10.1.2.3"))
	if entry.ASN != model.ASNUnknown {
		t.Errorf("ASN = %d, want UNKNOWN for a private address", entry.ASN)
	}
}
