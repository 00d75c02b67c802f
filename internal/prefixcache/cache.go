// Package prefixcache is the longest-prefix-match IP-prefix-to-ASN cache
// (spec.md §4.1), backed by a gaissmai/bart radix table — a ready-made
// binary radix (Patricia) tree over both IPv4 and IPv6 netip.Prefix keys,
// used here instead of hand-rolling one.
package prefixcache

import (
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"

	"gixflow/internal/model"
)

// Cache is a single-writer/many-reader longest-prefix-match store.
// bart.Table is documented as safe for concurrent readers but not for
// concurrent readers and writers, so every access here goes through an
// explicit RWMutex rather than relying on the table's own locking.
type Cache struct {
	mu    sync.RWMutex
	table bart.Table[model.PrefixEntry]
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// rfcSeed is the fixed RFC/special-use prefix set from spec.md §4.1.
var rfcSeed = []string{
	"0.0.0.0/8", "10.0.0.0/8", "127.0.0.0/8", "169.254.0.0/16", "172.16.0.0/12",
	"192.0.0.0/24", "192.0.2.0/24", "192.168.0.0/16", "198.18.0.0/15",
	"198.51.100.0/24", "203.0.113.0/24", "224.0.0.0/4", "240.0.0.0/4",
	"2001:10::/28", "2001:db8::/32", "3ffe::/16", "5f00::/8", "fc00::/7", "fe80::/10",
}

// as112Seed are the RFC entries pinned to AS112 rather than UNKNOWN.
var as112Seed = []string{
	"192.175.48.0/24",
	"2620:4f:8000::/48",
}

// Seed inserts the fixed RFC special-use prefix set, each with
// asn=UNKNOWN and expiry=0, plus the two AS112 pins with asn=112.
func (c *Cache) Seed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cidr := range rfcSeed {
		c.table.Insert(netip.MustParsePrefix(cidr), model.PrefixEntry{ASN: model.ASNUnknown, Expiry: model.TTLNever})
	}
	for _, cidr := range as112Seed {
		c.table.Insert(netip.MustParsePrefix(cidr), model.PrefixEntry{ASN: 112, Expiry: model.TTLNever})
	}
}

// SeedPinned inserts operator-pinned local prefixes with asn=INTERNAL,
// expiry=0, recovering the original reference's ability to special-case
// local networks beyond the RFC set (SPEC_FULL.md §9).
func (c *Cache) SeedPinned(prefixes []netip.Prefix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prefixes {
		c.table.Insert(p, model.PrefixEntry{ASN: model.ASNInternal, Expiry: model.TTLNever})
	}
}

// Lookup returns the longest prefix entry covering ip, if any. Expired
// entries are still returned; the caller (the ASN resolver) is responsible
// for deciding whether to refresh.
func (c *Cache) Lookup(ip netip.Addr) (model.PrefixEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Lookup(ip)
}

// LookupPrefix is Lookup plus the matched prefix itself, needed when the
// caller must later Delete exactly the entry it matched (e.g. to refresh an
// expired one).
func (c *Cache) LookupPrefix(ip netip.Addr) (netip.Prefix, model.PrefixEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bits := 32
	if ip.Is6() {
		bits = 128
	}
	return c.table.LookupPrefixLPM(netip.PrefixFrom(ip, bits))
}

// Insert is an idempotent upsert of a single (prefix, asn, expiry) entry.
func (c *Cache) Insert(prefix netip.Prefix, entry model.PrefixEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Insert(prefix.Masked(), entry)
}

// Delete removes a prefix's entry, if present.
func (c *Cache) Delete(prefix netip.Prefix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table.Delete(prefix.Masked())
}

// Snapshot returns a consistent view of every entry currently in the cache,
// for the persistence worker.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, c.table.Size())
	for pfx, e := range c.table.All() {
		entries = append(entries, Entry{Prefix: pfx, PrefixEntry: e})
	}
	return entries
}

// Hydrate bulk-inserts entries, typically snapshot rows loaded from the
// durable store after Seed() at startup.
func (c *Cache) Hydrate(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.table.Insert(e.Prefix, e.PrefixEntry)
	}
}

// Size returns the number of entries currently cached.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.Size()
}

// Entry pairs a prefix with its cache value, the unit Snapshot/Hydrate
// exchange with the persistence worker.
type Entry struct {
	Prefix netip.Prefix
	model.PrefixEntry
}
