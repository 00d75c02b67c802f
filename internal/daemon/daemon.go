// Package daemon wires every component into one explicit handle and owns
// its lifecycle: hydration at startup, the ingest pipeline, and the
// periodic persistence worker (spec.md §4.5/§5, SPEC_FULL.md §5 replacing
// the reference's global mutable state with a struct passed by reference).
package daemon

import (
	"context"
	"net/netip"
	"time"

	"gixflow/internal/asnresolver"
	"gixflow/internal/flowdecoder"
	"gixflow/internal/forwarder"
	"gixflow/internal/ingest"
	"gixflow/internal/logging"
	"gixflow/internal/model"
	"gixflow/internal/prefixcache"
	"gixflow/internal/store"
)

// persistTick is the cadence the persistence worker wakes at; a full
// snapshot-and-replace happens on every tick whose count is a multiple of
// persistSnapshotEvery (spec.md §4.5), i.e. every tenth wakeup, ~100s.
const (
	persistTick          = 10 * time.Second
	persistSnapshotEvery = 10
)

// Config collects every daemon-level setting SPEC_FULL.md §6 names.
type Config struct {
	ListenPort      int
	QueueDepth      int
	Workers         int
	IP2ASN          bool
	StorePath       string
	CymruResolver   string
	ResolveTimeout  time.Duration
	ForwardEnabled  bool
	ForwardHost     string
	ForwardPort     int
	PinnedPrefixes  []netip.Prefix
	Debug           bool
}

// Daemon is the explicit runtime handle: every shared component the
// reference kept as a package-level global lives here instead, passed by
// reference to whatever needs it.
type Daemon struct {
	cfg       Config
	log       *logging.Logger
	cache     *prefixcache.Cache
	templates *flowdecoder.TemplateStore
	resolver  *asnresolver.Resolver
	db        *store.DB
	fwd       *forwarder.Forwarder
	pipeline  *ingest.Pipeline
}

// New constructs a Daemon from cfg without starting anything.
func New(cfg Config) (*Daemon, error) {
	log := logging.New(cfg.Debug)

	cache := prefixcache.New()
	cache.Seed()
	if len(cfg.PinnedPrefixes) > 0 {
		cache.SeedPinned(cfg.PinnedPrefixes)
	}

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	rows, err := db.LoadAll()
	if err != nil {
		db.Close()
		return nil, err
	}
	entries := make([]prefixcache.Entry, 0, len(rows))
	for _, row := range rows {
		prefix, perr := netip.ParsePrefix(row.Prefix)
		if perr != nil {
			continue
		}
		entries = append(entries, prefixcache.Entry{Prefix: prefix, PrefixEntry: row.Entry})
	}
	cache.Hydrate(entries)
	log.Debugf("daemon: hydrated %d prefixes from %s", len(entries), db.Path())

	resolver := asnresolver.New(cache, asnresolver.Config{Server: cfg.CymruResolver, Timeout: cfg.ResolveTimeout}, log)

	var fwd *forwarder.Forwarder
	if cfg.ForwardEnabled {
		fwd, err = forwarder.Dial(cfg.ForwardHost, cfg.ForwardPort)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	templates := flowdecoder.NewTemplateStore()
	pipeline := ingest.New(ingest.Config{
		ListenPort: cfg.ListenPort,
		QueueDepth: cfg.QueueDepth,
		Workers:    cfg.Workers,
		IP2ASN:     cfg.IP2ASN,
	}, templates, resolver, fwd, log)

	return &Daemon{
		cfg:       cfg,
		log:       log,
		cache:     cache,
		templates: templates,
		resolver:  resolver,
		db:        db,
		fwd:       fwd,
		pipeline:  pipeline,
	}, nil
}

// Run binds the listening socket and blocks, running the ingest pipeline and
// the persistence worker until ctx is cancelled, then shuts down cleanly.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.pipeline.Listen(); err != nil {
		return err
	}
	defer d.shutdown()

	done := make(chan struct{})
	go func() {
		d.pipeline.Run(ctx)
		close(done)
	}()

	d.runPersistenceWorker(ctx)
	<-done
	return nil
}

func (d *Daemon) shutdown() {
	if err := d.persistSnapshot(); err != nil {
		d.log.Errorf("daemon: final snapshot failed: %v", err)
	}
	if d.fwd != nil {
		d.fwd.Close()
	}
	if err := d.db.Close(); err != nil {
		d.log.Errorf("daemon: closing durable store: %v", err)
	}
}

// runPersistenceWorker blocks, snapshotting the cache into the durable store
// every persistTick*persistSnapshotEvery, until ctx is cancelled (spec.md
// §4.5). Every tick is acknowledged unconditionally -- a snapshot failure is
// logged, never fatal, matching spec.md §9's resolution of the reference's
// silent-failure persistence loop.
func (d *Daemon) runPersistenceWorker(ctx context.Context) {
	ticker := time.NewTicker(persistTick)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticks++
			if ticks%persistSnapshotEvery != 0 {
				continue
			}
			if err := d.persistSnapshot(); err != nil {
				d.log.Errorf("daemon: persistence tick failed: %v", err)
			}
		}
	}
}

func (d *Daemon) persistSnapshot() error {
	snapshot := d.cache.Snapshot()
	rows := make([]store.Row, 0, len(snapshot))
	now := time.Now().Unix()
	for _, e := range snapshot {
		if e.Expired(now) {
			continue
		}
		rows = append(rows, store.Row{Prefix: e.Prefix.String(), Entry: e.PrefixEntry})
	}
	if err := d.db.ReplaceAll(rows); err != nil {
		return err
	}
	d.log.Debugf("daemon: persisted %d prefixes", len(rows))
	return nil
}

// Lookup resolves a single IP through the daemon's resolver, including the
// AS-name enrichment. The `gixflow lookup` subcommand does not use it; it
// builds its own cache and resolver without a daemon.
func (d *Daemon) Lookup(ctx context.Context, ip netip.Addr) model.ResolvedEntry {
	return d.resolver.ResolveEntry(ctx, ip)
}

// Dropped returns the ingest pipeline's cumulative dropped-datagram count.
func (d *Daemon) Dropped() int64 { return d.pipeline.Dropped() }
