// Package ingest is the concurrent ingest pipeline (spec.md §4.4/§5): a
// single UDP receiver feeding a bounded queue, drained by a pool of decoder
// workers that invoke the ASN resolver and, when enabled, the forwarder.
package ingest

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"gixflow/internal/asnresolver"
	"gixflow/internal/flowdecoder"
	"gixflow/internal/forwarder"
	"gixflow/internal/logging"
	"gixflow/internal/model"
	"gixflow/internal/workers"
)

const maxDatagramSize = 8192

// Config configures the pipeline.
type Config struct {
	ListenPort int
	QueueDepth int
	Workers    int
	IP2ASN     bool
}

// Pipeline owns the UDP socket, queue, and worker pool.
type Pipeline struct {
	cfg       Config
	queue     chan model.QueueItem
	conn      *net.UDPConn
	decoder   *flowdecoder.Decoder
	resolver  *asnresolver.Resolver
	forwarder *forwarder.Forwarder
	log       *logging.Logger

	dropped int64
}

// New builds a Pipeline. forward may be nil when forwarding is disabled.
func New(cfg Config, templates *flowdecoder.TemplateStore, resolver *asnresolver.Resolver, fwd *forwarder.Forwarder, log *logging.Logger) *Pipeline {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 50000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 50
	}
	return &Pipeline{
		cfg:       cfg,
		queue:     make(chan model.QueueItem, cfg.QueueDepth),
		decoder:   flowdecoder.NewDecoder(templates),
		resolver:  resolver,
		forwarder: fwd,
		log:       log,
	}
}

// Listen binds the UDP socket. Must be called before Run.
func (p *Pipeline) Listen() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: p.cfg.ListenPort})
	if err != nil {
		return err
	}
	p.conn = conn
	return nil
}

// Run starts the receiver and the worker pool, blocking until ctx is
// cancelled. Closing the UDP socket on cancellation is what unblocks the
// receiver's blocking ReadFromUDP (spec.md §5: ctx.Done() alone cannot
// interrupt a blocking syscall).
func (p *Pipeline) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		if p.conn != nil {
			p.conn.Close()
		}
	}()

	pool := workers.NewConsumerPool(p.cfg.Workers, p.queue, p.handle)
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	p.receive(ctx)
	<-done
}

// receive reads datagrams until the socket is closed or ctx is cancelled,
// non-blocking-enqueuing each into the bounded queue (spec.md §4.4).
func (p *Pipeline) receive(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, addr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed on shutdown
		}
		exporter, ok := netip.AddrFromSlice(addr.IP.To4())
		if !ok {
			exporter, ok = netip.AddrFromSlice(addr.IP.To16())
			if !ok {
				continue
			}
		}

		item := model.QueueItem{ExporterIP: exporter, Data: append([]byte(nil), buf[:n]...)}
		select {
		case p.queue <- item:
		default:
			p.dropped++
			err := fmt.Errorf("%w: from %s (total dropped: %d)", model.ErrQueueFull, exporter, p.dropped)
			p.log.Debugf("ingest: %v", err)
		}
	}
}

// handle decodes one queued datagram, registers (and, if enabled, forwards)
// its templates and, when IP2ASN is set, resolves each data record and
// forwards the enriched records if a forwarder is configured. With IP2ASN
// off, data records are neither resolved nor forwarded. It never returns an error that
// would stop the worker (spec.md §7 "worker crash" containment); failures
// are logged and the worker moves on to the next item.
func (p *Pipeline) handle(ctx context.Context, item model.QueueItem) error {
	events, err := p.decoder.Decode(item.ExporterIP, item.Data)
	if err != nil {
		p.log.Debugf("ingest: dropped datagram from %s: %v", item.ExporterIP, err)
		return nil
	}

	for _, ev := range events {
		switch ev.Kind {
		case flowdecoder.EventTemplate:
			p.decoder.Templates().Set(ev.Key, ev.Template)
			if p.forwarder != nil {
				if err := p.forwarder.ForwardTemplate(ev.Key.DomainID, ev); err != nil {
					p.log.Debugf("ingest: forward template failed: %v", err)
				}
			}
		case flowdecoder.EventData:
			p.handleData(ctx, ev)
		}
	}
	return nil
}

func (p *Pipeline) handleData(ctx context.Context, ev flowdecoder.Event) {
	if !p.cfg.IP2ASN {
		return
	}

	raws := make([][]byte, len(ev.Records))
	srcASNs := make([]uint32, len(ev.Records))
	dstASNs := make([]uint32, len(ev.Records))

	for i := range ev.Records {
		rec := &ev.Records[i]
		rec.SrcASN = p.resolver.Resolve(ctx, rec.SrcIP)
		rec.DstASN = p.resolver.Resolve(ctx, rec.DstIP)
		raws[i] = rec.Raw
		srcASNs[i] = rec.SrcASN
		dstASNs[i] = rec.DstASN
	}

	if p.forwarder != nil {
		if err := p.forwarder.ForwardData(ev.Key.DomainID, ev.Key.TemplateID, raws, srcASNs, dstASNs); err != nil {
			p.log.Debugf("ingest: forward data failed: %v", err)
		}
	}
}

// Dropped returns the number of datagrams dropped due to a full queue.
func (p *Pipeline) Dropped() int64 { return p.dropped }

// QueueLen returns the current queue depth, for diagnostics.
func (p *Pipeline) QueueLen() int { return len(p.queue) }
