package ingest

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"gixflow/internal/asnresolver"
	"gixflow/internal/flowdecoder"
	"gixflow/internal/logging"
	"gixflow/internal/model"
	"gixflow/internal/prefixcache"
)

func putU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// buildV9Datagram mirrors flowdecoder's own test helper: one template
// flowset (src_ip, dst_ip) plus one matching data flowset.
func buildV9Datagram(templateID uint16, srcIP, dstIP uint32) []byte {
	tmplBody := make([]byte, 4+2*4)
	putU16(tmplBody[0:2], templateID)
	putU16(tmplBody[2:4], 2)
	putU16(tmplBody[4:6], 8) // SRC_ADDR
	putU16(tmplBody[6:8], 4)
	putU16(tmplBody[8:10], 12) // DST_ADDR
	putU16(tmplBody[10:12], 4)

	tmplSet := make([]byte, 4+len(tmplBody))
	putU16(tmplSet[0:2], 0)
	putU16(tmplSet[2:4], uint16(len(tmplSet)))
	copy(tmplSet[4:], tmplBody)

	dataBody := make([]byte, 8)
	putU32(dataBody[0:4], srcIP)
	putU32(dataBody[4:8], dstIP)
	dataSet := make([]byte, 4+len(dataBody))
	putU16(dataSet[0:2], templateID)
	putU16(dataSet[2:4], uint16(len(dataSet)))
	copy(dataSet[4:], dataBody)

	header := make([]byte, 20)
	putU16(header[0:2], 9)
	putU16(header[2:4], 1)

	datagram := append(append([]byte{}, header...), tmplSet...)
	datagram = append(datagram, dataSet...)
	return datagram
}

func newTestPipeline(t *testing.T) (*Pipeline, *prefixcache.Cache) {
	t.Helper()
	cache := prefixcache.New()
	cache.Seed()
	log := logging.New(false)
	resolver := asnresolver.New(cache, asnresolver.Config{}, log)
	templates := flowdecoder.NewTemplateStore()
	p := New(Config{ListenPort: 0, Workers: 2, QueueDepth: 4, IP2ASN: true}, templates, resolver, nil, log)
	if err := p.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() {
		if p.conn != nil {
			p.conn.Close()
		}
	})
	return p, cache
}

func TestPipelineDecodesTemplateThenData(t *testing.T) {
	p, cache := newTestPipeline(t)
	exporter := netip.MustParseAddr("192.0.2.1")

	// 10.0.0.1 (private) should resolve via the RFC seed, no DNS needed.
	datagram := buildV9Datagram(256, 0x0A000001, 0x0A000002)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.handle(ctx, model.QueueItem{ExporterIP: exporter, Data: datagram}); err != nil {
		t.Fatalf("handle (register template): %v", err)
	}
	if _, ok := p.decoder.Templates().Get(model.TemplateKey{Exporter: exporter, DomainID: 0, TemplateID: 256}); !ok {
		t.Fatal("expected template 256 to be registered after handling")
	}

	if err := p.handle(ctx, model.QueueItem{ExporterIP: exporter, Data: datagram}); err != nil {
		t.Fatalf("handle (data pass): %v", err)
	}

	entry, ok := cache.Lookup(netip.MustParseAddr("10.0.0.1"))
	if !ok || entry.ASN != model.ASNUnknown {
		t.Errorf("expected 10.0.0.1 to resolve via the RFC1918 seed as UNKNOWN, got %+v ok=%v", entry, ok)
	}
}

func TestPipelineDropsOnFullQueue(t *testing.T) {
	p, _ := newTestPipeline(t)

	conn, err := net.DialUDP("udp", nil, p.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Don't start workers: every receive() enqueue beyond QueueDepth must be
	// dropped rather than block the receiver goroutine (spec.md §4.4/§7).
	done := make(chan struct{})
	go func() {
		p.receive(ctx)
		close(done)
	}()

	junk := []byte{0, 9, 0, 0}
	for i := 0; i < 20; i++ {
		if _, err := conn.Write(junk); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)
	cancel()
	p.conn.Close()
	<-done

	if p.Dropped() == 0 {
		t.Error("expected some datagrams to be dropped once the queue filled")
	}
}

func TestQueueLenReflectsPendingItems(t *testing.T) {
	p, _ := newTestPipeline(t)
	if p.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0 on a fresh pipeline", p.QueueLen())
	}
}
