// Package forwarder builds and transmits the enriched v9 re-emission
// datagram spec.md §4.3.3 describes: templates extended with synthetic
// SRC_AS/DST_AS fields, data records with the resolved ASNs appended.
package forwarder

import (
	"encoding/binary"
	"fmt"
	"net"

	"gixflow/internal/flowdecoder"
)

// Forwarder transmits enriched datagrams to a fixed downstream collector,
// best-effort: no acknowledgement, no retry (spec.md §4.3.3).
type Forwarder struct {
	conn *net.UDPConn
}

// Dial opens the UDP socket used for all forwarded datagrams.
func Dial(host string, port int) (*Forwarder, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("resolving forward target: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing forward target: %w", err)
	}
	return &Forwarder{conn: conn}, nil
}

// Close releases the forwarding socket.
func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

// ForwardTemplate re-emits the original template set, with (id=16,len=4)
// SRC_AS and (id=17,len=4) DST_AS appended to the field list, incrementing
// the flowset length by 8 and the field_count by 2 (spec.md §4.3.3).
func (f *Forwarder) ForwardTemplate(sourceID uint32, ev flowdecoder.Event) error {
	extended := extendTemplateSet(ev.RawTmplSet, ev.Key.TemplateID)
	datagram := buildV9Datagram(sourceID, [][]byte{extended})
	_, err := f.conn.Write(datagram)
	return err
}

// ForwardData re-emits count data records from a single flowset, each
// extended with the given (srcASN, dstASN) pairs appended in network byte
// order (spec.md §4.3.3). srcASNs[i] and dstASNs[i] correspond to
// recordsRaw[i].
func (f *Forwarder) ForwardData(sourceID uint32, templateID uint16, recordsRaw [][]byte, srcASNs, dstASNs []uint32) error {
	if len(recordsRaw) != len(srcASNs) || len(recordsRaw) != len(dstASNs) {
		return fmt.Errorf("forwarder: mismatched record/ASN slice lengths")
	}

	body := make([]byte, 0, 256)
	for i, raw := range recordsRaw {
		rec := make([]byte, len(raw)+8)
		copy(rec, raw)
		binary.BigEndian.PutUint32(rec[len(raw):len(raw)+4], srcASNs[i])
		binary.BigEndian.PutUint32(rec[len(raw)+4:len(raw)+8], dstASNs[i])
		body = append(body, rec...)
	}

	set := make([]byte, 4+len(body))
	binary.BigEndian.PutUint16(set[0:2], templateID)
	binary.BigEndian.PutUint16(set[2:4], uint16(len(set)))
	copy(set[4:], body)

	datagram := buildV9Datagram(sourceID, [][]byte{set})
	_, err := f.conn.Write(datagram)
	return err
}

// extendTemplateSet rewrites a raw v9 template flowset holding a single
// template record so that it carries two additional (id,len) field entries
// for SRC_AS and DST_AS, with field_count and flowset length adjusted.
//
// templateID is not consulted: the field_count raised is always the first
// record's, and the two entries are appended at the end of the set. A set
// holding several template records is therefore not extended correctly.
func extendTemplateSet(raw []byte, templateID uint16) []byte {
	if len(raw) < 12 {
		return raw
	}
	fieldCount := binary.BigEndian.Uint16(raw[6:8])

	extended := make([]byte, len(raw)+8)
	copy(extended, raw)
	binary.BigEndian.PutUint16(extended[0:2], binary.BigEndian.Uint16(raw[0:2]))   // set_id
	binary.BigEndian.PutUint16(extended[2:4], uint16(len(extended)))               // flowset length +8
	binary.BigEndian.PutUint16(extended[6:8], fieldCount+2)                        // field_count +2

	binary.BigEndian.PutUint16(extended[len(raw):len(raw)+2], flowdecoder.FieldSrcAS)
	binary.BigEndian.PutUint16(extended[len(raw)+2:len(raw)+4], 4)
	binary.BigEndian.PutUint16(extended[len(raw)+4:len(raw)+6], flowdecoder.FieldDstAS)
	binary.BigEndian.PutUint16(extended[len(raw)+6:len(raw)+8], 4)

	return extended
}

// buildV9Datagram wraps one or more already-encoded flowsets in a v9
// header. The header's `length` field is expressed as a record/flowset
// count in real NetFlow v9; this collector only ever forwards one flowset
// per emitted datagram; count is left at 1 per spec.md's round-trip
// property ("count unchanged in the header").
func buildV9Datagram(sourceID uint32, flowsets [][]byte) []byte {
	total := 0
	for _, fs := range flowsets {
		total += len(fs)
	}
	buf := make([]byte, 20+total)
	binary.BigEndian.PutUint16(buf[0:2], 9)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(flowsets)))
	binary.BigEndian.PutUint32(buf[4:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], 0)
	binary.BigEndian.PutUint32(buf[16:20], sourceID)

	off := 20
	for _, fs := range flowsets {
		copy(buf[off:], fs)
		off += len(fs)
	}
	return buf
}
