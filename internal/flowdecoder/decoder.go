// Package flowdecoder parses IPFIX (v10) and NetFlow v9 datagrams (spec.md
// §4.3): headers, template/options-template sets, and data sets, against
// real per-exporter template state with the vendor-hardcoded layouts from
// spec.md §4.3.1/§4.3.2 registered only as fallback seeds.
package flowdecoder

import (
	"fmt"
	"net/netip"

	"gixflow/internal/model"
)

// EventKind distinguishes a template definition from a batch of data
// records within one decoded datagram.
type EventKind int

const (
	// EventTemplate carries a freshly-parsed (or options-)template.
	EventTemplate EventKind = iota
	// EventData carries decoded flow records for an already-known template.
	EventData
)

// Event is one decoded unit handed to the caller: either a template
// definition (to register, and to forward-replicate if forwarding is
// enabled) or a batch of flow records.
type Event struct {
	Kind       EventKind
	Key        model.TemplateKey
	Template   model.Template   // set when Kind == EventTemplate
	Records    []model.FlowRecord // set when Kind == EventData
	RawTmplSet []byte           // original template-set bytes, for forwarding
}

// Decoder parses datagrams, consulting and updating a shared TemplateStore.
type Decoder struct {
	templates *TemplateStore
}

// NewDecoder builds a Decoder backed by templates. The store is not seeded;
// a data set whose template is not in the store is decoded against the
// hardcoded vendor fallback layouts spec.md §4.3.1/§4.3.2 documents.
func NewDecoder(templates *TemplateStore) *Decoder {
	return &Decoder{templates: templates}
}

// Decode parses one raw datagram from exporter, dispatching on the version
// word (spec.md §4.3). Unknown versions are reported as
// ErrUnsupportedVersion; the caller is expected to log and drop (spec.md §7
// malformed-datagram handling), not treat it as fatal.
func (d *Decoder) Decode(exporter netip.Addr, data []byte) ([]Event, error) {
	if len(data) < 2 {
		return nil, model.ErrMalformedDatagram
	}
	version := beUint16(data[0:2])
	switch version {
	case 9:
		return d.decodeNetflowV9(exporter, data)
	case 10:
		return d.decodeIPFIX(exporter, data)
	default:
		return nil, fmt.Errorf("%w: version %d", model.ErrUnsupportedVersion, version)
	}
}

// recoverDecode wraps fn so a slice-bounds panic from a malformed length
// field becomes a returned error instead of killing the caller (spec.md §9:
// narrow exception handling to expected failure modes, not silent
// catch-all, but a panic from attacker-controlled lengths is exactly the
// "truncation" failure mode this narrows to).
func recoverDecode(fn func() ([]Event, error)) (events []Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			events, err = nil, fmt.Errorf("%w: %v", model.ErrMalformedDatagram, r)
		}
	}()
	return fn()
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Templates exposes the decoder's backing TemplateStore so a caller can
// register newly-observed templates after handling an EventTemplate.
func (d *Decoder) Templates() *TemplateStore { return d.templates }

// decodeFixedRecords slices as many whole records of tmpl's fixed length as
// fit in buf, producing FlowRecords with the common fields (src/dst IP,
// ports, etc.) extracted by field ID and each record's full bytes preserved
// as Raw for forwarding.
func decodeFixedRecords(tmpl model.Template, buf []byte) []model.FlowRecord {
	recLen := tmpl.RecordLength()
	if recLen == 0 {
		return nil
	}
	var records []model.FlowRecord
	for off := 0; off+recLen <= len(buf); off += recLen {
		raw := buf[off : off+recLen]
		records = append(records, decodeOneRecord(tmpl, raw))
	}
	return records
}

func decodeOneRecord(tmpl model.Template, raw []byte) model.FlowRecord {
	rec := model.FlowRecord{Raw: append([]byte(nil), raw...)}
	pos := 0
	for _, f := range tmpl.Fields {
		end := pos + int(f.Length)
		if end > len(raw) {
			break
		}
		field := raw[pos:end]
		switch f.ID {
		case fieldSrcIP:
			if len(field) == 4 {
				rec.SrcIP = ipv4FromBytes(field)
			}
		case fieldDstIP:
			if len(field) == 4 {
				rec.DstIP = ipv4FromBytes(field)
			}
		case fieldSrcMask:
			if len(field) == 1 {
				rec.SrcMask = field[0]
			}
		case fieldDstMask:
			if len(field) == 1 {
				rec.DstMask = field[0]
			}
		case fieldInputIntf:
			rec.InputIntf = beUintN(field)
		case fieldOutputIntf:
			rec.OutputIntf = beUintN(field)
		case fieldPackets:
			rec.Packets = beUint64N(field)
		case fieldBytes:
			rec.Bytes = beUint64N(field)
		case fieldProtocol:
			if len(field) == 1 {
				rec.Protocol = field[0]
			}
		case fieldSrcPort:
			if len(field) == 2 {
				rec.SrcPort = beUint16(field)
			}
		case fieldDstPort:
			if len(field) == 2 {
				rec.DstPort = beUint16(field)
			}
		case fieldTCPFlags:
			if len(field) == 1 {
				rec.TCPFlags = field[0]
			}
		case FieldSrcAS:
			rec.SrcASN = beUintN(field)
		case FieldDstAS:
			rec.DstASN = beUintN(field)
		}
		pos = end
	}
	return rec
}

func ipv4FromBytes(b []byte) netip.Addr {
	addr, _ := netip.AddrFromSlice(b)
	return addr
}

func beUintN(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(beUint16(b))
	case 4:
		return beUint32(b)
	default:
		return 0
	}
}

func beUint64N(b []byte) uint64 {
	switch len(b) {
	case 4:
		return uint64(beUint32(b))
	case 8:
		return uint64(beUint32(b[:4]))<<32 | uint64(beUint32(b[4:]))
	default:
		return 0
	}
}
