package model

import "net/netip"

// ASN sentinel values, per the prefix cache's data model.
const (
	ASNInternal uint32 = 0
	ASNUnknown  uint32 = 0xFFFFFFFF
)

// TTL constants in seconds, used as absolute-expiry offsets.
const (
	TTLNever       int64 = 0
	TTLDefault     int64 = 2419200 // 28 days
	TTLShort       int64 = 172800  // 2 days
	SnapshotPeriod       = 10      // wakeups between persistence snapshots
)

// PrefixEntry is the value half of a (prefix, asn, expiry) cache row.
type PrefixEntry struct {
	ASN    uint32
	Expiry int64 // absolute unix seconds; 0 = never expires
}

// Expired reports whether the entry has a nonzero expiry in the past.
func (e PrefixEntry) Expired(now int64) bool {
	return e.Expiry != 0 && e.Expiry <= now
}

// FlowRecord is the in-flight decoded representation of a single flow.
// Only SrcIP/DstIP feed ASN enrichment; the rest is carried for completeness
// and potential forwarding but not persisted.
type FlowRecord struct {
	SrcIP      netip.Addr
	DstIP      netip.Addr
	SrcMask    uint8
	DstMask    uint8
	InputIntf  uint32
	OutputIntf uint32
	Packets    uint64
	Bytes      uint64
	Protocol   uint8
	SrcPort    uint16
	DstPort    uint16
	TCPFlags   uint8
	SrcASN     uint32
	DstASN     uint32
	// Raw holds the original on-wire bytes of the record, used to build the
	// forwarded datagram without re-encoding every field.
	Raw []byte
}

// FieldSpec is one (field_id, length) pair from a parsed template.
type FieldSpec struct {
	ID     uint16
	Length uint16
}

// TemplateKey identifies a template by exporter and domain/source id.
type TemplateKey struct {
	Exporter netip.Addr
	DomainID uint32
	// TemplateID is the template-id the exporter assigned.
	TemplateID uint16
}

// Template is the parsed field sequence for a template-id.
type Template struct {
	Fields []FieldSpec
}

// RecordLength returns the sum of field lengths, i.e. the fixed record size
// this template implies (NetFlow v9/IPFIX templates this core handles are
// fixed-length; variable-length fields are not supported).
func (t Template) RecordLength() int {
	n := 0
	for _, f := range t.Fields {
		n += int(f.Length)
	}
	return n
}

// QueueItem is what the UDP receiver enqueues for decoder workers.
type QueueItem struct {
	ExporterIP netip.Addr
	Data       []byte
}

// ResolvedEntry is an ASN Resolver answer, with the optional name/description
// enrichment recovered from the original reference's second-stage lookup.
type ResolvedEntry struct {
	ASN     uint32
	Name    string
	Country string
}
