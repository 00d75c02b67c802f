package asnresolver

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const (
	cymruOriginV4Zone = "origin.asn.cymru.com"
	cymruOriginV6Zone = "origin6.asn.cymru.com"
	cymruASNZone      = "asn.cymru.com"
)

// cymruAnswer is one parsed row of a pipe-delimited Cymru TXT response.
type cymruAnswer struct {
	ASN     uint32
	Prefix  string
	Country string
	RIR     string
	Date    string
}

// originQueryName builds the reverse-DNS query name for an IPv4 or IPv6
// address under the origin.asn.cymru.com / origin6.asn.cymru.com zones.
// For IPv4, spec.md §4.2 step 1: reduce to the containing /24 "A.B.C.0",
// queried in the form "0.C.B.A.origin.asn.cymru.com".
func originQueryName(ip netip.Addr) string {
	if ip.Is4() {
		b := ip.As4()
		return fmt.Sprintf("0.%d.%d.%d.%s", b[2], b[1], b[0], cymruOriginV4Zone)
	}
	return fmt.Sprintf("%s.%s", reverseNibbles(ip), cymruOriginV6Zone)
}

// reverseNibbles renders an IPv6 address as dot-separated reversed nibbles,
// the form Cymru's origin6 zone expects.
func reverseNibbles(ip netip.Addr) string {
	b := ip.As16()
	var nibbles [32]byte
	for i, by := range b {
		nibbles[i*2] = "0123456789abcdef"[by>>4]
		nibbles[i*2+1] = "0123456789abcdef"[by&0x0f]
	}
	var sb strings.Builder
	for i := len(nibbles) - 1; i >= 0; i-- {
		sb.WriteByte(nibbles[i])
		if i > 0 {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// asnQueryName builds the query name for the second-stage AS name lookup.
func asnQueryName(asn uint32) string {
	return fmt.Sprintf("AS%d.%s", asn, cymruASNZone)
}

// parseOriginTXT parses one "<asn> | <prefix> | <cc> | <rir> | <date>" TXT
// record. When multiple ASNs originate the prefix, the ASN field is
// whitespace-separated; the first integer is taken (spec.md §4.2 step 2).
func parseOriginTXT(txt string) (cymruAnswer, bool) {
	fields := strings.Split(txt, "|")
	if len(fields) < 4 {
		return cymruAnswer{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	asnField := strings.Fields(fields[0])
	if len(asnField) == 0 {
		return cymruAnswer{}, false
	}
	asn, err := strconv.ParseUint(asnField[0], 10, 32)
	if err != nil {
		return cymruAnswer{}, false
	}

	a := cymruAnswer{
		ASN:     uint32(asn),
		Prefix:  fields[1],
		Country: fields[2],
		RIR:     fields[3],
	}
	if len(fields) >= 5 {
		a.Date = fields[4]
	}
	return a, true
}

// asnNameAnswer is the second-stage "<asn> | <cc> | <rir> | <date> | <name>, <cc>" row.
type asnNameAnswer struct {
	Country string
	Name    string
}

func parseASNNameTXT(txt string) (asnNameAnswer, bool) {
	fields := strings.Split(txt, "|")
	if len(fields) < 5 {
		return asnNameAnswer{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return asnNameAnswer{Country: fields[1], Name: sanitizeDescription(fields[4])}, true
}

// sanitizeDescription strips ANSI escape sequences that some registries
// embed in the free-text description field.
func sanitizeDescription(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		if r == 0x1b {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
