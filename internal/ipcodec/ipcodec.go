// Package ipcodec holds small IP/prefix conversion helpers — converting
// between the wire form NetFlow records carry (big-endian uint32 IPv4
// addresses) and net/netip values. The ASN resolver uses Reduce24 for its
// negative-cache /24.
package ipcodec

import (
	"encoding/binary"
	"net/netip"
)

// CompareIPs compares two IP addresses (-1 if a < b, 0 if a == b, 1 if a > b).
func CompareIPs(a, b netip.Addr) int {
	return a.Compare(b)
}

// NormalizePrefix normalizes a CIDR prefix string to its masked canonical
// form, e.g. "10.1.2.3/8" -> "10.0.0.0/8".
func NormalizePrefix(cidr string) (string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return "", err
	}
	return prefix.Masked().String(), nil
}

// Int32ToIPv4 converts a uint32 (as carried in a NetFlow v9/IPFIX record) to
// an IPv4 address.
func Int32ToIPv4(n uint32) netip.Addr {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	addr, _ := netip.AddrFromSlice(b)
	return addr
}

// IPv4ToInt32 converts an IPv4 address to the big-endian uint32 a flow
// record field expects. Returns 0 for non-IPv4 addresses.
func IPv4ToInt32(ip netip.Addr) uint32 {
	if !ip.Is4() {
		return 0
	}
	return binary.BigEndian.Uint32(ip.AsSlice())
}

// Reduce24 reduces an IPv4 address to the containing /24, as the ASN
// resolver's Cymru lookup key.
func Reduce24(ip netip.Addr) netip.Prefix {
	return netip.PrefixFrom(ip, 24).Masked()
}
