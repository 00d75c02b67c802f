package ipcodec

import (
	"net/netip"
	"testing"
)

func TestInt32IPv4RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ip   string
	}{
		{"zero", "0.0.0.0"},
		{"private", "10.1.2.3"},
		{"public", "8.8.8.8"},
		{"broadcast", "255.255.255.255"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := netip.MustParseAddr(tt.ip)
			n := IPv4ToInt32(addr)
			got := Int32ToIPv4(n)
			if got != addr {
				t.Errorf("got %v, want %v", got, addr)
			}
		})
	}
}

func TestIPv4ToInt32RejectsIPv6(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::1")
	if got := IPv4ToInt32(addr); got != 0 {
		t.Errorf("got %d, want 0 for non-IPv4 address", got)
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1.2.3/8", "10.0.0.0/8"},
		{"192.168.1.128/25", "192.168.1.128/25"},
		{"2001:db8::1/32", "2001:db8::/32"},
	}

	for _, tt := range tests {
		got, err := NormalizePrefix(tt.in)
		if err != nil {
			t.Fatalf("NormalizePrefix(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReduce24(t *testing.T) {
	got := Reduce24(netip.MustParseAddr("8.8.8.9"))
	want := netip.MustParsePrefix("8.8.8.0/24")
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCompareIPs(t *testing.T) {
	a := netip.MustParseAddr("1.2.3.4")
	b := netip.MustParseAddr("1.2.3.5")
	if CompareIPs(a, b) >= 0 {
		t.Errorf("expected a < b")
	}
	if CompareIPs(a, a) != 0 {
		t.Errorf("expected a == a")
	}
}
