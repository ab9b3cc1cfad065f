package discovery

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate(t *testing.T) {
	local := netip.MustParseAddr("10.244.3.17")
	cfg := DefaultConfig()
	cfg.ThirdOctet = OctetRange{Lo: 2, Hi: 4}
	cfg.FourthOctet = OctetRange{Lo: 1, Hi: 4}

	got := Enumerate(local, cfg)

	want := []string{
		"10.244.2.1", "10.244.2.2", "10.244.2.3",
		"10.244.3.1", "10.244.3.2", "10.244.3.3",
	}
	assert.Equal(t, want, got)
}

func TestEnumerate_DefaultSpace(t *testing.T) {
	local := netip.MustParseAddr("10.244.3.17")
	cfg := DefaultConfig()

	got := Enumerate(local, cfg)
	require.Len(t, got, cfg.Candidates())

	assert.Equal(t, "10.244.0.1", got[0])
	assert.Equal(t, "10.244.49.254", got[len(got)-1])
	assert.Contains(t, got, "10.244.3.17", "local address is not skipped")

	seen := make(map[string]bool, len(got))
	for _, ip := range got {
		assert.True(t, strings.HasPrefix(ip, "10.244."), "unexpected prefix: %s", ip)
		assert.False(t, seen[ip], "duplicate candidate: %s", ip)
		seen[ip] = true

		addr, err := netip.ParseAddr(ip)
		require.NoError(t, err)
		assert.True(t, addr.Is4())
	}
}

func TestSortAddresses(t *testing.T) {
	input := []string{"10.244.10.1", "10.244.2.30", "10.244.2.4", "10.244.1.200"}

	tests := []struct {
		name  string
		order AddressOrder
		want  []string
	}{
		{
			name:  "lexical keeps string order",
			order: OrderLexical,
			want:  []string{"10.244.1.200", "10.244.10.1", "10.244.2.30", "10.244.2.4"},
		},
		{
			name:  "empty order is lexical",
			order: "",
			want:  []string{"10.244.1.200", "10.244.10.1", "10.244.2.30", "10.244.2.4"},
		},
		{
			name:  "numeric orders by octet",
			order: OrderNumeric,
			want:  []string{"10.244.1.200", "10.244.2.4", "10.244.2.30", "10.244.10.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addrs := append([]string(nil), input...)
			SortAddresses(addrs, tt.order)
			assert.Equal(t, tt.want, addrs)
		})
	}
}

func TestSortAddresses_NumericInvalidLast(t *testing.T) {
	addrs := []string{"bogus", "10.0.0.2", "10.0.0.1"}
	SortAddresses(addrs, OrderNumeric)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "bogus"}, addrs)
}
