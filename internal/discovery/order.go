package discovery

import (
	"net/netip"
	"sort"
)

// SortAddresses orders addresses in place by the given rule.
// Lexical is the historical behavior and misorders multi-digit octets;
// addresses that fail to parse sort after valid ones under OrderNumeric.
func SortAddresses(addrs []string, order AddressOrder) {
	if order != OrderNumeric {
		sort.Strings(addrs)
		return
	}

	sort.SliceStable(addrs, func(i, j int) bool {
		a, errA := netip.ParseAddr(addrs[i])
		b, errB := netip.ParseAddr(addrs[j])
		switch {
		case errA != nil && errB != nil:
			return addrs[i] < addrs[j]
		case errA != nil:
			return false
		case errB != nil:
			return true
		}
		return a.Less(b)
	})
}
