package discovery

import (
	"strings"

	"peerscan/internal/domain"
)

// FilterByService keeps peers whose hostname starts with prefix, preserving order.
// Matching is byte-wise and case-sensitive. Sentinel peers pass only when
// "unreachable" itself starts with prefix.
func FilterByService(peers []domain.PeerIdentity, prefix string) []domain.PeerIdentity {
	matched := make([]domain.PeerIdentity, 0, len(peers))
	for _, p := range peers {
		if strings.HasPrefix(p.Hostname, prefix) {
			matched = append(matched, p)
		}
	}
	return matched
}
