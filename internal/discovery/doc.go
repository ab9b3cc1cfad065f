// Package discovery finds replicas of a service on a flat network by scanning
// the local /16 and asking every reachable address who it is.
//
// # Stages
//
// Enumerate lists candidates {a}.{b}.{t}.{f} from the local address and the
// configured third/fourth octet ranges.
//
// Stage one (PortProbe, or NmapProbe) makes one TCP connect per candidate
// through a bounded worker pool. Any failure means "not reachable".
//
// Stage two (IdentityFetcher) issues GET /identity to each reachable address
// with its own, smaller concurrency limit. Any failure yields the sentinel
// identity for that address, so stage two always returns exactly one
// PeerIdentity per reachable address, in the same order.
//
// FilterByService narrows identified peers to a hostname prefix.
//
// # Discoverer
//
// Discoverer exposes the three entry points: DiscoverOpenAddresses,
// DiscoverPeersWithIdentity and DiscoverFilteredPeers. Each call validates its
// Config, performs a full rescan and blocks until both pools drain. The only
// error a call returns is ErrInvalidConfig, before any I/O.
//
// Config.Budget optionally caps the wall time of a call. Probes not attempted
// when it expires count as unreachable and unfinished fetches as sentinels.
//
// # Ordering
//
// Reachable addresses are sorted by Config.Order. OrderLexical (the default)
// keeps the historical string sort; OrderNumeric sorts by octet value.
package discovery
