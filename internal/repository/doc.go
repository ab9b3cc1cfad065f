// Package repository defines the data access interfaces for peerscan.
//
// Only scan-run summaries are persisted: when a run happened, which
// operation it served and how many candidates, reachable addresses and
// verified peers it saw. Peer identities themselves are never stored;
// every discovery call is a full rescan.
//
// The sqlite subpackage implements RunRepository on modernc.org/sqlite.
package repository
