// Package domain defines the core types shared by the peer discovery engine and
// the service that hosts it.
//
// # Identity
//
// LocalIdentity is who this replica is: hostname, IPv4 address and logical
// service name. It is resolved once at startup and never changes for the life
// of the process.
//
// PeerIdentity is what a scan learns about another replica. A peer whose port
// answered but whose identity endpoint did not is recorded with the sentinel
// identity (hostname "unreachable", service "unknown").
//
// IdentityDocument is the JSON body served at GET /identity and parsed from
// peers during stage-two verification.
//
// # Outcomes
//
// ProbeResult and FetchResult carry a Reason for every probe and identity
// fetch. The discovery engine collapses them to the boolean/sentinel contract
// at its boundary, so the reason is only visible to logs and metrics.
//
// # Runs
//
// RunSummary describes one discovery invocation (counts and timing only) for
// the optional scan history.
//
// # Design Principles
//
// - Immutable value objects
// - No I/O and no external dependencies
package domain
