package domain

import "time"

// Reason explains the outcome of a single probe or identity fetch
type Reason string

const (
	ReasonOK Reason = "ok"

	// Stage one (TCP connect)
	ReasonRefused     Reason = "refused"
	ReasonTimeout     Reason = "timeout"
	ReasonUnreachable Reason = "unreachable"

	// Stage two (identity fetch)
	ReasonConnect       Reason = "connect"
	ReasonStatus        Reason = "status"
	ReasonMalformed     Reason = "malformed"
	ReasonMissingFields Reason = "missing_fields"

	// Either stage
	ReasonCanceled Reason = "canceled"
	ReasonError    Reason = "error"
)

// ProbeResult is the outcome of one TCP reachability probe
type ProbeResult struct {
	Address string
	Reason  Reason
	Latency time.Duration
}

// Reachable reports whether the probe connected
func (r ProbeResult) Reachable() bool {
	return r.Reason == ReasonOK
}

// FetchResult is the outcome of one identity request.
// Peer is always populated: the verified identity on success, the sentinel otherwise.
type FetchResult struct {
	Peer    PeerIdentity
	Reason  Reason
	Latency time.Duration
	Err     error
}

// Verified reports whether the peer identity was confirmed
func (r FetchResult) Verified() bool {
	return r.Reason == ReasonOK
}
