package domain

import "time"

// Operation names a discovery entry point
type Operation string

const (
	OperationOpenAddresses Operation = "open_addresses"
	OperationPeers         Operation = "peers_with_identity"
	OperationFiltered      Operation = "filtered_peers"
)

// RunSummary records the shape of one discovery invocation.
// It never carries per-peer data.
type RunSummary struct {
	ID         string        `json:"id"`
	Operation  Operation     `json:"operation"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Reachable  int           `json:"reachable"`
	Verified   int           `json:"verified"`
	Matched    int           `json:"matched"`
	Prefix     string        `json:"prefix,omitempty"`
}
