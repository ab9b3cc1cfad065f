package domain

import (
	"net/netip"
	"time"
)

const (
	// SentinelHostname marks a peer that answered on the port but could not be identified
	SentinelHostname = "unreachable"
	// SentinelService is the service name paired with SentinelHostname
	SentinelService = "unknown"

	// IdentityPath is the HTTP path every replica serves its identity on
	IdentityPath = "/identity"

	// IdentityTimestampLayout formats IdentityDocument.Timestamp
	IdentityTimestampLayout = "2006-01-02 15:04:05"
)

// LocalIdentity describes the replica running this process
type LocalIdentity struct {
	Hostname    string
	IP          netip.Addr
	ServiceName string
}

// Document renders the identity served at IdentityPath
func (l LocalIdentity) Document(now time.Time) IdentityDocument {
	return IdentityDocument{
		Hostname:  l.Hostname,
		IP:        l.IP.String(),
		Service:   l.ServiceName,
		Timestamp: now.Format(IdentityTimestampLayout),
	}
}

// IdentityDocument is the wire format of the identity endpoint
type IdentityDocument struct {
	Hostname  string `json:"hostname"`
	IP        string `json:"ip"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// PeerIdentity is a replica found by a scan
type PeerIdentity struct {
	IP          string `json:"ip"`
	Hostname    string `json:"hostname"`
	ServiceName string `json:"service"`
}

// UnverifiedPeer returns the sentinel identity for a reachable but unidentified address
func UnverifiedPeer(ip string) PeerIdentity {
	return PeerIdentity{
		IP:          ip,
		Hostname:    SentinelHostname,
		ServiceName: SentinelService,
	}
}

// IsSentinel reports whether p is the placeholder for an unverified peer
func (p PeerIdentity) IsSentinel() bool {
	return p.Hostname == SentinelHostname && p.ServiceName == SentinelService
}
