package discovery

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"peerscan/internal/domain"
)

// fakeIdentity describes how a simulated replica answers GET /identity
type fakeIdentity struct {
	status int
	body   string
	hang   bool
}

// fakeNetwork simulates a pod network for both stages
type fakeNetwork struct {
	mu         sync.Mutex
	open       map[string]bool
	identities map[string]fakeIdentity
	dials      atomic.Int64
	requests   atomic.Int64
	// blockDial makes every dial wait for its context
	blockDial bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		open:       make(map[string]bool),
		identities: make(map[string]fakeIdentity),
	}
}

// replica opens ip and serves the given identity JSON
func (n *fakeNetwork) replica(ip, body string) *fakeNetwork {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open[ip] = true
	n.identities[ip] = fakeIdentity{status: http.StatusOK, body: body}
	return n
}

// silent opens ip but never answers the identity request
func (n *fakeNetwork) silent(ip string) *fakeNetwork {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open[ip] = true
	n.identities[ip] = fakeIdentity{hang: true}
	return n
}

func (n *fakeNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n.dials.Add(1)
	if n.blockDial {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	open := n.open[host]
	n.mu.Unlock()
	if !open {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}

	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func (n *fakeNetwork) Do(req *http.Request) (*http.Response, error) {
	n.requests.Add(1)

	n.mu.Lock()
	id, ok := n.identities[req.URL.Hostname()]
	n.mu.Unlock()
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}

	if id.hang {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}

	return &http.Response{
		StatusCode: id.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(id.body)),
		Request:    req,
	}, nil
}

// recordingObserver keeps every run summary it receives
type recordingObserver struct {
	mu   sync.Mutex
	runs []domain.RunSummary
}

func (o *recordingObserver) ObserveRun(_ context.Context, run domain.RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, run)
}

// scanConfig returns a small config covering a single third octet
func scanConfig(third int) Config {
	cfg := DefaultConfig()
	cfg.ThirdOctet = OctetRange{Lo: third, Hi: third + 1}
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.IdentityTimeout = 50 * time.Millisecond
	return cfg
}

func localIdentity(t *testing.T, ip string) domain.LocalIdentity {
	t.Helper()
	return domain.LocalIdentity{
		Hostname:    "main-service-self",
		IP:          netip.MustParseAddr(ip),
		ServiceName: "main-service",
	}
}
