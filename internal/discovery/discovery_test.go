package discovery

import (
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerscan/internal/domain"
)

func newTestDiscoverer(t *testing.T, local string, pods *fakeNetwork, opts ...Option) *Discoverer {
	t.Helper()
	opts = append([]Option{WithDialer(pods), WithHTTPClient(pods)}, opts...)
	d, err := New(localIdentity(t, local), opts...)
	require.NoError(t, err)
	return d
}

func TestNew_RejectsNonIPv4(t *testing.T) {
	_, err := New(domain.LocalIdentity{Hostname: "h", IP: netip.MustParseAddr("fd00::1")})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(domain.LocalIdentity{Hostname: "h"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

// Self and one peer answer with main-service identities
func TestDiscoverer_SelfAndPeer(t *testing.T) {
	pods := newFakeNetwork().
		replica("10.244.3.17", `{"hostname":"main-service-self","ip":"10.244.3.17","service":"main-service","timestamp":"x"}`).
		replica("10.244.3.18", `{"hostname":"main-service-abc","ip":"10.244.3.18","service":"main-service","timestamp":"x"}`)
	d := newTestDiscoverer(t, "10.244.3.17", pods)
	cfg := scanConfig(3)

	peers, err := d.DiscoverFilteredPeers(context.Background(), cfg, "main-service")
	require.NoError(t, err)

	require.Len(t, peers, 2)
	assert.Equal(t, "10.244.3.17", peers[0].IP)
	assert.Equal(t, "10.244.3.18", peers[1].IP)
	for _, p := range peers {
		assert.Equal(t, "main-service", p.ServiceName)
		assert.True(t, strings.HasPrefix(p.Hostname, "main-service"))
	}
}

// An open port whose identity endpoint times out becomes a sentinel
func TestDiscoverer_SilentPeer(t *testing.T) {
	pods := newFakeNetwork().silent("10.244.5.9")
	d := newTestDiscoverer(t, "10.244.3.17", pods)
	cfg := scanConfig(5)

	open, err := d.DiscoverOpenAddresses(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.244.5.9"}, open)

	peers, err := d.DiscoverPeersWithIdentity(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, domain.UnverifiedPeer("10.244.5.9"), peers[0])
	assert.True(t, peers[0].IsSentinel())

	filtered, err := d.DiscoverFilteredPeers(context.Background(), cfg, "main-service")
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

// Nothing listening anywhere: empty results and no error
func TestDiscoverer_EmptyNetwork(t *testing.T) {
	pods := newFakeNetwork()
	d := newTestDiscoverer(t, "10.244.3.17", pods)
	cfg := scanConfig(0)

	open, err := d.DiscoverOpenAddresses(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, open)
	assert.Empty(t, open)

	peers, err := d.DiscoverPeersWithIdentity(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, peers)
	assert.Empty(t, peers)

	filtered, err := d.DiscoverFilteredPeers(context.Background(), cfg, "main-service")
	require.NoError(t, err)
	assert.NotNil(t, filtered)
	assert.Empty(t, filtered)

	assert.Zero(t, pods.requests.Load(), "no identity requests without open ports")
}

// Only the main-service replica survives the filter
func TestDiscoverer_MixedServices(t *testing.T) {
	pods := newFakeNetwork().
		replica("10.244.7.10", `{"hostname":"worker-1","service":"worker"}`).
		replica("10.244.7.11", `{"hostname":"main-service-2","service":"main-service"}`)
	d := newTestDiscoverer(t, "10.244.3.17", pods)

	peers, err := d.DiscoverFilteredPeers(context.Background(), scanConfig(7), "main-service")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "main-service-2", peers[0].Hostname)
}

func TestDiscoverer_OpenAddressesShape(t *testing.T) {
	pods := newFakeNetwork().
		replica("10.244.1.5", `{"hostname":"a","service":"s"}`).
		replica("10.244.2.200", `{"hostname":"b","service":"s"}`).
		replica("10.244.10.1", `{"hostname":"c","service":"s"}`).
		silent("10.244.2.30").
		silent("10.244.60.1") // outside the third octet range
	pods.open["10.245.1.1"] = true // outside the /16

	d := newTestDiscoverer(t, "10.244.3.17", pods)
	cfg := DefaultConfig()
	cfg.ThirdOctet = OctetRange{Lo: 0, Hi: 20}
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.IdentityTimeout = 50 * time.Millisecond

	open, err := d.DiscoverOpenAddresses(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.244.1.5", "10.244.10.1", "10.244.2.200", "10.244.2.30"}, open)

	seen := make(map[string]bool)
	for _, ip := range open {
		assert.False(t, seen[ip], "duplicate %s", ip)
		seen[ip] = true

		addr, err := netip.ParseAddr(ip)
		require.NoError(t, err)
		octets := addr.As4()
		assert.Equal(t, [2]byte{10, 244}, [2]byte{octets[0], octets[1]})
		assert.GreaterOrEqual(t, int(octets[2]), cfg.ThirdOctet.Lo)
		assert.Less(t, int(octets[2]), cfg.ThirdOctet.Hi)
		assert.GreaterOrEqual(t, int(octets[3]), cfg.FourthOctet.Lo)
		assert.Less(t, int(octets[3]), cfg.FourthOctet.Hi)
	}

	peers, err := d.DiscoverPeersWithIdentity(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, peers, len(open), "one identity per open address")
	for i, p := range peers {
		assert.Equal(t, open[i], p.IP)
	}
	assert.True(t, peers[3].IsSentinel())

	cfg.Order = OrderNumeric
	open, err = d.DiscoverOpenAddresses(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.244.1.5", "10.244.2.30", "10.244.2.200", "10.244.10.1"}, open)
}

func TestDiscoverer_InvalidConfigBeforeIO(t *testing.T) {
	pods := newFakeNetwork().replica("10.244.0.1", `{"hostname":"a","service":"s"}`)
	d := newTestDiscoverer(t, "10.244.3.17", pods)

	bad := scanConfig(0)
	bad.ProbeConcurrency = 0

	_, err := d.DiscoverOpenAddresses(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = d.DiscoverPeersWithIdentity(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = d.DiscoverFilteredPeers(context.Background(), bad, "a")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = d.DiscoverFilteredPeers(context.Background(), scanConfig(0), "")
	require.ErrorIs(t, err, ErrInvalidConfig)

	assert.Zero(t, pods.dials.Load())
	assert.Zero(t, pods.requests.Load())
}

func TestDiscoverer_BudgetExpiry(t *testing.T) {
	pods := newFakeNetwork()
	pods.blockDial = true
	d := newTestDiscoverer(t, "10.244.3.17", pods)

	cfg := scanConfig(0)
	cfg.ProbeTimeout = 10 * time.Second
	cfg.ProbeConcurrency = 10
	cfg.Budget = 50 * time.Millisecond

	start := time.Now()
	open, err := d.DiscoverOpenAddresses(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDiscoverer_RunObserverAndMetrics(t *testing.T) {
	pods := newFakeNetwork().
		replica("10.244.3.18", `{"hostname":"main-service-abc","service":"main-service"}`).
		silent("10.244.3.19")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	observer := &recordingObserver{}
	d := newTestDiscoverer(t, "10.244.3.17", pods, WithMetrics(metrics), WithRunObserver(observer))

	cfg := scanConfig(3)
	_, err := d.DiscoverFilteredPeers(context.Background(), cfg, "main-service")
	require.NoError(t, err)

	require.Len(t, observer.runs, 1)
	run := observer.runs[0]
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.OperationFiltered, run.Operation)
	assert.Equal(t, cfg.Candidates(), run.Candidates)
	assert.Equal(t, 2, run.Reachable)
	assert.Equal(t, 1, run.Verified)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, "main-service", run.Prefix)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.probes.WithLabelValues(string(domain.ReasonOK))))
	assert.Equal(t, float64(cfg.Candidates()-2), testutil.ToFloat64(metrics.probes.WithLabelValues(string(domain.ReasonRefused))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetches.WithLabelValues(string(domain.ReasonOK))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetches.WithLabelValues(string(domain.ReasonTimeout))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.peers.WithLabelValues(string(domain.OperationFiltered))))
}

func TestDiscoverer_CustomProber(t *testing.T) {
	pods := newFakeNetwork().replica("10.244.3.40", `{"hostname":"main-service-x","service":"main-service"}`)

	var seen []string
	prober := proberFunc(func(ctx context.Context, addrs []string, port int) []domain.ProbeResult {
		seen = addrs
		return []domain.ProbeResult{{Address: "10.244.3.40", Reason: domain.ReasonOK}}
	})
	d := newTestDiscoverer(t, "10.244.3.17", pods, WithProber(func(Config) Prober { return prober }))

	peers, err := d.DiscoverPeersWithIdentity(context.Background(), scanConfig(3))
	require.NoError(t, err)
	assert.Len(t, seen, 254)
	require.Len(t, peers, 1)
	assert.Equal(t, "main-service-x", peers[0].Hostname)
	assert.Zero(t, pods.dials.Load(), "default dialer bypassed")
}

type proberFunc func(ctx context.Context, addrs []string, port int) []domain.ProbeResult

func (f proberFunc) ProbeAll(ctx context.Context, addrs []string, port int) []domain.ProbeResult {
	return f(ctx, addrs, port)
}
