package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerscan/internal/config"
	"peerscan/internal/discovery"
	"peerscan/internal/domain"
)

type countingDiscoverer struct {
	calls atomic.Int32
	peers []domain.PeerIdentity
	err   error
}

func (d *countingDiscoverer) DiscoverPeersWithIdentity(ctx context.Context, _ discovery.Config) ([]domain.PeerIdentity, error) {
	d.calls.Add(1)
	return d.peers, d.err
}

// syncBuffer guards a buffer written by the rescan goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunOnce_LogsFoundVersusExpected(t *testing.T) {
	disc := &countingDiscoverer{peers: []domain.PeerIdentity{
		{IP: "10.244.0.5", Hostname: "main-service-a", ServiceName: "main-service"},
		{IP: "10.244.0.6", Hostname: "worker-1", ServiceName: "worker"},
		domain.UnverifiedPeer("10.244.0.7"),
	}}

	var out syncBuffer
	r := NewRescanner(disc, config.NewLive(config.DefaultConfig(), ""), time.Hour, zerolog.New(&out))
	r.RunOnce(context.Background())

	assert.EqualValues(t, 1, disc.calls.Load())
	logged := out.String()
	assert.Contains(t, logged, `"level":"warn"`)
	assert.Contains(t, logged, `"matched":1`)
	assert.Contains(t, logged, `"expected":3`)
	assert.Contains(t, logged, `"reachable":3`)
}

func TestRunOnce_Error(t *testing.T) {
	disc := &countingDiscoverer{err: errors.New("invalid")}

	var out syncBuffer
	r := NewRescanner(disc, config.NewLive(config.DefaultConfig(), ""), time.Hour, zerolog.New(&out))
	r.RunOnce(context.Background())

	assert.Contains(t, out.String(), "Rescan failed")
}

func TestStartStop(t *testing.T) {
	disc := &countingDiscoverer{}
	r := NewRescanner(disc, config.NewLive(config.DefaultConfig(), ""), 10*time.Millisecond, zerolog.Nop())

	r.Start(context.Background())
	r.Start(context.Background()) // second start is a no-op

	require.Eventually(t, func() bool { return disc.calls.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)

	r.Stop()
	after := disc.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, disc.calls.Load(), "no scans after Stop")
}

func TestStart_ContextCancel(t *testing.T) {
	disc := &countingDiscoverer{}
	r := NewRescanner(disc, config.NewLive(config.DefaultConfig(), ""), time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.Eventually(t, func() bool { return disc.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	r.Stop()
}
