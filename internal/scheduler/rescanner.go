// Package scheduler runs discovery on a timer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"peerscan/internal/config"
	"peerscan/internal/discovery"
	"peerscan/internal/domain"
)

// PeerDiscoverer is the discovery operation the rescanner drives
type PeerDiscoverer interface {
	DiscoverPeersWithIdentity(ctx context.Context, cfg discovery.Config) ([]domain.PeerIdentity, error)
}

// ConfigSource returns the config for the next rescan
type ConfigSource interface {
	Get() *config.Config
}

// Rescanner periodically rescans the address space and logs found vs
// expected replicas. Results are not kept between ticks.
type Rescanner struct {
	disc     PeerDiscoverer
	cfg      ConfigSource
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRescanner creates a rescanner ticking every interval
func NewRescanner(disc PeerDiscoverer, cfg ConfigSource, interval time.Duration, log zerolog.Logger) *Rescanner {
	return &Rescanner{
		disc:     disc,
		cfg:      cfg,
		interval: interval,
		log:      log.With().Str("component", "rescanner").Logger(),
	}
}

// Start runs an initial scan and then one per interval until Stop or ctx is done
func (r *Rescanner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.RunOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.log.Info().Msg("Stopping rescan loop")
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight scan to return
func (r *Rescanner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunOnce performs a single rescan and logs the outcome
func (r *Rescanner) RunOnce(ctx context.Context) {
	cfg := r.cfg.Get()

	peers, err := r.disc.DiscoverPeersWithIdentity(ctx, cfg.Discovery)
	if err != nil {
		r.log.Error().Err(err).Msg("Rescan failed")
		return
	}

	matched := discovery.FilterByService(peers, cfg.Service.Name)
	expected := cfg.Service.ReplicaCount

	event := r.log.Info()
	if len(matched) < expected {
		event = r.log.Warn()
	}
	event.
		Int("reachable", len(peers)).
		Int("matched", len(matched)).
		Int("expected", expected).
		Msgf("Rescan complete: %d of %d %s replicas visible", len(matched), expected, cfg.Service.Name)
}
