package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peerscan/internal/domain"
)

// RunObserver receives a summary after every discovery call
type RunObserver interface {
	ObserveRun(ctx context.Context, run domain.RunSummary)
}

// Discoverer composes enumeration, probing, identity fetching and filtering.
// It holds no scan state; every call is a full rescan.
type Discoverer struct {
	local     domain.LocalIdentity
	dialer    Dialer
	client    Doer
	newProber func(Config) Prober
	metrics   *Metrics
	observer  RunObserver
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithDialer replaces the TCP dialer used by the default prober
func WithDialer(d Dialer) Option {
	return func(s *Discoverer) {
		s.dialer = d
	}
}

// WithHTTPClient replaces the client used for identity requests
func WithHTTPClient(c Doer) Option {
	return func(s *Discoverer) {
		s.client = c
	}
}

// WithProber replaces the stage-one backend (see NmapProber)
func WithProber(factory func(Config) Prober) Option {
	return func(s *Discoverer) {
		s.newProber = factory
	}
}

// WithMetrics records outcomes on m
func WithMetrics(m *Metrics) Option {
	return func(s *Discoverer) {
		s.metrics = m
	}
}

// WithRunObserver reports run summaries to o
func WithRunObserver(o RunObserver) Option {
	return func(s *Discoverer) {
		s.observer = o
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Discoverer) {
		s.log = log.With().Str("component", "discovery").Logger()
	}
}

// New creates a Discoverer scanning around local's address
func New(local domain.LocalIdentity, opts ...Option) (*Discoverer, error) {
	if !local.IP.Is4() {
		return nil, fmt.Errorf("%w: local address %q is not IPv4", ErrInvalidConfig, local.IP)
	}

	d := &Discoverer{
		local: local,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = newIdentityClient()
	}
	if d.newProber == nil {
		d.newProber = func(cfg Config) Prober {
			return NewPortProbe(cfg, d.dialer)
		}
	}
	return d, nil
}

// Local returns the identity this Discoverer scans from
func (d *Discoverer) Local() domain.LocalIdentity {
	return d.local
}

// DiscoverOpenAddresses returns the deduplicated addresses with cfg.Port open
func (d *Discoverer) DiscoverOpenAddresses(ctx context.Context, cfg Config) ([]string, error) {
	ctx, run, done, err := d.begin(ctx, cfg, domain.OperationOpenAddresses)
	if err != nil {
		return nil, err
	}

	open := d.scan(ctx, cfg, run)
	done(len(open))
	return open, nil
}

// DiscoverPeersWithIdentity returns one identity (real or sentinel) per open address
func (d *Discoverer) DiscoverPeersWithIdentity(ctx context.Context, cfg Config) ([]domain.PeerIdentity, error) {
	ctx, run, done, err := d.begin(ctx, cfg, domain.OperationPeers)
	if err != nil {
		return nil, err
	}

	peers := d.identify(ctx, cfg, d.scan(ctx, cfg, run), run)
	done(len(peers))
	return peers, nil
}

// DiscoverFilteredPeers returns identified peers whose hostname starts with servicePrefix
func (d *Discoverer) DiscoverFilteredPeers(ctx context.Context, cfg Config, servicePrefix string) ([]domain.PeerIdentity, error) {
	if servicePrefix == "" {
		return nil, fmt.Errorf("%w: service prefix is required", ErrInvalidConfig)
	}

	ctx, run, done, err := d.begin(ctx, cfg, domain.OperationFiltered)
	if err != nil {
		return nil, err
	}
	run.Prefix = servicePrefix

	peers := d.identify(ctx, cfg, d.scan(ctx, cfg, run), run)
	matched := FilterByService(peers, servicePrefix)
	run.Matched = len(matched)

	d.log.Debug().Msgf("Phase 3 complete: %d of %d peers match prefix %q", len(matched), len(peers), servicePrefix)
	done(len(matched))
	return matched, nil
}

// begin validates cfg, applies the call budget and opens a run summary.
// The returned done func closes the run; it must be called exactly once.
func (d *Discoverer) begin(ctx context.Context, cfg Config, op domain.Operation) (context.Context, *domain.RunSummary, func(returned int), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	parent := ctx
	var cancel context.CancelFunc
	if cfg.Budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Budget)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	run := &domain.RunSummary{
		ID:        uuid.NewString(),
		Operation: op,
		StartedAt: d.now(),
	}

	done := func(returned int) {
		budgetHit := ctx.Err() != nil && parent.Err() == nil
		cancel()
		run.Duration = d.now().Sub(run.StartedAt)

		d.metrics.observeRun(*run, returned)
		if d.observer != nil {
			d.observer.ObserveRun(context.WithoutCancel(parent), *run)
		}

		event := d.log.Info()
		if budgetHit {
			event = d.log.Warn().Dur("budget", cfg.Budget)
		}
		event.
			Str("run", run.ID).
			Str("operation", string(op)).
			Int("candidates", run.Candidates).
			Int("reachable", run.Reachable).
			Int("verified", run.Verified).
			Dur("took", run.Duration).
			Msgf("Discovery complete: returning %d entries", returned)
	}

	return ctx, run, done, nil
}

// scan runs stage one and returns the sorted reachable addresses
func (d *Discoverer) scan(ctx context.Context, cfg Config, run *domain.RunSummary) []string {
	candidates := Enumerate(d.local.IP, cfg)
	run.Candidates = len(candidates)

	d.log.Debug().Msgf("Phase 1: probing %d addresses on port %d (concurrency=%d, timeout=%s)",
		len(candidates), cfg.Port, cfg.ProbeConcurrency, cfg.ProbeTimeout)

	results := d.newProber(cfg).ProbeAll(ctx, candidates, cfg.Port)
	d.metrics.observeProbes(results)

	open := ReachableAddresses(results, cfg.Order)
	run.Reachable = len(open)

	d.log.Debug().Msgf("Phase 1 complete: found %d reachable addresses", len(open))
	return open
}

// identify runs stage two over open, keeping its order
func (d *Discoverer) identify(ctx context.Context, cfg Config, open []string, run *domain.RunSummary) []domain.PeerIdentity {
	d.log.Debug().Msgf("Phase 2: fetching identity from %d addresses (concurrency=%d, timeout=%s)",
		len(open), cfg.IdentityConcurrency, cfg.IdentityTimeout)

	results := NewIdentityFetcher(cfg, d.client).FetchAll(ctx, open, cfg.Port)
	d.metrics.observeFetches(results)

	peers := make([]domain.PeerIdentity, len(results))
	for i, r := range results {
		peers[i] = r.Peer
		if r.Verified() {
			run.Verified++
			continue
		}
		d.log.Debug().Err(r.Err).Str("ip", r.Peer.IP).Str("reason", string(r.Reason)).Msg("Identity unavailable")
	}

	d.log.Debug().Msgf("Phase 2 complete: verified %d of %d peers", run.Verified, len(peers))
	return peers
}
