package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"peerscan/internal/domain"
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober runs stage one over a candidate list.
// Implementations return exactly one result per input address and never fail
// the batch because of a single address.
type Prober interface {
	ProbeAll(ctx context.Context, addresses []string, port int) []domain.ProbeResult
}

// PortProbe tests TCP reachability with a bounded worker pool
type PortProbe struct {
	Dialer      Dialer
	Timeout     time.Duration
	Concurrency int
}

// NewPortProbe creates a TCP prober sized from cfg
func NewPortProbe(cfg Config, dialer Dialer) *PortProbe {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &PortProbe{
		Dialer:      dialer,
		Timeout:     cfg.ProbeTimeout,
		Concurrency: cfg.ProbeConcurrency,
	}
}

// ProbeAll attempts one connection per address and blocks until all are done.
// Results arrive in completion order.
func (p *PortProbe) ProbeAll(ctx context.Context, addresses []string, port int) []domain.ProbeResult {
	results := make([]domain.ProbeResult, 0, len(addresses))
	if len(addresses) == 0 {
		return results
	}

	workers := p.Concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(addresses) {
		workers = len(addresses)
	}

	jobs := make(chan string, len(addresses))
	out := make(chan domain.ProbeResult, workers)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range jobs {
				out <- p.probe(ctx, ip, port)
			}
		}()
	}

	// Queue all probe jobs
	for _, ip := range addresses {
		jobs <- ip
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	for r := range out {
		results = append(results, r)
	}
	return results
}

// probe attempts a single TCP connect and closes it straight away
func (p *PortProbe) probe(ctx context.Context, ip string, port int) domain.ProbeResult {
	if ctx.Err() != nil {
		return domain.ProbeResult{Address: ip, Reason: domain.ReasonCanceled}
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.Dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	latency := time.Since(start)
	if err != nil {
		return domain.ProbeResult{Address: ip, Reason: dialFailure(ctx, err), Latency: latency}
	}
	conn.Close()

	return domain.ProbeResult{Address: ip, Reason: domain.ReasonOK, Latency: latency}
}

// dialFailure maps a connect error to a Reason. parent is the call context,
// so an expired budget is reported as canceled rather than a per-probe timeout.
func dialFailure(parent context.Context, err error) domain.Reason {
	if parent.Err() != nil {
		return domain.ReasonCanceled
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.ReasonRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return domain.ReasonUnreachable
	default:
		return domain.ReasonError
	}
}

// ReachableAddresses collapses probe results into a deduplicated, sorted address list
func ReachableAddresses(results []domain.ProbeResult, order AddressOrder) []string {
	seen := make(map[string]bool)
	open := make([]string, 0)
	for _, r := range results {
		if !r.Reachable() || seen[r.Address] {
			continue
		}
		seen[r.Address] = true
		open = append(open, r.Address)
	}
	SortAddresses(open, order)
	return open
}
