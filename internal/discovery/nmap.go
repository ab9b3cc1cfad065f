package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"peerscan/internal/domain"
)

// nmapBatchSize caps how many targets go on one nmap command line
const nmapBatchSize = 1024

// NmapProbe runs stage one as an nmap TCP connect scan (-sT -Pn).
// It honors the same one-result-per-address contract as PortProbe.
type NmapProbe struct {
	Timeout     time.Duration
	Concurrency int
	log         zerolog.Logger
	// scan runs one batch; nil means scanBatch
	scan func(ctx context.Context, targets []string, port int) (map[string]string, error)
}

// NmapProber returns a prober factory for Discoverer's WithProber option
func NmapProber(log zerolog.Logger) func(Config) Prober {
	return func(cfg Config) Prober {
		return &NmapProbe{
			Timeout:     cfg.ProbeTimeout,
			Concurrency: cfg.ProbeConcurrency,
			log:         log.With().Str("component", "nmap").Logger(),
		}
	}
}

// NmapAvailable checks that the nmap binary can run a list scan
func NmapAvailable(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}

	_, _, err = scanner.Run()
	return err == nil
}

// ProbeAll scans addresses in batches and maps each port state to a Reason
func (n *NmapProbe) ProbeAll(ctx context.Context, addresses []string, port int) []domain.ProbeResult {
	results := make([]domain.ProbeResult, 0, len(addresses))
	scan := n.scan
	if scan == nil {
		scan = n.scanBatch
	}

	for start := 0; start < len(addresses); start += nmapBatchSize {
		end := start + nmapBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		batch := addresses[start:end]

		if ctx.Err() != nil {
			results = appendUniform(results, batch, domain.ReasonCanceled)
			continue
		}

		states, err := scan(ctx, batch, port)
		if err != nil {
			reason := domain.ReasonError
			if ctx.Err() != nil {
				reason = domain.ReasonCanceled
			}
			n.log.Warn().Err(err).Msgf("Nmap: batch of %d targets failed", len(batch))
			results = appendUniform(results, batch, reason)
			continue
		}

		for _, ip := range batch {
			results = append(results, domain.ProbeResult{Address: ip, Reason: stateReason(states[ip])})
		}
	}

	return results
}

// scanBatch returns the port state per IPv4 address nmap reported on
func (n *NmapProbe) scanBatch(ctx context.Context, targets []string, port int) (map[string]string, error) {
	opts := []nmap.Option{
		nmap.WithTargets(targets...),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithConnectScan(),
		nmap.WithSkipHostDiscovery(),
	}
	if n.Concurrency > 0 {
		opts = append(opts, nmap.WithMaxParallelism(n.Concurrency))
	}
	if n.Timeout > 0 {
		opts = append(opts, nmap.WithMaxRTTTimeout(n.Timeout))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.log.Debug().Strs("warnings", *warnings).Msg("Nmap: scan warnings")
	}

	states := make(map[string]string, len(targets))
	for _, host := range result.Hosts {
		var ip string
		for _, addr := range host.Addresses {
			if addr.AddrType == "ipv4" {
				ip = addr.Addr
				break
			}
		}
		if ip == "" {
			continue
		}
		for _, p := range host.Ports {
			if int(p.ID) == port {
				states[ip] = p.State.State
			}
		}
	}
	return states, nil
}

// stateReason maps an nmap port state to a Reason
func stateReason(state string) domain.Reason {
	switch state {
	case "open":
		return domain.ReasonOK
	case "closed":
		return domain.ReasonRefused
	case "filtered", "open|filtered":
		return domain.ReasonTimeout
	default:
		return domain.ReasonUnreachable
	}
}

func appendUniform(results []domain.ProbeResult, addrs []string, reason domain.Reason) []domain.ProbeResult {
	for _, ip := range addrs {
		results = append(results, domain.ProbeResult{Address: ip, Reason: reason})
	}
	return results
}
