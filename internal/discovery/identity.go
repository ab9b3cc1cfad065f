package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"peerscan/internal/domain"
)

// maxIdentityBody caps how much of an identity response is read
const maxIdentityBody = 64 << 10

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IdentityFetcher asks reachable addresses who they are
type IdentityFetcher struct {
	Client      Doer
	Timeout     time.Duration
	Concurrency int
}

// identityBody mirrors the fields stage two requires; pointers tell absent from empty
type identityBody struct {
	Hostname *string `json:"hostname"`
	Service  *string `json:"service"`
}

// NewIdentityFetcher creates a fetcher sized from cfg
func NewIdentityFetcher(cfg Config, client Doer) *IdentityFetcher {
	if client == nil {
		client = newIdentityClient()
	}
	return &IdentityFetcher{
		Client:      client,
		Timeout:     cfg.IdentityTimeout,
		Concurrency: cfg.IdentityConcurrency,
	}
}

// newIdentityClient returns a client that does not hold sockets between fetches
func newIdentityClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             nil,
			DisableKeepAlives: true,
		},
	}
}

// FetchAll returns one result per address, in input order.
// A failed fetch yields the sentinel identity, never an error.
func (f *IdentityFetcher) FetchAll(ctx context.Context, addresses []string, port int) []domain.FetchResult {
	results := make([]domain.FetchResult, len(addresses))

	limit := f.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, ip := range addresses {
		g.Go(func() error {
			results[i] = f.fetch(ctx, ip, port)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// fetch performs one GET /identity
func (f *IdentityFetcher) fetch(ctx context.Context, ip string, port int) domain.FetchResult {
	failed := func(reason domain.Reason, err error, latency time.Duration) domain.FetchResult {
		return domain.FetchResult{Peer: domain.UnverifiedPeer(ip), Reason: reason, Err: err, Latency: latency}
	}

	if err := ctx.Err(); err != nil {
		return failed(domain.ReasonCanceled, err, 0)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + domain.IdentityPath
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return failed(domain.ReasonError, err, 0)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return failed(requestFailure(ctx, err, domain.ReasonConnect), err, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(domain.ReasonStatus, fmt.Errorf("unexpected status %d", resp.StatusCode), time.Since(start))
	}

	var body identityBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&body); err != nil {
		return failed(requestFailure(ctx, err, domain.ReasonMalformed), err, time.Since(start))
	}
	latency := time.Since(start)

	// An empty hostname or service counts as missing: it could never match a prefix
	if body.Hostname == nil || *body.Hostname == "" || body.Service == nil || *body.Service == "" {
		return failed(domain.ReasonMissingFields, errors.New("identity lacks hostname or service"), latency)
	}

	return domain.FetchResult{
		Peer: domain.PeerIdentity{
			IP:          ip,
			Hostname:    *body.Hostname,
			ServiceName: *body.Service,
		},
		Reason:  domain.ReasonOK,
		Latency: latency,
	}
}

// requestFailure classifies a transport or body error, falling back to fallback
func requestFailure(parent context.Context, err error, fallback domain.Reason) domain.Reason {
	if parent.Err() != nil {
		return domain.ReasonCanceled
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ReasonTimeout
	default:
		return fallback
	}
}
