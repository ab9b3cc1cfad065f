// Package bootstrap resolves who this replica is before anything else starts.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/rs/zerolog"

	"peerscan/internal/domain"
)

// ErrNoIPv4 means neither name resolution nor the interface walk produced an IPv4 address
var ErrNoIPv4 = errors.New("no usable IPv4 address")

// Resolver gathers the local identity. Zero-valued fields use the system.
type Resolver struct {
	Hostname   func() (string, error)
	LookupHost func(ctx context.Context, host string) ([]string, error)
	Interfaces func() ([]Interface, error)
	Log        zerolog.Logger
}

// ResolveLocalIdentity resolves the identity of this process using the system
func ResolveLocalIdentity(ctx context.Context, serviceName string, log zerolog.Logger) (domain.LocalIdentity, error) {
	return Resolver{Log: log}.Resolve(ctx, serviceName)
}

// Resolve returns hostname, IPv4 address and service name for this replica.
// The address comes from resolving the hostname, falling back to the first
// active private interface address.
func (r Resolver) Resolve(ctx context.Context, serviceName string) (domain.LocalIdentity, error) {
	r.defaults()
	start := time.Now()

	hostname, err := r.Hostname()
	if err != nil {
		return domain.LocalIdentity{}, fmt.Errorf("hostname: %w", err)
	}
	r.Log.Debug().Msgf("Bootstrap: hostname is %s", hostname)

	ip, source, err := r.address(ctx, hostname)
	if err != nil {
		return domain.LocalIdentity{}, err
	}

	r.Log.Info().
		Str("hostname", hostname).
		Str("ip", ip.String()).
		Str("source", source).
		Dur("took", time.Since(start)).
		Msg("Bootstrap: local identity resolved")

	return domain.LocalIdentity{
		Hostname:    hostname,
		IP:          ip,
		ServiceName: serviceName,
	}, nil
}

func (r Resolver) address(ctx context.Context, hostname string) (ip netip.Addr, source string, err error) {
	addrs, lookupErr := r.LookupHost(ctx, hostname)
	if lookupErr == nil {
		if ip, ok := firstIPv4(addrs); ok {
			return ip, "dns", nil
		}
		r.Log.Debug().Strs("addrs", addrs).Msg("Bootstrap: hostname has no usable IPv4 address")
	} else {
		r.Log.Debug().Err(lookupErr).Msg("Bootstrap: hostname lookup failed, walking interfaces")
	}

	ifaces, err := r.Interfaces()
	if err != nil {
		return ip, "", fmt.Errorf("list interfaces: %w", err)
	}
	if ip, ok := interfaceIPv4(ifaces); ok {
		return ip, "interface", nil
	}
	return ip, "", fmt.Errorf("%w for %s", ErrNoIPv4, hostname)
}

func (r *Resolver) defaults() {
	if r.Hostname == nil {
		r.Hostname = os.Hostname
	}
	if r.LookupHost == nil {
		r.LookupHost = lookupHost
	}
	if r.Interfaces == nil {
		r.Interfaces = SystemInterfaces
	}
}
