package bootstrap

import (
	"context"
	"net"
	"net/netip"
	"strings"
)

// Interface is the part of net.Interface the address walk needs
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []netip.Prefix
}

// virtualPrefixes name host-side container interfaces that never carry the pod address
var virtualPrefixes = []string{"veth", "docker", "br-", "cni", "flannel"}

// SystemInterfaces lists the host's interfaces with their addresses
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		entry := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		for _, addr := range addrs {
			if prefix, err := netip.ParsePrefix(addr.String()); err == nil {
				entry.Addrs = append(entry.Addrs, prefix)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// interfaceIPv4 picks an IPv4 address from active, non-virtual interfaces.
// RFC1918 addresses win over other global addresses.
func interfaceIPv4(ifaces []Interface) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback || isVirtual(iface.Name) {
			continue
		}
		for _, prefix := range iface.Addrs {
			addr := prefix.Addr().Unmap()
			if !addr.Is4() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
				continue
			}
			if addr.IsPrivate() {
				return addr, true
			}
			if !fallback.IsValid() {
				fallback = addr
			}
		}
	}
	return fallback, fallback.IsValid()
}

func isVirtual(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// firstIPv4 returns the first usable IPv4 address among resolved names
func firstIPv4(addrs []string) (netip.Addr, bool) {
	for _, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() && !addr.IsLoopback() && !addr.IsUnspecified() {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// lookupHost resolves with the default resolver
func lookupHost(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}
