package discovery

import (
	"net/netip"
	"strconv"
)

// Enumerate lists candidate addresses under local's /16: {a}.{b}.{t}.{f} for
// every t in cfg.ThirdOctet and f in cfg.FourthOctet, third octet ascending
// then fourth. The local address is not skipped.
func Enumerate(local netip.Addr, cfg Config) []string {
	octets := local.As4()
	base := strconv.Itoa(int(octets[0])) + "." + strconv.Itoa(int(octets[1])) + "."

	ips := make([]string, 0, cfg.Candidates())
	for t := cfg.ThirdOctet.Lo; t < cfg.ThirdOctet.Hi; t++ {
		prefix := base + strconv.Itoa(t) + "."
		for f := cfg.FourthOctet.Lo; f < cfg.FourthOctet.Hi; f++ {
			ips = append(ips, prefix+strconv.Itoa(f))
		}
	}
	return ips
}
