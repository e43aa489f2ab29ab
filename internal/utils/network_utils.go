package utils

import (
	"net"
	"strings"
)

var vpnNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// RelayHint reports whether this host looks like it sits behind a VPN or
// CGNAT, where direct candidates rarely work and TURN should be forced. The
// second value names the interface that triggered the hint.
func RelayHint() (bool, string) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false, ""
	}

	// Cloudflare WARP, Tailscale and carrier NATs live in 100.64.0.0/10.
	_, cgnatBlock, _ := net.ParseCIDR("100.64.0.0/10")

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range vpnNameHints {
			if strings.Contains(name, hint) {
				return true, iface.Name
			}
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if cgnatBlock.Contains(ip) {
				return true, iface.Name
			}
		}
	}

	return false, ""
}
