// Package ssrf guards outbound federation dispatch and webhook delivery
// URLs against requests into loopback, link-local, private or
// cloud-metadata address space (spec.md §4.9, §12).
package ssrf

import (
	"fmt"
	"net"
	"net/url"
)

var deniedCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16", // link-local, covers the 169.254.169.254 cloud metadata endpoint
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("ssrf: bad CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// CheckURL rejects rawURL if it is not an http(s) URL resolving to a
// public IP address. Callers must re-resolve and check the connection's
// actual remote IP too if the HTTP client doesn't pin DNS (TOCTOU), but
// this catches the overwhelming majority of misconfigured or malicious
// peer/webhook URLs before any network call is made.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("ssrf: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ssrf: scheme %q not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("ssrf: empty host")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("ssrf: resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("ssrf: %s resolved to no addresses", host)
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("ssrf: address %s is not publicly routable", ip)
	}
	for _, n := range deniedCIDRs {
		if n.Contains(ip) {
			return fmt.Errorf("ssrf: address %s is in denied range %s", ip, n)
		}
	}
	return nil
}
