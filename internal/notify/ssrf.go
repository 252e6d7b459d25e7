package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// blockedCIDRs lists special-use ranges that must never receive webhook
// traffic.
var blockedCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"0.0.0.0/8",       // "This" network (RFC 1122)
		"10.0.0.0/8",      // Private-Use (RFC 1918)
		"100.64.0.0/10",   // Shared Address / CGN (RFC 6598)
		"127.0.0.0/8",     // Loopback
		"169.254.0.0/16",  // Link-Local, cloud metadata
		"172.16.0.0/12",   // Private-Use (RFC 1918)
		"192.0.0.0/24",    // IETF Protocol Assignments
		"192.0.2.0/24",    // TEST-NET-1
		"192.168.0.0/16",  // Private-Use (RFC 1918)
		"198.18.0.0/15",   // Benchmarking
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"224.0.0.0/4",     // Multicast
		"240.0.0.0/4",     // Reserved
		"::1/128",         // IPv6 Loopback
		"fc00::/7",        // IPv6 Unique Local
		"fe80::/10",       // IPv6 Link-Local
		"2001:db8::/32",   // IPv6 Documentation
		"2001::/32",       // Teredo, embeds IPv4
		"2002::/16",       // 6to4, embeds IPv4
		"64:ff9b::/96",    // NAT64, embeds IPv4
		"ff00::/8",        // IPv6 Multicast
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}()

func isBlockedIP(ip net.IP) bool {
	// IPv4-mapped IPv6 must match the IPv4 ranges.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateURL performs pre-DNS validation of a webhook URL: http(s) only,
// no alternative IP encodings, no literal IP in a blocked range. Resolved
// addresses are checked again by safeDialContext.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New("webhook URL must use http or https")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("webhook URL has no host")
	}
	if looksLikeAlternativeIP(host) {
		return errors.New("webhook URL contains alternative IP encoding")
	}
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return fmt.Errorf("webhook host %s is in a blocked IP range", host)
	}
	return nil
}

// looksLikeAlternativeIP detects hex (0x7f000001), dotted hex, octal
// (0177.0.0.1) and packed decimal (2130706433) hosts.
func looksLikeAlternativeIP(host string) bool {
	if len(host) > 2 && (host[:2] == "0x" || host[:2] == "0X") {
		return true
	}
	parts := strings.Split(host, ".")
	if len(parts) == 4 {
		for _, p := range parts {
			if len(p) > 2 && (p[:2] == "0x" || p[:2] == "0X") {
				return true
			}
			if len(p) > 1 && p[0] == '0' && isAllDigits(p) {
				return true
			}
		}
	}
	return isAllDigits(host)
}

func isAllDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// safeDialContext resolves the host and refuses to connect when any
// resolved address is blocked, then dials the validated address directly.
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	for _, ip := range ips {
		if isBlockedIP(ip.IP) {
			return nil, fmt.Errorf("blocked: %s resolves to %s (private/reserved range)", host, ip.IP)
		}
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}
