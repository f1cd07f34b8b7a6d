package fetcher

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateURL performs the static checks done before any request: scheme,
// host, and literal private addresses. Hostnames that resolve to private
// addresses are rejected at dial time by the safe client.
func ValidateURL(rawURL string, denyPrivateIPs bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse error: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme '%s' not allowed (only http/https)", ErrInvalidURL, u.Scheme)
	}

	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: empty hostname", ErrInvalidURL)
	}

	if !denyPrivateIPs {
		return nil
	}
	if strings.EqualFold(hostname, "localhost") {
		return fmt.Errorf("%w: host '%s'", ErrPrivateIP, hostname)
	}
	if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateIP, ip.String())
	}
	return nil
}

// isPrivateIP reports loopback, private (RFC 1918, fc00::/7), link-local and
// unspecified addresses.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
