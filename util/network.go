package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ValidPort reports whether port is within 1-65535.
func ValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// SplitHostPort is the inverse of [FormatAddr].  A missing port yields
// defPort; a malformed one is an error.
func SplitHostPort(addr string, defPort int) (string, int, error) {
	switch {
	case strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]"):
		return strings.Trim(addr, "[]"), defPort, nil
	case !strings.Contains(addr, ":"):
		return addr, defPort, nil
	case strings.Count(addr, ":") > 1 && !strings.HasPrefix(addr, "["):
		return addr, defPort, nil // bare IPv6 literal
	}
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || !ValidPort(port) {
		return "", 0, fmt.Errorf("invalid port %q in %q", p, addr)
	}
	return host, port, nil
}

// IsIPLiteral reports whether host is a numeric IPv4 or IPv6 address.
func IsIPLiteral(host string) bool {
	return net.ParseIP(strings.Trim(host, "[]")) != nil
}
