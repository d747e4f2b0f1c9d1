package webfetch

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// UnsafeURLError reports a URL rejected by pre-fetch validation.
// The message is recorded verbatim in per-URL failure output.
type UnsafeURLError struct {
	Message string
}

func (e *UnsafeURLError) Error() string { return e.Message }

// IsUnsafeURL reports whether err is an UnsafeURLError.
func IsUnsafeURL(err error) bool {
	var unsafeErr *UnsafeURLError
	return errors.As(err, &unsafeErr)
}

// ValidateURL rejects URLs that could reach internal services.
// Validation runs before any network I/O.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &UnsafeURLError{Message: "Only http/https URLs are allowed."}
	}

	if parsed.Host == "" {
		return &UnsafeURLError{Message: "URL must include a hostname."}
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" {
		return &UnsafeURLError{Message: "Localhost URLs are not allowed."}
	}

	// If the hostname is an IP literal, block private/local ranges
	if ip := net.ParseIP(host); ip != nil && isPrivateOrLocalIP(ip) {
		return &UnsafeURLError{Message: "Private/local IP URLs are not allowed."}
	}

	return nil
}

// isPrivateOrLocalIP reports whether ip falls in a private, loopback,
// link-local, reserved, or multicast range.
func isPrivateOrLocalIP(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}

	// Reserved IPv4 ranges not covered above: "this network" and class E
	if ip4 := ip.To4(); ip4 != nil && (ip4[0] == 0 || ip4[0] >= 240) {
		return true
	}

	return false
}
