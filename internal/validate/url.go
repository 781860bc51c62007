package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrPrivateHost      = errors.New("URL points to a private host")
)

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string // empty allows any scheme
	BlockPrivate   bool     // reject localhost and literal private addresses
	MaxLength      int      // in bytes, 0 = no limit
}

// ConferenceURLConstraints accepts public http and https links.
var ConferenceURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	BlockPrivate:   true,
	MaxLength:      2048,
}

// URL validates rawURL against constraints and returns it trimmed. Host
// names are not resolved.
func URL(rawURL string, constraints URLConstraints) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrEmpty
	}
	if constraints.MaxLength > 0 && len(rawURL) > constraints.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrStringTooLong, constraints.MaxLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if len(constraints.AllowedSchemes) > 0 && !slices.Contains(constraints.AllowedSchemes, u.Scheme) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, u.Scheme, constraints.AllowedSchemes)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}
	if constraints.BlockPrivate && isPrivateHost(host) {
		return "", fmt.Errorf("%w: %s", ErrPrivateHost, host)
	}
	return rawURL, nil
}

// ConferenceURL validates the link of an online event.
func ConferenceURL(rawURL string) (string, error) {
	return URL(rawURL, ConferenceURLConstraints)
}

func isPrivateHost(host string) bool {
	switch lower := strings.ToLower(strings.TrimSuffix(host, ".")); {
	case lower == "localhost", strings.HasSuffix(lower, ".localhost"), lower == "localhost.localdomain":
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
