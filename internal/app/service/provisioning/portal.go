package provisioning

import (
	"fmt"
	"net/url"
	"strings"
)

// parsePortalURL extracts the host and port the NAT redirect targets from a
// configured portal URL. Accepts bare host[:port] as well as full URLs; the
// scheme decides the default port, with 3000 for schemeless values since
// that is where the portal app listens by default.
func parsePortalURL(raw string) (host, port string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("portal url is empty")
	}

	hasScheme := strings.Contains(raw, "://")
	if !hasScheme {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", fmt.Errorf("portal url %q is not parseable", raw)
	}

	port = u.Port()
	if port == "" {
		switch {
		case !hasScheme:
			port = "3000"
		case u.Scheme == "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return u.Hostname(), port, nil
}
