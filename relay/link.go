package relay

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/c360/lnrelay/errors"
)

// BuildLink derives a node's WebSocket URL from its HTTP(S) endpoint.
// The scheme becomes ws or wss, the password is placed in the authority as
// ":<password>@" and "/ws" is appended to the path. Query and fragment are dropped.
func BuildLink(serverURL, password string) (string, error) {
	raw := strings.TrimSpace(serverURL)
	if raw == "" {
		return "", linkError(fmt.Errorf("empty server URL"))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", linkError(err)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	default:
		return "", linkError(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return "", linkError(fmt.Errorf("missing host in %q", redact(raw)))
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/") + "/ws"

	// Assembled by hand so the empty username keeps the ":<password>@" form
	return scheme + "://" + url.UserPassword("", password).String() + "@" + u.Host + path, nil
}

func linkError(err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidEndpoint, err),
		"relay", "BuildLink", "build websocket link")
}

// redact strips any userinfo from a URL for logging
func redact(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.User == nil {
		return link
	}
	u.User = nil
	return u.String()
}
