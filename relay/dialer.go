package relay

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/lnrelay/errors"
)

// Conn is an open node socket
type Conn interface {
	// ReadMessage blocks for the next frame. It returns a
	// *websocket.CloseError when the peer closes the connection.
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens node sockets
type Dialer interface {
	Dial(ctx context.Context, link string) (Conn, error)
}

// WebsocketDialer dials node sockets with gorilla/websocket
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer with the given TLS config and handshake timeout
func NewWebsocketDialer(tlsConfig *tls.Config, handshakeTimeout time.Duration) *WebsocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 45 * time.Second
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			TLSClientConfig:  tlsConfig,
		},
	}
}

// Dial opens link. Credentials in the link's userinfo are sent as a Basic
// Authorization header instead.
func (d *WebsocketDialer) Dial(ctx context.Context, link string) (Conn, error) {
	target, headers, err := splitCredentials(link)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, target, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, errors.WrapTransient(err, "WebsocketDialer", "Dial", "dial "+target)
	}
	return conn, nil
}

// splitCredentials removes userinfo from link and returns it as headers
func splitCredentials(link string) (string, http.Header, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidEndpoint, err),
			"WebsocketDialer", "Dial", "parse link")
	}

	headers := http.Header{}
	if u.User != nil {
		password, _ := u.User.Password()
		auth := u.User.Username() + ":" + password
		headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
		u.User = nil
	}
	return u.String(), headers, nil
}
