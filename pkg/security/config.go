// Package security provides security configuration types for outbound node connections
package security

// Config holds relay-wide security configuration
type Config struct {
	TLS TLSConfig `json:"tls,omitempty"`
}

// TLSConfig holds TLS configuration for the relay's WebSocket clients
type TLSConfig struct {
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ClientMTLSConfig holds mTLS configuration for clients (client certificate provision)
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// ClientTLSConfig holds TLS configuration for wss:// node endpoints.
// The system CA bundle is always used; CAFiles are ADDITIONAL trusted CAs,
// typically the self-signed certificates Lightning daemons generate.
type ClientTLSConfig struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// IsZero reports whether the client config leaves Go's TLS defaults untouched
func (c ClientTLSConfig) IsZero() bool {
	return len(c.CAFiles) == 0 &&
		!c.InsecureSkipVerify &&
		c.MinVersion == "" &&
		!c.MTLS.Enabled
}
