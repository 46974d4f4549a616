// Package node describes the Lightning nodes the relay connects to and the
// registries that resolve a node index to its descriptor.
package node

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/lnrelay/errors"
)

// Implementation tags the Lightning daemon behind a node
type Implementation string

// Supported node implementations
const (
	LND     Implementation = "LND"
	CLN     Implementation = "CLN"
	Eclair  Implementation = "ECL"
	Unknown Implementation = ""
)

// ParseImplementation normalizes an implementation tag
func ParseImplementation(s string) (Implementation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LND":
		return LND, nil
	case "CLN", "CLT", "CLIGHTNING":
		return CLN, nil
	case "ECL", "ECLAIR":
		return Eclair, nil
	default:
		return Unknown, fmt.Errorf("unknown node implementation %q", s)
	}
}

// UnmarshalJSON accepts every spelling ParseImplementation knows and stores
// the canonical tag. Unknown names are kept as given so Validate reports them.
func (i *Implementation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if impl, err := ParseImplementation(s); err == nil {
		*i = impl
		return nil
	}
	*i = Implementation(s)
	return nil
}

// Descriptor identifies a node and carries what is needed to open its event socket.
// The relay treats a descriptor as immutable; registries publish updates as new values.
type Descriptor struct {
	Index          int            `json:"index"`
	Name           string         `json:"name,omitempty"`
	Implementation Implementation `json:"implementation"`
	ServerURL      string         `json:"server_url,omitempty"`
	APIPassword    string         `json:"api_password,omitempty"`
}

// HasEndpoint reports whether the descriptor names a server URL
func (d *Descriptor) HasEndpoint() bool {
	return d != nil && strings.TrimSpace(d.ServerURL) != ""
}

// LogAttrs returns the slog attributes identifying this node
func (d *Descriptor) LogAttrs() []any {
	if d == nil {
		return []any{"node_index", -1}
	}
	return []any{"node_index", d.Index, "node_name", d.Name}
}

// String renders the descriptor without credentials
func (d *Descriptor) String() string {
	if d == nil {
		return "node(<nil>)"
	}
	return fmt.Sprintf("node(%d %s %s)", d.Index, d.Name, d.Implementation)
}

// Validate checks the descriptor fields a registry can vouch for
func (d *Descriptor) Validate() error {
	if d.Index < 0 {
		return errors.WrapInvalid(fmt.Errorf("negative index %d", d.Index),
			"node", "Validate", "check index")
	}
	if _, err := ParseImplementation(string(d.Implementation)); err != nil {
		return errors.WrapInvalid(err, "node", "Validate", "check implementation")
	}
	return nil
}

// Clone returns an independent copy
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
