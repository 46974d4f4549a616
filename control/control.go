// Package control carries CONNECT and DISCONNECT requests for nodes into the relay.
//
// Commands arrive on a NATS subject scoped to the relay's implementation
// and are delivered as parsed Commands to a Handler.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/node"
)

// Action names a control request
type Action string

// Supported actions
const (
	Connect    Action = "CONNECT"
	Disconnect Action = "DISCONNECT"
)

// Command asks the relay to connect or disconnect a node
type Command struct {
	Action    Action `json:"action"`
	NodeIndex int    `json:"node_index"`
}

// Handler processes one command
type Handler func(ctx context.Context, cmd Command) error

// Channel is a source of commands
type Channel interface {
	// Listen delivers commands to h until ctx is done
	Listen(ctx context.Context, h Handler) error
}

// Subject returns the control subject for an implementation
func Subject(prefix string, impl node.Implementation) string {
	return fmt.Sprintf("%s.control.%s", prefix, strings.ToLower(string(impl)))
}

type wireCommand struct {
	Action    string          `json:"action"`
	NodeIndex json.RawMessage `json:"node_index"`
}

// ParseCommand decodes a command. node_index may be a number or a numeric string.
func ParseCommand(data []byte) (Command, error) {
	var wire wireCommand
	if err := json.Unmarshal(data, &wire); err != nil {
		return Command{}, errors.WrapInvalid(err, "control", "ParseCommand", "decode command")
	}

	action := Action(strings.ToUpper(strings.TrimSpace(wire.Action)))
	if action != Connect && action != Disconnect {
		return Command{}, errors.WrapInvalid(
			fmt.Errorf("%w: unknown action %q", errors.ErrInvalidData, wire.Action),
			"control", "ParseCommand", "check action")
	}

	index, err := parseIndex(wire.NodeIndex)
	if err != nil {
		return Command{}, errors.WrapInvalid(err, "control", "ParseCommand", "parse node_index")
	}

	return Command{Action: action, NodeIndex: index}, nil
}

func parseIndex(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: node_index missing", errors.ErrInvalidData)
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: node_index must be a number", errors.ErrInvalidData)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: node_index %q is not numeric", errors.ErrInvalidData, s)
	}
	return n, nil
}

// Marshal encodes the command in wire form
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}
