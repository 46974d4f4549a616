// Package errors provides standardized error handling patterns for lnrelay components.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, do not retry) and Fatal (unrecoverable, stop processing).
// The relay uses the classes to decide what escapes to a caller: node endpoint
// problems surface from Connect as Invalid errors, socket failures are Transient
// and never leave the supervisor.
//
// # Wrapping
//
// All wrap helpers produce messages in the form
//
//	component.method: action failed: <cause>
//
// and keep the cause reachable through errors.Is and errors.As:
//
//	link, err := BuildLink(desc.ServerURL, desc.APIPassword)
//	if err != nil {
//	    return errors.WrapInvalid(err, "relay", "Connect", "build websocket link")
//	}
//
// # Classification
//
//	switch errors.Classify(err) {
//	case errors.ErrorTransient:
//	    // schedule a retry
//	case errors.ErrorInvalid:
//	    // report to caller, do not retry
//	case errors.ErrorFatal:
//	    // stop the process
//	}
package errors
