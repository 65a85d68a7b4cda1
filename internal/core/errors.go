// Package core defines sentinel errors shared by the rdt packages.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Framing errors
	ErrMalformedHeader = errors.New("rdt: malformed header")

	// Transport errors
	ErrTransport   = errors.New("rdt: transport error")
	ErrReadTimeout = errors.New("rdt: read timeout")

	// Session errors
	ErrResourceNotFound = errors.New("rdt: resource not found")
	ErrSinkWrite        = errors.New("rdt: output write failed")
	ErrRetriesExhausted = errors.New("rdt: retransmission retries exhausted")

	// Configuration errors
	ErrConfigInvalid = errors.New("rdt: invalid configuration")
)
