package mesh

import "errors"

var (
	// ErrUnknownAddress is a protocol violation: a non-offer signal arrived
	// for an address we hold no peer for.
	ErrUnknownAddress = errors.New("signal for unknown address")

	// ErrClosed is returned by operations on a closed mesh.
	ErrClosed = errors.New("mesh closed")

	// ErrAlreadyConnected is returned by a second Connect call.
	ErrAlreadyConnected = errors.New("mesh already connected")
)
