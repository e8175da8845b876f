package ipcbridge

import "context"

// Transport moves encoded AmadeusFrame bytes to and from an external
// peer. It is the Go-native substitute for the Rust original's iceoryx2
// zero-copy shared-memory service: no Go binding for iceoryx2 exists
// anywhere in the retrieved corpus or the wider ecosystem, so this repo
// bridges internal state to an external broker over MQTT instead (see
// internal/ipcbridge/mqtttransport.go and DESIGN.md).
//
// Transport is an interface so tests can substitute an in-memory double
// (internal/ipcbridge/pipe_transport_test.go) instead of opening a real
// broker connection.
type Transport interface {
	// Connect establishes the underlying connection and blocks until it
	// is ready to Publish/Receive, or ctx is done.
	Connect(ctx context.Context) error

	// Publish sends one encoded frame. It returns ErrTransportFailure on
	// a send failure; callers retry after a short backoff rather than
	// treating this as fatal.
	Publish(ctx context.Context, frame []byte) error

	// Receive blocks until one encoded frame arrives, ctx is done, or
	// the transport is closed (in which case it returns
	// ErrTransportFailure so the subscriber loop's retry/backoff applies
	// uniformly).
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection. Safe to call more than
	// once.
	Close() error
}
