package ipcbridge

import "errors"

var (
	// ErrPayloadTooLarge is returned by AmadeusFrame.Encode/DecodeFrame
	// when the topic or body exceeds its fixed field capacity. The
	// offending message is dropped and the error logged; it is never
	// retried.
	ErrPayloadTooLarge = errors.New("ipcbridge: payload too large")

	// ErrEncryptionFailure is returned by Seal/Open on a key-wrap or
	// AEAD failure. The offending message is dropped; the bridge never
	// falls back to sending the plaintext body.
	ErrEncryptionFailure = errors.New("ipcbridge: encryption failure")

	// ErrTransportFailure is returned by a Transport implementation when
	// a publish or receive operation fails. The bridge's publisher and
	// subscriber loops sleep briefly and retry rather than exiting.
	ErrTransportFailure = errors.New("ipcbridge: transport failure")
)
