package ipcbridge

import (
	"context"
	"fmt"
	"sync"
)

// pipeTransport is an in-memory Transport double. A pair of pipeTransport
// values, built by newPipePair, simulates two bridges peered on the same
// service: whatever one side Publishes, the other side's Receive yields.
type pipeTransport struct {
	out chan []byte
	in  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// newPipePair returns two transports wired to each other: a's Publish
// feeds b's Receive, and b's Publish feeds a's Receive.
func newPipePair() (a, b *pipeTransport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &pipeTransport{out: ab, in: ba, closed: make(chan struct{})}
	b = &pipeTransport{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (p *pipeTransport) Connect(context.Context) error { return nil }

func (p *pipeTransport) Publish(ctx context.Context, frame []byte) error {
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return fmt.Errorf("%w: closed", ErrTransportFailure)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.closed:
		return nil, fmt.Errorf("%w: closed", ErrTransportFailure)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
