package ipcbridge

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
	"github.com/vitaelegy/amadeus-bus/internal/pluginhost"
)

// dispatcherPluginID is the fixed plugin ID the loop guard compares
// against: a received message whose source is Plugin(dispatcherPluginID)
// is dropped by the subscriber loop, and a wiretapped message whose
// source is External(externalTag) is skipped by the forwarder. Together
// these prevent reflection loops when two bridges peer.
const dispatcherPluginID = "Iceoryx2Dispatcher"

// externalTag is the Source tag the subscriber loop stamps onto every
// message it injects into the local bus.
const externalTag = "iceoryx2"

// egressQueueCapacity bounds the buffered channel between the wiretap
// forwarder and the publisher loop.
const egressQueueCapacity = 256

// pollInterval mirrors the Rust original's ~100ms recv_timeout. The loops
// in this file do not poll with it: they block on the egress queue, the
// transport's Receive and the shared context, and return as soon as the
// context is canceled.
const pollInterval = 100 * time.Millisecond

// transportRetryDelay is the backoff after a TransportFailure: the
// affected loop sleeps briefly and retries rather than spinning.
const transportRetryDelay = time.Second

// BridgePlugin is the IPC bridge plugin: it owns a publisher goroutine
// and a subscriber goroutine over a Transport, and an async wiretap
// forwarder that optionally hybrid-encrypts egress messages. Grounded on
// original_source/amadeus/src/plugins/iceoryx2_dispatcher/mod.rs, with
// the "two OS threads" requirement re-expressed as two goroutines per
// SPEC_FULL.md §4.5 (Go's scheduler already parks blocking I/O off the
// main pool, so a literal OS-thread requirement is unnecessary).
type BridgePlugin struct {
	pluginhost.BasePlugin

	nodeName    string
	serviceName string
	transport   Transport
	publicKey   *rsa.PublicKey

	logger *slog.Logger

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	egress chan []byte // encoded AmadeusFrame bytes
}

// NewBridgePlugin constructs a bridge plugin bound to nodeName and
// serviceName, publishing/subscribing over transport. publicKey may be
// nil, in which case egress messages are sent unencrypted.
func NewBridgePlugin(nodeName, serviceName string, transport Transport, publicKey *rsa.PublicKey, logger *slog.Logger) *BridgePlugin {
	if logger == nil {
		logger = slog.Default()
	}
	meta := pluginhost.NewMetadata(dispatcherPluginID, "IPC bridge to an external Amadeus peer", "1.0.0").
		WithEnabledByDefault(false)
	if publicKey != nil {
		meta = meta.WithProperty("external_public_key", "configured")
	}

	return &BridgePlugin{
		BasePlugin:  pluginhost.NewBasePlugin(meta),
		nodeName:    nodeName,
		serviceName: serviceName,
		transport:   transport,
		publicKey:   publicKey,
		logger:      logger,
		egress:      make(chan []byte, egressQueueCapacity),
	}
}

// Init records configuration; it does not touch the transport.
func (b *BridgePlugin) Init() error {
	b.logger.Info("ipcbridge: plugin initialized", "node", b.nodeName, "service", b.serviceName)
	return nil
}

// SetupMessaging subscribes to the DC's wiretap, connects the transport,
// and spawns the publisher loop, subscriber loop, and wiretap forwarder.
// It returns nil for the *bus.MessageContext since this plugin injects
// directly into the manager ingress rather than sending through a
// context of its own.
func (b *BridgePlugin) SetupMessaging(dc *bus.DistributionCenter, ingress chan<- bus.Message) (*bus.MessageContext, error) {
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.running.Store(true)

	if err := b.transport.Connect(b.ctx); err != nil {
		b.running.Store(false)
		b.cancel()
		return nil, err
	}

	wiretap := dc.SubscribeAll(b.ID())

	b.wg.Add(3)
	go b.publisherLoop()
	go b.subscriberLoop(ingress)
	go b.forwarderLoop(wiretap)

	return nil, nil
}

// Stop sets the running flag false, cancels the shared context, and
// waits for all three goroutines to exit, then closes the transport.
// Every loop selects on the shared context, so each exits once the
// transport call it is in returns.
func (b *BridgePlugin) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return b.transport.Close()
}

// publisherLoop pulls encoded frames off the egress queue and publishes
// them to the transport. A TransportFailure backs off briefly and
// retries rather than exiting; the loop exits when the bridge's context
// is canceled by Stop. The egress channel is never closed (only
// canceled via ctx) so forward() can keep selecting on it right up to
// shutdown without racing a concurrent close.
func (b *BridgePlugin) publisherLoop() {
	defer b.wg.Done()

	for {
		select {
		case frame := <-b.egress:
			b.publishWithRetry(frame)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *BridgePlugin) publishWithRetry(frame []byte) {
	for {
		err := b.transport.Publish(b.ctx, frame)
		if err == nil {
			return
		}
		if b.ctx.Err() != nil {
			return
		}
		b.logger.Error("ipcbridge: publish failed, retrying", "error", err)
		select {
		case <-time.After(transportRetryDelay):
		case <-b.ctx.Done():
			return
		}
	}
}

// subscriberLoop polls the transport for inbound frames, decodes each
// into a Message, applies the loop guard, and injects surviving messages
// into the manager ingress with Source stamped External(externalTag).
func (b *BridgePlugin) subscriberLoop(ingress chan<- bus.Message) {
	defer b.wg.Done()

	for b.running.Load() {
		raw, err := b.transport.Receive(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("ipcbridge: receive failed, retrying", "error", err)
			select {
			case <-time.After(transportRetryDelay):
				continue
			case <-b.ctx.Done():
				return
			}
		}

		frame, err := DecodeFrame(raw)
		if err != nil {
			b.logger.Error("ipcbridge: frame decode failed", "error", err)
			continue
		}

		decoded, err := bus.FromJSON(frame.Body)
		if err != nil {
			b.logger.Error("ipcbridge: message decode failed", "error", err)
			continue
		}

		if decoded.Source.Kind == bus.SourceKindPlugin && decoded.Source.Value == dispatcherPluginID {
			continue // loop guard: drop a reflected dispatcher message
		}

		decoded.Source = bus.External(externalTag)

		select {
		case ingress <- decoded:
		case <-b.ctx.Done():
			return
		}
	}
}

// forwarderLoop drains the DC wiretap, skips messages that originated
// from this bridge's own transport (the second half of the loop guard),
// optionally encrypts the remainder, and hands each encoded frame to the
// publisher loop's egress queue.
func (b *BridgePlugin) forwarderLoop(wiretap <-chan bus.Message) {
	defer b.wg.Done()

	for {
		select {
		case msg, ok := <-wiretap:
			if !ok {
				return
			}
			if msg.Source.Kind == bus.SourceKindExternal && msg.Source.Value == externalTag {
				continue // loop guard: don't re-publish what we just received
			}
			b.forward(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// forward encodes msg and hands it to the publisher loop's egress queue.
// The hand-off blocks until the publisher loop drains a slot; a full
// queue applies backpressure to the forwarder rather than dropping the
// frame.
func (b *BridgePlugin) forward(msg bus.Message) {
	body, err := msg.ToJSON()
	if err != nil {
		b.logger.Error("ipcbridge: message encode failed", "error", err)
		return
	}

	if b.publicKey != nil {
		sealed, err := Seal(b.publicKey, body)
		if err != nil {
			b.logger.Error("ipcbridge: envelope seal failed", "error", err)
			return
		}
		body = sealed
	}

	frame := NewFrame(string(msg.Topic), body, msg.Priority, uint64(msg.Timestamp))
	encoded, err := frame.Encode()
	if err != nil {
		b.logger.Error("ipcbridge: frame encode failed", "error", err)
		return
	}

	select {
	case b.egress <- encoded:
	case <-b.ctx.Done():
	}
}
