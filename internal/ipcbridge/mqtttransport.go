package ipcbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTTransport is the concrete Transport backing the IPC bridge plugin,
// built around an autopaho.ConnectionManager exactly as
// internal/mqtt/publisher.go drives one for Home Assistant discovery —
// here repurposed to publish and subscribe raw AmadeusFrame bytes on a
// single topic pair instead of sensor state.
type MQTTTransport struct {
	brokerURL string
	clientID  string
	topic     string

	logger *slog.Logger

	mu      sync.Mutex
	cm      *autopaho.ConnectionManager
	frames  chan []byte
	closed  chan struct{}
	closeMu sync.Once
}

// FrameTopic returns the single MQTT topic both ends of a bridge publish
// and subscribe under, following the "amadeus/<service_name>/frame"
// transport service name convention.
func FrameTopic(serviceName string) string {
	return fmt.Sprintf("amadeus/%s/frame", serviceName)
}

// NewMQTTTransport constructs a transport that will connect to
// brokerURL (e.g. "tcp://localhost:1883") and publish/subscribe frames
// on FrameTopic(serviceName), identifying itself with a client ID
// derived from nodeName.
func NewMQTTTransport(brokerURL, nodeName, serviceName string, logger *slog.Logger) *MQTTTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTTransport{
		brokerURL: brokerURL,
		clientID:  "amadeus-bridge-" + nodeName,
		topic:     FrameTopic(serviceName),
		logger:    logger,
		frames:    make(chan []byte, 64),
		closed:    make(chan struct{}),
	}
}

// Connect opens the broker connection and subscribes to the frame topic.
func (t *MQTTTransport) Connect(ctx context.Context) error {
	u, err := url.Parse(t.brokerURL)
	if err != nil {
		return fmt.Errorf("%w: parse broker url: %v", ErrTransportFailure, err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  20,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			_, subErr := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: t.topic, QoS: 1},
				},
			})
			if subErr != nil {
				t.logger.Error("ipcbridge: frame topic subscribe failed", "error", subErr)
			}
		},
		OnConnectError: func(err error) {
			t.logger.Warn("ipcbridge: broker connect error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if pr.Packet.Topic != t.topic {
						return false, nil
					}
					frame := make([]byte, len(pr.Packet.Payload))
					copy(frame, pr.Packet.Payload)
					select {
					case t.frames <- frame:
					default:
						t.logger.Warn("ipcbridge: receive buffer full, dropping frame")
					}
					return true, nil
				},
			},
			OnClientError: func(err error) {
				t.logger.Error("ipcbridge: mqtt client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("%w: new connection: %v", ErrTransportFailure, err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("%w: await connection: %v", ErrTransportFailure, err)
	}

	t.mu.Lock()
	t.cm = cm
	t.mu.Unlock()

	return nil
}

// Publish sends one encoded frame to the frame topic at QoS 1.
func (t *MQTTTransport) Publish(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("%w: not connected", ErrTransportFailure)
	}

	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   t.topic,
		QoS:     1,
		Payload: frame,
	})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrTransportFailure, err)
	}
	return nil
}

// Receive blocks until one frame arrives or ctx is done.
func (t *MQTTTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-t.frames:
		if !ok {
			return nil, fmt.Errorf("%w: transport closed", ErrTransportFailure)
		}
		return frame, nil
	case <-t.closed:
		return nil, fmt.Errorf("%w: transport closed", ErrTransportFailure)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the broker. Safe to call more than once.
func (t *MQTTTransport) Close() error {
	t.closeMu.Do(func() {
		close(t.closed)
		t.mu.Lock()
		cm := t.cm
		t.mu.Unlock()
		if cm != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cm.Disconnect(ctx)
		}
	})
	return nil
}
