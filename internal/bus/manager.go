package bus

import (
	"log/slog"
	"sync"
)

// ingressCapacity bounds the MessageManager's single ingress queue
// (spec §4.3, §5).
const ingressCapacity = 1024

// MessageManager owns the single ingress queue and the routing
// goroutine. It pulls messages off ingress and dispatches them through a
// DistributionCenter: directed messages go to SendDirect, everything
// else goes to Distribute. Grounded on
// original_source/amadeus/src/message_manager.rs, with the
// start/stop/wg handle-ownership idiom borrowed from
// internal/scheduler.Scheduler's running/stopCh/wg fields.
type MessageManager struct {
	dc *DistributionCenter

	mu      sync.Mutex
	ingress chan Message
	running bool
	wg      sync.WaitGroup

	logger *slog.Logger
}

// NewMessageManager constructs a manager with a bounded ingress and no
// routing goroutine running yet. Call StartMessageLoop to begin routing.
func NewMessageManager(dc *DistributionCenter, logger *slog.Logger) *MessageManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageManager{
		dc:      dc,
		ingress: make(chan Message, ingressCapacity),
		logger:  logger,
	}
}

// MessageSender returns a cloneable send-only handle onto the ingress
// queue, for use by MessageContext and the IPC bridge's subscriber
// goroutine.
func (m *MessageManager) MessageSender() chan<- Message {
	return m.ingress
}

// StartMessageLoop starts the single routing goroutine. A second call
// while the loop is running is a no-op; the manager is not restartable
// after being stopped.
func (m *MessageManager) StartMessageLoop() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.routingLoop()
}

func (m *MessageManager) routingLoop() {
	defer m.wg.Done()

	for msg := range m.ingress {
		if msg.Recipient != nil {
			if err := m.dc.SendDirect(*msg.Recipient, msg); err != nil {
				m.logger.Warn("directed send failed",
					"recipient", *msg.Recipient,
					"topic", string(msg.Topic),
					"error", err)
			}
			continue
		}
		m.dc.Distribute(msg)
	}
}

// StopMessageLoop closes the ingress channel and waits for the routing
// goroutine to drain and exit. After this returns, further Send calls
// through any MessageContext bound to this manager's ingress fail with
// ErrBusClosed. The manager is not restartable.
func (m *MessageManager) StopMessageLoop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.ingress)
	m.mu.Unlock()

	m.wg.Wait()
}
