package bus

// MessageContext is a per-plugin handle bound to one DistributionCenter
// and one outbound channel into the manager's ingress. Plugins use it to
// subscribe (broadcast or directed) and to send. Grounded on
// original_source/amadeus/src/core/messaging/message_context.rs.
//
// MessageContext holds DC by reference but DC never holds a reference
// back to a MessageContext or a plugin — this is how the Rust original's
// cyclic-context problem (§9) is avoided in Go: ownership runs one way,
// context → DC, and the garbage collector handles the rest.
type MessageContext struct {
	dc         *DistributionCenter
	pluginName string
	pluginUID  string
	ingress    chan<- Message
}

// NewMessageContext constructs a context bound to dc for the named
// plugin, with ingress as the manager's ingress sender clone.
func NewMessageContext(dc *DistributionCenter, pluginName, pluginUID string, ingress chan<- Message) *MessageContext {
	return &MessageContext{
		dc:         dc,
		pluginName: pluginName,
		pluginUID:  pluginUID,
		ingress:    ingress,
	}
}

// Subscribe delegates to the DistributionCenter.
func (c *MessageContext) Subscribe(topic Topic) <-chan Message {
	return c.dc.Subscribe(topic, c.pluginName)
}

// SubscribeAll delegates to the DistributionCenter.
func (c *MessageContext) SubscribeAll() <-chan Message {
	return c.dc.SubscribeAll(c.pluginName)
}

// EnableDirectMessaging creates a fresh bounded queue (capacity 100),
// registers it under this plugin's UID, and returns the receiver. Calling
// this twice replaces the prior registration for this plugin — a
// restarted instance that reuses its UID simply takes over delivery.
func (c *MessageContext) EnableDirectMessaging() <-chan Message {
	return c.dc.RegisterDirectChannel(c.pluginUID, directQueueCapacity)
}

// Send stamps msg.Source to Plugin(name) unconditionally — overwriting
// any value the caller already set — then enqueues it on the manager
// ingress. It fails with ErrBusClosed if the ingress channel has been
// closed by StopMessageLoop.
//
// The bus trusts only its own stamp for in-process messages; messages
// genuinely originating outside the process are stamped by the IPC
// bridge's subscriber goroutine and never pass through Send.
func (c *MessageContext) Send(msg Message) (err error) {
	msg.Source = FromPlugin(c.pluginName)

	defer func() {
		if r := recover(); r != nil {
			err = ErrBusClosed
		}
	}()

	c.ingress <- msg
	return nil
}
