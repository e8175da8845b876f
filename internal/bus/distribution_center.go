package bus

import (
	"log/slog"
	"sync"
)

// DistributionCenter owns the routing tables and fans messages out. It
// never stamps or rewrites a message's Source — MessageContext.Send does
// that — and it never panics on a missing receiver or a full fanout. Grounded
// on original_source/amadeus/src/core/messaging/distribution_center.rs.
type DistributionCenter struct {
	mu sync.RWMutex

	topicFanouts map[Topic]*fanout
	directQueues map[string]chan Message
	wiretaps     []*fanout
	perPluginSub map[string]map[Topic]struct{}

	logger *slog.Logger
}

// NewDistributionCenter constructs an empty DistributionCenter. A nil
// logger defaults to slog.Default().
func NewDistributionCenter(logger *slog.Logger) *DistributionCenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DistributionCenter{
		topicFanouts: make(map[Topic]*fanout),
		directQueues: make(map[string]chan Message),
		perPluginSub: make(map[string]map[Topic]struct{}),
		logger:       logger,
	}
}

// Subscribe lazily creates a fanout for topic and returns a fresh
// receiver. The receiver only observes messages distributed after this
// call, modulo the fanout's own bounded lookback.
func (dc *DistributionCenter) Subscribe(topic Topic, pluginName string) <-chan Message {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	fo, ok := dc.topicFanouts[topic]
	if !ok {
		fo = newFanout()
		dc.topicFanouts[topic] = fo
	}
	ch := fo.addSubscriber()

	subs, ok := dc.perPluginSub[pluginName]
	if !ok {
		subs = make(map[Topic]struct{})
		dc.perPluginSub[pluginName] = subs
	}
	subs[topic] = struct{}{}

	return ch
}

// SubscribeAll registers a wiretap receiver that observes every broadcast
// message regardless of topic. Directed messages are never delivered
// here.
func (dc *DistributionCenter) SubscribeAll(pluginName string) <-chan Message {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	fo := newFanout()
	ch := fo.addSubscriber()
	dc.wiretaps = append(dc.wiretaps, fo)

	subs, ok := dc.perPluginSub[pluginName]
	if !ok {
		subs = make(map[Topic]struct{})
		dc.perPluginSub[pluginName] = subs
	}
	subs["*"] = struct{}{}

	return ch
}

// RegisterDirectChannel inserts or replaces the directed queue for uid.
// A restarted plugin instance that reuses its UID takes over delivery
// from whatever held the slot before.
func (dc *DistributionCenter) RegisterDirectChannel(uid string, capacity int) <-chan Message {
	if capacity <= 0 {
		capacity = directQueueCapacity
	}
	ch := make(chan Message, capacity)

	dc.mu.Lock()
	dc.directQueues[uid] = ch
	dc.mu.Unlock()

	return ch
}

// SendDirect enqueues msg on uid's directed queue. It fails with
// ErrUnknownRecipient if no queue is registered, or ErrBackpressure if
// the queue is full. Directed messages are never visible on topic
// fanouts or wiretaps.
func (dc *DistributionCenter) SendDirect(uid string, msg Message) error {
	dc.mu.RLock()
	ch, ok := dc.directQueues[uid]
	dc.mu.RUnlock()

	if !ok {
		return ErrUnknownRecipient
	}

	select {
	case ch <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Distribute is the broadcast path: it publishes to the fanout for
// msg.Topic (if one exists) and then to every wiretap, returning the
// total receiver count observed (best-effort, purely informational). A
// topic with no subscribers and no wiretaps is a no-op returning 0.
func (dc *DistributionCenter) Distribute(msg Message) int {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	count := 0
	if fo, ok := dc.topicFanouts[msg.Topic]; ok {
		count += fo.publish(msg)
	}
	for _, fo := range dc.wiretaps {
		count += fo.publish(msg)
	}
	return count
}

// Unsubscribe removes the bookkeeping entry recording that pluginName
// subscribed to topic. Existing receivers keep draining whatever is
// already buffered; this call does not tear down the fanout itself.
func (dc *DistributionCenter) Unsubscribe(pluginName string, topic Topic) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if subs, ok := dc.perPluginSub[pluginName]; ok {
		delete(subs, topic)
	}
}

// UnsubscribeAll removes all of pluginName's bookkeeping entries.
func (dc *DistributionCenter) UnsubscribeAll(pluginName string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	delete(dc.perPluginSub, pluginName)
}

// GetPluginSubscriptions returns the topics pluginName is recorded as
// having subscribed to (the wiretap subscription reads as "*").
func (dc *DistributionCenter) GetPluginSubscriptions(pluginName string) []Topic {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	subs, ok := dc.perPluginSub[pluginName]
	if !ok {
		return nil
	}
	topics := make([]Topic, 0, len(subs))
	for t := range subs {
		topics = append(topics, t)
	}
	return topics
}

// SubscriptionStats reports, per topic, how many receivers are currently
// attached to that topic's fanout. Backing store for the admin /stats
// surface.
func (dc *DistributionCenter) SubscriptionStats() map[Topic]int {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := make(map[Topic]int, len(dc.topicFanouts))
	for topic, fo := range dc.topicFanouts {
		stats[topic] = len(fo.subs)
	}
	return stats
}
