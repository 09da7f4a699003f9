package events

import (
	"sync"
	"time"
)

// Kind identifies the notification subject.
type Kind string

const (
	KindService    Kind = "service"
	KindAudit      Kind = "audit"
	KindActionPlan Kind = "action_plan"
	KindAction     Kind = "action"
)

// Notification is one state-change event. Every emitted notification
// carries the subject's UUID, the old and new state and a reason; Payload
// holds event-specific extras (the audit reassignment notification puts
// new_host/failed_host there).
type Notification struct {
	Kind      Kind
	UUID      string
	OldState  string
	NewState  string
	Reason    string
	Payload   map[string]string
	Timestamp time.Time
}

// Subscriber is a channel that receives notifications
type Subscriber chan *Notification

// Broker manages notification subscriptions and distribution. Publishing
// never blocks the caller: slow subscribers drop.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Notification
	stopCh      chan struct{}
	journal     *Journal
}

// NewBroker creates a new notification broker. journal may be nil when
// durability is not wanted (tests).
func NewBroker(journal *Journal) *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Notification, 100), // Buffer up to 100 notifications
		stopCh:      make(chan struct{}),
		journal:     journal,
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish journals the notification and hands it to the distribution loop.
func (b *Broker) Publish(n *Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	if b.journal != nil {
		// journal errors must not break the pipeline; the in-process
		// delivery still happens
		_ = b.journal.Append(n)
	}

	select {
	case b.eventCh <- n:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case n := <-b.eventCh:
			b.broadcast(n)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(n *Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- n:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
