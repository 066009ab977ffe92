// Package bus provides the MessageBus: per-agent priority inboxes, unicast,
// broadcast, publish/subscribe, and request/response with correlation.
//
// Agents are opaque string names; the bus never executes agent logic itself,
// it only routes AgentMessage values between registered names.
package bus

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies the intent of a message.
type MessageType string

const (
	TypeRequest   MessageType = "request"
	TypeResponse  MessageType = "response"
	TypeInform    MessageType = "inform"
	TypeCFP       MessageType = "cfp"
	TypeBroadcast MessageType = "broadcast"
	TypePropose   MessageType = "propose"
	TypeAccept    MessageType = "accept"
	TypeReject    MessageType = "reject"
)

// Priority controls delivery order within a single agent's inbox.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// priorityRank maps a Priority to its dequeue rank; lower ranks dequeue first.
var priorityRank = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityNormal: 2,
	PriorityLow:    3,
}

func rankOf(p Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityNormal]
}

// AgentMessage is the unit of communication on the bus. It is immutable once
// sent; Receiver == "" iff the message is a broadcast.
type AgentMessage struct {
	ID            string
	Sender        string
	Receiver      string // "" for broadcast
	Type          MessageType
	Priority      Priority
	Content       map[string]any
	Topic         string
	CorrelationID string
	Timestamp     time.Time
	TTLSeconds    float64
}

// Subscription records topic membership for a single agent.
type Subscription struct {
	AgentName string
	Topic     string
}

// Handler is recorded by SetHandler for use by higher layers; the bus never
// invokes it directly.
type Handler func(ctx context.Context, msg AgentMessage)

const defaultMaxQueueSize = 1000

// Bus is the central message router. All state is guarded by mu, matching the
// "single mutex per component" guidance for a multi-threaded reimplementation.
type Bus struct {
	mu sync.Mutex

	maxQueueSize int
	inboxes      map[string]*inbox
	handlers     map[string]Handler
	subs         map[string][]string // topic -> agent names, registration order
	log          []AgentMessage

	pending map[string]chan AgentMessage // correlationID -> waiter for Request

	observer func(event string, data map[string]any)
}

// SetObserver registers fn to be called with a "message.sent" event after
// every Send (Publish emits one per subscriber delivery, since it sends
// through Send), for observability only; the bus itself never logs. Grounded on
// the teacher's engine/hooks.Hook shape, simplified to a single notification
// func since bus events are not interceptable, unlike a Hook's Before/After.
func (b *Bus) SetObserver(fn func(event string, data map[string]any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = fn
}

func (b *Bus) notify(event string, data map[string]any) {
	b.mu.Lock()
	fn := b.observer
	b.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}

// New creates a Bus with the given max per-agent queue size (0 uses the default
// of 1000, matching spec.md's documented default).
func New(maxQueueSize int) *Bus {
	if maxQueueSize <= 0 {
		maxQueueSize = defaultMaxQueueSize
	}
	return &Bus{
		maxQueueSize: maxQueueSize,
		inboxes:      make(map[string]*inbox),
		handlers:     make(map[string]Handler),
		subs:         make(map[string][]string),
		pending:      make(map[string]chan AgentMessage),
	}
}

// RegisterAgent registers name with the bus. Idempotent.
func (b *Bus) RegisterAgent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[name]; !ok {
		b.inboxes[name] = newInbox(b.maxQueueSize)
	}
}

// UnregisterAgent removes name from the bus and from every topic subscription.
// Idempotent.
func (b *Bus) UnregisterAgent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inboxes, name)
	delete(b.handlers, name)
	for topic, agents := range b.subs {
		b.subs[topic] = removeString(agents, name)
	}
}

// SetHandler records a handler for name. The bus itself never invokes it;
// higher layers may poll for it and call it themselves.
func (b *Bus) SetHandler(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// Send enqueues msg. If Receiver is set, it is delivered to that agent's
// inbox only; if empty, it fans out to every registered agent except Sender.
// Returns true if at least one enqueue succeeded. Never raises: an unknown
// recipient or full inbox simply yields false for that recipient.
func (b *Bus) Send(msg AgentMessage) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.log = append(b.log, msg)

	var delivered bool
	if msg.Receiver == "" {
		delivered = b.broadcastLocked(msg)
	} else {
		delivered = b.deliverLocked(msg.Receiver, msg)
	}

	if msg.CorrelationID != "" {
		if waiter, ok := b.pending[msg.CorrelationID]; ok {
			delete(b.pending, msg.CorrelationID)
			select {
			case waiter <- msg:
			default:
			}
		}
	}
	b.mu.Unlock()

	b.notify("message.sent", map[string]any{"id": msg.ID, "sender": msg.Sender, "receiver": msg.Receiver, "delivered": delivered})

	return delivered
}

func (b *Bus) broadcastLocked(msg AgentMessage) bool {
	delivered := false
	for name := range b.inboxes {
		if name == msg.Sender {
			continue
		}
		if b.deliverLocked(name, msg) {
			delivered = true
		}
	}
	return delivered
}

func (b *Bus) deliverLocked(name string, msg AgentMessage) bool {
	ibx, ok := b.inboxes[name]
	if !ok {
		return false
	}
	return ibx.push(msg)
}

// Receive dequeues the highest-priority message for name, blocking until one
// arrives, ctx is cancelled, or timeout elapses (timeout <= 0 means no
// timeout). A dequeued message past its TTL is silently dropped and the call
// returns nil; the next queued message is left for a later call.
func (b *Bus) Receive(ctx context.Context, name string, timeout time.Duration) *AgentMessage {
	b.mu.Lock()
	ibx, ok := b.inboxes[name]
	b.mu.Unlock()
	if !ok {
		return nil
	}

	msg, ok := ibx.pop(ctx, timeout)
	if !ok {
		return nil
	}
	if expired(msg) {
		return nil
	}
	return &msg
}

// ReceiveNoWait dequeues without blocking.
func (b *Bus) ReceiveNoWait(name string) *AgentMessage {
	b.mu.Lock()
	ibx, ok := b.inboxes[name]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	msg, ok := ibx.popNoWait()
	if !ok {
		return nil
	}
	if expired(msg) {
		return nil
	}
	return &msg
}

func expired(msg AgentMessage) bool {
	if msg.TTLSeconds <= 0 {
		return false
	}
	return time.Since(msg.Timestamp).Seconds() > msg.TTLSeconds
}

// Request sends a REQUEST from sender to receiver and awaits a RESPONSE whose
// CorrelationID matches the request's ID, up to timeout. Returns nil on
// timeout or context cancellation.
func (b *Bus) Request(ctx context.Context, sender, receiver string, content map[string]any, timeout time.Duration) *AgentMessage {
	req := AgentMessage{
		ID:       uuid.NewString(),
		Sender:   sender,
		Receiver: receiver,
		Type:     TypeRequest,
		Priority: PriorityNormal,
		Content:  content,
	}

	waiter := make(chan AgentMessage, 1)
	b.mu.Lock()
	b.pending[req.ID] = waiter
	b.mu.Unlock()

	b.Send(req)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resp := <-waiter:
		return &resp
	case <-timeoutCh:
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
		return nil
	}
}

// Subscribe adds name to topic's subscriber set. Idempotent.
func (b *Bus) Subscribe(name, topic string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	agents := b.subs[topic]
	if !containsString(agents, name) {
		b.subs[topic] = append(agents, name)
	}
	return Subscription{AgentName: name, Topic: topic}
}

// Unsubscribe removes name from topic's subscriber set. Returns true if it
// was present.
func (b *Bus) Unsubscribe(name, topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	agents, ok := b.subs[topic]
	if !ok || !containsString(agents, name) {
		return false
	}
	b.subs[topic] = removeString(agents, name)
	return true
}

// Publish fans an INFORM message out to topic's subscribers, excluding
// sender, and returns the count of subscribers it was delivered to.
func (b *Bus) Publish(sender, topic string, content map[string]any) int {
	b.mu.Lock()
	subscribers := append([]string(nil), b.subs[topic]...)
	b.mu.Unlock()

	count := 0
	for _, name := range subscribers {
		if name == sender {
			continue
		}
		msg := AgentMessage{
			Sender:   sender,
			Receiver: name,
			Type:     TypeInform,
			Priority: PriorityNormal,
			Topic:    topic,
			Content:  content,
		}
		if b.Send(msg) {
			count++
		}
	}
	return count
}

// QueueSize returns the current depth of name's inbox, or 0 if unregistered.
func (b *Bus) QueueSize(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ibx, ok := b.inboxes[name]
	if !ok {
		return 0
	}
	return ibx.size()
}

// MessageLog returns up to the last limit messages sent on the bus.
func (b *Bus) MessageLog(limit int) []AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.log) {
		limit = len(b.log)
	}
	out := make([]AgentMessage, limit)
	copy(out, b.log[len(b.log)-limit:])
	return out
}

// Subscribers returns topic's current subscriber list in registration order.
func (b *Bus) Subscribers(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subs[topic]...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// --- priority inbox ---

// queueItem is one entry in the priority heap: (rank, sequence, message).
type queueItem struct {
	rank int
	seq  uint64
	msg  AgentMessage
}

type priorityQueue []queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].rank != pq[j].rank {
		return pq[i].rank < pq[j].rank
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(queueItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// inbox is a bounded priority queue with FIFO-within-priority ordering,
// guaranteed by a monotonically increasing sequence number rather than the
// message ID (spec.md's documented design choice, since a UUID would make
// same-priority tiebreaking effectively random). Waiters block on notify, a
// 1-buffered signal channel, rather than sync.Cond, so a blocking pop can
// select over context cancellation and a timeout alongside arrival.
type inbox struct {
	mu       sync.Mutex
	items    priorityQueue
	capacity int
	nextSeq  uint64
	notify   chan struct{}
}

func newInbox(capacity int) *inbox {
	return &inbox{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (ibx *inbox) signal() {
	select {
	case ibx.notify <- struct{}{}:
	default:
	}
}

func (ibx *inbox) push(msg AgentMessage) bool {
	ibx.mu.Lock()
	if len(ibx.items) >= ibx.capacity {
		ibx.mu.Unlock()
		return false
	}
	heap.Push(&ibx.items, queueItem{rank: rankOf(msg.Priority), seq: ibx.nextSeq, msg: msg})
	ibx.nextSeq++
	ibx.mu.Unlock()
	ibx.signal()
	return true
}

func (ibx *inbox) size() int {
	ibx.mu.Lock()
	defer ibx.mu.Unlock()
	return len(ibx.items)
}

func (ibx *inbox) popNoWait() (AgentMessage, bool) {
	ibx.mu.Lock()
	defer ibx.mu.Unlock()
	if len(ibx.items) == 0 {
		return AgentMessage{}, false
	}
	item := heap.Pop(&ibx.items).(queueItem)
	return item.msg, true
}

// pop blocks until a message is available, ctx is done, or timeout elapses
// (timeout <= 0 means no timeout).
func (ibx *inbox) pop(ctx context.Context, timeout time.Duration) (AgentMessage, bool) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		if msg, ok := ibx.popNoWait(); ok {
			return msg, true
		}
		select {
		case <-ibx.notify:
			continue
		case <-timeoutCh:
			return AgentMessage{}, false
		case <-ctx.Done():
			return AgentMessage{}, false
		}
	}
}
