// Package sse streams link-graph changes to HTTP clients as Server-Sent
// Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types broadcast by the broker.
const (
	EventDocumentCreated = "document.created"
	EventDocumentUpdated = "document.updated"
	EventDocumentDeleted = "document.deleted"
	EventMoveCompleted   = "move.completed"
	EventGraphUpdated    = "graph.updated"
)

var documentEventTypes = map[string]string{
	"created": EventDocumentCreated,
	"updated": EventDocumentUpdated,
	"deleted": EventDocumentDeleted,
}

const (
	clientBuffer     = 64
	defaultKeepAlive = 15 * time.Second
	retryMillis      = 3000
)

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams receive a comment line.
// Non-positive values disable keepalives.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		b.keepAlive = d
	}
}

// Broker fans events out to subscribed streams.
//
// A single goroutine owns the subscriber set, the event sequence, and the
// graph.updated throttle. Public methods talk to it over channels.
type Broker struct {
	graphMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. graph.updated follows a change event at most
// once per graphThrottle.
func NewBroker(graphThrottle time.Duration, opts ...Option) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	b := &Broker{
		graphMin:      graphThrottle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// hub is the state owned by the run loop.
type hub struct {
	clients   map[chan []byte]struct{}
	seq       uint64
	lastGraph time.Time
}

// send encodes ev under the next sequence number and offers it to every
// client. Clients whose buffer is full miss the event.
func (h *hub) send(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	frame := encodeFrame(h.seq, ev.Type, payload)
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// sendChange broadcasts ev and then, if the throttle allows, graph.updated.
func (h *hub) sendChange(ev Event, minGap time.Duration) {
	h.send(ev)
	now := time.Now()
	if now.Sub(h.lastGraph) < minGap {
		return
	}
	h.lastGraph = now
	h.send(Event{Type: EventGraphUpdated, Data: map[string]string{}})
}

func (h *hub) drop(ch chan []byte) {
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (b *Broker) run() {
	defer close(b.stopped)
	h := &hub{clients: make(map[chan []byte]struct{})}

	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				h.drop(ch)
			}
			return
		case ch := <-b.subscribeCh:
			h.clients[ch] = struct{}{}
		case ch := <-b.unsubscribeCh:
			h.drop(ch)
		case ev := <-b.publishCh:
			h.send(ev)
		case ev := <-b.changeCh:
			h.sendChange(ev, b.graphMin)
		case resp := <-b.countReqCh:
			resp <- len(h.clients)
		}
	}
}

// encodeFrame renders one event in wire format. The id line lets clients
// tell whether they missed messages.
func encodeFrame(id uint64, typ string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(typ)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\nid: ")
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// Close stops the run loop and closes every subscriber channel. It is safe
// to call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new client. The returned channel is closed when the
// client is unsubscribed or the broker stops.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribed clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts event as is.
func (b *Broker) Publish(event Event) {
	b.enqueue(b.publishCh, event)
}

// PublishDocumentEvent reports an export change for path. kind is one of
// "created", "updated", "deleted"; other kinds are dropped.
func (b *Broker) PublishDocumentEvent(kind, path string) {
	typ, ok := documentEventTypes[kind]
	if !ok {
		return
	}
	b.enqueue(b.changeCh, Event{Type: typ, Data: map[string]string{"path": path}})
}

// PublishMoveEvent reports a completed move. data is the move report.
func (b *Broker) PublishMoveEvent(data any) {
	b.enqueue(b.changeCh, Event{Type: EventMoveCompleted, Data: data})
}

func (b *Broker) enqueue(ch chan Event, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- event:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events) until the
// request ends or the broker stops.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.Itoa(retryMillis) + "\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
