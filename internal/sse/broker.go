// Package sse streams vault changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event is one message for SSE clients.
//
// Document names the vault document the event concerns. Clients that
// subscribed to specific documents only receive events for those documents
// plus events with no Document, such as tree.updated.
type Event struct {
	Type     string `json:"type"`
	Document string `json:"-"`
	Data     any    `json:"data"`
}

// Event types.
const (
	TypeDocumentCreated = "document.created"
	TypeDocumentUpdated = "document.updated"
	TypeDocumentDeleted = "document.deleted"
	TypeVariableUpdated = "variable.updated"
	TypeTreeUpdated     = "tree.updated"
)

// documentTypes maps watcher change kinds to event types.
var documentTypes = map[string]string{
	"created": TypeDocumentCreated,
	"updated": TypeDocumentUpdated,
	"deleted": TypeDocumentDeleted,
}

// client is one subscriber. An empty docs set means every document.
type client struct {
	ch   chan []byte
	docs map[string]struct{}
}

// wants reports whether the client follows doc. A document event for a
// folder matches the documents inside it.
func (c *client) wants(doc string) bool {
	if doc == "" || len(c.docs) == 0 {
		return true
	}
	if _, ok := c.docs[doc]; ok {
		return true
	}
	for d := range c.docs {
		if strings.HasPrefix(d, doc+"/") {
			return true
		}
	}
	return false
}

// Broker fans vault events out to SSE clients.
//
// A single goroutine owns the client set and the tree throttle timestamp;
// the exported methods talk to it over channels.
type Broker struct {
	treeMin time.Duration
	seq     atomic.Uint64

	subscribeCh   chan *client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	treeCh        chan int
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker returns a running broker. tree.updated is sent at most once per
// treeThrottle; a non-positive value means two seconds.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		subscribeCh:   make(chan *client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		treeCh:        make(chan int, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	var lastTree time.Time

	deliver := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", b.seq.Add(1), event.Type, payload))

		for ch, c := range clients {
			if !c.wants(event.Document) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client: drop rather than stall every other one.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			deliver(event)

		case docs := <-b.treeCh:
			now := time.Now()
			if now.Sub(lastTree) >= b.treeMin {
				lastTree = now
				deliver(Event{Type: TypeTreeUpdated, Data: map[string]int{"documents": docs}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client following docs, or every document when docs is
// empty, and returns its channel.
func (b *Broker) Subscribe(docs ...string) chan []byte {
	c := &client{ch: make(chan []byte, 64)}
	for _, d := range docs {
		if d = strings.Trim(d, "/"); d != "" {
			if c.docs == nil {
				c.docs = make(map[string]struct{}, len(docs))
			}
			c.docs[d] = struct{}{}
		}
	}
	if b.closed.Load() {
		close(c.ch)
		return c.ch
	}

	select {
	case b.subscribeCh <- c:
	case <-b.stopped:
		close(c.ch)
	}
	return c.ch
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

// ClientCount returns the number of connected clients.
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

// Publish queues event for the clients that follow its document.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishVariableUpdated publishes variable.updated for doc. An empty doc
// reaches every client.
func (b *Broker) PublishVariableUpdated(doc string, data any) {
	b.Publish(Event{Type: TypeVariableUpdated, Document: doc, Data: data})
}

// PublishDocumentEvent publishes a document change. kind is one of
// "created", "updated", "deleted"; anything else is ignored.
func (b *Broker) PublishDocumentEvent(kind, path string) {
	typ, ok := documentTypes[kind]
	if !ok {
		return
	}
	b.Publish(Event{Type: typ, Document: path, Data: map[string]string{"path": path}})
}

// PublishTreeUpdated publishes tree.updated, at most once per throttle
// interval.
func (b *Broker) PublishTreeUpdated(documents int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.treeCh <- documents:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint (GET /api/events). Repeated ?document=
// parameters restrict the stream to those documents.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query()["document"]...)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
