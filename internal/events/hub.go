package events

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies a workflow state change.
type Kind string

const (
	ConnectionCreated Kind = "connection_created"
	AdminApproved     Kind = "admin_approved"
	DraftGenerated    Kind = "draft_generated"
	DraftUpdated      Kind = "draft_updated"
	ClientApproved    Kind = "client_approved"
	FinalApproved     Kind = "final_approved"

	// Heartbeat frames keep push channels observably alive. They carry no
	// sequence number and are never replayed.
	Heartbeat Kind = "heartbeat"
)

// Event is a pure notification: it names the affected connection but is not
// self-sufficient to update local state. Subscribers re-fetch.
type Event struct {
	ID           string    `json:"id"`
	Seq          uint64    `json:"seq,omitempty"`
	Type         Kind      `json:"type"`
	ConnectionID string    `json:"connection_id,omitempty"`
	At           time.Time `json:"at"`
}

// Subscription is a cancellable handle on the hub. Cancel is idempotent.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Hub is the in-process broadcaster fanning workflow notifications out to
// every open dashboard session. Delivery is at-most-once: a subscriber whose
// channel is full misses the event and is expected to re-fetch after its next
// frame, and a subscriber that connects late replays from the ring buffer via
// SubscribeSince.
type Hub struct {
	mu    sync.Mutex
	subs  map[uint64]chan Event
	next  uint64
	seq   uint64
	ring  []Event
	rSize int

	heartbeat time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
	closed    bool
}

// NewHub creates a hub keeping ringSize events for replay and emitting
// heartbeat frames every heartbeat interval (0 disables them, for tests).
func NewHub(ringSize int, heartbeat time.Duration) *Hub {
	if ringSize <= 0 {
		ringSize = 256
	}
	h := &Hub{
		subs:      map[uint64]chan Event{},
		ring:      make([]Event, 0, ringSize),
		rSize:     ringSize,
		heartbeat: heartbeat,
		stop:      make(chan struct{}),
	}
	if heartbeat > 0 {
		h.wg.Add(1)
		go h.heartbeatLoop()
	}
	return h
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()
	t := time.NewTicker(h.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-t.C:
			h.broadcast(Event{ID: ulid.Make().String(), Type: Heartbeat, At: time.Now().UTC()})
		}
	}
}

// Publish assigns the next sequence number, records the event in the replay
// ring, and fans it out to every current subscriber.
func (h *Hub) Publish(kind Kind, connectionID string) Event {
	h.mu.Lock()
	h.seq++
	ev := Event{
		ID:           ulid.Make().String(),
		Seq:          h.seq,
		Type:         kind,
		ConnectionID: connectionID,
		At:           time.Now().UTC(),
	}
	h.ring = append(h.ring, ev)
	if len(h.ring) > h.rSize {
		h.ring = h.ring[len(h.ring)-h.rSize:]
	}
	h.mu.Unlock()

	h.broadcast(ev)
	return ev
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is not draining; drop rather than block the hub
		}
	}
}

// Subscribe registers a new subscriber with its own buffered channel.
func (h *Hub) Subscribe(buffer int) *Subscription {
	return h.subscribe(buffer)
}

// SubscribeSince registers a subscriber and returns the buffered events with
// a sequence number greater than since, so a reconnecting dashboard closes
// the fetch-then-subscribe window. Events older than the ring are gone; the
// caller must re-fetch full state when missed is shorter than expected.
func (h *Hub) SubscribeSince(buffer int, since uint64) (*Subscription, []Event) {
	sub := h.subscribe(buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	var missed []Event
	for _, ev := range h.ring {
		if ev.Seq > since {
			missed = append(missed, ev)
		}
	}
	return sub, missed
}

func (h *Hub) subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return &Subscription{C: ch, ch: ch, cancel: func() {}}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	return &Subscription{
		C:  ch,
		ch: ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		},
	}
}

// Seq returns the sequence number of the most recently published event.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Close stops the heartbeat loop and closes every subscriber channel. The
// hub accepts no further subscriptions afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()

	close(h.stop)
	h.wg.Wait()
}
