// Package fanout delivers event frames to the users subscribed to a topic.
// Each session has its own topic; the lobby directory uses LobbyTopic.
package fanout

import (
	"log"
	"sort"
	"sync"
)

const LobbyTopic = "lobby"

// Event is one named server to client event.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Frame is the unit of delivery. Every event produced by one mutation travels
// in the same frame, so a recipient never sees half of a change.
type Frame struct {
	Topic  string  `json:"topic"`
	Seq    uint64  `json:"seq"`
	Events []Event `json:"events"`
}

// Sink receives frames for one user. Deliver must not block and reports
// whether the frame was accepted.
type Sink interface {
	Deliver(f Frame) bool
}

// Publisher is the part of the hub sessions and the lobby write to.
type Publisher interface {
	Publish(topic string, common []Event, private map[string][]Event) uint64
	Subscribe(topic, user string)
	Unsubscribe(topic, user string)
}

type Hub struct {
	mu     sync.Mutex
	sinks  map[string]Sink
	topics map[string]map[string]bool
	seq    map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		sinks:  make(map[string]Sink),
		topics: make(map[string]map[string]bool),
		seq:    make(map[string]uint64),
	}
}

// Attach makes s the delivery target for user and returns the sink it replaced.
func (h *Hub) Attach(user string, s Sink) Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.sinks[user]
	h.sinks[user] = s
	return prev
}

// Detach removes s if it is still user's sink. Topic memberships are kept so a
// reconnecting user resumes the same streams.
func (h *Hub) Detach(user string, s Sink) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sinks[user] != s {
		return false
	}
	delete(h.sinks, user)
	return true
}

func (h *Hub) Subscribe(topic, user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]bool)
		h.topics[topic] = members
	}
	members[user] = true
}

func (h *Hub) Unsubscribe(topic, user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.topics[topic]; ok {
		delete(members, user)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

// CloseTopic drops every subscription to topic and returns the users it had.
func (h *Hub) CloseTopic(topic string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := sortedKeys(h.topics[topic])
	delete(h.topics, topic)
	delete(h.seq, topic)
	return users
}

func (h *Hub) Subscribers(topic string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return sortedKeys(h.topics[topic])
}

// Publish sends common to every subscriber of topic, each followed by that
// user's private events. Users with private events receive only those when
// they are not subscribed. Frames of one topic are numbered in publish order.
func (h *Hub) Publish(topic string, common []Event, private map[string][]Event) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[topic]++
	seq := h.seq[topic]

	recipients := make(map[string]bool, len(h.topics[topic])+len(private))
	if len(common) > 0 {
		for user := range h.topics[topic] {
			recipients[user] = true
		}
	}
	for user, evs := range private {
		if len(evs) > 0 {
			recipients[user] = true
		}
	}

	for _, user := range sortedKeys(recipients) {
		sink := h.sinks[user]
		if sink == nil {
			continue
		}
		events := make([]Event, 0, len(common)+len(private[user]))
		if h.topics[topic][user] {
			events = append(events, common...)
		}
		events = append(events, private[user]...)
		if !sink.Deliver(Frame{Topic: topic, Seq: seq, Events: events}) {
			log.Printf("[Fanout] dropped frame %s#%d for %s", topic, seq, user)
		}
	}
	return seq
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
