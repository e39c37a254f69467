package provider

import (
	"sync"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (s *subscriber[T]) deliver(v T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- v:
		return true
	case <-s.done:
		return false
	}
}

// close unblocks a pending deliver before closing the channel.
func (s *subscriber[T]) close() {
	close(s.done)
	s.mu.Lock()
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}

// Fanout copies every value published on a topic to each of the topic's
// subscribers. A topic lives as long as it has subscribers.
type Fanout[T any] struct {
	mu      sync.Mutex
	topics  map[string][]*subscriber[T]
	bufSize int
	closed  bool
}

func NewFanout[T any](bufSize int) *Fanout[T] {
	return &Fanout[T]{
		topics:  make(map[string][]*subscriber[T]),
		bufSize: bufSize,
	}
}

// Subscribe adds a subscriber to topic. first reports whether the topic had
// none before; onLast runs after the final subscriber of the topic leaves.
func (f *Fanout[T]) Subscribe(topic string, onLast func()) (sub *domain.Subscription[T], first bool) {
	s := &subscriber[T]{
		ch:   make(chan T, f.bufSize),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.close()
		return &domain.Subscription[T]{Stream: s.ch, Unsubscribe: func() {}, Topic: topic}, false
	}
	first = len(f.topics[topic]) == 0
	f.topics[topic] = append(f.topics[topic], s)
	f.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if f.remove(topic, s) && onLast != nil {
				onLast()
			}
		})
	}

	return &domain.Subscription[T]{Stream: s.ch, Unsubscribe: unsubscribe, Topic: topic}, first
}

func (f *Fanout[T]) remove(topic string, s *subscriber[T]) (last bool) {
	f.mu.Lock()
	subs := f.topics[topic]
	found := false
	for i, other := range subs {
		if other == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			found = true
			break
		}
	}
	if len(subs) == 0 {
		delete(f.topics, topic)
	} else {
		f.topics[topic] = subs
	}
	f.mu.Unlock()

	if !found {
		return false
	}
	s.close()
	return len(subs) == 0
}

// Publish blocks until every current subscriber of topic took v or left,
// and returns how many took it.
func (f *Fanout[T]) Publish(topic string, v T) int {
	f.mu.Lock()
	subs := f.topics[topic]
	f.mu.Unlock()

	n := 0
	for _, s := range subs {
		if s.deliver(v) {
			n++
		}
	}
	return n
}

func (f *Fanout[T]) Subscribers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics[topic])
}

func (f *Fanout[T]) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.topics))
	for topic := range f.topics {
		out = append(out, topic)
	}
	return out
}

// Close ends every subscription; later subscriptions get a closed stream.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	topics := f.topics
	f.topics = make(map[string][]*subscriber[T])
	f.closed = true
	f.mu.Unlock()

	for _, subs := range topics {
		for _, s := range subs {
			s.close()
		}
	}
}
