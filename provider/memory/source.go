// Package memory is an in-process provider.Source used for tests and replays.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/spooky-finn/go-marketdata-checker/provider"
)

type Source struct {
	fanout *provider.Fanout[domain.Message]

	mu        sync.Mutex
	snapshots map[string]domain.Message
	waiters   map[string][]chan domain.Message
	recaps    []string
	onRecap   func(symbol string)
}

func NewSource(bufSize int) *Source {
	return &Source{
		fanout:    provider.NewFanout[domain.Message](bufSize),
		snapshots: make(map[string]domain.Message),
		waiters:   make(map[string][]chan domain.Message),
	}
}

func (s *Source) Subscribe(symbol string) (*domain.Subscription[domain.Message], error) {
	if symbol == "" {
		return nil, fmt.Errorf("memory source: empty symbol")
	}
	sub, _ := s.fanout.Subscribe(symbol, nil)
	return sub, nil
}

// Publish hands msg to every subscriber of its symbol and returns how many
// took it.
func (s *Source) Publish(msg domain.Message) int {
	return s.fanout.Publish(msg.Symbol(), msg)
}

// SetSnapshot stores the answer for later RequestSnapshot calls and wakes
// requests already waiting for the symbol.
func (s *Source) SetSnapshot(msg domain.Message) {
	s.mu.Lock()
	s.snapshots[msg.Symbol()] = msg
	waiters := s.waiters[msg.Symbol()]
	delete(s.waiters, msg.Symbol())
	s.mu.Unlock()

	for _, w := range waiters {
		w <- msg
	}
}

func (s *Source) ClearSnapshot(symbol string) {
	s.mu.Lock()
	delete(s.snapshots, symbol)
	s.mu.Unlock()
}

// RequestSnapshot returns the stored snapshot or waits for one until ctx is
// done.
func (s *Source) RequestSnapshot(ctx context.Context, symbol string) (domain.Message, error) {
	s.mu.Lock()
	if msg, ok := s.snapshots[symbol]; ok {
		s.mu.Unlock()
		return msg, nil
	}
	w := make(chan domain.Message, 1)
	s.waiters[symbol] = append(s.waiters[symbol], w)
	s.mu.Unlock()

	select {
	case msg := <-w:
		return msg, nil
	case <-ctx.Done():
		s.dropWaiter(symbol, w)
		return nil, fmt.Errorf("snapshot %s: %w", symbol, ctx.Err())
	}
}

func (s *Source) dropWaiter(symbol string, w chan domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiters := s.waiters[symbol]
	for i, other := range waiters {
		if other == w {
			s.waiters[symbol] = append(waiters[:i:i], waiters[i+1:]...)
			return
		}
	}
}

// OnRecap installs a hook run for every recap request, e.g. to publish the
// recap message in a replay.
func (s *Source) OnRecap(fn func(symbol string)) {
	s.mu.Lock()
	s.onRecap = fn
	s.mu.Unlock()
}

func (s *Source) RequestRecap(symbol string) error {
	s.mu.Lock()
	s.recaps = append(s.recaps, symbol)
	fn := s.onRecap
	s.mu.Unlock()

	if fn != nil {
		fn(symbol)
	}
	return nil
}

// RecapRequests lists requested symbols in request order.
func (s *Source) RecapRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recaps...)
}

func (s *Source) Subscribers(symbol string) int {
	return s.fanout.Subscribers(symbol)
}

func (s *Source) Close() {
	s.fanout.Close()
}
