package domain

import (
	"sync"
)

// OrderBookStorage indexes live books by source and symbol.
type OrderBookStorage struct {
	mu      sync.RWMutex
	storage map[string]map[string]*OrderBook
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[string]map[string]*OrderBook),
	}
}

func (o *OrderBookStorage) Add(key *SubscriptionKey, orderBook *OrderBook) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[key.Source]; !ok {
		o.storage[key.Source] = make(map[string]*OrderBook)
	}
	o.storage[key.Source][key.Symbol] = orderBook
}

func (o *OrderBookStorage) Get(key *SubscriptionKey) (*OrderBook, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[key.Source]
	if !ok {
		return nil, ErrSourceNotFound
	}
	book, ok := books[key.Symbol]
	if !ok {
		return nil, ErrOrderBookNotFound
	}
	return book, nil
}

func (o *OrderBookStorage) Remove(key *SubscriptionKey) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if books, ok := o.storage[key.Source]; ok {
		delete(books, key.Symbol)
		if len(books) == 0 {
			delete(o.storage, key.Source)
		}
	}
}

// OrderBookCount returns -1 for an unknown source.
func (o *OrderBookStorage) OrderBookCount(source string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[source]
	if !ok {
		return -1
	}
	return len(books)
}
