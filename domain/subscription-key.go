package domain

import (
	"fmt"
	"strings"
)

// SubscriptionKey names one entity on one source.
type SubscriptionKey struct {
	Source string
	Symbol string
}

func NewSubscriptionKey(source string, symbol string) (*SubscriptionKey, error) {
	if source == "" || symbol == "" {
		return nil, fmt.Errorf("source and symbol must not be empty")
	}
	if strings.Contains(source, ":") {
		return nil, fmt.Errorf("source must not contain ':'")
	}
	return &SubscriptionKey{
		Source: strings.ToLower(source),
		Symbol: symbol,
	}, nil
}

// NewSubscriptionKeyFromString parses the "source:symbol" form.
func NewSubscriptionKeyFromString(s string) (*SubscriptionKey, error) {
	source, symbol, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid subscription key %q", s)
	}
	return NewSubscriptionKey(source, symbol)
}

// ParseSubscriptionKeys turns configured entries into keys. An entry is
// either a bare symbol on defaultSource or the "source:symbol" form.
func ParseSubscriptionKeys(defaultSource string, entries []string) ([]*SubscriptionKey, error) {
	keys := make([]*SubscriptionKey, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		var (
			key *SubscriptionKey
			err error
		)
		if strings.Contains(entry, ":") {
			key, err = NewSubscriptionKeyFromString(entry)
		} else {
			key, err = NewSubscriptionKey(defaultSource, entry)
		}
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", entry, err)
		}
		if _, ok := seen[key.String()]; ok {
			return nil, fmt.Errorf("symbol %q: duplicate subscription", entry)
		}
		seen[key.String()] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

func (k *SubscriptionKey) String() string {
	return fmt.Sprintf("%s:%s", k.Source, k.Symbol)
}

func (k *SubscriptionKey) Equal(other *SubscriptionKey) bool {
	return k.Source == other.Source && k.Symbol == other.Symbol
}
