package domain_test

import (
	"testing"

	"github.com/spooky-finn/go-marketdata-checker/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewSubscriptionKey(t *testing.T) {
	tests := []struct {
		name           string
		source, symbol string
		expectError    bool
	}{
		{"ValidKey", "WS", "BTC_USDT", false},
		{"EmptySource", "", "BTC_USDT", true},
		{"EmptySymbol", "ws", "", true},
		{"ColonInSource", "w:s", "BTC_USDT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewSubscriptionKey(tt.source, tt.symbol)

			if tt.expectError {
				assert.Error(t, err, "NewSubscriptionKey() should return an error")
			} else {
				assert.NoError(t, err, "NewSubscriptionKey() should not return an error")
			}
		})
	}
}

func TestNewSubscriptionKeyFromString(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		expectError bool
	}{
		{"ValidString", "ws:BTC_USDT", false},
		{"SymbolWithColon", "ws:ES:Z5", false},
		{"NoSeparator", "BTC_USDT", true},
		{"EmptyString", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewSubscriptionKeyFromString(tt.key)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscriptionKey_StringAndEqual(t *testing.T) {
	k1, _ := domain.NewSubscriptionKey("WS", "BTC_USDT")
	k2 := domain.SubscriptionKey{Source: "ws", Symbol: "BTC_USDT"}
	k3 := domain.SubscriptionKey{Source: "ws", Symbol: "ETH_USDT"}

	assert.Equal(t, "ws:BTC_USDT", k1.String(), "source is lowercased, symbol kept")
	assert.True(t, k1.Equal(&k2))
	assert.False(t, k1.Equal(&k3))
}

func TestParseSubscriptionKeys(t *testing.T) {
	keys, err := domain.ParseSubscriptionKeys("ws", []string{"BTC_USDT", "WS:ETH_USDT", "replay:SOL_USDT"})
	assert.NoError(t, err)

	var got []string
	for _, k := range keys {
		got = append(got, k.String())
	}
	assert.Equal(t, []string{"ws:BTC_USDT", "ws:ETH_USDT", "replay:SOL_USDT"}, got)

	_, err = domain.ParseSubscriptionKeys("ws", []string{"BTC_USDT", "ws:BTC_USDT"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = domain.ParseSubscriptionKeys("ws", []string{":BTC_USDT"})
	assert.Error(t, err)
}
