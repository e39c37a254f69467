package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderBookNotFound = errors.New("order book not found")
	ErrSourceNotFound    = errors.New("source not found")

	// A gap means updates were lost; the receiver needs a recap to resync.
	ErrSequenceGap = errors.New("message is out of sequence")
	// Duplicates are skipped.
	ErrSequenceDuplicate = errors.New("message is a duplicate")

	ErrLevelNotFound   = errors.New("price level not found")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrLevelHasEntries = errors.New("price level still has entries")
	ErrSizeMismatch    = errors.New("level size does not match its entries")
	ErrUnknownSide     = errors.New("unknown book side")
	ErrCrossedBook     = errors.New("book is crossed")
)

// BookError describes a structural inconsistency found while applying a book
// message. The book is left unchanged when one is returned.
type BookError struct {
	Op       string
	Side     Side
	Price    decimal.Decimal
	EntryID  string
	Expected string
	Actual   string
	SeqNum   uint64
	Err      error
}

func (e *BookError) Error() string {
	msg := fmt.Sprintf("book %s %s@%s", e.Op, e.Side, e.Price)
	if e.EntryID != "" {
		msg += " entry=" + e.EntryID
	}
	if e.SeqNum != 0 {
		msg += fmt.Sprintf(" seq=%d", e.SeqNum)
	}
	msg += ": " + e.Err.Error()
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(" (expected %s, actual %s)", e.Expected, e.Actual)
	}
	return msg
}

func (e *BookError) Unwrap() error {
	return e.Err
}

// ConfigError is returned by constructors given an unusable configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}
