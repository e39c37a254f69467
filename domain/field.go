package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// FieldID identifies a field within a message. Ids are resolved from wire
// names through a Dictionary.
type FieldID uint16

const (
	FieldUnknown FieldID = iota

	FieldBidPrice
	FieldBidSize
	FieldAskPrice
	FieldAskSize
	FieldQuoteTime
	FieldQuoteCount

	FieldTradePrice
	FieldTradeSize
	FieldTradeTime
	FieldTradeID
	FieldTradeCount
	FieldTotalVolume
	FieldHighPrice
	FieldLowPrice
	FieldOpenPrice
	FieldClosePrice
	FieldOrigSeqNum
	FieldCorrPrice
	FieldCorrSize

	FieldSecStatus
	FieldSecStatusReason
	FieldSecStatusTime

	// FieldUser is the first id free for dictionary extensions.
	FieldUser FieldID = 1000
)

type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindDecimal
	KindInt
	KindString
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindDecimal:
		return "decimal"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	}
	return "none"
}

// FieldValue is a tagged value carried by a message field.
type FieldValue struct {
	Kind ValueKind
	Dec  decimal.Decimal
	Int  int64
	Str  string
	Time time.Time
}

func DecimalValue(d decimal.Decimal) FieldValue { return FieldValue{Kind: KindDecimal, Dec: d} }
func IntValue(i int64) FieldValue               { return FieldValue{Kind: KindInt, Int: i} }
func StringValue(s string) FieldValue           { return FieldValue{Kind: KindString, Str: s} }
func TimeValue(t time.Time) FieldValue          { return FieldValue{Kind: KindTime, Time: t} }

// PriceValue parses s as a decimal and panics on malformed input. Meant for
// literals in tests and fixtures.
func PriceValue(s string) FieldValue {
	return DecimalValue(decimal.RequireFromString(s))
}

func (v FieldValue) IsZero() bool { return v.Kind == KindNone }

// Equal compares by kind and value; decimals compare numerically so 10.10
// equals 10.1.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindDecimal:
		return v.Dec.Equal(o.Dec)
	case KindInt:
		return v.Int == o.Int
	case KindString:
		return v.Str == o.Str
	case KindTime:
		return v.Time.Equal(o.Time)
	}
	return true
}

// Decimal returns the value as a decimal; ints are widened, anything else is zero.
func (v FieldValue) Decimal() decimal.Decimal {
	switch v.Kind {
	case KindDecimal:
		return v.Dec
	case KindInt:
		return decimal.NewFromInt(v.Int)
	}
	return decimal.Zero
}

func (v FieldValue) String() string {
	switch v.Kind {
	case KindDecimal:
		return v.Dec.String()
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	}
	return "<none>"
}

// ParseValue converts the textual form s into a value of the given kind.
func ParseValue(kind ValueKind, s string) (FieldValue, error) {
	switch kind {
	case KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return FieldValue{}, err
		}
		return DecimalValue(d), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return FieldValue{}, err
		}
		return IntValue(i), nil
	case KindString:
		return StringValue(s), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return FieldValue{}, err
		}
		return TimeValue(t), nil
	}
	return FieldValue{}, fmt.Errorf("unsupported value kind %d", kind)
}
