package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-marketdata-checker/domain"
)

// Frame is the envelope of every websocket message. Stream frames carry a
// topic and data; responses carry the request id and either a result or an
// error.
type Frame struct {
	Stream string          `json:"stream,omitempty"`
	ID     string          `json:"id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Request struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// wireMessage.Seq is one sequence per symbol shared by book and field
// messages.
type wireMessage struct {
	Type   string                     `json:"type"`
	Status string                     `json:"status,omitempty"`
	Seq    uint64                     `json:"seq"`
	Symbol string                     `json:"symbol"`
	Time   time.Time                  `json:"time"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
	Levels []wireLevel                `json:"levels,omitempty"`
}

type wireLevel struct {
	Side       string          `json:"side"`
	Action     string          `json:"action"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	NumEntries int             `json:"numEntries,omitempty"`
	Time       time.Time       `json:"time"`
	Entries    []wireEntry     `json:"entries,omitempty"`
}

type wireEntry struct {
	Action string          `json:"action"`
	ID     string          `json:"id"`
	Size   decimal.Decimal `json:"size"`
	Time   time.Time       `json:"time"`
}

// DecodeMessage turns the data of a stream frame into a message. Field names
// missing from dict are skipped; present fields are ordered by id.
func DecodeMessage(dict *domain.Dictionary, data []byte) (*domain.RawMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	msgType, err := domain.ParseMsgType(w.Type)
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseMsgStatus(w.Status)
	if err != nil {
		return nil, err
	}

	msg := domain.NewRawMessage(msgType, w.Symbol, w.Seq).WithStatus(status).WithTime(w.Time)

	defs := make([]domain.FieldDef, 0, len(w.Fields))
	for name := range w.Fields {
		if def, ok := dict.Lookup(name); ok {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	for _, def := range defs {
		v, err := decodeValue(def, w.Fields[def.Name])
		if err != nil {
			return nil, err
		}
		msg.Set(def.ID, v)
	}

	for i, l := range w.Levels {
		level, err := decodeLevel(l)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		msg.AddLevel(level)
	}

	return msg, nil
}

// decodeValue accepts both quoted and bare JSON scalars.
func decodeValue(def domain.FieldDef, raw json.RawMessage) (domain.FieldValue, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return domain.FieldValue{}, fmt.Errorf("field %s: %w", def.Name, err)
		}
	}

	v, err := domain.ParseValue(def.Kind, text)
	if err != nil {
		return domain.FieldValue{}, fmt.Errorf("field %s: %w", def.Name, err)
	}
	return v, nil
}

func decodeLevel(l wireLevel) (domain.LevelAction, error) {
	side, err := domain.ParseSide(l.Side)
	if err != nil {
		return domain.LevelAction{}, err
	}
	action, err := domain.ParseAction(l.Action)
	if err != nil {
		return domain.LevelAction{}, err
	}

	level := domain.LevelAction{
		Action:     action,
		Side:       side,
		Price:      l.Price,
		Size:       l.Size,
		NumEntries: l.NumEntries,
		Time:       l.Time,
	}
	for _, e := range l.Entries {
		ea, err := domain.ParseAction(e.Action)
		if err != nil {
			return domain.LevelAction{}, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		level.Entries = append(level.Entries, domain.EntryAction{
			Action: ea,
			ID:     e.ID,
			Size:   e.Size,
			Time:   e.Time,
		})
	}
	return level, nil
}
