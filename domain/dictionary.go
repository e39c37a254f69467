package domain

import "fmt"

type FieldDef struct {
	ID   FieldID
	Name string
	Kind ValueKind
}

// Dictionary maps wire field names to ids and value kinds. It is immutable
// after construction and safe for concurrent use.
type Dictionary struct {
	byName map[string]FieldDef
	byID   map[FieldID]FieldDef
}

func NewDictionary(defs ...FieldDef) (*Dictionary, error) {
	d := &Dictionary{
		byName: make(map[string]FieldDef, len(defs)),
		byID:   make(map[FieldID]FieldDef, len(defs)),
	}
	for _, def := range defs {
		if def.ID == FieldUnknown || def.Name == "" {
			return nil, fmt.Errorf("invalid field definition %+v", def)
		}
		if _, ok := d.byName[def.Name]; ok {
			return nil, fmt.Errorf("duplicate field name %q", def.Name)
		}
		if _, ok := d.byID[def.ID]; ok {
			return nil, fmt.Errorf("duplicate field id %d", def.ID)
		}
		d.byName[def.Name] = def
		d.byID[def.ID] = def
	}
	return d, nil
}

var defaultFields = []FieldDef{
	{FieldBidPrice, "bid_price", KindDecimal},
	{FieldBidSize, "bid_size", KindDecimal},
	{FieldAskPrice, "ask_price", KindDecimal},
	{FieldAskSize, "ask_size", KindDecimal},
	{FieldQuoteTime, "quote_time", KindTime},
	{FieldQuoteCount, "quote_count", KindInt},
	{FieldTradePrice, "trade_price", KindDecimal},
	{FieldTradeSize, "trade_size", KindDecimal},
	{FieldTradeTime, "trade_time", KindTime},
	{FieldTradeID, "trade_id", KindString},
	{FieldTradeCount, "trade_count", KindInt},
	{FieldTotalVolume, "total_volume", KindDecimal},
	{FieldHighPrice, "high_price", KindDecimal},
	{FieldLowPrice, "low_price", KindDecimal},
	{FieldOpenPrice, "open_price", KindDecimal},
	{FieldClosePrice, "close_price", KindDecimal},
	{FieldOrigSeqNum, "orig_seq_num", KindInt},
	{FieldCorrPrice, "corr_price", KindDecimal},
	{FieldCorrSize, "corr_size", KindDecimal},
	{FieldSecStatus, "sec_status", KindString},
	{FieldSecStatusReason, "sec_status_reason", KindString},
	{FieldSecStatusTime, "sec_status_time", KindTime},
}

// DefaultDictionary returns the dictionary of the built-in fields, optionally
// extended with user defined ones.
func DefaultDictionary(extra ...FieldDef) (*Dictionary, error) {
	defs := make([]FieldDef, 0, len(defaultFields)+len(extra))
	defs = append(defs, defaultFields...)
	defs = append(defs, extra...)
	return NewDictionary(defs...)
}

func (d *Dictionary) Lookup(name string) (FieldDef, bool) {
	def, ok := d.byName[name]
	return def, ok
}

func (d *Dictionary) Def(id FieldID) (FieldDef, bool) {
	def, ok := d.byID[id]
	return def, ok
}

// Name returns the wire name of id, or its number when unregistered.
func (d *Dictionary) Name(id FieldID) string {
	if def, ok := d.byID[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("field#%d", id)
}

func (d *Dictionary) Len() int {
	return len(d.byID)
}
