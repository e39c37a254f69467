package domain

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const missing = "missing"

// BookDiff is one disagreement between a live book and a reference snapshot.
type BookDiff struct {
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	EntryID  string          `json:"entryId,omitempty"`
	Field    string          `json:"field"`
	Live     string          `json:"live"`
	Snapshot string          `json:"snapshot"`
}

func (d BookDiff) String() string {
	where := fmt.Sprintf("%s@%s", d.Side, d.Price)
	if d.EntryID != "" {
		where += "/" + d.EntryID
	}
	return fmt.Sprintf("%s %s: live=%s snapshot=%s", where, d.Field, d.Live, d.Snapshot)
}

// CompareBooks lists every difference between live and snap level by level.
// Entries are compared by id when compareEntries is set.
func CompareBooks(live, snap *BookSnapshot, compareEntries bool) []BookDiff {
	var diffs []BookDiff
	diffs = compareSide(diffs, SideBid, live.Bids, snap.Bids, compareEntries)
	diffs = compareSide(diffs, SideAsk, live.Asks, snap.Asks, compareEntries)
	return diffs
}

func compareSide(diffs []BookDiff, side Side, live, snap []PriceLevel, compareEntries bool) []BookDiff {
	i, j := 0, 0
	for i < len(live) || j < len(snap) {
		switch {
		case j >= len(snap) || (i < len(live) && better(side, live[i].Price, snap[j].Price)):
			diffs = append(diffs, BookDiff{
				Side: side, Price: live[i].Price, Field: "level",
				Live: live[i].Size.String(), Snapshot: missing,
			})
			i++
		case i >= len(live) || better(side, snap[j].Price, live[i].Price):
			diffs = append(diffs, BookDiff{
				Side: side, Price: snap[j].Price, Field: "level",
				Live: missing, Snapshot: snap[j].Size.String(),
			})
			j++
		default:
			diffs = compareLevel(diffs, &live[i], &snap[j], compareEntries)
			i++
			j++
		}
	}
	return diffs
}

func compareLevel(diffs []BookDiff, live, snap *PriceLevel, compareEntries bool) []BookDiff {
	if !live.Size.Equal(snap.Size) {
		diffs = append(diffs, BookDiff{
			Side: live.Side, Price: live.Price, Field: "size",
			Live: live.Size.String(), Snapshot: snap.Size.String(),
		})
	}
	if live.NumEntries != snap.NumEntries {
		diffs = append(diffs, BookDiff{
			Side: live.Side, Price: live.Price, Field: "num_entries",
			Live: strconv.Itoa(live.NumEntries), Snapshot: strconv.Itoa(snap.NumEntries),
		})
	}
	if !compareEntries {
		return diffs
	}

	for _, e := range live.Entries {
		other, ok := snap.Entry(e.ID)
		switch {
		case !ok:
			diffs = append(diffs, BookDiff{
				Side: live.Side, Price: live.Price, EntryID: e.ID, Field: "entry",
				Live: e.Size.String(), Snapshot: missing,
			})
		case !other.Size.Equal(e.Size):
			diffs = append(diffs, BookDiff{
				Side: live.Side, Price: live.Price, EntryID: e.ID, Field: "entry_size",
				Live: e.Size.String(), Snapshot: other.Size.String(),
			})
		}
	}
	for _, e := range snap.Entries {
		if _, ok := live.Entry(e.ID); !ok {
			diffs = append(diffs, BookDiff{
				Side: live.Side, Price: live.Price, EntryID: e.ID, Field: "entry",
				Live: missing, Snapshot: e.Size.String(),
			})
		}
	}
	return diffs
}

// better reports whether a sorts before b on side.
func better(side Side, a, b decimal.Decimal) bool {
	if side == SideBid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}
