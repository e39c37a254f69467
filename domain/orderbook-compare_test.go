package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBook(t *testing.T, levels ...LevelAction) *BookSnapshot {
	t.Helper()
	ob := NewOrderBook("X", WithEntryTracking())
	require.NoError(t, ob.Rebuild(1, time.Time{}, levels))
	return ob.TakeSnapshot(0)
}

func TestCompareBooks(t *testing.T) {
	base := []LevelAction{
		level(ActionAdd, SideBid, "10", "0", entry(ActionAdd, "a", "1"), entry(ActionAdd, "b", "2")),
		level(ActionAdd, SideBid, "9", "0", entry(ActionAdd, "c", "5")),
		level(ActionAdd, SideAsk, "11", "0", entry(ActionAdd, "d", "4")),
	}

	t.Run("Identical", func(t *testing.T) {
		assert.Empty(t, CompareBooks(buildBook(t, base...), buildBook(t, base...), true))
	})

	t.Run("EntrySize", func(t *testing.T) {
		other := []LevelAction{
			level(ActionAdd, SideBid, "10", "0", entry(ActionAdd, "a", "1"), entry(ActionAdd, "b", "3")),
			base[1], base[2],
		}
		diffs := CompareBooks(buildBook(t, base...), buildBook(t, other...), true)

		require.Len(t, diffs, 2)
		assert.Equal(t, "size", diffs[0].Field)
		assert.Equal(t, "entry_size", diffs[1].Field)
		assert.Equal(t, "b", diffs[1].EntryID)
		assert.Equal(t, "2", diffs[1].Live)
		assert.Equal(t, "3", diffs[1].Snapshot)
	})

	t.Run("EntryOnlyWhenEnabled", func(t *testing.T) {
		other := []LevelAction{
			level(ActionAdd, SideBid, "10", "0", entry(ActionAdd, "a", "1"), entry(ActionAdd, "x", "2")),
			base[1], base[2],
		}
		assert.Empty(t, CompareBooks(buildBook(t, base...), buildBook(t, other...), false))

		diffs := CompareBooks(buildBook(t, base...), buildBook(t, other...), true)
		require.Len(t, diffs, 2)
		assert.Equal(t, BookDiff{Side: SideBid, Price: dec("10"), EntryID: "b", Field: "entry", Live: "2", Snapshot: "missing"}, diffs[0])
		assert.Equal(t, "x", diffs[1].EntryID)
		assert.Equal(t, "missing", diffs[1].Live)
	})

	t.Run("MissingAndExtraLevels", func(t *testing.T) {
		other := []LevelAction{
			base[0],
			level(ActionAdd, SideBid, "8", "0", entry(ActionAdd, "c", "5")),
			base[2],
		}
		diffs := CompareBooks(buildBook(t, base...), buildBook(t, other...), true)

		require.Len(t, diffs, 2)
		assert.Equal(t, "9", diffs[0].Price.String())
		assert.Equal(t, "missing", diffs[0].Snapshot)
		assert.Equal(t, "8", diffs[1].Price.String())
		assert.Equal(t, "missing", diffs[1].Live)
	})

	t.Run("EmptyVersusPopulated", func(t *testing.T) {
		diffs := CompareBooks(buildBook(t), buildBook(t, base[2]), false)
		require.Len(t, diffs, 1)
		assert.Equal(t, SideAsk, diffs[0].Side)
		assert.Contains(t, diffs[0].String(), "ask@11 level")
	})
}
