package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candleAt(ts float64) Candle {
	return Candle{
		OpenTime:  ts,
		Open:      ts + 0.1,
		Low:       ts - 1,
		High:      ts + 1,
		Close:     ts + 0.5,
		Volume:    10,
		CloseTime: ts + 59999,
	}
}

func openTimes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.OpenTime
	}
	return out
}

func assertInvariants(t *testing.T, b *CandleBuffer) {
	t.Helper()
	snap := b.Snapshot()
	assert.LessOrEqual(t, len(snap), b.Capacity())
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].OpenTime, snap[i].OpenTime,
			"open times must be strictly increasing")
	}
}

func TestCandleBuffer_AppendTailEvictsHead(t *testing.T) {
	b := NewCandleBuffer(3)
	for _, ts := range []float64{100, 200, 300, 400} {
		b.AppendTail(candleAt(ts))
		assertInvariants(t, b)
	}
	assert.Equal(t, []float64{200, 300, 400}, openTimes(b.Snapshot()))
	assert.True(t, b.IsFull())
	assert.Equal(t, 0, b.MissingCount())
}

func TestCandleBuffer_PrependHeadEvictsTail(t *testing.T) {
	b := NewCandleBuffer(3)
	b.AppendTail(candleAt(200))
	b.AppendTail(candleAt(300))

	// Two inserts into one free slot: the second evicts the newest
	// record from the opposite end.
	b.PrependHead([]Candle{candleAt(50), candleAt(100)})

	assert.Equal(t, []float64{50, 100, 200}, openTimes(b.Snapshot()))
	assertInvariants(t, b)
}

func TestCandleBuffer_FillFromHead(t *testing.T) {
	testCases := []struct {
		name     string
		capacity int
		seed     []float64 // appended at tail first
		rows     []float64 // fetched oldest to newest, last = boundary
		want     []float64
		inserted int
	}{
		{
			name:     "fills two missing, drops boundary duplicate",
			capacity: 3,
			seed:     []float64{300},
			rows:     []float64{100, 200, 300},
			want:     []float64{100, 200, 300},
			inserted: 2,
		},
		{
			name:     "oversized fetch keeps only the newest missing rows",
			capacity: 3,
			seed:     []float64{200, 300},
			rows:     []float64{50, 100, 150, 200},
			want:     []float64{150, 200, 300},
			inserted: 1,
		},
		{
			name:     "full buffer is untouched",
			capacity: 2,
			seed:     []float64{100, 200},
			rows:     []float64{50, 100},
			want:     []float64{100, 200},
			inserted: 0,
		},
		{
			name:     "boundary-only fetch inserts nothing",
			capacity: 3,
			seed:     []float64{300},
			rows:     []float64{300},
			want:     []float64{300},
			inserted: 0,
		},
		{
			name:     "short fetch fills what it can",
			capacity: 5,
			seed:     []float64{300},
			rows:     []float64{200, 300},
			want:     []float64{200, 300},
			inserted: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewCandleBuffer(tc.capacity)
			for _, ts := range tc.seed {
				b.AppendTail(candleAt(ts))
			}
			rows := make([]Candle, len(tc.rows))
			for i, ts := range tc.rows {
				rows[i] = candleAt(ts)
			}

			inserted := b.FillFromHead(rows)

			assert.Equal(t, tc.inserted, inserted)
			assert.Equal(t, tc.want, openTimes(b.Snapshot()))
			assertInvariants(t, b)
		})
	}
}

func TestCandleBuffer_OldestNewest(t *testing.T) {
	b := NewCandleBuffer(3)

	_, ok := b.OldestOpenTime()
	assert.False(t, ok)
	_, ok = b.NewestOpenTime()
	assert.False(t, ok)

	b.AppendTail(candleAt(100))
	b.AppendTail(candleAt(200))

	oldest, ok := b.OldestOpenTime()
	require.True(t, ok)
	assert.Equal(t, float64(100), oldest)

	newest, ok := b.NewestOpenTime()
	require.True(t, ok)
	assert.Equal(t, float64(200), newest)
}

func TestCandleBuffer_SnapshotIsolation(t *testing.T) {
	b := NewCandleBuffer(2)
	b.AppendTail(candleAt(100))

	snap := b.Snapshot()
	snap[0].OpenTime = 999

	got, ok := b.OldestOpenTime()
	require.True(t, ok)
	assert.Equal(t, float64(100), got, "snapshot mutation must not reach the buffer")
}

func TestCandleBuffer_Rows(t *testing.T) {
	b := NewCandleBuffer(2)
	b.AppendTail(candleAt(100))

	rows := b.Rows()
	require.Len(t, rows, 1)
	require.Len(t, rows[0], NumColumns)
	assert.Equal(t, float64(100), rows[0][0])
	assert.Equal(t, 100.1, rows[0][1]) // open
	assert.Equal(t, float64(99), rows[0][2])
	assert.Equal(t, float64(101), rows[0][3])
	assert.Equal(t, 100.5, rows[0][4])
}

func TestCandleFromRow_ColumnOrder(t *testing.T) {
	row := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	c := CandleFromRow(row)

	assert.Equal(t, float64(1), c.OpenTime)
	assert.Equal(t, float64(2), c.Open)
	assert.Equal(t, float64(3), c.Low)
	assert.Equal(t, float64(4), c.High)
	assert.Equal(t, float64(5), c.Close)
	assert.Equal(t, float64(6), c.Volume)
	assert.Equal(t, float64(7), c.CloseTime)
	assert.Equal(t, float64(8), c.QuoteAssetVolume)
	assert.Equal(t, float64(9), c.TradeCount)
	assert.Equal(t, float64(10), c.TakerBuyBaseVolume)
	assert.Equal(t, float64(11), c.TakerBuyQuoteVolume)
	assert.Equal(t, row, c.Row())
}
