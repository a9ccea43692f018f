package model

import "sync"

// evictEnd selects which end of the buffer gives way when an insertion
// would exceed capacity.
type evictEnd int

const (
	evictHead evictEnd = iota // oldest record dropped (live appends)
	evictTail                 // newest record dropped (backfill inserts)
)

// CandleBuffer is a fixed-capacity sequence of candles ordered by
// strictly increasing OpenTime. Live appends extend the tail and evict
// from the head; backfill inserts extend the head and evict from the
// tail. Both the backfill loop and the stream consumer mutate it from
// their own goroutines, so every operation holds the one mutex.
type CandleBuffer struct {
	mu       sync.Mutex
	capacity int
	candles  []Candle
}

func NewCandleBuffer(capacity int) *CandleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CandleBuffer{
		capacity: capacity,
		candles:  make([]Candle, 0, capacity),
	}
}

func (b *CandleBuffer) Capacity() int { return b.capacity }

func (b *CandleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.candles)
}

// IsFull reports whether the buffer holds exactly Capacity records.
func (b *CandleBuffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.candles) == b.capacity
}

// MissingCount returns how many records the buffer is short of full.
func (b *CandleBuffer) MissingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity - len(b.candles)
}

// OldestOpenTime returns the head record's open time. ok is false on an
// empty buffer.
func (b *CandleBuffer) OldestOpenTime() (ts float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.candles) == 0 {
		return 0, false
	}
	return b.candles[0].OpenTime, true
}

// NewestOpenTime returns the tail record's open time. ok is false on an
// empty buffer.
func (b *CandleBuffer) NewestOpenTime() (ts float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.candles) == 0 {
		return 0, false
	}
	return b.candles[len(b.candles)-1].OpenTime, true
}

// AppendTail inserts c at the newest end, evicting the oldest record if
// the buffer is full. Duplicate suppression is the caller's job.
func (b *CandleBuffer) AppendTail(c Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertTail(c, evictHead)
}

// PrependHead inserts records, given oldest to newest, at the oldest
// end. Each single insertion evicts the current newest record if the
// buffer is already full.
func (b *CandleBuffer) PrependHead(records []Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(records) - 1; i >= 0; i-- {
		b.insertHead(records[i], evictTail)
	}
}

// FillFromHead applies one backfill batch. rows are the fetched
// candles, oldest to newest, where the final row duplicates the record
// already at the head (the range request's inclusive boundary). The
// missing count is recomputed under the lock so live appends that
// landed while the fetch was in flight shrink the fill instead of
// being evicted from the tail. Returns the number of records inserted.
func (b *CandleBuffer) FillFromHead(rows []Candle) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	missing := b.capacity - len(b.candles)
	if missing <= 0 || len(rows) == 0 {
		return 0
	}
	// Keep the newest missing+1 rows, then drop the boundary duplicate.
	if len(rows) > missing+1 {
		rows = rows[len(rows)-(missing+1):]
	}
	rows = rows[:len(rows)-1]

	inserted := 0
	for i := len(rows) - 1; i >= 0; i-- {
		b.insertHead(rows[i], evictTail)
		inserted++
	}
	return inserted
}

// Snapshot returns an ordered copy. Mutators never block on readers
// holding the result.
func (b *CandleBuffer) Snapshot() []Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Candle, len(b.candles))
	copy(out, b.candles)
	return out
}

// Rows returns the snapshot as NumColumns-wide float64 rows.
func (b *CandleBuffer) Rows() [][]float64 {
	snap := b.Snapshot()
	rows := make([][]float64, len(snap))
	for i, c := range snap {
		rows[i] = c.Row()
	}
	return rows
}

// insertTail and insertHead assume b.mu is held.

func (b *CandleBuffer) insertTail(c Candle, policy evictEnd) {
	if len(b.candles) == b.capacity {
		b.evict(policy)
	}
	b.candles = append(b.candles, c)
}

func (b *CandleBuffer) insertHead(c Candle, policy evictEnd) {
	if len(b.candles) == b.capacity {
		b.evict(policy)
	}
	b.candles = append(b.candles, Candle{})
	copy(b.candles[1:], b.candles)
	b.candles[0] = c
}

func (b *CandleBuffer) evict(policy evictEnd) {
	if policy == evictHead {
		copy(b.candles, b.candles[1:])
		b.candles = b.candles[:len(b.candles)-1]
		return
	}
	b.candles = b.candles[:len(b.candles)-1]
}
