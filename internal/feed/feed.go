package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-candles-feed/internal/model"
	"crypto-candles-feed/internal/service"

	"go.uber.org/zap"
)

// KlineEventType marks stream messages that carry a candle update.
// Anything else (subscribe acks, empty frames) is ignored.
const KlineEventType = "kline"

// Fixed loop timings. Package-level so tests can compress them.
var (
	backfillInterval = 1 * time.Second
	retryDelay       = 1 * time.Second
)

const subscribeID = 1

// ErrStreamClosed classifies connection-level stream failures (closed,
// reset, EOF). The supervisor reconnects immediately on these; every
// other failure waits retryDelay first.
var ErrStreamClosed = errors.New("stream connection closed")

// StreamEvent is one decoded push-stream message.
type StreamEvent struct {
	Type   string
	Candle model.Candle
}

// HistoryClient is the REST collaborator: bounded historical range
// queries plus a liveness probe.
type HistoryClient interface {
	// Klines returns candle rows, oldest to newest, 11 columns wide in
	// model.Columns order. startTime/endTime are epoch ms; zero means
	// unbounded.
	Klines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([][]float64, error)
	Ping(ctx context.Context) error
}

// StreamDialer opens push-stream connections.
type StreamDialer interface {
	Dial(ctx context.Context) (StreamConn, error)
}

// StreamConn is one live push-stream connection.
type StreamConn interface {
	Subscribe(params []string, id int) error
	ReadEvent() (StreamEvent, error)
	Close() error
}

// Config holds the per-feed settings.
type Config struct {
	TradingPair string // e.g. "BTC-USDT"
	Interval    string // e.g. "1m"
	MaxRecords  int    // buffer capacity N
}

// Feed maintains a bounded, gap-free window of candles for one
// trading pair and interval, merging a live websocket stream (tail)
// with REST backfill (head). One instance per (pair, interval);
// construct with New and wire it where needed.
type Feed struct {
	tradingPair string
	exPair      string
	interval    string
	maxRecords  int

	rest   HistoryClient
	dialer StreamDialer
	logger *zap.Logger

	mu     sync.Mutex
	buffer *model.CandleBuffer
	ready  *readyGate
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func New(cfg Config, rest HistoryClient, dialer StreamDialer, logger *zap.Logger) (*Feed, error) {
	if !service.ValidInterval(cfg.Interval) {
		return nil, fmt.Errorf("unsupported interval %q", cfg.Interval)
	}
	if cfg.MaxRecords < 1 {
		return nil, fmt.Errorf("max_records must be positive, got %d", cfg.MaxRecords)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		tradingPair: cfg.TradingPair,
		exPair:      service.NormalizePair(cfg.TradingPair),
		interval:    cfg.Interval,
		maxRecords:  cfg.MaxRecords,
		rest:        rest,
		dialer:      dialer,
		logger:      logger,
	}
	f.buffer = model.NewCandleBuffer(cfg.MaxRecords)
	f.ready = newReadyGate()
	return f, nil
}

// Name identifies the feed in logs.
func (f *Feed) Name() string {
	return fmt.Sprintf("candles_%s_%s", strings.ToLower(f.exPair), f.interval)
}

// Start launches the backfill and stream loops. A running instance is
// stopped first and its buffer and readiness state discarded, so Start
// doubles as restart.
func (f *Feed) Start() {
	f.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	buf := model.NewCandleBuffer(f.maxRecords)
	gate := newReadyGate()
	wg := &sync.WaitGroup{}

	f.mu.Lock()
	f.buffer = buf
	f.ready = gate
	f.cancel = cancel
	f.wg = wg
	f.mu.Unlock()

	f.logger.Info("Starting candles feed",
		zap.String("Feed", f.Name()),
		zap.Int("MaxRecords", f.maxRecords))

	wg.Add(2)
	go func() {
		defer wg.Done()
		f.fillCandlesLoop(ctx, buf, gate)
	}()
	go func() {
		defer wg.Done()
		f.listenForSubscriptions(ctx, buf, gate)
	}()
}

// Stop cancels both loops and waits for them to exit. Safe to call on
// a feed that never started.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	wg := f.wg
	f.cancel = nil
	f.wg = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wg != nil {
		wg.Wait()
	}
}

// IsReady reports whether the buffer has reached full capacity. This
// is the only externally visible failure signal: a feed that cannot
// fill stays not-ready, it never errors out.
func (f *Feed) IsReady() bool {
	return f.currentBuffer().IsFull()
}

// Candles returns an ordered snapshot, oldest first.
func (f *Feed) Candles() []model.Candle {
	return f.currentBuffer().Snapshot()
}

// Rows returns the snapshot as 11-column float64 rows in
// model.Columns order.
func (f *Feed) Rows() [][]float64 {
	return f.currentBuffer().Rows()
}

// CheckNetwork probes the REST collaborator. Success implies
// connectivity, nothing more.
func (f *Feed) CheckNetwork(ctx context.Context) error {
	return f.rest.Ping(ctx)
}

func (f *Feed) currentBuffer() *model.CandleBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffer
}

// fillCandlesLoop tops the buffer up from the head once per tick.
// Inert until the live stream has produced its first candle, so a
// historical fetch never races an as-yet-unconnected stream.
func (f *Feed) fillCandlesLoop(ctx context.Context, buf *model.CandleBuffer, gate *readyGate) {
	for {
		if gate.IsSet() {
			if missing := buf.MissingCount(); missing > 0 {
				if err := f.backfillOnce(ctx, buf, missing); err != nil {
					if ctx.Err() != nil {
						return
					}
					f.logger.Error("Failed to fetch historical klines, retrying in 1s",
						zap.String("Feed", f.Name()), zap.Error(err))
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backfillInterval):
		}
	}
}

func (f *Feed) backfillOnce(ctx context.Context, buf *model.CandleBuffer, missing int) error {
	endTime := time.Now().UnixMilli()
	if ts, ok := buf.OldestOpenTime(); ok {
		endTime = int64(ts)
	}

	// One extra record: the range end is inclusive, so the newest row
	// duplicates the candle already at the head and gets dropped by
	// the buffer fill.
	rows, err := f.rest.Klines(ctx, f.exPair, f.interval, missing+1, 0, endTime)
	if err != nil {
		return err
	}

	candles := make([]model.Candle, len(rows))
	for i, row := range rows {
		candles[i] = model.CandleFromRow(row)
	}
	inserted := buf.FillFromHead(candles)
	f.logger.Debug("Backfilled historical klines",
		zap.String("Feed", f.Name()),
		zap.Int("Fetched", len(rows)),
		zap.Int("Inserted", inserted))
	return nil
}

// listenForSubscriptions owns the stream connection lifecycle:
// connect, subscribe, consume until failure, close, retry. Connection
// drops reconnect immediately; anything else waits retryDelay.
func (f *Feed) listenForSubscriptions(ctx context.Context, buf *model.CandleBuffer, gate *readyGate) {
	for {
		err := f.streamCycle(ctx, buf, gate)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, ErrStreamClosed) {
			f.logger.Warn("The websocket connection was closed",
				zap.String("Feed", f.Name()), zap.Error(err))
			continue
		}
		f.logger.Error("Unexpected error while listening to public klines, retrying in 1s",
			zap.String("Feed", f.Name()), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// streamCycle runs one connect-subscribe-consume pass. The connection
// is closed on every exit path, including cancellation.
func (f *Feed) streamCycle(ctx context.Context, buf *model.CandleBuffer, gate *readyGate) error {
	conn, err := f.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the feed is cancelled.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopped:
		}
	}()

	if err := f.subscribe(ctx, conn, gate); err != nil {
		return err
	}

	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			return err
		}
		f.processStreamEvent(ev, buf, gate)
	}
}

func (f *Feed) subscribe(ctx context.Context, conn StreamConn, gate *readyGate) error {
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(f.exPair), f.interval)
	if err := conn.Subscribe([]string{stream}, subscribeID); err != nil {
		f.logger.Error("Unexpected error subscribing to public klines",
			zap.String("Feed", f.Name()), zap.Error(err))
		// Hold until live data has flowed at least once so a caller
		// polling readiness does not observe a spurious dead feed
		// before the first successful cycle.
		if werr := gate.Wait(ctx); werr != nil {
			return werr
		}
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	f.logger.Info("Subscribed to public klines", zap.String("Stream", stream))
	return nil
}

// processStreamEvent appends a live candle at the tail. The tail is
// mutated only from this goroutine (backfill only ever extends the
// head), so the read-then-append pair needs no extra coordination. A
// message repeating the current tail's open time is dropped: the
// first observed snapshot of a still-open candle wins.
func (f *Feed) processStreamEvent(ev StreamEvent, buf *model.CandleBuffer, gate *readyGate) {
	if ev.Type != KlineEventType {
		return
	}
	tail, ok := buf.NewestOpenTime()
	if !ok || tail != ev.Candle.OpenTime {
		buf.AppendTail(ev.Candle)
	}
	gate.Set()
}
