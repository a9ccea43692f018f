package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-candles-feed/internal/feed"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const klineMessage = `{
  "e": "kline", "E": 1700000030000, "s": "BTCUSDT",
  "k": {
    "t": 1700000000000, "T": 1700000059999, "s": "BTCUSDT", "i": "1m",
    "o": "100.0", "c": "103.0", "h": "105.0", "l": "99.0", "v": "12.5",
    "n": 42, "q": "1290.0", "V": "6.0", "Q": "620.0"
  }
}`

// wsTestServer upgrades one connection, records the subscribe request,
// answers with an ack plus a kline event, then closes.
func wsTestServer(t *testing.T) (url string, subscribed <-chan map[string]interface{}) {
	t.Helper()
	subCh := make(chan map[string]interface{}, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subCh <- sub

		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(klineMessage))
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http"), subCh
}

func TestWsConn_SubscribeAndRead(t *testing.T) {
	url, subscribed := wsTestServer(t)

	dialer := NewWsDialer(url, zap.NewNop())
	conn, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Subscribe([]string{"btcusdt@kline_1m"}, 1))

	select {
	case sub := <-subscribed:
		assert.Equal(t, "SUBSCRIBE", sub["method"])
		assert.Equal(t, []interface{}{"btcusdt@kline_1m"}, sub["params"])
		assert.Equal(t, float64(1), sub["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the subscribe request")
	}

	// Subscribe ack is not a kline event; it surfaces with an empty
	// type and gets ignored downstream.
	ack, err := conn.ReadEvent()
	require.NoError(t, err)
	assert.NotEqual(t, feed.KlineEventType, ack.Type)

	ev, err := conn.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, feed.KlineEventType, ev.Type)
	assert.Equal(t, float64(1700000000000), ev.Candle.OpenTime)
	assert.Equal(t, 100.0, ev.Candle.Open)
	assert.Equal(t, 99.0, ev.Candle.Low)
	assert.Equal(t, 105.0, ev.Candle.High)
	assert.Equal(t, 103.0, ev.Candle.Close)
	assert.Equal(t, 12.5, ev.Candle.Volume)
	assert.Equal(t, float64(1700000059999), ev.Candle.CloseTime)
	assert.Equal(t, 1290.0, ev.Candle.QuoteAssetVolume)
	assert.Equal(t, float64(42), ev.Candle.TradeCount)
	assert.Equal(t, 6.0, ev.Candle.TakerBuyBaseVolume)
	assert.Equal(t, 620.0, ev.Candle.TakerBuyQuoteVolume)

	// Server closed after the kline: the next read is a connection
	// class failure.
	_, err = conn.ReadEvent()
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrStreamClosed)
}

func TestWsDialer_DialFailureIsConnectionClass(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	dialer := NewWsDialer(url, zap.NewNop())
	_, err := dialer.Dial(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrStreamClosed)
}

func TestWsDialer_DialCancelled(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialer := NewWsDialer(url, zap.NewNop())
	_, err := dialer.Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
