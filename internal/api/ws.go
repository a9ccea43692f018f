package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-candles-feed/internal/feed"
	"crypto-candles-feed/internal/model"
	"crypto-candles-feed/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// keepAliveTimeout bounds the handshake and the silence between
// frames. The exchange pings every few minutes; going this long
// without any frame means the connection is dead.
const keepAliveTimeout = 30 * time.Second

// subscribeRequest is the channel subscription message shape.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// wsKlineEvent is the generic stream message. Kline payload decoding
// is deferred until the event type is known.
type wsKlineEvent struct {
	EventType string         `json:"e"`
	Kline     wsKlinePayload `json:"k"`
}

type wsKlinePayload struct {
	OpenTime            int64  `json:"t"` // interval start, ms
	Open                string `json:"o"`
	Low                 string `json:"l"`
	High                string `json:"h"`
	Close               string `json:"c"`
	Volume              string `json:"v"`
	CloseTime           int64  `json:"T"` // interval end, ms
	QuoteAssetVolume    string `json:"q"`
	TradeCount          int64  `json:"n"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
}

// WsDialer implements feed.StreamDialer over gorilla/websocket.
type WsDialer struct {
	wsURL  string
	logger *zap.Logger
}

func NewWsDialer(wsURL string, logger *zap.Logger) *WsDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WsDialer{wsURL: wsURL, logger: logger}
}

// Dial opens a websocket connection. Dial failures are connection
// class: the supervisor retries them immediately, the handshake
// timeout being the only throttle.
func (d *WsDialer) Dial(ctx context.Context) (feed.StreamConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: keepAliveTimeout}
	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %v", feed.ErrStreamClosed, d.wsURL, err)
	}

	// Pings from the exchange refresh the read deadline; gorilla
	// answers them with pongs on its own during reads.
	conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
	defaultPingHandler := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
		return defaultPingHandler(appData)
	})

	d.logger.Info("Websocket connected", zap.String("URL", d.wsURL))
	return &WsConn{conn: conn, logger: d.logger}, nil
}

// WsConn is one live websocket connection.
type WsConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// Subscribe sends the SUBSCRIBE request for the given stream names.
func (c *WsConn) Subscribe(params []string, id int) error {
	msg := subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: id}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: subscribe write: %v", feed.ErrStreamClosed, err)
	}
	return nil
}

// ReadEvent blocks for the next stream message. Messages that fail to
// decode are skipped; read failures come back wrapped as
// feed.ErrStreamClosed so the supervisor reconnects without delay.
func (c *WsConn) ReadEvent() (feed.StreamEvent, error) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(keepAliveTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return feed.StreamEvent{}, fmt.Errorf("%w: read: %v", feed.ErrStreamClosed, err)
		}

		var ev wsKlineEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Debug("Skipping undecodable stream message", zap.Error(err))
			continue
		}
		if ev.EventType != feed.KlineEventType {
			// Subscribe acks and other control frames.
			return feed.StreamEvent{Type: ev.EventType}, nil
		}

		candle, err := ev.Kline.toCandle()
		if err != nil {
			c.logger.Warn("Skipping malformed kline payload", zap.Error(err))
			continue
		}
		return feed.StreamEvent{Type: feed.KlineEventType, Candle: candle}, nil
	}
}

func (c *WsConn) Close() error {
	return c.conn.Close()
}

func (p wsKlinePayload) toCandle() (model.Candle, error) {
	var c model.Candle
	var err error
	fields := []struct {
		dst *float64
		src string
	}{
		{&c.Open, p.Open},
		{&c.Low, p.Low},
		{&c.High, p.High},
		{&c.Close, p.Close},
		{&c.Volume, p.Volume},
		{&c.QuoteAssetVolume, p.QuoteAssetVolume},
		{&c.TakerBuyBaseVolume, p.TakerBuyBaseVolume},
		{&c.TakerBuyQuoteVolume, p.TakerBuyQuoteVolume},
	}
	for _, f := range fields {
		if *f.dst, err = service.StringToFloat(f.src); err != nil {
			return model.Candle{}, err
		}
	}
	c.OpenTime = float64(p.OpenTime)
	c.CloseTime = float64(p.CloseTime)
	c.TradeCount = float64(p.TradeCount)
	return c, nil
}
