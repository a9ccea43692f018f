package model

// NumColumns is the width of a candle row. The exchange's raw kline
// payload carries one extra trailing column ("ignore") that is dropped
// before rows reach this package.
const NumColumns = 11

// Column names in row order.
var Columns = []string{
	"timestamp", "open", "low", "high", "close", "volume", "close_time",
	"quote_asset_volume", "n_trades", "taker_buy_base_volume", "taker_buy_quote_volume",
}

// Candle is one closed or in-progress kline. All values are float64,
// including the millisecond timestamps and the trade count, so a row
// can be handed to numeric consumers as-is. OpenTime is the unique key
// inside a buffer.
type Candle struct {
	OpenTime            float64 // interval start, epoch ms
	Open                float64
	Low                 float64
	High                float64
	Close               float64
	Volume              float64
	CloseTime           float64 // interval end, epoch ms
	QuoteAssetVolume    float64
	TradeCount          float64
	TakerBuyBaseVolume  float64
	TakerBuyQuoteVolume float64
}

// Row returns the candle as an 11-column slice in Columns order.
func (c Candle) Row() []float64 {
	return []float64{
		c.OpenTime, c.Open, c.Low, c.High, c.Close, c.Volume, c.CloseTime,
		c.QuoteAssetVolume, c.TradeCount, c.TakerBuyBaseVolume, c.TakerBuyQuoteVolume,
	}
}

// CandleFromRow builds a Candle from an 11-column row. Extra columns
// are ignored; short rows leave the remaining fields zero.
func CandleFromRow(row []float64) Candle {
	var c Candle
	dst := []*float64{
		&c.OpenTime, &c.Open, &c.Low, &c.High, &c.Close, &c.Volume, &c.CloseTime,
		&c.QuoteAssetVolume, &c.TradeCount, &c.TakerBuyBaseVolume, &c.TakerBuyQuoteVolume,
	}
	for i, p := range dst {
		if i >= len(row) {
			break
		}
		*p = row[i]
	}
	return c
}
