package ta

import (
	"crypto-candles-feed/internal/model"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"
)

// TAData holds the price series extracted from one candle snapshot and
// the latest value of each computed indicator.
type TAData struct {
	Close  []float64
	High   []float64
	Low    []float64
	Volume []float64

	MA       float64
	RSI      float64
	BBandsUp float64
	BBandsDn float64
	ATR      float64
	MACD     []float64
	MACDHist []float64
}

// TACalculator computes indicators from feed snapshots. The feed is
// pull-based, so every Compute works on a fresh ordered snapshot
// instead of accumulating incremental updates.
type TACalculator struct {
	MinHistoryLen int // candles required before indicators are meaningful
	Logger        *zap.Logger
}

// NewTACalculator initializes the indicator calculator. The default
// minimum history covers the longest lookback used (MACD slow 26).
func NewTACalculator(logger *zap.Logger) *TACalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TACalculator{
		MinHistoryLen: 30,
		Logger:        logger,
	}
}

// Compute extracts the series from candles (oldest first) and
// calculates the indicator set. ok is false when the snapshot is too
// short.
func (tc *TACalculator) Compute(candles []model.Candle) (*TAData, bool) {
	if len(candles) < tc.MinHistoryLen {
		tc.Logger.Debug("Not enough history for calculation", zap.Int("len", len(candles)))
		return nil, false
	}

	taData := &TAData{
		Close:  make([]float64, len(candles)),
		High:   make([]float64, len(candles)),
		Low:    make([]float64, len(candles)),
		Volume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		taData.Close[i] = c.Close
		taData.High[i] = c.High
		taData.Low[i] = c.Low
		taData.Volume[i] = c.Volume
	}

	tc.calculate(taData)
	return taData, true
}

func (tc *TACalculator) calculate(taData *TAData) {
	closePrices := taData.Close

	maPeriod := 20
	maResult := talib.Sma(closePrices, maPeriod)
	taData.MA = maResult[len(maResult)-1]

	rsiPeriod := 14
	rsiResult := talib.Rsi(closePrices, rsiPeriod)
	taData.RSI = rsiResult[len(rsiResult)-1]

	bbandsUp, _, bbandsDn := talib.BBands(closePrices, 20, 2, 2, talib.SMA)
	taData.BBandsUp = bbandsUp[len(bbandsUp)-1]
	taData.BBandsDn = bbandsDn[len(bbandsDn)-1]

	macd, _, hist := talib.Macd(closePrices, 12, 26, 9)
	taData.MACD = macd
	taData.MACDHist = hist

	// talib ATR needs the High, Low and Close series together.
	atrResult := talib.Atr(taData.High, taData.Low, closePrices, 14)
	taData.ATR = atrResult[len(atrResult)-1]
}
