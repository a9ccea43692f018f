package service

import (
	"strconv"
	"strings"
)

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// Intervals is the kline interval set the exchange accepts.
var Intervals = []string{
	"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// ValidInterval reports whether s is a supported kline interval.
func ValidInterval(s string) bool {
	for _, iv := range Intervals {
		if iv == s {
			return true
		}
	}
	return false
}

// NormalizePair converts a trading pair like "BTC-USDT" to the
// exchange symbol form "BTCUSDT".
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "-", ""))
}
