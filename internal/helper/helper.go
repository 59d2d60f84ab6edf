package helper

import (
	"context"
	"strings"
	"time"
)

// Stagger — пауза между последовательными вызовами биржи (rate limit).
// Возвращает false, если контекст погашен раньше срока.
func Stagger(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// BaseAsset вырезает котировочную валюту из символа: "BTCUSDT" -> "BTC",
// "BTC-USD" -> "BTC" (хвостовой разделитель тоже снимается).
func BaseAsset(symbol, quote string) string {
	base := strings.TrimSuffix(symbol, quote)
	return strings.TrimSuffix(base, "-")
}

// LastN — хвост среза длиной не более n (исходный срез не копируется).
func LastN(vals []float64, n int) []float64 {
	if n <= 0 || len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}
