package exchange

import "github.com/pkg/errors"

// New — фабрика адаптеров по имени биржи из конфига. Passphrase нужна
// только gdax, остальные её игнорируют.
func New(title, key, secret, passphrase string) (Adapter, error) {
	switch title {
	case "binance":
		return NewBinance(key, secret), nil
	case "hitbtc":
		return NewHitBTC(key, secret), nil
	case "gdax":
		return NewGdax(key, secret, passphrase), nil
	default:
		return nil, errors.Errorf("unknown exchange %q", title)
	}
}
