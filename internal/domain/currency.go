package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Currency is the code of a supported asset.
type Currency string

const (
	USDT Currency = "USDT"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
)

// CurrencyInfo holds static reference data for a currency.
type CurrencyInfo struct {
	Code          Currency
	Name          string
	DecimalPlaces int // display precision, not storage precision
}

// BalanceScale is the fixed storage precision for all wallet balances.
// Every mutation is rounded half-up to this scale to prevent drift.
const BalanceScale = 8

var currencies = map[Currency]CurrencyInfo{
	USDT: {Code: USDT, Name: "Tether", DecimalPlaces: 2},
	BTC:  {Code: BTC, Name: "Bitcoin", DecimalPlaces: 8},
	ETH:  {Code: ETH, Name: "Ethereum", DecimalPlaces: 8},
}

// CurrencyFromCode resolves a currency code to its reference data.
func CurrencyFromCode(code string) (CurrencyInfo, error) {
	info, ok := currencies[Currency(code)]
	if !ok {
		return CurrencyInfo{}, &ValidationError{Msg: fmt.Sprintf("unknown currency: %s", code)}
	}
	return info, nil
}

// AllCurrencies returns every supported currency, sorted by code.
func AllCurrencies() []CurrencyInfo {
	result := make([]CurrencyInfo, 0, len(currencies))
	for _, info := range currencies {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// TradingPair is a tradable base/quote combination. The set is compiled in;
// pairs are never created or removed at runtime.
type TradingPair struct {
	Symbol      string
	Base        Currency
	Quote       Currency
	MinQuantity decimal.Decimal
}

var pairs = map[string]TradingPair{
	"BTCUSDT": {Symbol: "BTCUSDT", Base: BTC, Quote: USDT, MinQuantity: decimal.RequireFromString("0.00001")},
	"ETHUSDT": {Symbol: "ETHUSDT", Base: ETH, Quote: USDT, MinQuantity: decimal.RequireFromString("0.0001")},
}

// PairFromSymbol resolves a pair symbol (e.g. "BTCUSDT").
func PairFromSymbol(symbol string) (TradingPair, error) {
	pair, ok := pairs[symbol]
	if !ok {
		return TradingPair{}, &ValidationError{Msg: fmt.Sprintf("unsupported trading pair: %s", symbol)}
	}
	return pair, nil
}

// AllPairs returns every supported pair, sorted by symbol.
func AllPairs() []TradingPair {
	result := make([]TradingPair, 0, len(pairs))
	for _, p := range pairs {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}
