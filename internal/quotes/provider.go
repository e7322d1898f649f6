package quotes

import (
	"context"
	"errors"
	"strings"

	"playbook/internal/models"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when a provider (or the whole chain) cannot produce
// a usable price for a symbol. Callers treat it as "no update available",
// never as fatal.
var ErrNoQuote = errors.New("no quote available")

// Provider fetches a live price for a symbol on a given market.
type Provider interface {
	// Name returns the unique name of the provider, as used in config.
	Name() string

	// FetchQuote returns the latest price for the symbol, or ErrNoQuote
	// (possibly wrapped) when the provider has no usable price.
	FetchQuote(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// NormalizeTicker applies the market's ticker suffix convention. NSE symbols
// carry a ".NS" suffix so providers can tell them apart from NASDAQ symbols
// sharing the same base ticker.
func NormalizeTicker(symbol, market string) string {
	if market == models.MarketNSE && !strings.HasSuffix(symbol, ".NS") {
		return symbol + ".NS"
	}
	return symbol
}
