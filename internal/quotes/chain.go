package quotes

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Chain tries an ordered list of providers and returns the first price it
// gets. Which provider is primary is a deployment choice; every provider is
// tried before the chain reports failure. There are no retries beyond the
// fallback — the refresh cadence is the retry.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a provider chain in the given order.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// FetchQuote asks each provider in order and returns the first success.
// When all providers fail it returns an error wrapping ErrNoQuote.
func (c *Chain) FetchQuote(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	for _, p := range c.providers {
		price, err := p.FetchQuote(ctx, symbol, market)
		if err != nil {
			c.logger.Warn("Quote provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("all providers failed for %s: %w", symbol, ErrNoQuote)
}
