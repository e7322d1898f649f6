package quotes

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"playbook/internal/config"
	"playbook/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const stooqBaseURL = "https://stooq.com"

// StooqProvider fetches quotes from the Stooq CSV endpoint. It serves as the
// fallback when Yahoo is blocking or degraded.
type StooqProvider struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	timeout time.Duration
}

var _ Provider = (*StooqProvider)(nil)

// NewStooqProvider creates a Stooq quote provider.
func NewStooqProvider(cfg *config.Quotes, logger *zap.Logger) *StooqProvider {
	return &StooqProvider{
		client:  resty.New().SetBaseURL(stooqBaseURL),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		timeout: cfg.Timeout,
	}
}

// Name returns the provider name used in config.
func (p *StooqProvider) Name() string { return "stooq" }

// stooqTicker maps a symbol to Stooq's naming: lower case with a market
// suffix, e.g. AAPL on NASDAQ -> "aapl.us".
func stooqTicker(symbol, market string) string {
	base := strings.ToLower(strings.TrimSuffix(symbol, ".NS"))
	if market == models.MarketNSE {
		return base + ".ns"
	}
	return base + ".us"
}

// FetchQuote returns the latest close for the symbol.
//
// The endpoint answers a one-row CSV:
//
//	Symbol,Date,Time,Open,High,Low,Close,Volume
//	AAPL.US,2026-08-28,22:00:11,230.1,232.0,229.4,231.5,41235021
//
// Unknown symbols come back with "N/D" in the data columns.
func (p *StooqProvider) FetchQuote(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := stooqTicker(symbol, market)
	p.logger.Debug("Fetching quote from Stooq", zap.String("ticker", ticker))

	resp, err := p.client.R().
		SetContext(reqCtx).
		SetQueryParams(map[string]string{
			"s": ticker,
			"f": "sd2t2ohlcv",
			"h": "",
			"e": "csv",
		}).
		Get("/q/l/")
	if err != nil {
		return decimal.Zero, fmt.Errorf("stooq request failed for %s: %w", ticker, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("stooq returned status %s for %s: %w", resp.Status(), ticker, ErrNoQuote)
	}

	records, err := csv.NewReader(strings.NewReader(resp.String())).ReadAll()
	if err != nil {
		return decimal.Zero, fmt.Errorf("stooq returned malformed CSV for %s: %w", ticker, err)
	}
	if len(records) < 2 || len(records[1]) < 7 {
		return decimal.Zero, fmt.Errorf("stooq returned no data row for %s: %w", ticker, ErrNoQuote)
	}

	closeStr := records[1][6]
	if closeStr == "" || closeStr == "N/D" {
		return decimal.Zero, fmt.Errorf("stooq has no close for %s: %w", ticker, ErrNoQuote)
	}

	price, err := decimal.NewFromString(closeStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("stooq returned unparseable close %q for %s: %w", closeStr, ticker, err)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("stooq returned empty price for %s: %w", ticker, ErrNoQuote)
	}

	return price, nil
}
