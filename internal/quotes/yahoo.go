package quotes

import (
	"context"
	"fmt"
	"time"

	"playbook/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider fetches quotes from the Yahoo Finance chart API.
type YahooProvider struct {
	client       *resty.Client
	logger       *zap.Logger
	limiter      *rate.Limiter
	timeout      time.Duration
	historyRange string
}

// ensure YahooProvider implements the interface
var _ Provider = (*YahooProvider)(nil)

// NewYahooProvider creates a Yahoo Finance quote provider.
func NewYahooProvider(cfg *config.Quotes, logger *zap.Logger) *YahooProvider {
	client := resty.New().
		SetBaseURL(yahooBaseURL).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; playbook/1.0)")

	return &YahooProvider{
		client:       client,
		logger:       logger,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		timeout:      cfg.Timeout,
		historyRange: cfg.HistoryRange,
	}
}

// Name returns the provider name used in config.
func (p *YahooProvider) Name() string { return "yahoo" }

// chartResponse is the subset of the Yahoo chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

// chartQuote columns are positionally aligned with Timestamp; entries may be
// null on days without data.
type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

// FetchQuote returns the regular market price for the symbol.
func (p *YahooProvider) FetchQuote(ctx context.Context, symbol, market string) (decimal.Decimal, error) {
	ticker := NormalizeTicker(symbol, market)

	result, err := p.chart(ctx, ticker, "1d", "1d")
	if err != nil {
		return decimal.Zero, err
	}

	price := result.Meta.RegularMarketPrice
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("yahoo returned empty price for %s: %w", ticker, ErrNoQuote)
	}

	return decimal.NewFromFloat(price), nil
}

// Candle is one day of historical price data for charting.
type Candle struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// History returns the daily candle series for the symbol over the configured
// range. Days where Yahoo has no close are skipped.
func (p *YahooProvider) History(ctx context.Context, symbol, market string) ([]Candle, error) {
	ticker := NormalizeTicker(symbol, market)

	result, err := p.chart(ctx, ticker, p.historyRange, "1d")
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo returned no history for %s: %w", ticker, ErrNoQuote)
	}

	quote := result.Indicators.Quote[0]
	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		candle := Candle{
			Date:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*quote.Close[i]),
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			candle.Open = decimal.NewFromFloat(*quote.Open[i])
		}
		if i < len(quote.High) && quote.High[i] != nil {
			candle.High = decimal.NewFromFloat(*quote.High[i])
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			candle.Low = decimal.NewFromFloat(*quote.Low[i])
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			candle.Volume = *quote.Volume[i]
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// chart executes one request against the chart endpoint with rate limiting
// and the per-call timeout.
func (p *YahooProvider) chart(ctx context.Context, ticker, rng, interval string) (*chartResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("Fetching quote from Yahoo", zap.String("ticker", ticker), zap.String("range", rng))

	var payload chartResponse
	resp, err := p.client.R().
		SetContext(reqCtx).
		SetQueryParams(map[string]string{
			"range":    rng,
			"interval": interval,
		}).
		SetResult(&payload).
		Get("/v8/finance/chart/" + ticker)
	if err != nil {
		return nil, fmt.Errorf("yahoo request failed for %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yahoo returned status %s for %s: %w", resp.Status(), ticker, ErrNoQuote)
	}

	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error %q for %s: %w", payload.Chart.Error.Code, ticker, ErrNoQuote)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo returned no result for %s: %w", ticker, ErrNoQuote)
	}

	return &payload.Chart.Result[0], nil
}
