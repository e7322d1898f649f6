package refresher

import (
	"context"
	"sync/atomic"
	"time"

	"playbook/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuoteFetcher is the slice of the quote chain the refresher needs.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol, market string) (decimal.Decimal, error)
}

// Refresher recomputes cached live prices for every open trade. Trades are
// grouped by symbol so each distinct symbol is fetched exactly once per
// cycle, and every open trade on that symbol receives the identical price
// in a single bulk update.
//
// At most one cycle runs at a time; a trigger that arrives while a cycle is
// in flight is dropped, not queued.
type Refresher struct {
	logger   *zap.Logger
	db       *gorm.DB
	quotes   QuoteFetcher
	interval time.Duration

	inFlight atomic.Bool
}

// NewRefresher creates a price cache refresher.
func NewRefresher(logger *zap.Logger, db *gorm.DB, quotes QuoteFetcher, interval time.Duration) *Refresher {
	return &Refresher{
		logger:   logger,
		db:       db,
		quotes:   quotes,
		interval: interval,
	}
}

// Run starts the fixed-cadence refresh loop and blocks until ctx is done.
// Used in interval mode; on-demand deployments trigger cycles through the
// Coalescer instead.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Starting price refresh loop", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping price refresh loop")
			return
		case <-ticker.C:
			r.TryRunCycle(ctx)
		}
	}
}

// TryRunCycle runs one refresh cycle unless one is already in flight, in
// which case it is a no-op. It reports whether a cycle actually ran.
//
// A symbol whose fetch fails is logged and skipped; its trades keep their
// stale cached price. The cycle itself never returns an error to the
// trigger path.
func (r *Refresher) TryRunCycle(ctx context.Context) bool {
	if !r.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer r.inFlight.Store(false)

	var open []models.Trade
	if err := r.db.WithContext(ctx).Where("status = ?", models.StatusOpen).Find(&open).Error; err != nil {
		r.logger.Error("Refresh cycle failed to load open trades", zap.Error(err))
		return true
	}
	if len(open) == 0 {
		return true
	}

	// Group open trades by symbol. A symbol is assumed to trade on one
	// market at a time within the open set, so the first trade's market
	// decides the ticker normalization.
	type symbolGroup struct {
		market string
		count  int
	}
	groups := make(map[string]*symbolGroup)
	for _, trade := range open {
		if g, ok := groups[trade.Symbol]; ok {
			g.count++
		} else {
			groups[trade.Symbol] = &symbolGroup{market: trade.Market, count: 1}
		}
	}

	for symbol, group := range groups {
		price, err := r.quotes.FetchQuote(ctx, symbol, group.market)
		if err != nil {
			r.logger.Warn("Skipping symbol, no quote this cycle",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}

		// One bulk write per symbol so siblings can never be observed
		// with diverging prices.
		result := r.db.WithContext(ctx).
			Model(&models.Trade{}).
			Where("symbol = ? AND status = ?", symbol, models.StatusOpen).
			Update("current_price", price)
		if result.Error != nil {
			r.logger.Error("Failed to write refreshed price",
				zap.String("symbol", symbol),
				zap.Error(result.Error),
			)
			continue
		}

		r.logger.Debug("Refreshed symbol",
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.Int64("trades", result.RowsAffected),
		)
	}

	return true
}
