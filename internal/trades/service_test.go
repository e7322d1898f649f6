package trades

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"playbook/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// setupService creates a service over an isolated in-memory database. The
// feed fans out over goroutines, so the database must be shared across pool
// connections; a unique name keeps tests isolated from each other.
func setupService(t *testing.T) (*Service, *gorm.DB) {
	dsn := fmt.Sprintf("file:trades%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Trade{}, &models.InteractionRecord{}, &models.Comment{})
	assert.NoError(t, err)

	return NewService(db, zap.NewNop()), db
}

func mustUser(t *testing.T, db *gorm.DB, email string) *models.User {
	user := &models.User{Username: email, Email: email, PasswordHash: "x", IsVerified: true}
	assert.NoError(t, db.Create(user).Error)
	return user
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestFeedEmptyDataset(t *testing.T) {
	svc, db := setupService(t)
	mustUser(t, db, "a@example.com")

	feed, err := svc.Feed(context.Background(), 1)

	assert.NoError(t, err)
	assert.NotNil(t, feed.Trades)
	assert.Empty(t, feed.Trades)
	assert.Equal(t, int64(1), feed.UserCount)
}

func TestFeedAggregation(t *testing.T) {
	// Arrange: one trade with mixed interactions from two users.
	svc, db := setupService(t)
	alice := mustUser(t, db, "alice@example.com")
	bob := mustUser(t, db, "bob@example.com")

	trade := &models.Trade{
		Symbol: "AAPL", Name: "Apple", Market: models.MarketNASDAQ,
		Status: models.StatusOpen, Entry: dec("100"), CurrentPrice: decPtr("110"),
		PostedByID: alice.ID,
	}
	assert.NoError(t, db.Create(trade).Error)

	for _, rec := range []models.InteractionRecord{
		{TradeID: trade.ID, UserID: alice.ID, Kind: models.KindLike},
		{TradeID: trade.ID, UserID: bob.ID, Kind: models.KindLike},
		{TradeID: trade.ID, UserID: bob.ID, Kind: models.KindInvest},
	} {
		assert.NoError(t, db.Create(&rec).Error)
	}

	// Act: the feed as alice sees it.
	feed, err := svc.Feed(context.Background(), alice.ID)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, feed.Trades, 1)
	view := feed.Trades[0]
	assert.Equal(t, int64(2), view.LikesCount)
	assert.Equal(t, int64(1), view.InvestsCount)
	assert.True(t, view.UserLiked)
	assert.False(t, view.UserInvested)
	assert.True(t, view.CurrentPrice.Equal(dec("110")))
	assert.Equal(t, int64(2), feed.UserCount)
}

func TestFeedNewestFirst(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA"} {
		assert.NoError(t, db.Create(&models.Trade{
			Symbol: symbol, Name: symbol, Status: models.StatusOpen, Entry: dec("10"),
		}).Error)
	}

	feed, err := svc.Feed(context.Background(), user.ID)

	assert.NoError(t, err)
	assert.Len(t, feed.Trades, 3)
	assert.Equal(t, "NVDA", feed.Trades[0].Symbol)
	assert.Equal(t, "AAPL", feed.Trades[2].Symbol)
}

func TestDisplayedPriceFallbacks(t *testing.T) {
	// Pre-first-refresh open trade falls back to its entry.
	open := &models.Trade{Status: models.StatusOpen, Entry: dec("100")}
	assert.True(t, DisplayedPrice(open).Equal(dec("100")))

	// Cached live price wins while present.
	open.CurrentPrice = decPtr("95")
	assert.True(t, DisplayedPrice(open).Equal(dec("95")))

	// Closed trades without a cached price show their exit.
	closed := &models.Trade{Status: models.StatusClosed, Entry: dec("100"), Exit: decPtr("110")}
	assert.True(t, DisplayedPrice(closed).Equal(dec("110")))
}

func TestPnLDerivation(t *testing.T) {
	closed := &models.Trade{Status: models.StatusClosed, Entry: dec("100"), Exit: decPtr("110")}
	assert.True(t, PnLPercent(closed).Equal(dec("10")), "got %s", PnLPercent(closed))

	open := &models.Trade{Status: models.StatusOpen, Entry: dec("100"), CurrentPrice: decPtr("95")}
	assert.True(t, PnLPercent(open).Equal(dec("-5")), "got %s", PnLPercent(open))

	// Closed trades measure against exit even if a stale cached price remains.
	stale := &models.Trade{Status: models.StatusClosed, Entry: dec("100"), Exit: decPtr("110"), CurrentPrice: decPtr("50")}
	assert.True(t, PnLPercent(stale).Equal(dec("10")))
}

func TestToggleRoundTrip(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")
	trade := &models.Trade{Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen, Entry: dec("10")}
	assert.NoError(t, db.Create(trade).Error)

	// First toggle adds, second removes: back to the original state.
	added, err := svc.Toggle(context.Background(), trade.ID, user.ID, models.KindLike)
	assert.NoError(t, err)
	assert.True(t, added)

	added, err = svc.Toggle(context.Background(), trade.ID, user.ID, models.KindLike)
	assert.NoError(t, err)
	assert.False(t, added)

	var count int64
	db.Model(&models.InteractionRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestToggleKindsAreIndependent(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")
	trade := &models.Trade{Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen, Entry: dec("10")}
	assert.NoError(t, db.Create(trade).Error)

	_, err := svc.Toggle(context.Background(), trade.ID, user.ID, models.KindLike)
	assert.NoError(t, err)
	_, err = svc.Toggle(context.Background(), trade.ID, user.ID, models.KindInvest)
	assert.NoError(t, err)

	var count int64
	db.Model(&models.InteractionRecord{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestToggleUnknownTrade(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")

	_, err := svc.Toggle(context.Background(), 9999, user.ID, models.KindLike)

	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestToggleInvalidKind(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Toggle(context.Background(), 1, 1, "boost")

	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestCommentsWindowOrdering(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")

	for i := 1; i <= 5; i++ {
		_, err := svc.PostComment(context.Background(), user.ID, fmt.Sprintf("comment %d", i), nil)
		assert.NoError(t, err)
	}

	// Newest 3 fetched, presented chronologically.
	comments, err := svc.RecentComments(context.Background(), 3)

	assert.NoError(t, err)
	assert.Len(t, comments, 3)
	assert.Equal(t, "comment 3", comments[0].Body)
	assert.Equal(t, "comment 5", comments[2].Body)
	assert.Equal(t, "a@example.com", comments[0].User.Email)
}

func TestPostCommentRejectsEmptyBody(t *testing.T) {
	svc, db := setupService(t)
	user := mustUser(t, db, "a@example.com")

	_, err := svc.PostComment(context.Background(), user.ID, "   ", nil)

	assert.ErrorIs(t, err, ErrEmptyComment)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateTradeInput{Name: "Apple", Entry: dec("10")})
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = svc.Create(ctx, 1, CreateTradeInput{Symbol: "AAPL", Name: "Apple", Entry: dec("0")})
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = svc.Create(ctx, 1, CreateTradeInput{Symbol: "AAPL", Name: "Apple", Market: "LSE", Entry: dec("10")})
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = svc.Create(ctx, 1, CreateTradeInput{Symbol: "AAPL", Name: "Apple", Status: models.StatusClosed, Entry: dec("10")})
	assert.ErrorIs(t, err, ErrExitRequired)
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := setupService(t)

	trade, err := svc.Create(context.Background(), 7, CreateTradeInput{
		Symbol: "aapl", Name: "Apple", Entry: dec("100"),
	})

	assert.NoError(t, err)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, models.MarketNASDAQ, trade.Market)
	assert.Equal(t, models.StatusOpen, trade.Status)
	assert.Nil(t, trade.Exit)
	assert.Equal(t, uint(7), trade.PostedByID)
}

func TestUpdateCloseRequiresExit(t *testing.T) {
	svc, db := setupService(t)
	trade := &models.Trade{Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen, Entry: dec("100")}
	assert.NoError(t, db.Create(trade).Error)

	_, err := svc.Update(context.Background(), trade.ID, models.StatusClosed, nil)

	assert.ErrorIs(t, err, ErrExitRequired)

	// No partial mutation: the row is unchanged.
	var got models.Trade
	assert.NoError(t, db.First(&got, trade.ID).Error)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Nil(t, got.Exit)
}

func TestUpdateCloseAndReopen(t *testing.T) {
	svc, db := setupService(t)
	trade := &models.Trade{Symbol: "AAPL", Name: "Apple", Status: models.StatusOpen, Entry: dec("100")}
	assert.NoError(t, db.Create(trade).Error)

	closed, err := svc.Update(context.Background(), trade.ID, models.StatusClosed, decPtr("110"))
	assert.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.True(t, closed.Exit.Equal(dec("110")))

	// Reopening clears the exit so the status/exit invariant holds.
	reopened, err := svc.Update(context.Background(), trade.ID, models.StatusOpen, nil)
	assert.NoError(t, err)
	assert.Nil(t, reopened.Exit)

	var got models.Trade
	assert.NoError(t, db.First(&got, trade.ID).Error)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Nil(t, got.Exit)
}

func TestUpdateUnknownTrade(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Update(context.Background(), 9999, models.StatusClosed, decPtr("10"))

	assert.ErrorIs(t, err, ErrTradeNotFound)
}
