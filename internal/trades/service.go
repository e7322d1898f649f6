package trades

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"playbook/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Client-error sentinels; handlers map these to 4xx responses.
var (
	ErrTradeNotFound = errors.New("trade not found")
	ErrExitRequired  = errors.New("sold at price is required to close the trade")
	ErrInvalidKind   = errors.New("interaction type must be like or invest")
	ErrEmptyComment  = errors.New("comment must not be empty")
	ErrInvalidTrade  = errors.New("invalid trade")
)

// Service owns feed aggregation, the interaction ledger and the comment
// stream. It is read-only over prices; the refresher is the only writer of
// cached prices.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a trades service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// TradeView is one trade as the feed presents it: the persisted trade plus
// the displayed price, derived P&L and the requesting user's interaction
// state.
type TradeView struct {
	ID           uint             `json:"id"`
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	Market       string           `json:"market"`
	Status       string           `json:"status"`
	Entry        decimal.Decimal  `json:"entry"`
	Exit         *decimal.Decimal `json:"exit,omitempty"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	PnLPercent   decimal.Decimal  `json:"pnl_percent"`
	LikesCount   int64            `json:"likes_count"`
	InvestsCount int64            `json:"invests_count"`
	UserLiked    bool             `json:"user_liked"`
	UserInvested bool             `json:"user_invested"`
	PostedByID   uint             `json:"posted_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// FeedResponse is the composed payload for the trade feed.
type FeedResponse struct {
	Trades    []TradeView `json:"trades"`
	UserCount int64       `json:"userCount"`
}

// Feed assembles the trade list for one user, newest first. The per-trade
// interaction lookups are independent of the trade read and of each other,
// so trades are resolved concurrently. An empty dataset yields an empty
// list, not an error.
func (s *Service) Feed(ctx context.Context, userID uint) (*FeedResponse, error) {
	var all []models.Trade
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	views := make([]TradeView, len(all))
	var wg sync.WaitGroup
	errCh := make(chan error, len(all))

	for i := range all {
		wg.Add(1)
		go func(i int, trade models.Trade) {
			defer wg.Done()
			view, err := s.buildView(ctx, &trade, userID)
			if err != nil {
				errCh <- err
				return
			}
			views[i] = *view
		}(i, all[i])
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	var userCount int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&userCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	return &FeedResponse{Trades: views, UserCount: userCount}, nil
}

func (s *Service) buildView(ctx context.Context, trade *models.Trade, userID uint) (*TradeView, error) {
	var likes, invests int64
	if err := s.countInteractions(ctx, trade.ID, models.KindLike, &likes); err != nil {
		return nil, err
	}
	if err := s.countInteractions(ctx, trade.ID, models.KindInvest, &invests); err != nil {
		return nil, err
	}

	userLiked, err := s.hasInteraction(ctx, trade.ID, userID, models.KindLike)
	if err != nil {
		return nil, err
	}
	userInvested, err := s.hasInteraction(ctx, trade.ID, userID, models.KindInvest)
	if err != nil {
		return nil, err
	}

	displayed := DisplayedPrice(trade)

	return &TradeView{
		ID:           trade.ID,
		Symbol:       trade.Symbol,
		Name:         trade.Name,
		Market:       trade.Market,
		Status:       trade.Status,
		Entry:        trade.Entry,
		Exit:         trade.Exit,
		CurrentPrice: displayed,
		PnLPercent:   PnLPercent(trade),
		LikesCount:   likes,
		InvestsCount: invests,
		UserLiked:    userLiked,
		UserInvested: userInvested,
		PostedByID:   trade.PostedByID,
		CreatedAt:    trade.CreatedAt,
		UpdatedAt:    trade.UpdatedAt,
	}, nil
}

func (s *Service) countInteractions(ctx context.Context, tradeID uint, kind string, out *int64) error {
	err := s.db.WithContext(ctx).Model(&models.InteractionRecord{}).
		Where("trade_id = ? AND kind = ?", tradeID, kind).
		Count(out).Error
	if err != nil {
		return fmt.Errorf("failed to count %s interactions: %w", kind, err)
	}
	return nil
}

func (s *Service) hasInteraction(ctx context.Context, tradeID, userID uint, kind string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.InteractionRecord{}).
		Where("trade_id = ? AND user_id = ? AND kind = ?", tradeID, userID, kind).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s interaction: %w", kind, err)
	}
	return n > 0, nil
}

// DisplayedPrice resolves the price the feed shows: the cached live price if
// present, else the exit for closed trades, else the entry. The entry
// fallback covers the window before the first refresh.
func DisplayedPrice(trade *models.Trade) decimal.Decimal {
	if trade.CurrentPrice != nil {
		return *trade.CurrentPrice
	}
	if trade.Status == models.StatusClosed && trade.Exit != nil {
		return *trade.Exit
	}
	return trade.Entry
}

// PnLPercent derives the percent gain or loss on every read; it is never
// stored. Closed trades are measured against their exit, open trades
// against the displayed price.
func PnLPercent(trade *models.Trade) decimal.Decimal {
	if trade.Entry.Sign() <= 0 {
		return decimal.Zero
	}
	basis := DisplayedPrice(trade)
	if trade.Status == models.StatusClosed && trade.Exit != nil {
		basis = *trade.Exit
	}
	return basis.Sub(trade.Entry).
		Div(trade.Entry).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// Toggle flips the (trade, user, kind) interaction: delete if present,
// create otherwise. It reports true when the interaction was added.
func (s *Service) Toggle(ctx context.Context, tradeID, userID uint, kind string) (bool, error) {
	if !models.ValidKind(kind) {
		return false, ErrInvalidKind
	}

	result := s.db.WithContext(ctx).
		Where("trade_id = ? AND user_id = ? AND kind = ?", tradeID, userID, kind).
		Delete(&models.InteractionRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove interaction: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", tradeID).Count(&exists).Error; err != nil {
		return false, fmt.Errorf("failed to look up trade: %w", err)
	}
	if exists == 0 {
		return false, ErrTradeNotFound
	}

	record := models.InteractionRecord{TradeID: tradeID, UserID: userID, Kind: kind}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return false, fmt.Errorf("failed to add interaction: %w", err)
	}
	return true, nil
}

// PostComment appends one comment to the stream. TradeID may be nil for
// comments on the global feed.
func (s *Service) PostComment(ctx context.Context, userID uint, body string, tradeID *uint) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyComment
	}

	comment := models.Comment{UserID: userID, TradeID: tradeID, Body: body}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}
	if err := s.db.WithContext(ctx).Preload("User").First(&comment, comment.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload comment: %w", err)
	}
	return &comment, nil
}

// RecentComments returns the newest limit comments in chronological order:
// the window is truncated newest-first, then presented oldest-to-newest.
func (s *Service) RecentComments(ctx context.Context, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}

	for i, j := 0, len(comments)-1; i < j; i, j = i+1, j-1 {
		comments[i], comments[j] = comments[j], comments[i]
	}
	return comments, nil
}

// CreateTradeInput is the admin's new-trade payload.
type CreateTradeInput struct {
	Symbol string
	Name   string
	Market string
	Status string
	Entry  decimal.Decimal
	Exit   *decimal.Decimal
}

// Create posts a new trade. Status defaults to Open; a trade may be posted
// already Closed, in which case the exit is required up front.
func (s *Service) Create(ctx context.Context, postedBy uint, in CreateTradeInput) (*models.Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	name := strings.TrimSpace(in.Name)
	if symbol == "" || name == "" {
		return nil, fmt.Errorf("%w: symbol and name are required", ErrInvalidTrade)
	}

	market := in.Market
	if market == "" {
		market = models.MarketNASDAQ
	}
	if !models.ValidMarket(market) {
		return nil, fmt.Errorf("%w: unsupported market %q", ErrInvalidTrade, in.Market)
	}

	status := in.Status
	if status == "" {
		status = models.StatusOpen
	}
	if status != models.StatusOpen && status != models.StatusClosed {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidTrade, in.Status)
	}

	if in.Entry.Sign() <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive", ErrInvalidTrade)
	}
	if status == models.StatusClosed && in.Exit == nil {
		return nil, ErrExitRequired
	}
	if in.Exit != nil && in.Exit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: exit price must be positive", ErrInvalidTrade)
	}

	trade := models.Trade{
		Symbol:     symbol,
		Name:       name,
		Market:     market,
		Status:     status,
		Entry:      in.Entry,
		PostedByID: postedBy,
	}
	if status == models.StatusClosed {
		trade.Exit = in.Exit
	}

	if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return nil, fmt.Errorf("failed to save trade: %w", err)
	}
	return &trade, nil
}

// Update changes a trade's lifecycle status. Closing requires an exit
// price; no mutation happens when validation fails. Reopening clears the
// exit to keep the status/exit invariant.
func (s *Service) Update(ctx context.Context, id uint, status string, exit *decimal.Decimal) (*models.Trade, error) {
	if status != models.StatusOpen && status != models.StatusClosed {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidTrade, status)
	}
	if status == models.StatusClosed && exit == nil {
		return nil, ErrExitRequired
	}
	if exit != nil && exit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: exit price must be positive", ErrInvalidTrade)
	}

	var trade models.Trade
	if err := s.db.WithContext(ctx).First(&trade, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}

	trade.Status = status
	if status == models.StatusClosed {
		trade.Exit = exit
	} else {
		trade.Exit = nil
	}

	err := s.db.WithContext(ctx).Model(&trade).
		Select("status", "exit").
		Updates(map[string]interface{}{"status": trade.Status, "exit": trade.Exit}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update trade: %w", err)
	}
	return &trade, nil
}

// AllUserEmails returns every registered address, for trade notifications.
func (s *Service) AllUserEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.WithContext(ctx).Model(&models.User{}).Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user emails: %w", err)
	}
	return emails, nil
}
