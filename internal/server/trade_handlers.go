package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"playbook/internal/models"
	"playbook/internal/trades"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentCommentsLimit = 50

// listTrades returns the composed feed. In on-demand mode it also kicks the
// coalesced refresh; the request never waits on it and returns whatever is
// cached right now.
func (s *Server) listTrades(c *gin.Context) {
	if s.cfg.Refresher.Mode == "on-demand" {
		s.coalescer.MaybeTrigger()
	}

	feed, err := s.trades.Feed(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.logger.Error("Failed to build trade feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load trades"})
		return
	}

	c.JSON(http.StatusOK, feed)
}

type createTradeRequest struct {
	Symbol string           `json:"symbol"`
	Name   string           `json:"name"`
	Market string           `json:"market"`
	Status string           `json:"status"`
	Entry  decimal.Decimal  `json:"entry"`
	Exit   *decimal.Decimal `json:"exit"`
}

func (s *Server) createTrade(c *gin.Context) {
	var req createTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	trade, err := s.trades.Create(c.Request.Context(), currentUserID(c), trades.CreateTradeInput{
		Symbol: req.Symbol,
		Name:   req.Name,
		Market: req.Market,
		Status: req.Status,
		Entry:  req.Entry,
		Exit:   req.Exit,
	})
	if err != nil {
		s.respondTradeError(c, err)
		return
	}

	go s.notifyTradePosted(trade)

	c.JSON(http.StatusCreated, trade)
}

type updateTradeRequest struct {
	Status string           `json:"status"`
	Exit   *decimal.Decimal `json:"exit"`
}

func (s *Server) updateTrade(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid trade id"})
		return
	}

	var req updateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	trade, err := s.trades.Update(c.Request.Context(), uint(id), req.Status, req.Exit)
	if err != nil {
		s.respondTradeError(c, err)
		return
	}

	go s.notifyTradeUpdated(trade)

	c.JSON(http.StatusOK, trade)
}

type interactRequest struct {
	TradeID uint   `json:"tradeId"`
	Type    string `json:"type"`
}

func (s *Server) interact(c *gin.Context) {
	var req interactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	added, err := s.trades.Toggle(c.Request.Context(), req.TradeID, currentUserID(c), req.Type)
	if err != nil {
		s.respondTradeError(c, err)
		return
	}

	message := "Interaction removed"
	if added {
		message = "Interaction added"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

type commentRequest struct {
	Comment string `json:"comment"`
	TradeID *uint  `json:"tradeId"`
}

func (s *Server) postComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	comment, err := s.trades.PostComment(c.Request.Context(), currentUserID(c), req.Comment, req.TradeID)
	if err != nil {
		s.respondTradeError(c, err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

func (s *Server) listComments(c *gin.Context) {
	comments, err := s.trades.RecentComments(c.Request.Context(), recentCommentsLimit)
	if err != nil {
		s.logger.Error("Failed to load comments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load comments"})
		return
	}

	c.JSON(http.StatusOK, comments)
}

func (s *Server) symbolHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	market := c.DefaultQuery("market", models.MarketNASDAQ)

	candles, err := s.history.History(c.Request.Context(), symbol, market)
	if err != nil {
		s.logger.Warn("Failed to load history",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, candles)
}

// respondTradeError maps service errors onto status codes. Validation is a
// client error, unknown ids are 404, everything else is a server error.
func (s *Server) respondTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trades.ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Trade not found"})
	case errors.Is(err, trades.ErrExitRequired),
		errors.Is(err, trades.ErrInvalidTrade),
		errors.Is(err, trades.ErrInvalidKind),
		errors.Is(err, trades.ErrEmptyComment):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		s.logger.Error("Trade operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

// notifyTradePosted emails every registered user about a new trade. Runs
// detached from the posting request; failures only log.
func (s *Server) notifyTradePosted(trade *models.Trade) {
	emails, err := s.trades.AllUserEmails(context.Background())
	if err != nil {
		s.logger.Error("Failed to load recipients for trade notification", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("New Trade Alert: %s", trade.Symbol)
	text := fmt.Sprintf("A new trade has been posted: %s (%s). Entry: $%s.",
		trade.Name, trade.Symbol, trade.Entry)
	html := fmt.Sprintf(`
<div style="text-align:center;margin-bottom:20px;">
  <h2 style="color:#ffffff;margin:0;">%s</h2>
  <p style="color:#888;margin:5px 0 0 0;">%s</p>
</div>
<div style="background:#222;border:1px solid #333;border-radius:12px;padding:20px;text-align:center;">
  <p style="color:#666;font-size:11px;text-transform:uppercase;letter-spacing:2px;margin:0;">Entry Price</p>
  <p style="color:#00f2fe;font-size:32px;font-weight:bold;margin:5px 0;">%s</p>
  <div style="display:inline-block;padding:4px 12px;background:#00f2fe20;color:#00f2fe;border-radius:6px;font-size:12px;font-weight:bold;">STATUS: %s</div>
</div>`, trade.Symbol, trade.Name, trade.Entry, trade.Status)

	if err := s.mail.Send(emails, subject, text, html, "New Trade Posted"); err != nil {
		s.logger.Error("Trade notification failed", zap.String("symbol", trade.Symbol), zap.Error(err))
	}
}

// notifyTradeUpdated emails every registered user about a status change.
func (s *Server) notifyTradeUpdated(trade *models.Trade) {
	emails, err := s.trades.AllUserEmails(context.Background())
	if err != nil {
		s.logger.Error("Failed to load recipients for trade notification", zap.Error(err))
		return
	}

	exitLine := ""
	if trade.Exit != nil {
		exitLine = fmt.Sprintf(`
  <p style="color:#666;font-size:11px;text-transform:uppercase;letter-spacing:2px;margin:15px 0 0 0;">Exit Price</p>
  <p style="color:#4facfe;font-size:32px;font-weight:bold;margin:5px 0;">%s</p>`, trade.Exit)
	}

	subject := fmt.Sprintf("Trade Updated: %s", trade.Symbol)
	text := fmt.Sprintf("Trade %s has been updated. New Status: %s.", trade.Symbol, trade.Status)
	html := fmt.Sprintf(`
<div style="text-align:center;margin-bottom:20px;">
  <h2 style="color:#ffffff;margin:0;">%s</h2>
  <p style="color:#888;margin:5px 0 0 0;">%s</p>
</div>
<div style="background:#222;border:1px solid #333;border-radius:12px;padding:20px;text-align:center;">
  <p style="color:#666;font-size:11px;text-transform:uppercase;letter-spacing:2px;margin:0;">New Status</p>
  <p style="color:#ffffff;font-size:24px;font-weight:bold;margin:5px 0;">%s</p>%s
</div>`, trade.Symbol, trade.Name, trade.Status, exitLine)

	if err := s.mail.Send(emails, subject, text, html, "Trade Updated"); err != nil {
		s.logger.Error("Trade notification failed", zap.String("symbol", trade.Symbol), zap.Error(err))
	}
}
