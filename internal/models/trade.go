package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Markets a symbol can be quoted on. The market decides how the ticker is
// normalized for the quote providers.
const (
	MarketNASDAQ = "NASDAQ"
	MarketNSE    = "NSE"
)

// Trade lifecycle status.
const (
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)

// Trade represents a posted trade idea.
// Exit is set if and only if the trade is Closed. CurrentPrice is the cached
// live price and is only meaningful while the trade is Open; the refresher
// is its only writer.
type Trade struct {
	gorm.Model
	Symbol       string           `gorm:"index;not null" json:"symbol"`
	Name         string           `gorm:"not null" json:"name"`
	Market       string           `gorm:"default:NASDAQ" json:"market"`
	Status       string           `gorm:"default:Open" json:"status"`
	Entry        decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"entry"`
	Exit         *decimal.Decimal `gorm:"type:decimal(20,8)" json:"exit"`
	CurrentPrice *decimal.Decimal `gorm:"type:decimal(20,8)" json:"current_price"`
	PostedByID   uint             `json:"posted_by"`
}

// IsOpen reports whether the trade still receives live price updates.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// ValidMarket reports whether m is one of the supported markets.
func ValidMarket(m string) bool {
	return m == MarketNASDAQ || m == MarketNSE
}
