package models

import "gorm.io/gorm"

// Comment is a free-text post in the global stream. TradeID is optional;
// global comments are not tied to a trade. Comments are append-only.
type Comment struct {
	gorm.Model
	UserID  uint   `gorm:"index;not null" json:"user_id"`
	TradeID *uint  `json:"trade_id,omitempty"`
	Body    string `gorm:"not null" json:"comment"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}
