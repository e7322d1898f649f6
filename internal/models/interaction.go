package models

import "gorm.io/gorm"

// Interaction kinds a user can toggle on a trade.
const (
	KindLike   = "like"
	KindInvest = "invest"
)

// InteractionRecord is one like or invest toggle.
// At most one record exists per (trade, user, kind); existence is the "on"
// state. Toggling off deletes the row.
type InteractionRecord struct {
	gorm.Model
	TradeID uint   `gorm:"uniqueIndex:idx_trade_user_kind;not null" json:"trade_id"`
	UserID  uint   `gorm:"uniqueIndex:idx_trade_user_kind;not null" json:"user_id"`
	Kind    string `gorm:"uniqueIndex:idx_trade_user_kind;not null" json:"kind"`
}

// ValidKind reports whether k is a supported interaction kind.
func ValidKind(k string) bool {
	return k == KindLike || k == KindInvest
}
