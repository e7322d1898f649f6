package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents a registered account.
// Accounts start unverified; signup issues a one-time code that must be
// confirmed before login is allowed.
type User struct {
	gorm.Model
	Username     string `gorm:"not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"default:user" json:"role"`
	IsVerified   bool   `gorm:"default:false" json:"is_verified"`

	OTP        string     `json:"-"`
	OTPExpires *time.Time `json:"-"`
}
