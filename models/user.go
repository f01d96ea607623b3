package models

import "time"

// User carries the wallet state this pipeline owns. Registration and profile
// data live in the auth service; WalletBalance and LifetimeEarnings must
// always equal the sum of the user's wallet_transactions.
type User struct {
	ID               uint    `json:"id" gorm:"primaryKey"`
	Email            string  `json:"email" gorm:"index;not null"`
	FullName         string  `json:"full_name"`
	WalletBalance    float64 `json:"wallet_balance" gorm:"default:0"`
	LifetimeEarnings float64 `json:"lifetime_earnings" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
