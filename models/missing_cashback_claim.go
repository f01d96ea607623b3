package models

import "time"

// MissingCashbackClaim is a user-filed report that a tracked purchase never
// showed up in the affiliate feed. Reviewed manually; an approved claim ends
// in a wallet adjustment.
type MissingCashbackClaim struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	UserID            uint      `json:"user_id" gorm:"index;not null"`
	MerchantID        uint      `json:"merchant_id" gorm:"index;not null"`
	OfferID           uint      `json:"offer_id" gorm:"index"`
	TransactionAmount float64   `json:"transaction_amount"`
	TransactionDate   time.Time `json:"transaction_date"`
	OrderID           string    `json:"order_id"`
	ScreenshotURL     string    `json:"screenshot_url"`
	Notes             string    `json:"notes" gorm:"type:text"`
	Status            string    `json:"status" gorm:"index;default:'pending'"`

	CreatedAt time.Time `json:"created_at"`
}
