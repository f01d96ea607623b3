package models

import "time"

// CashbackEvent statuses mirror the affiliate network's payment statuses.
// approved and rejected are terminal.
const (
	CashbackStatusPending  = "pending"
	CashbackStatusApproved = "approved"
	CashbackStatusRejected = "rejected"
)

// CashbackEvent is a reconciled affiliate transaction attributed to a click.
// Created once per external transaction id (uniqueness is the idempotency
// key); only Status and PaidAt change afterwards. PaidAt being set is the
// witness that the wallet was credited.
type CashbackEvent struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	UserID     *uint  `json:"user_id" gorm:"index"` // nil when the click was anonymous
	OfferID    uint   `json:"offer_id" gorm:"index;not null"`
	MerchantID uint   `json:"merchant_id" gorm:"index;not null"`
	ClickID    string `json:"click_id" gorm:"type:uuid;index;not null"`

	TransactionAmount float64 `json:"transaction_amount"`
	CommissionAmount  float64 `json:"commission_amount"`
	CashbackAmount    float64 `json:"cashback_amount"`

	Status                 string     `json:"status" gorm:"index;default:'pending'"`
	AffiliateTransactionID string     `json:"affiliate_transaction_id" gorm:"uniqueIndex;not null"`
	PaidAt                 *time.Time `json:"paid_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
