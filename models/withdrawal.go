package models

import "time"

// Withdrawal statuses.
const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusRejected  = "rejected"
)

// Withdrawal methods accepted from the wallet API.
const (
	WithdrawalMethodBank = "bank_transfer"
	WithdrawalMethodUPI  = "upi"
)

// Withdrawal is a user's request to pay out wallet balance. The debit is
// applied to the wallet at request time; payout processing is an admin flow.
type Withdrawal struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	UserID uint    `json:"user_id" gorm:"index;not null"`
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
	Status string  `json:"status" gorm:"index;default:'pending'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
