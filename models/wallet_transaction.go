package models

import "time"

// Ledger entry types. Amount is signed: cashback_earned is positive,
// debit/withdrawal negative, adjustment either way.
const (
	WalletTxnCashbackEarned = "cashback_earned"
	WalletTxnDebit          = "debit"
	WalletTxnWithdrawal     = "withdrawal"
	WalletTxnAdjustment     = "adjustment"
)

// Reference types for the originating entity of a ledger entry.
const (
	ReferenceCashbackEvent = "cashback_event"
	ReferenceWithdrawal    = "withdrawal"
)

// WalletTransaction is an append-only ledger entry. BalanceBefore/After are
// snapshots taken inside the same transaction as the balance mutation, so the
// ledger stays auditable without the users table.
type WalletTransaction struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	UserID        uint    `json:"user_id" gorm:"index;not null"`
	Amount        float64 `json:"amount"` // signed
	Type          string  `json:"type" gorm:"index;not null"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   uint    `json:"reference_id" gorm:"index"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Description   string  `json:"description"`

	CreatedAt time.Time `json:"created_at"`
}
