package models

import "time"

// Notification job statuses. completed and failed are terminal.
const (
	NotificationStatusPending    = "pending"
	NotificationStatusProcessing = "processing"
	NotificationStatusCompleted  = "completed"
	NotificationStatusFailed     = "failed"
)

// Notification types known to the dispatcher.
const (
	NotificationCashbackConfirmed   = "cashback_confirmed"
	NotificationWithdrawalProcessed = "withdrawal_processed"
	NotificationOrderConfirmation   = "order_confirmation"
	NotificationWelcome             = "welcome"
)

// NotificationJob is a queued outbound email. Producers insert it as pending;
// processors claim it by atomically flipping status to processing with a
// claim token, so concurrent processors never pick up the same job.
type NotificationJob struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Type      string `json:"type" gorm:"index;not null"`
	Recipient string `json:"recipient" gorm:"not null"`
	Payload   string `json:"payload" gorm:"type:jsonb"` // template data as JSON
	Status    string `json:"status" gorm:"index;default:'pending'"`
	Attempts  int    `json:"attempts" gorm:"default:0"`
	ClaimedBy string `json:"-" gorm:"index"` // claim token of the owning batch

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
