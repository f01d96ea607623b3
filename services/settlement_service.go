package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coupon-cashback-system/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cashback_settlements_total",
	Help: "Settlement invocations by outcome",
}, []string{"outcome"})

// SettlementService credits a user's wallet for an approved cashback event,
// at most once. Safe to re-invoke: the paid_at claim makes duplicate calls
// no-ops, so the reconciler never has to coordinate retries.
type SettlementService struct {
	DB *gorm.DB
}

func NewSettlementService(db *gorm.DB) *SettlementService {
	return &SettlementService{DB: db}
}

// SettleCashbackEvent applies the ledger entry, the balance update and the
// paid_at marker as one transaction. Missing event, already-settled event and
// anonymous-click event are all silent no-ops.
func (s *SettlementService) SettleCashbackEvent(ctx context.Context, eventID uint) error {
	var event models.CashbackEvent
	if err := s.DB.WithContext(ctx).First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			settlementsTotal.WithLabelValues("missing").Inc()
			return nil
		}
		return fmt.Errorf("failed to load cashback event %d: %w", eventID, err)
	}
	if event.PaidAt != nil {
		settlementsTotal.WithLabelValues("already_paid").Inc()
		return nil
	}
	if event.UserID == nil {
		// Anonymous click: nothing to credit. Left unpaid in case the click
		// is later attributed to a user.
		settlementsTotal.WithLabelValues("anonymous").Inc()
		return nil
	}

	var user models.User
	var merchant models.Merchant

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim-by-transition: the conditional update both marks the event
		// paid and locks the row. A concurrent settlement of the same event
		// blocks here, then matches zero rows and backs off.
		now := time.Now()
		claim := tx.Model(&models.CashbackEvent{}).
			Where("id = ? AND paid_at IS NULL", event.ID).
			Updates(map[string]interface{}{"paid_at": now, "updated_at": now})
		if claim.Error != nil {
			return fmt.Errorf("failed to claim event %d: %w", event.ID, claim.Error)
		}
		if claim.RowsAffected == 0 {
			settlementsTotal.WithLabelValues("already_paid").Inc()
			return nil
		}

		if err := tx.First(&user, *event.UserID).Error; err != nil {
			return fmt.Errorf("failed to load user %d: %w", *event.UserID, err)
		}
		if err := tx.Unscoped().First(&merchant, event.MerchantID).Error; err != nil {
			return fmt.Errorf("failed to load merchant %d: %w", event.MerchantID, err)
		}

		entry := models.WalletTransaction{
			UserID:        user.ID,
			Amount:        event.CashbackAmount,
			Type:          models.WalletTxnCashbackEarned,
			ReferenceType: models.ReferenceCashbackEvent,
			ReferenceID:   event.ID,
			BalanceBefore: user.WalletBalance,
			BalanceAfter:  user.WalletBalance + event.CashbackAmount,
			Description:   "Cashback from " + merchant.Name,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"wallet_balance":    gorm.Expr("wallet_balance + ?", event.CashbackAmount),
				"lifetime_earnings": gorm.Expr("lifetime_earnings + ?", event.CashbackAmount),
				"updated_at":        now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update wallet balance: %w", err)
		}

		return nil
	})
	if err != nil {
		settlementsTotal.WithLabelValues("error").Inc()
		return err
	}
	if user.ID == 0 {
		// Transaction no-opped on the claim; nothing was credited.
		return nil
	}

	settlementsTotal.WithLabelValues("credited").Inc()
	log.Printf("💰 Credited %.2f to user %d for cashback event %d", event.CashbackAmount, user.ID, event.ID)

	// Notification failure must not undo the credit — log and move on.
	if err := EnqueueNotification(s.DB, models.NotificationCashbackConfirmed, user.Email, map[string]interface{}{
		"user_name":       user.FullName,
		"cashback_amount": event.CashbackAmount,
		"merchant_name":   merchant.Name,
	}); err != nil {
		log.Printf("⚠️ Cashback credited but notification enqueue failed for event %d: %v", event.ID, err)
	}
	return nil
}
