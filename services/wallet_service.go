package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"coupon-cashback-system/models"
	"coupon-cashback-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService exposes the user-facing wallet API: balance summary, ledger
// history, withdrawal requests and missing-cashback claims.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// GetWalletSummary returns balance, pending cashback, lifetime earnings and
// total withdrawn for the authenticated user.
func (s *WalletService) GetWalletSummary(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var user models.User
	if err := s.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var pendingCashback float64
	if err := s.DB.Model(&models.CashbackEvent{}).
		Where("user_id = ? AND paid_at IS NULL AND status IN ?", userID,
			[]string{models.CashbackStatusPending, models.CashbackStatusApproved}).
		Select("COALESCE(SUM(cashback_amount), 0)").Scan(&pendingCashback).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var totalWithdrawn float64
	if err := s.DB.Model(&models.Withdrawal{}).
		Where("user_id = ? AND status != ?", userID, models.WithdrawalStatusRejected).
		Select("COALESCE(SUM(amount), 0)").Scan(&totalWithdrawn).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance":           user.WalletBalance,
			"pending_cashback":  pendingCashback,
			"lifetime_earnings": user.LifetimeEarnings,
			"total_withdrawn":   totalWithdrawn,
		},
	})
}

// ListWalletTransactions returns the user's ledger entries, newest first,
// with page/limit pagination and an optional type filter.
func (s *WalletService) ListWalletTransactions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.DB.Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	if txnType := c.Query("type"); txnType != "" {
		query = query.Where("type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var transactions []models.WalletTransaction
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"transactions": transactions,
			"page":         page,
			"limit":        limit,
			"total":        total,
		},
	})
}

// RequestWithdrawal debits the wallet and records a pending withdrawal. The
// debit and the ledger entry are one transaction; a balance that drops below
// the requested amount between read and write is caught by the conditional
// update.
func (s *WalletService) RequestWithdrawal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var req struct {
		Amount float64 `json:"amount"`
		Method string  `json:"method"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be positive"})
	}
	if req.Method != models.WithdrawalMethodBank && req.Method != models.WithdrawalMethodUPI {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported withdrawal method"})
	}

	var withdrawal models.Withdrawal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND wallet_balance >= ?", userID, req.Amount).
			Updates(map[string]interface{}{
				"wallet_balance": gorm.Expr("wallet_balance - ?", req.Amount),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInsufficientBalance
		}

		withdrawal = models.Withdrawal{
			UserID: userID,
			Amount: req.Amount,
			Method: req.Method,
			Status: models.WithdrawalStatusPending,
		}
		if err := tx.Create(&withdrawal).Error; err != nil {
			return err
		}

		entry := models.WalletTransaction{
			UserID:        userID,
			Amount:        -req.Amount,
			Type:          models.WalletTxnWithdrawal,
			ReferenceType: models.ReferenceWithdrawal,
			ReferenceID:   withdrawal.ID,
			BalanceBefore: user.WalletBalance,
			BalanceAfter:  user.WalletBalance - req.Amount,
			Description:   fmt.Sprintf("Withdrawal via %s", req.Method),
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		if errors.Is(err, errInsufficientBalance) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Insufficient wallet balance"})
		}
		log.Printf("❌ Withdrawal failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create withdrawal"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": withdrawal})
}

var errInsufficientBalance = errors.New("insufficient wallet balance")

// SubmitMissingCashbackClaim files a report that a tracked purchase never
// appeared in the affiliate feed. Multipart form; the optional screenshot is
// uploaded to R2 when object storage is configured.
func (s *WalletService) SubmitMissingCashbackClaim(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var req struct {
		MerchantID        uint    `form:"merchant_id"`
		OfferID           uint    `form:"offer_id"`
		TransactionAmount float64 `form:"transaction_amount"`
		TransactionDate   string  `form:"transaction_date"`
		OrderID           string  `form:"order_id"`
		Notes             string  `form:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.MerchantID == 0 || req.OrderID == "" || req.TransactionAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "merchant_id, order_id and transaction_amount are required"})
	}

	txnDate, err := time.Parse("2006-01-02", req.TransactionDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction_date must be YYYY-MM-DD"})
	}

	var merchant models.Merchant
	if err := s.DB.First(&merchant, req.MerchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Merchant not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	screenshotURL := ""
	if file, err := c.FormFile("screenshot"); err == nil && utils.R2Enabled() {
		key := fmt.Sprintf("claims/%s", uuid.NewString())
		screenshotURL, err = utils.UploadScreenshot(file, key)
		if err != nil {
			log.Printf("⚠️ Screenshot upload failed for user %d: %v", userID, err)
			// Claim is still filed; support can request the screenshot again.
			screenshotURL = ""
		}
	}

	claim := models.MissingCashbackClaim{
		UserID:            userID,
		MerchantID:        req.MerchantID,
		OfferID:           req.OfferID,
		TransactionAmount: req.TransactionAmount,
		TransactionDate:   txnDate,
		OrderID:           req.OrderID,
		ScreenshotURL:     screenshotURL,
		Notes:             req.Notes,
		Status:            "pending",
	}
	if err := s.DB.Create(&claim).Error; err != nil {
		log.Printf("❌ Failed to create missing cashback claim: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to file claim"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": claim})
}
