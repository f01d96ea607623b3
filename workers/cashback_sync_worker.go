package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"coupon-cashback-system/models"
	"coupon-cashback-system/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	cashbackEventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashback_events_created_total",
		Help: "Cashback events created from affiliate transactions",
	})
	cashbackSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashback_sync_errors_total",
		Help: "Reconciliation errors by kind",
	}, []string{"kind"})
)

// AffiliateTransaction is one row of the network's actions feed. subid
// carries back the click id we embedded in the outbound link.
type AffiliateTransaction struct {
	ID            string  `json:"id"`
	SubID         string  `json:"subid"`
	ActionDate    string  `json:"action_date"`
	PaymentAmount float64 `json:"payment_amount"`
	PaymentStatus string  `json:"payment_status"`
}

// AffiliateClient fetches recent transactions from the affiliate network's
// paginated actions endpoint.
type AffiliateClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewAffiliateClient reads credentials from the environment.
func NewAffiliateClient() *AffiliateClient {
	baseURL := os.Getenv("ADMITAD_API_URL")
	if baseURL == "" {
		baseURL = "https://api.admitad.com"
	}
	token := os.Getenv("ADMITAD_ACCESS_TOKEN")
	if token == "" {
		log.Fatal("ADMITAD_ACCESS_TOKEN environment variable is required for cashback sync")
	}
	return &AffiliateClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchTransactions pulls up to limit transactions whose action date falls in
// the trailing window starting at since.
func (c *AffiliateClient) FetchTransactions(ctx context.Context, since time.Time, limit int) ([]AffiliateTransaction, error) {
	u, err := url.Parse(fmt.Sprintf("%s/statistics/actions/", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid affiliate API URL: %w", err)
	}
	q := u.Query()
	q.Set("date_start", since.UTC().Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call affiliate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("affiliate API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Results []AffiliateTransaction `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode affiliate API response: %w", err)
	}
	return response.Results, nil
}

// CashbackSyncWorker reconciles the affiliate network's transaction feed
// against locally logged clicks. Re-running a cycle over an unchanged feed is
// a no-op; running extra instances only multiplies affiliate API load.
type CashbackSyncWorker struct {
	DB         *gorm.DB
	Client     *AffiliateClient
	Settlement *services.SettlementService

	Interval   time.Duration
	WindowDays int
	PageLimit  int
}

func NewCashbackSyncWorker(db *gorm.DB, client *AffiliateClient, settlement *services.SettlementService) *CashbackSyncWorker {
	interval := 6 * time.Hour
	if raw := os.Getenv("CASHBACK_SYNC_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		} else {
			log.Printf("⚠️ Invalid CASHBACK_SYNC_INTERVAL %q, using default 6h", raw)
		}
	}
	windowDays := 30
	if raw := os.Getenv("CASHBACK_SYNC_WINDOW_DAYS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			windowDays = n
		}
	}
	return &CashbackSyncWorker{
		DB:         db,
		Client:     client,
		Settlement: settlement,
		Interval:   interval,
		WindowDays: windowDays,
		PageLimit:  100,
	}
}

// Start schedules the periodic sync and shuts the scheduler down when ctx is
// cancelled. An in-flight cycle finishes; no new one starts.
func (w *CashbackSyncWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() {
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Cashback sync cycle failed: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule cashback sync: %w", err)
	}

	sched.Start()
	log.Printf("💰 Cashback sync worker started (every %s, %d-day window)", w.Interval, w.WindowDays)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️ Cashback sync scheduler shutdown: %v", err)
		}
		log.Println("⏹️ Cashback sync worker stopped")
	}()
	return nil
}

// SyncOnce runs a single reconciliation cycle. A failed fetch aborts the
// cycle; a failed transaction only skips that transaction.
func (w *CashbackSyncWorker) SyncOnce(ctx context.Context) error {
	since := time.Now().AddDate(0, 0, -w.WindowDays)
	transactions, err := w.Client.FetchTransactions(ctx, since, w.PageLimit)
	if err != nil {
		cashbackSyncErrors.WithLabelValues("fetch").Inc()
		return fmt.Errorf("failed to fetch affiliate transactions: %w", err)
	}

	log.Printf("📥 Reconciling %d affiliate transaction(s)", len(transactions))
	for _, txn := range transactions {
		if err := w.processTransaction(ctx, txn); err != nil {
			cashbackSyncErrors.WithLabelValues("transaction").Inc()
			log.Printf("❌ Failed to reconcile affiliate transaction %s: %v", txn.ID, err)
		}
	}
	return nil
}

// processTransaction reconciles one feed row: attribute it to a click, then
// create or update the cashback event keyed by the external transaction id.
func (w *CashbackSyncWorker) processTransaction(ctx context.Context, txn AffiliateTransaction) error {
	var click models.OfferClick
	if err := w.DB.WithContext(ctx).Where("click_id = ?", txn.SubID).First(&click).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No attribution possible; not an error.
			return nil
		}
		return fmt.Errorf("click lookup failed: %w", err)
	}

	var existing models.CashbackEvent
	err := w.DB.WithContext(ctx).Where("affiliate_transaction_id = ?", txn.ID).First(&existing).Error
	if err == nil {
		if existing.Status == txn.PaymentStatus {
			return nil
		}
		if err := w.DB.WithContext(ctx).Model(&existing).
			Updates(map[string]interface{}{"status": txn.PaymentStatus, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("status update failed: %w", err)
		}
		if txn.PaymentStatus == models.CashbackStatusApproved {
			return w.Settlement.SettleCashbackEvent(ctx, existing.ID)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("event lookup failed: %w", err)
	}

	var merchant models.Merchant
	if err := w.DB.WithContext(ctx).Unscoped().First(&merchant, click.MerchantID).Error; err != nil {
		return fmt.Errorf("merchant lookup failed: %w", err)
	}

	event := models.CashbackEvent{
		UserID:                 click.UserID,
		OfferID:                click.OfferID,
		MerchantID:             click.MerchantID,
		ClickID:                click.ClickID,
		TransactionAmount:      txn.PaymentAmount,
		CommissionAmount:       txn.PaymentAmount * merchant.EffectiveCommissionRate() / 100,
		CashbackAmount:         txn.PaymentAmount * merchant.EffectiveCashbackRate() / 100,
		Status:                 txn.PaymentStatus,
		AffiliateTransactionID: txn.ID,
	}
	if err := w.DB.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("event insert failed: %w", err)
	}
	cashbackEventsCreated.Inc()
	log.Printf("🧾 Cashback event %d created for click %s (%s, %.2f)", event.ID, click.ClickID, event.Status, event.CashbackAmount)

	if txn.PaymentStatus == models.CashbackStatusApproved {
		return w.Settlement.SettleCashbackEvent(ctx, event.ID)
	}
	return nil
}
