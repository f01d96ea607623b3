package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"coupon-cashback-system/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

var notificationDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cashback_notification_dispatches_total",
	Help: "Notification dispatch attempts by result",
}, []string{"result"})

// amountPrinter renders currency amounts with thousands separators in email
// bodies.
var amountPrinter = message.NewPrinter(language.English)

// MailClient sends transactional email through the messaging API. Any non-2xx
// response counts as a dispatch failure.
type MailClient struct {
	BaseURL    string
	APIKey     string
	FromEmail  string
	HTTPClient *http.Client
}

// NewMailClient reads credentials from the environment.
func NewMailClient() *MailClient {
	baseURL := os.Getenv("SENDGRID_API_URL")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		log.Fatal("SENDGRID_API_KEY environment variable is required for the notification worker")
	}
	fromEmail := os.Getenv("MAIL_FROM_EMAIL")
	if fromEmail == "" {
		fromEmail = "noreply@couponcommerce.example"
	}
	return &MailClient{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		FromEmail: fromEmail,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Send posts one email. The caller bounds the attempt with ctx; a timeout is
// a failure like any other.
func (m *MailClient) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": recipient}}},
		},
		"from":    map[string]string{"email": m.FromEmail},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/html", "value": htmlBody},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mail API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// NotificationWorker drains the notification queue. Jobs are claimed by
// atomically flipping pending → processing with a per-batch token, so any
// number of worker instances load-balance without an external lock.
type NotificationWorker struct {
	DB     *gorm.DB
	Mailer *MailClient

	BatchSize      int
	IdleDelay      time.Duration
	MaxAttempts    int
	DispatchExpiry time.Duration
}

func NewNotificationWorker(db *gorm.DB, mailer *MailClient) *NotificationWorker {
	batchSize := 10
	if raw := os.Getenv("NOTIFICATION_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}
	idleDelay := 5 * time.Second
	if raw := os.Getenv("NOTIFICATION_IDLE_DELAY"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			idleDelay = d
		}
	}
	return &NotificationWorker{
		DB:             db,
		Mailer:         mailer,
		BatchSize:      batchSize,
		IdleDelay:      idleDelay,
		MaxAttempts:    3,
		DispatchExpiry: 15 * time.Second,
	}
}

// Run loops until ctx is cancelled, finishing the in-flight batch first.
func (w *NotificationWorker) Run(ctx context.Context) {
	log.Printf("📧 Notification worker started (batch %d, idle %s)", w.BatchSize, w.IdleDelay)
	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Notification worker stopped")
			return
		default:
		}

		processed, err := w.ProcessBatch(ctx)
		if err != nil {
			log.Printf("❌ Notification batch failed: %v", err)
		}
		if processed == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.IdleDelay):
			}
		}
	}
}

// ProcessBatch claims up to BatchSize pending jobs and dispatches them.
// Returns the number of jobs claimed.
func (w *NotificationWorker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.claimJobs(ctx)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		w.dispatch(ctx, &jobs[i])
	}
	return len(jobs), nil
}

// claimJobs is the claim-by-transition step: the conditional update only
// moves rows that are still pending, so a job claimed by a concurrent worker
// between the select and the update simply doesn't match.
func (w *NotificationWorker) claimJobs(ctx context.Context) ([]models.NotificationJob, error) {
	var ids []uint
	if err := w.DB.WithContext(ctx).Model(&models.NotificationJob{}).
		Where("status = ?", models.NotificationStatusPending).
		Order("created_at").Limit(w.BatchSize).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to select pending jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	token := uuid.NewString()
	res := w.DB.WithContext(ctx).Model(&models.NotificationJob{}).
		Where("id IN ? AND status = ?", ids, models.NotificationStatusPending).
		Updates(map[string]interface{}{
			"status":     models.NotificationStatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_by": token,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var jobs []models.NotificationJob
	if err := w.DB.WithContext(ctx).
		Where("claimed_by = ? AND status = ?", token, models.NotificationStatusProcessing).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to load claimed jobs: %w", err)
	}
	return jobs, nil
}

// dispatch sends one claimed job and transitions it to its next state:
// completed on success, failed once attempts are exhausted, back to pending
// otherwise.
func (w *NotificationWorker) dispatch(ctx context.Context, job *models.NotificationJob) {
	sendCtx, cancel := context.WithTimeout(ctx, w.DispatchExpiry)
	defer cancel()

	err := w.Mailer.Send(sendCtx, job.Recipient, emailSubject(job.Type), emailBody(job))
	if err == nil {
		notificationDispatches.WithLabelValues("completed").Inc()
		w.transition(job, models.NotificationStatusCompleted)
		return
	}

	log.Printf("❌ Failed to send %s notification %d (attempt %d): %v", job.Type, job.ID, job.Attempts, err)
	if job.Attempts >= w.MaxAttempts {
		notificationDispatches.WithLabelValues("failed").Inc()
		w.transition(job, models.NotificationStatusFailed)
		return
	}
	notificationDispatches.WithLabelValues("retry").Inc()
	w.transition(job, models.NotificationStatusPending)
}

func (w *NotificationWorker) transition(job *models.NotificationJob, status string) {
	if err := w.DB.Model(job).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error; err != nil {
		log.Printf("❌ Failed to move notification %d to %s: %v", job.ID, status, err)
	}
}

func emailSubject(jobType string) string {
	switch jobType {
	case models.NotificationWelcome:
		return "Welcome to CouponCommerce!"
	case models.NotificationOrderConfirmation:
		return "Order Confirmed - Your Vouchers"
	case models.NotificationCashbackConfirmed:
		return "Cashback Credited to Your Wallet"
	case models.NotificationWithdrawalProcessed:
		return "Withdrawal Processed Successfully"
	default:
		return "Notification"
	}
}

// emailBody renders the HTML body from the job's payload. Unknown types get a
// generic dump of the payload so nothing silently disappears.
func emailBody(job *models.NotificationJob) string {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(job.Payload), &data); err != nil {
		data = map[string]interface{}{}
	}

	switch job.Type {
	case models.NotificationCashbackConfirmed:
		return fmt.Sprintf(
			"<h1>Cashback Credited!</h1><p>Hi %s,</p><p>₹%s from %s has been added to your wallet.</p>",
			stringField(data, "user_name"),
			amountPrinter.Sprintf("%.2f", floatField(data, "cashback_amount")),
			stringField(data, "merchant_name"),
		)
	case models.NotificationWithdrawalProcessed:
		return fmt.Sprintf(
			"<h1>Withdrawal Processed</h1><p>Hi %s,</p><p>Your withdrawal of ₹%s has been processed.</p>",
			stringField(data, "user_name"),
			amountPrinter.Sprintf("%.2f", floatField(data, "amount")),
		)
	default:
		raw, _ := json.Marshal(data)
		return fmt.Sprintf("<p>%s</p>", string(raw))
	}
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func floatField(data map[string]interface{}, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}
