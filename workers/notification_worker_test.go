package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"coupon-cashback-system/models"

	"gorm.io/gorm"
)

// mailServer fakes the messaging API; failures is decremented per request
// until it reaches zero, after which sends succeed.
func mailServer(t *testing.T, failures *int64) (*httptest.Server, *int64) {
	t.Helper()
	var sent int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if atomic.AddInt64(failures, -1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		atomic.AddInt64(&sent, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	return srv, &sent
}

func newTestWorker(db *gorm.DB, baseURL string) *NotificationWorker {
	mailer := &MailClient{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		FromEmail:  "noreply@couponcommerce.example",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
	return &NotificationWorker{
		DB:             db,
		Mailer:         mailer,
		BatchSize:      10,
		IdleDelay:      10 * time.Millisecond,
		MaxAttempts:    3,
		DispatchExpiry: 2 * time.Second,
	}
}

func enqueueJob(t *testing.T, db *gorm.DB, jobType string) models.NotificationJob {
	t.Helper()
	job := models.NotificationJob{
		Type:      jobType,
		Recipient: "user@example.com",
		Payload:   `{"user_name":"Test User","cashback_amount":30,"merchant_name":"Amazon India"}`,
		Status:    models.NotificationStatusPending,
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}
	return job
}

func TestProcessBatchCompletesJob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var failures int64
	srv, sent := mailServer(t, &failures)
	defer srv.Close()

	job := enqueueJob(t, db, models.NotificationCashbackConfirmed)
	worker := newTestWorker(db, srv.URL)

	processed, err := worker.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("Expected 1 processed job, got %d", processed)
	}
	if *sent != 1 {
		t.Errorf("Expected 1 email sent, got %d", *sent)
	}

	var got models.NotificationJob
	db.First(&got, job.ID)
	if got.Status != models.NotificationStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", got.Attempts)
	}
}

func TestFailedDispatchRetriesThenFails(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	failures := int64(100) // always fail
	srv, _ := mailServer(t, &failures)
	defer srv.Close()

	job := enqueueJob(t, db, models.NotificationCashbackConfirmed)
	worker := newTestWorker(db, srv.URL)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if _, err := worker.ProcessBatch(ctx); err != nil {
			t.Fatalf("Batch %d failed: %v", i, err)
		}
		var got models.NotificationJob
		db.First(&got, job.ID)
		if got.Status != models.NotificationStatusPending {
			t.Fatalf("After attempt %d expected pending, got %s", i, got.Status)
		}
		if got.Attempts != i {
			t.Fatalf("After attempt %d expected attempts=%d, got %d", i, i, got.Attempts)
		}
	}

	// Third attempt exhausts the cap.
	if _, err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("Third batch failed: %v", err)
	}
	var got models.NotificationJob
	db.First(&got, job.ID)
	if got.Status != models.NotificationStatusFailed {
		t.Errorf("Expected failed after 3 attempts, got %s", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts must never exceed 3, got %d", got.Attempts)
	}

	// Failed is terminal: the job is never claimed again.
	processed, err := worker.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("Fourth batch failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected no claimable jobs, got %d", processed)
	}
	db.First(&got, job.ID)
	if got.Attempts != 3 {
		t.Errorf("Terminal job was re-attempted: attempts=%d", got.Attempts)
	}
}

func TestClaimRespectsBatchSizeAndOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var failures int64
	srv, _ := mailServer(t, &failures)
	defer srv.Close()

	worker := newTestWorker(db, srv.URL)
	worker.BatchSize = 3
	for i := 0; i < 5; i++ {
		enqueueJob(t, db, models.NotificationCashbackConfirmed)
	}

	jobs, err := worker.claimJobs(context.Background())
	if err != nil {
		t.Fatalf("claimJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 claimed jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != models.NotificationStatusProcessing {
			t.Errorf("Claimed job %d not processing: %s", job.ID, job.Status)
		}
		if job.Attempts != 1 {
			t.Errorf("Claimed job %d attempts = %d, want 1", job.ID, job.Attempts)
		}
	}

	// A second claim must pick up only the remaining pending jobs.
	second, err := worker.claimJobs(context.Background())
	if err != nil {
		t.Fatalf("Second claimJobs failed: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("Expected 2 jobs in second claim, got %d", len(second))
	}
	seen := map[uint]bool{}
	for _, job := range jobs {
		seen[job.ID] = true
	}
	for _, job := range second {
		if seen[job.ID] {
			t.Errorf("Job %d claimed twice", job.ID)
		}
	}
}

func TestEmptyQueueClaimsNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	var failures int64
	srv, _ := mailServer(t, &failures)
	defer srv.Close()

	processed, err := newTestWorker(db, srv.URL).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected no jobs processed, got %d", processed)
	}
}

func TestEmailBodyRendersCashbackTemplate(t *testing.T) {
	job := &models.NotificationJob{
		Type:    models.NotificationCashbackConfirmed,
		Payload: `{"user_name":"Asha","cashback_amount":1250.5,"merchant_name":"Amazon India"}`,
	}
	body := emailBody(job)
	for _, want := range []string{"Asha", "1,250.50", "Amazon India"} {
		if !strings.Contains(body, want) {
			t.Errorf("Body missing %q: %s", want, body)
		}
	}
	if emailSubject(job.Type) != "Cashback Credited to Your Wallet" {
		t.Errorf("Unexpected subject: %s", emailSubject(job.Type))
	}
}
