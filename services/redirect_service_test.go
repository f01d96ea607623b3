package services

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"coupon-cashback-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newRedirectApp(t *testing.T, db *gorm.DB) (*fiber.App, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := NewClickLogger(db, 64)
	go logger.Run(ctx)

	svc := NewRedirectService(db, logger)
	app := fiber.New()
	app.Get("/health", svc.Health)
	app.Get("/out/*", svc.HandleRedirect)
	return app, cancel
}

// waitForClicks polls until the click logger's async write lands or the
// deadline passes.
func waitForClicks(t *testing.T, db *gorm.DB, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		db.Model(&models.OfferClick{}).Count(&count)
		if count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	var count int64
	db.Model(&models.OfferClick{}).Count(&count)
	t.Fatalf("Expected %d click row(s), got %d", want, count)
}

func TestRedirectWithAffiliateURLLogsClick(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	user, _, offer, _ := seedPipeline(t, db, 0)

	req := httptest.NewRequest("GET", "/out/1/"+offer.UUID+"/1", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile Safari")
	req.Header.Set("Referer", "https://storefront.test/coupons")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://x.test" {
		t.Errorf("Expected Location https://x.test, got %s", loc)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache, no-store, must-revalidate" {
		t.Errorf("Unexpected Cache-Control: %s", cc)
	}

	// The seeded click plus the one from this redirect.
	waitForClicks(t, db, 2)

	var click models.OfferClick
	if err := db.Order("id DESC").First(&click).Error; err != nil {
		t.Fatalf("Failed to load click: %v", err)
	}
	if click.OfferID != offer.ID {
		t.Errorf("Click references offer %d, want %d", click.OfferID, offer.ID)
	}
	if click.UserID == nil || *click.UserID != user.ID {
		t.Errorf("Click user = %v, want %d", click.UserID, user.ID)
	}
	if click.DeviceType != models.DeviceMobile {
		t.Errorf("Expected mobile device, got %s", click.DeviceType)
	}
	if click.ReferrerURL != "https://storefront.test/coupons" {
		t.Errorf("Unexpected referrer: %s", click.ReferrerURL)
	}

	var reloaded models.Offer
	db.First(&reloaded, offer.ID)
	if reloaded.ClicksCount != 1 {
		t.Errorf("Expected clicks_count 1, got %d", reloaded.ClicksCount)
	}
}

func TestRedirectUsesTrackingTemplateWhenNoAffiliateURL(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	merchant := models.Merchant{
		Name:                "Flipkart",
		AffiliateID:         "aff-77",
		TrackingURLTemplate: "https://track.test/go?aid={affiliate_id}",
	}
	db.Create(&merchant)
	offer := models.Offer{UUID: uuid.NewString(), MerchantID: merchant.ID, IsVerified: true}
	db.Create(&offer)

	resp, err := app.Test(httptest.NewRequest("GET", "/out/"+uuid.NewString()+"/"+offer.UUID, nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://track.test/go?aid=aff-77" {
		t.Errorf("Expected substituted tracking URL, got %s", loc)
	}
}

func TestRedirectMalformedPathReturns400(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	for _, path := range []string{"/out/only-merchant", "/out/a/b/c/d"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestRedirectUnresolvableOfferReturns404(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	merchant := models.Merchant{Name: "Myntra"}
	db.Create(&merchant)

	expired := time.Now().Add(-time.Hour)
	cases := []struct {
		name  string
		offer models.Offer
	}{
		{"unverified", models.Offer{UUID: uuid.NewString(), MerchantID: merchant.ID, AffiliateURL: "https://x.test"}},
		{"expired", models.Offer{UUID: uuid.NewString(), MerchantID: merchant.ID, AffiliateURL: "https://x.test", IsVerified: true, ExpiresAt: &expired}},
		{"no destination", models.Offer{UUID: uuid.NewString(), MerchantID: merchant.ID, IsVerified: true}},
	}
	for _, tc := range cases {
		db.Create(&tc.offer)
		resp, err := app.Test(httptest.NewRequest("GET", "/out/1/"+tc.offer.UUID, nil))
		if err != nil {
			t.Fatalf("%s: request failed: %v", tc.name, err)
		}
		if resp.StatusCode != fiber.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", tc.name, resp.StatusCode)
		}
	}

	resp, _ := app.Test(httptest.NewRequest("GET", "/out/1/"+uuid.NewString(), nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unknown offer: expected 404, got %d", resp.StatusCode)
	}
}

func TestRedirectSoftDeletedOfferReturns404AndNoClick(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	merchant := models.Merchant{Name: "Ajio"}
	db.Create(&merchant)
	offer := models.Offer{UUID: uuid.NewString(), MerchantID: merchant.ID, IsVerified: true, AffiliateURL: "https://x.test"}
	db.Create(&offer)
	db.Delete(&offer) // soft delete

	resp, err := app.Test(httptest.NewRequest("GET", "/out/1/"+offer.UUID, nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	var count int64
	db.Model(&models.OfferClick{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no click rows for soft-deleted offer, got %d", count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	app, cancel := newRedirectApp(t, db)
	defer cancel()

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestDetectDeviceType(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148", models.DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 14; SM-A546E) Mobile Safari", models.DeviceMobile},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", models.DeviceTablet},
		{"Mozilla/5.0 (Linux; Android 14; Tablet) Safari", models.DeviceTablet},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", models.DeviceDesktop},
		{"", models.DeviceDesktop},
	}
	for _, tc := range cases {
		if got := DetectDeviceType(tc.ua); got != tc.want {
			t.Errorf("DetectDeviceType(%q) = %s, want %s", tc.ua, got, tc.want)
		}
	}
}
