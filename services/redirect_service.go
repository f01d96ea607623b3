package services

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"coupon-cashback-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cashback_redirects_total",
	Help: "Outbound redirect requests by result",
}, []string{"status"})

// RedirectService resolves /out/ links to their affiliate destination and
// hands the click to the logger. Stateless; safe under full concurrency.
type RedirectService struct {
	DB     *gorm.DB
	Clicks *ClickLogger
}

func NewRedirectService(db *gorm.DB, clicks *ClickLogger) *RedirectService {
	return &RedirectService{DB: db, Clicks: clicks}
}

type clickParams struct {
	MerchantID string
	OfferID    string
	UserID     string // optional
}

// parseClickPath accepts out/<merchantID>/<offerID>[/<userID>] and rejects
// everything else.
func parseClickPath(wildcard string) (*clickParams, bool) {
	var parts []string
	for _, p := range strings.Split(wildcard, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 || len(parts) > 3 {
		return nil, false
	}
	params := &clickParams{MerchantID: parts[0], OfferID: parts[1]}
	if len(parts) == 3 {
		params.UserID = parts[2]
	}
	return params, true
}

// HandleRedirect serves GET /out/<merchantID>/<offerID>/<userID?>.
// 400 on a malformed path, 404 when the offer cannot be resolved, otherwise
// 302 to the affiliate destination. The click write never delays the
// response and its failure never surfaces to the caller.
func (s *RedirectService) HandleRedirect(c *fiber.Ctx) error {
	params, ok := parseClickPath(c.Params("*"))
	if !ok {
		redirectsTotal.WithLabelValues("bad_request").Inc()
		return c.Status(fiber.StatusBadRequest).SendString("Invalid redirect URL")
	}

	var offer models.Offer
	err := s.DB.Preload("Merchant").
		Where("uuid = ? AND is_verified = ? AND (expires_at IS NULL OR expires_at > ?)",
			params.OfferID, true, time.Now()).
		First(&offer).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("❌ Offer lookup failed for %s: %v", params.OfferID, err)
		}
		redirectsTotal.WithLabelValues("not_found").Inc()
		return c.Status(fiber.StatusNotFound).SendString("Offer not found or expired")
	}

	destination := resolveDestination(&offer)
	if destination == "" {
		redirectsTotal.WithLabelValues("not_found").Inc()
		return c.Status(fiber.StatusNotFound).SendString("Offer not found or expired")
	}

	// Everything the logger needs is copied out of the request context here;
	// the fiber ctx is recycled once the handler returns.
	click := models.OfferClick{
		ClickID:     uuid.NewString(),
		OfferID:     offer.ID,
		MerchantID:  offer.MerchantID,
		UserID:      parseOptionalUserID(params.UserID),
		IPAddress:   c.IP(),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
		ReferrerURL: c.Get(fiber.HeaderReferer),
		DeviceType:  DetectDeviceType(c.Get(fiber.HeaderUserAgent)),
	}
	s.Clicks.Log(click)

	redirectsTotal.WithLabelValues("redirected").Inc()
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	return c.Redirect(destination, fiber.StatusFound)
}

// Health serves GET /health.
func (s *RedirectService) Health(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// resolveDestination prefers the offer's own affiliate URL, falling back to
// the merchant tracking template with {affiliate_id} substituted.
func resolveDestination(offer *models.Offer) string {
	if offer.AffiliateURL != "" {
		return offer.AffiliateURL
	}
	if offer.Merchant.TrackingURLTemplate != "" {
		return strings.ReplaceAll(offer.Merchant.TrackingURLTemplate, "{affiliate_id}", offer.Merchant.AffiliateID)
	}
	return ""
}

func parseOptionalUserID(raw string) *uint {
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	uid := uint(id)
	return &uid
}
