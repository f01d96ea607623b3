package services

import (
	"context"
	"log"
	"strings"

	"coupon-cashback-system/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	clicksLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashback_clicks_logged_total",
		Help: "Click rows successfully written",
	})
	clicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashback_clicks_dropped_total",
		Help: "Clicks dropped because the logger buffer was full",
	})
	clickWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashback_click_write_errors_total",
		Help: "Failed click writes (attribution lost, redirect unaffected)",
	})
)

// ClickLogger writes click rows off the request path. Handlers enqueue onto a
// buffered channel and return immediately; a single writer goroutine persists
// each click and bumps the offer's denormalized counter. A full buffer drops
// the click — attribution loss is preferable to a slow redirect.
type ClickLogger struct {
	DB *gorm.DB
	ch chan models.OfferClick
}

func NewClickLogger(db *gorm.DB, buffer int) *ClickLogger {
	if buffer <= 0 {
		buffer = 1024
	}
	return &ClickLogger{
		DB: db,
		ch: make(chan models.OfferClick, buffer),
	}
}

// Log enqueues a click without blocking. Returns false when the buffer is
// full and the click was dropped.
func (l *ClickLogger) Log(click models.OfferClick) bool {
	select {
	case l.ch <- click:
		return true
	default:
		clicksDropped.Inc()
		log.Printf("⚠️ Click logger buffer full, dropping click for offer %d", click.OfferID)
		return false
	}
}

// Run consumes the channel until ctx is cancelled, then drains whatever is
// already buffered before returning.
func (l *ClickLogger) Run(ctx context.Context) {
	log.Println("🖱️ Click logger started")
	for {
		select {
		case click := <-l.ch:
			l.write(click)
		case <-ctx.Done():
			for {
				select {
				case click := <-l.ch:
					l.write(click)
				default:
					log.Println("⏹️ Click logger stopped")
					return
				}
			}
		}
	}
}

func (l *ClickLogger) write(click models.OfferClick) {
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&click).Error; err != nil {
			return err
		}
		return tx.Model(&models.Offer{}).
			Where("id = ?", click.OfferID).
			UpdateColumn("clicks_count", gorm.Expr("clicks_count + 1")).Error
	})
	if err != nil {
		clickWriteErrors.Inc()
		log.Printf("❌ Failed to log click %s: %v", click.ClickID, err)
		return
	}
	clicksLogged.Inc()
}

// DetectDeviceType classifies a user agent into mobile/tablet/desktop.
// Desktop is the default when nothing matches.
func DetectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return models.DeviceTablet
	case strings.Contains(ua, "mobile"):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}
