package models

import "time"

// Device classifications derived from the user agent.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// OfferClick records one redirect through /out/. Written exactly once by the
// click logger and immutable afterwards; ClickID is what the affiliate
// network echoes back as subid, making it the attribution join key.
type OfferClick struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ClickID     string    `json:"click_id" gorm:"type:uuid;uniqueIndex;not null"`
	OfferID     uint      `json:"offer_id" gorm:"index;not null"`
	MerchantID  uint      `json:"merchant_id" gorm:"index;not null"`
	UserID      *uint     `json:"user_id" gorm:"index"` // nil for anonymous visitors
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent" gorm:"type:text"`
	ReferrerURL string    `json:"referrer_url" gorm:"type:text"`
	DeviceType  string    `json:"device_type"` // mobile | tablet | desktop
	CreatedAt   time.Time `json:"created_at"`
}
