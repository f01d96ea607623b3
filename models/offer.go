package models

import (
	"time"

	"gorm.io/gorm"
)

// Offer is a coupon/cashback deal pointing at a merchant. Owned by the
// catalog service; the redirector only resolves it and bumps ClicksCount.
type Offer struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	UUID       string `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"` // public id used in /out/ links
	MerchantID uint   `json:"merchant_id" gorm:"index;not null"`
	Title      string `json:"title"`

	// Resolution: AffiliateURL wins; otherwise the merchant's tracking
	// template is used with {affiliate_id} substituted.
	AffiliateURL string `json:"affiliate_url"`

	IsVerified bool       `json:"is_verified" gorm:"default:false"`
	ExpiresAt  *time.Time `json:"expires_at"`

	// Denormalized counter maintained by the click logger. Not authoritative;
	// offer_clicks rows are.
	ClicksCount int64 `json:"clicks_count" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Merchant Merchant `json:"merchant,omitempty" gorm:"foreignKey:MerchantID"`
}
