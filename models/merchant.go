package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Affiliate networks we pull transactions from.
const (
	NetworkAdmitad     = "admitad"
	NetworkVCommission = "vcommission"
	NetworkCueLinks    = "cuelinks"
)

// Fallback rates (percent) used when a merchant has no configured rate.
// Per-merchant configuration is the intended model; these are defaults only.
const (
	DefaultCommissionRate = 5.0
	DefaultCashbackRate   = 3.0
)

// Merchant is the advertiser we send traffic to. Created and edited by the
// catalog service; this pipeline only reads it (rates, tracking template).
type Merchant struct {
	ID                  uint           `json:"id" gorm:"primaryKey"`
	Name                string         `json:"name" gorm:"not null"`
	Slug                string         `json:"slug" gorm:"uniqueIndex"`
	Network             string         `json:"network" gorm:"index"` // admitad | vcommission | cuelinks
	AffiliateID         string         `json:"affiliate_id"`
	TrackingURLTemplate string         `json:"tracking_url_template"` // contains {affiliate_id} placeholder
	CommissionRate      float64        `json:"commission_rate" gorm:"default:0"` // percent of transaction amount
	CashbackRate        float64        `json:"cashback_rate" gorm:"default:0"`   // percent passed on to the user
	IsActive            bool           `json:"is_active" gorm:"default:true"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate fills the storefront slug from the name when the catalog
// service didn't send one.
func (m *Merchant) BeforeCreate(tx *gorm.DB) error {
	if m.Slug == "" {
		m.Slug = slug.Make(m.Name)
	}
	return nil
}

// EffectiveCommissionRate returns the configured rate, or the platform
// default when the merchant has none.
func (m *Merchant) EffectiveCommissionRate() float64 {
	if m.CommissionRate > 0 {
		return m.CommissionRate
	}
	return DefaultCommissionRate
}

func (m *Merchant) EffectiveCashbackRate() float64 {
	if m.CashbackRate > 0 {
		return m.CashbackRate
	}
	return DefaultCashbackRate
}
