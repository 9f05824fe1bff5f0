package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralTier is the referral level of an account; its ordinal drives the commission rate.
type ReferralTier int

const (
	TierBronze ReferralTier = iota
	TierSilver
	TierGold
	TierDiamond
	TierPlatinum
)

var tierNames = [...]string{"bronze", "silver", "gold", "diamond", "platinum"}

func (t ReferralTier) Valid() bool {
	return t >= TierBronze && t <= TierPlatinum
}

func (t ReferralTier) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return tierNames[t]
}

// Account is the local mirror of a user's wallet. Balance is only ever changed through the store's
// AdjustBalance inside a transaction and must never go negative.
type Account struct {
	ID            string          `gorm:"primaryKey;type:uuid" json:"id"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	ReferralTier  ReferralTier    `gorm:"not null;default:0" json:"referral_tier"`
	ReferralCount int64           `gorm:"not null;default:0" json:"referral_count"`
	ReferredByID  *string         `gorm:"type:uuid;index" json:"referred_by_id,omitempty"`
	// RemoteUpdatedAt is the profile service's updated_at, the cursor for mirror syncs.
	RemoteUpdatedAt *time.Time `gorm:"index" json:"-"`

	Timestamps
}
