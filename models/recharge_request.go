package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RechargeRequest is a deposit awaiting manual review. Proof is an object key or URL.
type RechargeRequest struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID   string          `gorm:"type:uuid;not null;index" json:"account_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Proof       string          `gorm:"not null" json:"proof"`
	Status      ReviewStatus    `gorm:"type:varchar(10);not null;default:'pending';index" json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`

	Timestamps
}
