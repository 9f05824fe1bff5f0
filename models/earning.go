package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EarningSource string

const (
	SourceReferral   EarningSource = "referral"
	SourceInvestment EarningSource = "investment"
	SourceTask       EarningSource = "task"
	SourceOther      EarningSource = "other"
)

var EarningSources = []EarningSource{SourceReferral, SourceInvestment, SourceTask, SourceOther}

func (s EarningSource) Valid() bool {
	switch s {
	case SourceReferral, SourceInvestment, SourceTask, SourceOther:
		return true
	}
	return false
}

type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningCredited  EarningStatus = "credited"
	EarningWithdrawn EarningStatus = "withdrawn"
)

// Earning is an append-only audit record of a credit event. It never drives the balance.
type Earning struct {
	ID             string          `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID      string          `gorm:"type:uuid;not null;index" json:"account_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Source         EarningSource   `gorm:"type:varchar(16);not null;index" json:"source"`
	Description    string          `gorm:"not null" json:"description"`
	Status         EarningStatus   `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ReferenceID    *string         `gorm:"type:varchar(64)" json:"reference_id,omitempty"`
	ReferenceModel string          `gorm:"type:varchar(32)" json:"reference_model,omitempty"`
	IdempotencyKey *string         `gorm:"uniqueIndex" json:"-"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
}
