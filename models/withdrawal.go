package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is shared by withdrawals and recharge requests.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodEasypaisa PaymentMethod = "easypaisa"
	MethodJazzcash  PaymentMethod = "jazzcash"
	MethodBank      PaymentMethod = "bank"
)

type Withdrawal struct {
	ID             string          `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID      string          `gorm:"type:uuid;not null;index" json:"account_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	PaymentMethod  PaymentMethod   `gorm:"type:varchar(16);not null" json:"payment_method"`
	PaymentDetails string          `gorm:"not null" json:"payment_details"`
	Status         ReviewStatus    `gorm:"type:varchar(10);not null;default:'pending';index" json:"status"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`

	Timestamps
}
