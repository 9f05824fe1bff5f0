package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnPeriodUnit string

const (
	PeriodDay   ReturnPeriodUnit = "day"
	PeriodWeek  ReturnPeriodUnit = "week"
	PeriodMonth ReturnPeriodUnit = "month"
)

func (u ReturnPeriodUnit) Valid() bool {
	switch u {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

type InvestmentProduct struct {
	ID               string           `gorm:"primaryKey;type:uuid" json:"id"`
	Name             string           `gorm:"not null" json:"name"`
	Description      string           `json:"description"`
	MinimumAmount    decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0" json:"minimum_amount"`
	ReturnRate       decimal.Decimal  `gorm:"type:numeric(9,4);not null" json:"return_rate"` // percent per period
	ReturnPeriod     int              `gorm:"not null;default:1" json:"return_period"`
	ReturnPeriodUnit ReturnPeriodUnit `gorm:"type:varchar(10);not null;default:'day'" json:"return_period_unit"`
	Status           ProductStatus    `gorm:"type:varchar(10);not null;default:'active';index" json:"status"`

	Timestamps
}

type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentWithdrawn InvestmentStatus = "withdrawn"
)

type Investment struct {
	ID             string           `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID      string           `gorm:"type:uuid;not null;index" json:"account_id"`
	ProductID      string           `gorm:"type:uuid;not null;index" json:"product_id"`
	AmountInvested decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount_invested"`
	CurrentValue   decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"current_value"`
	LastReturnDate time.Time        `gorm:"not null" json:"last_return_date"`
	Status         InvestmentStatus `gorm:"type:varchar(10);not null;default:'active';index" json:"status"`
	WithdrawnAt    *time.Time       `json:"withdrawn_at,omitempty"`

	Product *InvestmentProduct `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	Timestamps
}
