package models

type SiteSetting struct {
	Key         string `gorm:"primaryKey" json:"key"`
	Value       string `gorm:"not null" json:"value"`
	Category    string `gorm:"index" json:"category"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `gorm:"type:varchar(16);default:'number'" json:"type"`

	Timestamps
}

const (
	SettingReferralBonus          = "referral_bonus"
	SettingReferralBonusIncrement = "referral_level_bonus_increment"
	SettingMinimumWithdrawal      = "minimum_withdrawal"
	SettingMinInvestment          = "min_investment"
)

// DefaultSettings are seeded on startup; existing values are never overwritten.
var DefaultSettings = []SiteSetting{
	{Key: SettingReferralBonus, Value: "10", Category: "referral", Label: "Referral Bonus (%)", Description: "Base commission percentage for bronze referrers", Type: "number"},
	{Key: SettingReferralBonusIncrement, Value: "5", Category: "referral", Label: "Level Bonus Increment (%)", Description: "Additional commission percentage per referral tier", Type: "number"},
	{Key: SettingMinimumWithdrawal, Value: "20", Category: "payment", Label: "Minimum Withdrawal", Description: "Smallest amount a withdrawal request may ask for", Type: "number"},
	{Key: SettingMinInvestment, Value: "100", Category: "investment", Label: "Minimum Investment", Description: "Smallest amount accepted by any investment product", Type: "number"},
}
