package models

import "time"

// Well-known setting keys
const (
	SettingAdminNotificationEmail = "admin_notification_email"
	SettingVATRate                = "vat_rate"
	SettingCurrencyDisplay        = "currency_display"
)

// Setting is a key/value row of the site settings table
type Setting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Setting model
func (Setting) TableName() string {
	return "settings"
}
