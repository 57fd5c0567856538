package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/repository"
)

// SettingsService reads and writes the site settings table
type SettingsService struct {
	settings *repository.SettingRepository
}

func NewSettingsService(settings *repository.SettingRepository) *SettingsService {
	return &SettingsService{settings: settings}
}

// GetSettings returns the stored values of keys (all settings when none are given)
func (s *SettingsService) GetSettings(ctx context.Context, keys ...string) (map[string]string, error) {
	values, err := s.settings.Get(ctx, keys...)
	if err != nil {
		return nil, StoreError("Failed to load settings", err)
	}
	return values, nil
}

// PutSettings validates and stores values
func (s *SettingsService) PutSettings(ctx context.Context, values map[string]string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, ValidationError("VALIDATION_ERROR", "No settings provided", nil)
	}

	cleaned := make(map[string]string, len(values))
	details := make(map[string]string)
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			details["key"] = "required"
			continue
		}
		switch key {
		case models.SettingAdminNotificationEmail:
			if err := validate.Var(value, "required,email"); err != nil {
				details[key] = "email"
				continue
			}
		case models.SettingVATRate:
			rate, err := decimal.NewFromString(value)
			if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				details[key] = "decimal between 0 and 1"
				continue
			}
		}
		cleaned[key] = value
	}
	if len(details) > 0 {
		return nil, ValidationError("VALIDATION_ERROR", "Invalid settings", details)
	}

	if err := s.settings.Put(ctx, cleaned); err != nil {
		return nil, StoreError("Failed to save settings", err)
	}
	return s.GetSettings(ctx)
}

// AdminNotificationEmail resolves where new-request notifications go. A
// failed lookup falls back to the configured default rather than failing.
func (s *SettingsService) AdminNotificationEmail(ctx context.Context) string {
	values, err := s.settings.Get(ctx, models.SettingAdminNotificationEmail)
	if err != nil {
		logger.Warn("failed to read admin notification address, using default",
			"partial_failure", true, "error", err)
	} else if addr := strings.TrimSpace(values[models.SettingAdminNotificationEmail]); addr != "" {
		return addr
	}

	if cfg := config.GetConfig(); cfg != nil && cfg.AdminNotificationEmail != "" {
		return cfg.AdminNotificationEmail
	}
	return config.DefaultAdminNotificationEmail
}
