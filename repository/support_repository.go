package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sourcemarket/sourcemarket-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// List returns a request's conversation, oldest first
func (r *MessageRepository) List(ctx context.Context, requestID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("service_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the stored values of keys; missing keys are absent from the map.
// With no keys every setting is returned.
func (r *SettingRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	q := r.db.WithContext(ctx).Model(&models.Setting{})
	if len(keys) > 0 {
		q = q.Where("key IN ?", keys)
	}

	var settings []models.Setting
	if err := q.Find(&settings).Error; err != nil {
		return nil, err
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}
	return values, nil
}

// Put upserts every entry of values
func (r *SettingRepository) Put(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	settings := make([]models.Setting, 0, len(values))
	for k, v := range values {
		settings = append(settings, models.Setting{Key: k, Value: v})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&settings).Error
}

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindBySlug looks up an active catalog entry
func (r *CatalogRepository) FindBySlug(ctx context.Context, slug string) (*models.Service, error) {
	var svc models.Service
	if err := r.db.WithContext(ctx).Where("slug = ? AND active = ?", slug, true).First(&svc).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

// List returns the active catalog ordered by name
func (r *CatalogRepository) List(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&services).Error
	return services, err
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update applies column updates to the user with the given ID
func (r *UserRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique constraint failure
// (works with both PostgreSQL and SQLite)
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
