package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/models"
	"gorm.io/gorm"
)

// ServiceRequestFilter narrows a service request list. Zero values mean "any".
type ServiceRequestFilter struct {
	Search      string // title, name, email or company substring
	Status      models.ServiceRequestStatus
	ServiceType models.ServiceType
	Priority    models.Priority
	Page        int
	Limit       int
}

// Matches reports whether request passes the filter's conditions, paging aside
func (f ServiceRequestFilter) Matches(request models.ServiceRequest) bool {
	if f.Search != "" {
		company := ""
		if request.Company != nil {
			company = *request.Company
		}
		if !containsFold(request.Title, f.Search) && !containsFold(request.Name, f.Search) &&
			!containsFold(request.Email, f.Search) && !containsFold(company, f.Search) {
			return false
		}
	}
	switch {
	case f.Status != "" && request.Status != f.Status:
		return false
	case f.ServiceType != "" && request.ServiceType != f.ServiceType:
		return false
	case f.Priority != "" && request.Priority != f.Priority:
		return false
	}
	return true
}

// RequestStats counts service requests by status
type RequestStats struct {
	Total        int64           `json:"total"`
	Pending      int64           `json:"pending"`
	Reviewing    int64           `json:"reviewing"`
	Quoted       int64           `json:"quoted"`
	Approved     int64           `json:"approved"`
	InProgress   int64           `json:"in_progress"`
	Completed    int64           `json:"completed"`
	Cancelled    int64           `json:"cancelled"`
	ThisWeek     int64           `json:"this_week"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// ByStatus returns the per-status counters keyed by status value
func (s RequestStats) ByStatus() map[string]int {
	return map[string]int{
		string(models.RequestStatusPending):    int(s.Pending),
		string(models.RequestStatusReviewing):  int(s.Reviewing),
		string(models.RequestStatusQuoted):     int(s.Quoted),
		string(models.RequestStatusApproved):   int(s.Approved),
		string(models.RequestStatusInProgress): int(s.InProgress),
		string(models.RequestStatusCompleted):  int(s.Completed),
		string(models.RequestStatusCancelled):  int(s.Cancelled),
	}
}

type ServiceRequestRepository struct {
	db *gorm.DB
}

func NewServiceRequestRepository(db *gorm.DB) *ServiceRequestRepository {
	return &ServiceRequestRepository{db: db}
}

func (r *ServiceRequestRepository) filtered(ctx context.Context, f ServiceRequestFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ServiceRequest{})
	if f.Search != "" {
		pattern := likePattern(f.Search)
		q = q.Where(
			`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(company) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern, pattern,
		)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ServiceType != "" {
		q = q.Where("service_type = ?", f.ServiceType)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	return q
}

// List returns one page of requests, newest first
func (r *ServiceRequestRepository) List(ctx context.Context, f ServiceRequestFilter) ([]models.ServiceRequest, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []models.ServiceRequest
	err := r.filtered(ctx, f).
		Order("created_at DESC").
		Scopes(paginate(f.Page, f.Limit)).
		Find(&requests).Error
	return requests, total, err
}

func (r *ServiceRequestRepository) Get(ctx context.Context, id string) (*models.ServiceRequest, error) {
	var request models.ServiceRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *ServiceRequestRepository) Create(ctx context.Context, request *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// Update writes the given columns in a single statement. A quote issuance
// goes through here so its fields and the status change land together.
func (r *ServiceRequestRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the request and its conversation
func (r *ServiceRequestRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_request_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.ServiceRequest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Statistics scans every request. Revenue is the sum of quoted prices of
// completed requests.
func (r *ServiceRequestRepository) Statistics(ctx context.Context) (RequestStats, error) {
	var rows []struct {
		Status      models.ServiceRequestStatus
		CreatedAt   time.Time
		QuotedPrice *decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.ServiceRequest{}).
		Select("status", "created_at", "quoted_price").
		Find(&rows).Error
	if err != nil {
		return RequestStats{}, err
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	stats := RequestStats{TotalRevenue: decimal.Zero}
	for _, row := range rows {
		stats.Total++
		if row.CreatedAt.After(weekAgo) {
			stats.ThisWeek++
		}
		switch row.Status {
		case models.RequestStatusPending:
			stats.Pending++
		case models.RequestStatusReviewing:
			stats.Reviewing++
		case models.RequestStatusQuoted:
			stats.Quoted++
		case models.RequestStatusApproved:
			stats.Approved++
		case models.RequestStatusInProgress:
			stats.InProgress++
		case models.RequestStatusCompleted:
			stats.Completed++
			if row.QuotedPrice != nil {
				stats.TotalRevenue = stats.TotalRevenue.Add(*row.QuotedPrice)
			}
		case models.RequestStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}
