package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/workflow"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UnknownServiceName is stored when a request's service cannot be resolved
const UnknownServiceName = "Unknown Service"

// Vietnamese storefront slugs and their canonical service types
var localizedServiceTypes = map[string]models.ServiceType{
	"phat-trien-du-an-theo-yeu-cau": models.ServiceTypeCustomDevelopment,
	"phat-trien-theo-yeu-cau":       models.ServiceTypeCustomDevelopment,
	"tuy-chinh-du-an":               models.ServiceTypeProjectCustomization,
	"bao-tri-he-thong":              models.ServiceTypeMaintenance,
	"bao-tri":                       models.ServiceTypeMaintenance,
	"thiet-ke-lai-giao-dien":        models.ServiceTypeUIRedesign,
	"toi-uu-hieu-suat":              models.ServiceTypePerformanceOptimization,
	"tu-van-ky-thuat":               models.ServiceTypeConsultation,
	"tu-van":                        models.ServiceTypeConsultation,
}

// NormalizeServiceType maps a submitted service type onto the canonical set.
// Values that match nothing are returned unchanged.
func NormalizeServiceType(raw string) models.ServiceType {
	raw = strings.TrimSpace(raw)
	normalized := slug.Make(raw)
	if canonical, ok := localizedServiceTypes[normalized]; ok {
		return canonical
	}
	if t := models.ServiceType(normalized); t.IsCanonical() {
		return t
	}
	return models.ServiceType(raw)
}

// CreateServiceRequestInput is a public service request submission
type CreateServiceRequestInput struct {
	UserID         *string           `json:"user_id"`
	Name           string            `json:"name" validate:"required,max=255"`
	Email          string            `json:"email" validate:"required,email,max=255"`
	Phone          *string           `json:"phone" validate:"omitempty,max=64"`
	Company        *string           `json:"company" validate:"omitempty,max=255"`
	ServiceType    string            `json:"service_type" validate:"required,max=64"`
	ServiceName    string            `json:"service_name" validate:"max=255"`
	Title          string            `json:"title" validate:"required,max=255"`
	Description    string            `json:"description" validate:"required"`
	BudgetRange    *string           `json:"budget_range" validate:"omitempty,max=128"`
	Timeline       *string           `json:"timeline" validate:"omitempty,max=128"`
	Priority       models.Priority   `json:"priority"`
	Requirements   models.Attributes `json:"requirements" copier:"-"`
	TechnicalSpecs models.Attributes `json:"technical_specs" copier:"-"`
}

func (in *CreateServiceRequestInput) trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.ServiceName = strings.TrimSpace(in.ServiceName)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Phone = trimPtr(in.Phone)
	in.Company = trimPtr(in.Company)
	in.BudgetRange = trimPtr(in.BudgetRange)
	in.Timeline = trimPtr(in.Timeline)
	in.UserID = trimPtr(in.UserID)
	in.Priority = models.Priority(strings.ToLower(strings.TrimSpace(string(in.Priority))))
}

// QuoteInput is a quote issued by an admin
type QuoteInput struct {
	Price    decimal.Decimal `json:"quoted_price"`
	Duration string          `json:"quoted_duration"`
	Notes    *string         `json:"quote_notes"`
	QuotedBy *string         `json:"-"`
}

// RequestPatch is a partial admin update; nil fields are left alone. An
// empty assigned_to clears the assignment.
type RequestPatch struct {
	Status         *models.ServiceRequestStatus `json:"status"`
	AdminNotes     *string                      `json:"admin_notes"`
	AssignedTo     *string                      `json:"assigned_to"`
	ClientFeedback *string                      `json:"client_feedback"`
}

// RequestList is a page of requests with table-wide statistics
type RequestList struct {
	Requests   []models.ServiceRequest `json:"requests"`
	Pagination repository.Pagination   `json:"pagination"`
	Statistics repository.RequestStats `json:"statistics"`
}

// ServiceRequestService implements intake and the admin workflow of service requests
type ServiceRequestService struct {
	requests *repository.ServiceRequestRepository
	catalog  *repository.CatalogRepository
	settings *SettingsService
	email    EmailService
	notifier *realtime.Notifier
	mail     *mailer
}

func NewServiceRequestService(
	requests *repository.ServiceRequestRepository,
	catalog *repository.CatalogRepository,
	settings *SettingsService,
	email EmailService,
	notifier *realtime.Notifier,
	mail *mailer,
) *ServiceRequestService {
	return &ServiceRequestService{
		requests: requests,
		catalog:  catalog,
		settings: settings,
		email:    email,
		notifier: notifier,
		mail:     mail,
	}
}

// CreateServiceRequest stores a new request and notifies the admins. The
// notification is best effort and never fails the submission.
func (s *ServiceRequestService) CreateServiceRequest(ctx context.Context, input CreateServiceRequestInput) (*models.ServiceRequest, error) {
	input.trim()
	if err := validate.Struct(input); err != nil {
		return nil, ValidationError("VALIDATION_ERROR", "Missing or invalid required fields", ValidationDetails(err))
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !input.Priority.IsValid() {
		return nil, ValidationError("VALIDATION_ERROR", "Unknown priority", map[string]string{"priority": string(input.Priority)})
	}
	requirements, err := cleanAttributes("requirements", input.Requirements)
	if err != nil {
		return nil, err
	}
	specs, err := cleanAttributes("technical_specs", input.TechnicalSpecs)
	if err != nil {
		return nil, err
	}

	request := &models.ServiceRequest{}
	if err := copier.Copy(request, &input); err != nil {
		return nil, StoreError("Failed to prepare service request", err)
	}
	request.ServiceType = NormalizeServiceType(input.ServiceType)
	request.ServiceName = s.resolveServiceName(ctx, input.ServiceType, input.ServiceName)
	request.Requirements = datatypes.NewJSONType(requirements)
	request.TechnicalSpecs = datatypes.NewJSONType(specs)
	request.Status = models.RequestStatusPending

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, StoreError("Failed to create service request", err)
	}
	logger.Info("service request created", "request_id", request.ID,
		"service_type", request.ServiceType, "priority", request.Priority)

	s.notifier.Inserted(ctx, realtime.TableServiceRequests, *request)
	s.notifyAdmins(ctx, request)
	return request, nil
}

// resolveServiceName prefers the submitted name, then the catalog entry of
// the submitted slug, then the canonical type's entry
func (s *ServiceRequestService) resolveServiceName(ctx context.Context, rawType, submitted string) string {
	if submitted != "" {
		return submitted
	}
	for _, key := range []string{rawType, slug.Make(rawType), string(NormalizeServiceType(rawType))} {
		if key == "" {
			continue
		}
		svc, err := s.catalog.FindBySlug(ctx, key)
		if err == nil {
			return svc.Name
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("service catalog lookup failed", "slug", key, "partial_failure", true, "error", err)
			break
		}
	}
	return UnknownServiceName
}

func cleanAttributes(field string, attrs models.Attributes) (models.Attributes, error) {
	cleaned := models.Attributes{}
	for k, v := range attrs {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, ValidationError("VALIDATION_ERROR", "Attribute keys must not be empty", map[string]string{field: "keys must not be empty"})
		}
		cleaned[k] = v
	}
	return cleaned, nil
}

func (s *ServiceRequestService) notifyAdmins(ctx context.Context, request *models.ServiceRequest) {
	msg, err := NewServiceRequestEmail(request)
	if err != nil {
		logger.Warn("failed to render service request email", "request_id", request.ID, "partial_failure", true, "error", err)
		return
	}
	to := s.settings.AdminNotificationEmail(ctx)
	s.mail.dispatch(ctx, s.email, to, msg, "request_id", request.ID)
}

// ListServiceRequests returns a filtered page plus statistics over all requests
func (s *ServiceRequestService) ListServiceRequests(ctx context.Context, filter repository.ServiceRequestFilter) (*RequestList, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ValidationError("INVALID_STATUS", "Unknown status filter", map[string]string{"status": string(filter.Status)})
	}
	if filter.Priority != "" && !filter.Priority.IsValid() {
		return nil, ValidationError("VALIDATION_ERROR", "Unknown priority filter", map[string]string{"priority": string(filter.Priority)})
	}
	if filter.ServiceType != "" {
		filter.ServiceType = NormalizeServiceType(string(filter.ServiceType))
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, StoreError("Failed to list service requests", err)
	}
	stats, err := s.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []models.ServiceRequest{}
	}
	return &RequestList{
		Requests:   requests,
		Pagination: repository.NewPagination(filter.Page, filter.Limit, total),
		Statistics: *stats,
	}, nil
}

func (s *ServiceRequestService) GetServiceRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	request, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, storeOrNotFound(err, "REQUEST_NOT_FOUND", "Service request not found", "Failed to load service request")
	}
	return request, nil
}

// UpdateStatus moves a request along its workflow. Concurrent updates are
// last-write-wins.
func (s *ServiceRequestService) UpdateStatus(ctx context.Context, id string, status models.ServiceRequestStatus, adminNotes *string) (*models.ServiceRequest, error) {
	return s.UpdateRequest(ctx, id, RequestPatch{Status: &status, AdminNotes: adminNotes})
}

// AssignRequest sets or clears the assignee, whatever the status
func (s *ServiceRequestService) AssignRequest(ctx context.Context, id string, assignee string) (*models.ServiceRequest, error) {
	return s.UpdateRequest(ctx, id, RequestPatch{AssignedTo: &assignee})
}

// UpdateRequest applies an admin patch in one write
func (s *ServiceRequestService) UpdateRequest(ctx context.Context, id string, patch RequestPatch) (*models.ServiceRequest, error) {
	current, err := s.GetServiceRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := make(map[string]any)
	if patch.Status != nil {
		to := models.ServiceRequestStatus(strings.TrimSpace(string(*patch.Status)))
		if err := workflow.ValidateRequestStatusUpdate(current.Status, to); err != nil {
			return nil, transitionError(err)
		}
		updates["status"] = to
		if to == models.RequestStatusCompleted && current.Status != models.RequestStatusCompleted {
			updates["completed_at"] = now
		}
	}
	if patch.AdminNotes != nil {
		updates["admin_notes"] = trimPtr(patch.AdminNotes)
	}
	if patch.AssignedTo != nil {
		updates["assigned_to"] = trimPtr(patch.AssignedTo)
	}
	if patch.ClientFeedback != nil {
		updates["client_feedback"] = trimPtr(patch.ClientFeedback)
	}
	if len(updates) == 0 {
		return nil, ValidationError("VALIDATION_ERROR", "No fields to update", nil)
	}

	return s.write(ctx, current, updates, now)
}

// AddQuote issues (or re-issues) a quote. Price, duration, timestamp and
// the move to "quoted" are written by a single statement.
func (s *ServiceRequestService) AddQuote(ctx context.Context, id string, quote QuoteInput) (*models.ServiceRequest, error) {
	duration := strings.TrimSpace(quote.Duration)
	details := make(map[string]string)
	if !quote.Price.IsPositive() {
		details["quoted_price"] = "gt=0"
	}
	if duration == "" {
		details["quoted_duration"] = "required"
	}
	if len(details) > 0 {
		return nil, ValidationError("INVALID_QUOTE", "A quote needs a positive price and a duration", details)
	}

	current, err := s.GetServiceRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.ValidateQuote(current.Status); err != nil {
		return nil, transitionError(err)
	}

	now := time.Now()
	price := quote.Price.Round(2)
	return s.write(ctx, current, map[string]any{
		"quoted_price":    price,
		"quoted_duration": duration,
		"quote_notes":     trimPtr(quote.Notes),
		"quoted_at":       now,
		"quoted_by":       trimPtr(quote.QuotedBy),
		"status":          models.RequestStatusQuoted,
	}, now)
}

func (s *ServiceRequestService) write(ctx context.Context, current *models.ServiceRequest, updates map[string]any, now time.Time) (*models.ServiceRequest, error) {
	updates["updated_at"] = now
	if err := s.requests.Update(ctx, current.ID, updates); err != nil {
		return nil, storeOrNotFound(err, "REQUEST_NOT_FOUND", "Service request not found", "Failed to update service request")
	}

	updated, err := s.GetServiceRequest(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("service request updated", "request_id", updated.ID,
		"from_status", current.Status, "status", updated.Status)

	s.notifier.Updated(ctx, realtime.TableServiceRequests, *current, *updated)
	return updated, nil
}

// DeleteServiceRequest removes a request and its conversation for good
func (s *ServiceRequestService) DeleteServiceRequest(ctx context.Context, id string) error {
	current, err := s.GetServiceRequest(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return storeOrNotFound(err, "REQUEST_NOT_FOUND", "Service request not found", "Failed to delete service request")
	}

	logger.Info("service request deleted", "request_id", id)
	s.notifier.Deleted(ctx, realtime.TableServiceRequests, *current)
	return nil
}

// GetStatistics counts every request by status
func (s *ServiceRequestService) GetStatistics(ctx context.Context) (*repository.RequestStats, error) {
	stats, err := s.requests.Statistics(ctx)
	if err != nil {
		return nil, StoreError("Failed to compute service request statistics", err)
	}
	return &stats, nil
}

// DashboardSnapshot is the initial state of a live request dashboard
func (s *ServiceRequestService) DashboardSnapshot(ctx context.Context, filter repository.ServiceRequestFilter) ([]models.ServiceRequest, realtime.Stats, error) {
	list, err := s.ListServiceRequests(ctx, filter)
	if err != nil {
		return nil, realtime.Stats{}, err
	}
	return list.Requests, realtime.Stats{
		Total:    int(list.Statistics.Total),
		ByStatus: list.Statistics.ByStatus(),
	}, nil
}
