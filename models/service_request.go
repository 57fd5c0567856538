package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attributes is an open-ended key/value map (requirements, technical specs).
// Keys are encoded in sorted order.
type Attributes map[string]string

// ServiceRequest is an inbound request for custom work, possibly from a
// visitor without an account
type ServiceRequest struct {
	ID             string                         `gorm:"primaryKey;size:36" json:"id"`
	UserID         *string                        `gorm:"size:36;index" json:"user_id"`
	Name           string                         `gorm:"size:255;not null" json:"name"`
	Email          string                         `gorm:"size:255;not null;index" json:"email"`
	Phone          *string                        `gorm:"size:64" json:"phone"`
	Company        *string                        `gorm:"size:255" json:"company"`
	ServiceType    ServiceType                    `gorm:"size:64;not null;index" json:"service_type"`
	ServiceName    string                         `gorm:"size:255;not null" json:"service_name"`
	Title          string                         `gorm:"size:255;not null" json:"title"`
	Description    string                         `gorm:"type:text;not null" json:"description"`
	BudgetRange    *string                        `gorm:"size:128" json:"budget_range"`
	Timeline       *string                        `gorm:"size:128" json:"timeline"`
	Priority       Priority                       `gorm:"size:16;not null;index" json:"priority"`
	Requirements   datatypes.JSONType[Attributes] `json:"requirements"`
	TechnicalSpecs datatypes.JSONType[Attributes] `json:"technical_specs"`
	Status         ServiceRequestStatus           `gorm:"size:16;not null;index" json:"status"`
	AssignedTo     *string                        `gorm:"size:255" json:"assigned_to"`
	QuotedPrice    *decimal.Decimal               `gorm:"type:decimal(14,2)" json:"quoted_price"` // set only by quote issuance
	QuotedDuration *string                        `gorm:"size:128" json:"quoted_duration"`
	QuoteNotes     *string                        `gorm:"type:text" json:"quote_notes"`
	QuotedAt       *time.Time                     `json:"quoted_at"`
	QuotedBy       *string                        `gorm:"size:255" json:"quoted_by"`
	AdminNotes     *string                        `gorm:"type:text" json:"admin_notes"`
	ClientFeedback *string                        `gorm:"type:text" json:"client_feedback"`
	LastContactAt  *time.Time                     `json:"last_contact_at"`
	Messages       []Message                      `gorm:"foreignKey:ServiceRequestID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt      time.Time                      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
	CompletedAt    *time.Time                     `json:"completed_at"`
}

// TableName specifies the table name for the ServiceRequest model
func (ServiceRequest) TableName() string {
	return "service_requests"
}

func (r *ServiceRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r ServiceRequest) RowID() string     { return r.ID }
func (r ServiceRequest) RowStatus() string { return string(r.Status) }

// Service is an entry of the public service catalog; intake resolves a
// request's service_name from it by slug
type Service struct {
	Slug      string      `gorm:"primaryKey;size:128" json:"slug"`
	Name      string      `gorm:"size:255;not null" json:"name"`
	Type      ServiceType `gorm:"size:64;not null" json:"type"`
	Active    bool        `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}
