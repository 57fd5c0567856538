package models

// OrderStatus is the fulfillment state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStatuses lists every order status in display order
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment state of an order, tracked separately from fulfillment
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (s PaymentStatus) IsValid() bool {
	for _, v := range PaymentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// PaymentMethod is how the buyer pays; the gateway itself is simulated
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodPaypal       PaymentMethod = "paypal"
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodMomo         PaymentMethod = "momo"
	PaymentMethodZaloPay      PaymentMethod = "zalopay"
	PaymentMethodCash         PaymentMethod = "cash"
)

var PaymentMethods = []PaymentMethod{
	PaymentMethodBankTransfer,
	PaymentMethodPaypal,
	PaymentMethodStripe,
	PaymentMethodMomo,
	PaymentMethodZaloPay,
	PaymentMethodCash,
}

func (m PaymentMethod) IsValid() bool {
	for _, v := range PaymentMethods {
		if v == m {
			return true
		}
	}
	return false
}

// ServiceRequestStatus is the lifecycle state of a service request
type ServiceRequestStatus string

const (
	RequestStatusPending    ServiceRequestStatus = "pending"
	RequestStatusReviewing  ServiceRequestStatus = "reviewing"
	RequestStatusQuoted     ServiceRequestStatus = "quoted"
	RequestStatusApproved   ServiceRequestStatus = "approved"
	RequestStatusInProgress ServiceRequestStatus = "in_progress"
	RequestStatusCompleted  ServiceRequestStatus = "completed"
	RequestStatusCancelled  ServiceRequestStatus = "cancelled"
)

var ServiceRequestStatuses = []ServiceRequestStatus{
	RequestStatusPending,
	RequestStatusReviewing,
	RequestStatusQuoted,
	RequestStatusApproved,
	RequestStatusInProgress,
	RequestStatusCompleted,
	RequestStatusCancelled,
}

func (s ServiceRequestStatus) IsValid() bool {
	for _, v := range ServiceRequestStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Priority of a service request
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) IsValid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// ServiceType identifies the kind of work requested. Unknown values are
// stored as submitted so new offerings don't need a deploy.
type ServiceType string

const (
	ServiceTypeCustomDevelopment       ServiceType = "custom-development"
	ServiceTypeProjectCustomization    ServiceType = "project-customization"
	ServiceTypeMaintenance             ServiceType = "maintenance"
	ServiceTypeUIRedesign              ServiceType = "ui-redesign"
	ServiceTypePerformanceOptimization ServiceType = "performance-optimization"
	ServiceTypeConsultation            ServiceType = "consultation"
)

var ServiceTypes = []ServiceType{
	ServiceTypeCustomDevelopment,
	ServiceTypeProjectCustomization,
	ServiceTypeMaintenance,
	ServiceTypeUIRedesign,
	ServiceTypePerformanceOptimization,
	ServiceTypeConsultation,
}

// IsCanonical reports whether t is one of the known service types
func (t ServiceType) IsCanonical() bool {
	for _, v := range ServiceTypes {
		if v == t {
			return true
		}
	}
	return false
}
