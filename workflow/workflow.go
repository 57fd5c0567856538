// Package workflow holds the legal status transitions of orders and service
// requests and the invariants coupling an order's payment and fulfillment
// state. Services check every mutation against it before writing.
package workflow

import (
	"errors"
	"fmt"

	"github.com/sourcemarket/sourcemarket-api/models"
)

var (
	// ErrInvalidTransition is matched by every rejected status change
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvariant is matched when a change would break the payment/fulfillment coupling
	ErrInvariant = errors.New("order state invariant violated")
	// ErrUnknownStatus is returned for values outside the closed status sets
	ErrUnknownStatus = errors.New("unknown status")
)

// Violation describes why a change was rejected
type Violation struct {
	Entity string
	From   string
	To     string
	Reason string
	kind   error
}

func (v *Violation) Error() string {
	if v.From == "" && v.To == "" {
		return fmt.Sprintf("%s: %s", v.Entity, v.Reason)
	}
	return fmt.Sprintf("%s: cannot move from %q to %q: %s", v.Entity, v.From, v.To, v.Reason)
}

func (v *Violation) Unwrap() error {
	return v.kind
}

var requestTransitions = map[models.ServiceRequestStatus][]models.ServiceRequestStatus{
	models.RequestStatusPending:    {models.RequestStatusReviewing, models.RequestStatusCancelled},
	models.RequestStatusReviewing:  {models.RequestStatusQuoted, models.RequestStatusCancelled},
	models.RequestStatusQuoted:     {models.RequestStatusApproved, models.RequestStatusCancelled},
	models.RequestStatusApproved:   {models.RequestStatusInProgress, models.RequestStatusCancelled},
	models.RequestStatusInProgress: {models.RequestStatusCompleted, models.RequestStatusCancelled},
	models.RequestStatusCompleted:  nil,
	models.RequestStatusCancelled:  nil,
}

// statuses a quote may be issued (or re-issued) from
var quotableStatuses = []models.ServiceRequestStatus{
	models.RequestStatusPending,
	models.RequestStatusReviewing,
	models.RequestStatusQuoted,
}

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusCompleted:  {models.OrderStatusCancelled},
	models.OrderStatusCancelled:  nil,
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:  {models.PaymentStatusPaid, models.PaymentStatusFailed},
	models.PaymentStatusFailed:   {models.PaymentStatusPending, models.PaymentStatusPaid},
	models.PaymentStatusPaid:     {models.PaymentStatusRefunded},
	models.PaymentStatusRefunded: nil,
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// NextRequestStatuses returns the statuses reachable from s in one step
func NextRequestStatuses(s models.ServiceRequestStatus) []models.ServiceRequestStatus {
	return append([]models.ServiceRequestStatus(nil), requestTransitions[s]...)
}

// IsTerminalRequest reports whether no further transition is possible
func IsTerminalRequest(s models.ServiceRequestStatus) bool {
	return s.IsValid() && len(requestTransitions[s]) == 0
}

// CanTransitionRequest reports whether a service request may move from one
// status to another. Staying in the same status is always allowed.
func CanTransitionRequest(from, to models.ServiceRequestStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	return from == to || contains(requestTransitions[from], to)
}

// ValidateRequestStatusUpdate checks a plain status update. Entering "quoted"
// is reserved for quote issuance, which writes the quote fields with it.
func ValidateRequestStatusUpdate(from, to models.ServiceRequestStatus) error {
	if !to.IsValid() {
		return &Violation{Entity: "service request", To: string(to), Reason: "status is not recognized", kind: ErrUnknownStatus}
	}
	if to == models.RequestStatusQuoted && from != models.RequestStatusQuoted {
		return &Violation{Entity: "service request", From: string(from), To: string(to), Reason: "a quote must be issued to enter this status", kind: ErrInvalidTransition}
	}
	if !CanTransitionRequest(from, to) {
		return &Violation{Entity: "service request", From: string(from), To: string(to), Reason: "transition not allowed", kind: ErrInvalidTransition}
	}
	return nil
}

// ValidateQuote checks that a quote can be issued for a request in status from
func ValidateQuote(from models.ServiceRequestStatus) error {
	if !contains(quotableStatuses, from) {
		return &Violation{Entity: "service request", From: string(from), To: string(models.RequestStatusQuoted), Reason: "request can no longer be quoted", kind: ErrInvalidTransition}
	}
	return nil
}

// OrderState is the pair of statuses the coupling invariants are checked on
type OrderState struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

// CanTransitionOrder reports whether the fulfillment status may move from one value to another
func CanTransitionOrder(from, to models.OrderStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	return from == to || contains(orderTransitions[from], to)
}

// CanTransitionPayment reports whether the payment status may move from one value to another
func CanTransitionPayment(from, to models.PaymentStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	return from == to || contains(paymentTransitions[from], to)
}

// CheckOrderInvariants validates a resulting order state on its own
func CheckOrderInvariants(s OrderState) error {
	if s.Status == models.OrderStatusCompleted && s.PaymentStatus != models.PaymentStatusPaid {
		return &Violation{Entity: "order", Reason: "a completed order must be paid", kind: ErrInvariant}
	}
	if s.PaymentStatus == models.PaymentStatusRefunded && s.Status != models.OrderStatusCancelled {
		return &Violation{Entity: "order", Reason: "a refunded order must be cancelled", kind: ErrInvariant}
	}
	return nil
}

// ValidateOrderChange checks both transitions and the invariants of the
// resulting state
func ValidateOrderChange(from, to OrderState) error {
	if !to.Status.IsValid() {
		return &Violation{Entity: "order", To: string(to.Status), Reason: "status is not recognized", kind: ErrUnknownStatus}
	}
	if !to.PaymentStatus.IsValid() {
		return &Violation{Entity: "order payment", To: string(to.PaymentStatus), Reason: "payment status is not recognized", kind: ErrUnknownStatus}
	}
	if !CanTransitionOrder(from.Status, to.Status) {
		return &Violation{Entity: "order", From: string(from.Status), To: string(to.Status), Reason: "transition not allowed", kind: ErrInvalidTransition}
	}
	if !CanTransitionPayment(from.PaymentStatus, to.PaymentStatus) {
		return &Violation{Entity: "order payment", From: string(from.PaymentStatus), To: string(to.PaymentStatus), Reason: "transition not allowed", kind: ErrInvalidTransition}
	}
	if from.Status == models.OrderStatusCompleted && to.Status == models.OrderStatusCancelled &&
		to.PaymentStatus != models.PaymentStatusRefunded {
		return &Violation{Entity: "order", From: string(from.Status), To: string(to.Status), Reason: "a completed order can only be cancelled with a refund", kind: ErrInvariant}
	}
	return CheckOrderInvariants(to)
}
