package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/workflow"
	"gorm.io/gorm"
)

// OrderItemInput is one purchased product at checkout
type OrderItemInput struct {
	ProductID    string          `json:"productId" validate:"required,max=36"`
	ProductTitle string          `json:"productTitle" validate:"required,max=255"`
	ProductPrice decimal.Decimal `json:"productPrice"`
	SnapshotKey  *string         `json:"snapshotKey"`
}

// CreateOrderInput is a confirmed checkout
type CreateOrderInput struct {
	BuyerID        string               `json:"buyerId" validate:"required"`
	Items          []OrderItemInput     `json:"items" validate:"required,min=1,dive"`
	TotalAmount    decimal.Decimal      `json:"totalAmount"`
	DiscountAmount decimal.Decimal      `json:"discountAmount"`
	TaxAmount      decimal.Decimal      `json:"taxAmount"`
	PaymentMethod  models.PaymentMethod `json:"paymentMethod" validate:"required"`
	Notes          *string              `json:"notes"`

	// StrictTotals also requires totalAmount to equal the item prices minus
	// discount plus tax
	StrictTotals bool `json:"-"`
}

// OrderPatch is a partial order update; nil fields are left alone
type OrderPatch struct {
	Status         *models.OrderStatus   `json:"status"`
	PaymentStatus  *models.PaymentStatus `json:"paymentStatus"`
	PaymentMethod  *models.PaymentMethod `json:"paymentMethod"`
	PaymentID      *string               `json:"paymentId"`
	Notes          *string               `json:"notes"`
	TotalAmount    *decimal.Decimal      `json:"totalAmount"`
	DiscountAmount *decimal.Decimal      `json:"discountAmount"`
	TaxAmount      *decimal.Decimal      `json:"taxAmount"`
}

// OrderPage is one page of an order list
type OrderPage struct {
	Orders     []models.Order        `json:"orders"`
	Pagination repository.Pagination `json:"pagination"`
}

// OrderService implements checkout, the order workflow and order reporting
type OrderService struct {
	orders    *repository.OrderRepository
	users     *repository.UserRepository
	snapshots SnapshotStore
	notifier  *realtime.Notifier
}

func NewOrderService(orders *repository.OrderRepository, users *repository.UserRepository, snapshots SnapshotStore, notifier *realtime.Notifier) *OrderService {
	return &OrderService{orders: orders, users: users, snapshots: snapshots, notifier: notifier}
}

// ListOrders returns a page of orders. Non-admin callers only see their own.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter repository.OrderFilter) (*OrderPage, error) {
	if !actor.Admin {
		filter.BuyerID = actor.UserID
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ValidationError("INVALID_STATUS", "Unknown order status filter", map[string]string{"status": string(filter.Status)})
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.IsValid() {
		return nil, ValidationError("INVALID_STATUS", "Unknown payment status filter", map[string]string{"paymentStatus": string(filter.PaymentStatus)})
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, StoreError("Failed to list orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{
		Orders:     orders,
		Pagination: repository.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// GetOrder returns a hydrated order the actor may read
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && order.BuyerID != actor.UserID {
		return nil, AuthorizationError("You do not have permission to view this order")
	}
	s.attachSnapshotURLs(ctx, order)
	return order, nil
}

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, storeOrNotFound(err, "ORDER_NOT_FOUND", "Order not found", "Failed to load order")
	}
	return order, nil
}

// attachSnapshotURLs presigns item previews. A failure leaves the link empty.
func (s *OrderService) attachSnapshotURLs(ctx context.Context, order *models.Order) {
	if s.snapshots == nil {
		return
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.SnapshotKey == nil || *item.SnapshotKey == "" {
			continue
		}
		url, err := s.snapshots.GetPresignedURL(ctx, *item.SnapshotKey)
		if err != nil {
			logger.Warn("failed to presign product snapshot",
				"order_id", order.ID, "item_id", item.ID, "partial_failure", true, "error", err)
			continue
		}
		item.SnapshotURL = &url
	}
}

// CreateOrder records a confirmed checkout. The order and its items are
// written in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	input.BuyerID = strings.TrimSpace(input.BuyerID)
	if err := validate.Struct(input); err != nil {
		return nil, ValidationError("VALIDATION_ERROR", "Invalid order data", ValidationDetails(err))
	}
	if !input.PaymentMethod.IsValid() {
		return nil, ValidationError("INVALID_PAYMENT_METHOD", "Unknown payment method",
			map[string]string{"paymentMethod": string(input.PaymentMethod)})
	}
	if err := checkAmounts(input); err != nil {
		return nil, err
	}

	if _, err := s.users.Get(ctx, input.BuyerID); err != nil {
		return nil, storeOrNotFound(err, "USER_NOT_FOUND", "Buyer not found", "Failed to load buyer")
	}

	var items []models.OrderItem
	if err := copier.Copy(&items, &input.Items); err != nil {
		return nil, StoreError("Failed to prepare order items", err)
	}

	order := &models.Order{
		OrderNumber:    newOrderNumber(time.Now()),
		BuyerID:        input.BuyerID,
		TotalAmount:    input.TotalAmount,
		DiscountAmount: input.DiscountAmount,
		TaxAmount:      input.TaxAmount,
		Status:         models.OrderStatusPending,
		PaymentMethod:  input.PaymentMethod,
		PaymentStatus:  models.PaymentStatusPending,
		Notes:          trimPtr(input.Notes),
		Items:          items,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, StoreError("Failed to create order", err)
	}

	created, err := s.load(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("order created", "order_id", created.ID, "order_number", created.OrderNumber,
		"buyer_id", created.BuyerID, "items", created.ItemCount, "total", created.TotalAmount.String())

	s.notifier.Inserted(ctx, realtime.TableOrders, *created)
	s.attachSnapshotURLs(ctx, created)
	return created, nil
}

func checkAmounts(input CreateOrderInput) error {
	details := make(map[string]string)
	if input.TotalAmount.IsNegative() {
		details["totalAmount"] = "gte=0"
	}
	if input.DiscountAmount.IsNegative() {
		details["discountAmount"] = "gte=0"
	}
	if input.TaxAmount.IsNegative() {
		details["taxAmount"] = "gte=0"
	}
	sum := decimal.Zero
	for i, item := range input.Items {
		if item.ProductPrice.IsNegative() {
			details["items["+strconv.Itoa(i)+"].productPrice"] = "gte=0"
		}
		sum = sum.Add(item.ProductPrice)
	}
	if len(details) > 0 {
		return ValidationError("INVALID_AMOUNT", "Amounts must not be negative", details)
	}

	if input.StrictTotals {
		expected := sum.Sub(input.DiscountAmount).Add(input.TaxAmount)
		if !expected.Equal(input.TotalAmount) {
			return ValidationError("INVALID_AMOUNT", "Total does not match the order items",
				map[string]string{"totalAmount": "expected " + expected.StringFixed(2)})
		}
	}
	return nil
}

// UpdateOrder applies an admin edit after checking it against the order workflow
func (s *OrderService) UpdateOrder(ctx context.Context, actor Actor, id string, patch OrderPatch) (*models.Order, error) {
	if !actor.Admin {
		return nil, AuthorizationError("Only administrators can update orders")
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	to := workflow.OrderState{Status: current.Status, PaymentStatus: current.PaymentStatus}
	if patch.Status != nil {
		to.Status = *patch.Status
		updates["status"] = *patch.Status
	}
	if patch.PaymentStatus != nil {
		to.PaymentStatus = *patch.PaymentStatus
		updates["payment_status"] = *patch.PaymentStatus
	}
	if patch.PaymentMethod != nil {
		if !patch.PaymentMethod.IsValid() {
			return nil, ValidationError("INVALID_PAYMENT_METHOD", "Unknown payment method",
				map[string]string{"paymentMethod": string(*patch.PaymentMethod)})
		}
		updates["payment_method"] = *patch.PaymentMethod
	}
	if patch.PaymentID != nil {
		updates["payment_id"] = trimPtr(patch.PaymentID)
	}
	if patch.Notes != nil {
		updates["notes"] = trimPtr(patch.Notes)
	}
	amounts := map[string]*decimal.Decimal{
		"total_amount":    patch.TotalAmount,
		"discount_amount": patch.DiscountAmount,
		"tax_amount":      patch.TaxAmount,
	}
	for column, amount := range amounts {
		if amount == nil {
			continue
		}
		if amount.IsNegative() {
			return nil, ValidationError("INVALID_AMOUNT", "Amounts must not be negative", map[string]string{column: "gte=0"})
		}
		updates[column] = *amount
	}
	if len(updates) == 0 {
		return nil, ValidationError("VALIDATION_ERROR", "No fields to update", nil)
	}

	from := workflow.OrderState{Status: current.Status, PaymentStatus: current.PaymentStatus}
	if err := workflow.ValidateOrderChange(from, to); err != nil {
		return nil, transitionError(err)
	}

	return s.write(ctx, current, updates)
}

// CompletePayment is the simulated gateway callback: the order becomes paid
// and completed in a single write. Buyers may pay their own orders.
func (s *OrderService) CompletePayment(ctx context.Context, actor Actor, id string, paymentID *string) (*models.Order, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && current.BuyerID != actor.UserID {
		return nil, AuthorizationError("You do not have permission to pay for this order")
	}

	from := workflow.OrderState{Status: current.Status, PaymentStatus: current.PaymentStatus}
	to := workflow.OrderState{Status: models.OrderStatusCompleted, PaymentStatus: models.PaymentStatusPaid}
	if from == to {
		s.attachSnapshotURLs(ctx, current)
		return current, nil
	}
	if err := workflow.ValidateOrderChange(from, to); err != nil {
		return nil, transitionError(err)
	}

	ref := trimPtr(paymentID)
	if ref == nil {
		generated := "SIM-" + strings.ToUpper(uuid.NewString()[:8])
		ref = &generated
	}
	return s.write(ctx, current, map[string]any{
		"status":         to.Status,
		"payment_status": to.PaymentStatus,
		"payment_id":     *ref,
	})
}

func (s *OrderService) write(ctx context.Context, current *models.Order, updates map[string]any) (*models.Order, error) {
	updates["updated_at"] = time.Now()
	if err := s.orders.Update(ctx, current.ID, updates); err != nil {
		return nil, storeOrNotFound(err, "ORDER_NOT_FOUND", "Order not found", "Failed to update order")
	}

	updated, err := s.load(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("order updated", "order_id", updated.ID,
		"status", updated.Status, "payment_status", updated.PaymentStatus)

	s.notifier.Updated(ctx, realtime.TableOrders, *current, *updated)
	s.attachSnapshotURLs(ctx, updated)
	return updated, nil
}

// SoftDeleteOrder hides an order from every read
func (s *OrderService) SoftDeleteOrder(ctx context.Context, actor Actor, id string) error {
	if !actor.Admin {
		return AuthorizationError("Only administrators can delete orders")
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.orders.SoftDelete(ctx, id); err != nil {
		return storeOrNotFound(err, "ORDER_NOT_FOUND", "Order not found", "Failed to delete order")
	}

	logger.Info("order deleted", "order_id", id, "order_number", current.OrderNumber)
	s.notifier.Deleted(ctx, realtime.TableOrders, *current)
	return nil
}

// GetOrderStats summarizes all non-deleted orders
func (s *OrderService) GetOrderStats(ctx context.Context) (*repository.OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, StoreError("Failed to compute order statistics", err)
	}
	return &stats, nil
}

// DashboardSnapshot is the initial state of a live order dashboard
func (s *OrderService) DashboardSnapshot(ctx context.Context, actor Actor, filter repository.OrderFilter) ([]models.Order, realtime.Stats, error) {
	if !actor.Admin {
		return nil, realtime.Stats{}, AuthorizationError("Only administrators can watch all orders")
	}
	page, err := s.ListOrders(ctx, actor, filter)
	if err != nil {
		return nil, realtime.Stats{}, err
	}
	stats, err := s.GetOrderStats(ctx)
	if err != nil {
		return nil, realtime.Stats{}, err
	}
	return page.Orders, realtime.Stats{Total: int(stats.TotalOrders), ByStatus: stats.ByStatus()}, nil
}

// ReconcileOrphans soft-deletes pending orders older than maxAge that never
// got their items. Returns how many were removed.
func (s *OrderService) ReconcileOrphans(ctx context.Context, maxAge time.Duration) (int, error) {
	orphans, err := s.orders.FindOrphans(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, StoreError("Failed to find orphaned orders", err)
	}

	removed := 0
	for _, order := range orphans {
		if err := s.orders.SoftDelete(ctx, order.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return removed, StoreError("Failed to remove orphaned order", err)
		}
		removed++
		logger.Warn("removed orphaned order", "order_id", order.ID, "order_number", order.OrderNumber,
			"created_at", order.CreatedAt)
		s.notifier.Deleted(ctx, realtime.TableOrders, order)
	}
	return removed, nil
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newOrderNumber returns "ORD" + yyyymmddHHMMSS + 6 random characters
func newOrderNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("ORD")
	b.WriteString(now.UTC().Format("20060102150405"))
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return b.String()
}
