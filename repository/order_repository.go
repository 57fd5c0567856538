package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderFilter narrows an order list. Zero values mean "any".
type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	BuyerID       string
	Search        string // order number substring
	DateFrom      *time.Time // inclusive
	DateTo        *time.Time // exclusive
	Page          int
	Limit         int
}

// Matches reports whether order passes the filter's conditions, paging aside
func (f OrderFilter) Matches(order models.Order) bool {
	switch {
	case f.Status != "" && order.Status != f.Status:
		return false
	case f.PaymentStatus != "" && order.PaymentStatus != f.PaymentStatus:
		return false
	case f.BuyerID != "" && order.BuyerID != f.BuyerID:
		return false
	case f.Search != "" && !containsFold(order.OrderNumber, f.Search):
		return false
	case f.DateFrom != nil && order.CreatedAt.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && !order.CreatedAt.Before(*f.DateTo):
		return false
	}
	return true
}

// OrderStats summarizes every non-deleted order
type OrderStats struct {
	TotalOrders       int64           `json:"totalOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	PendingOrders     int64           `json:"pendingOrders"`
	ProcessingOrders  int64           `json:"processingOrders"`
	CompletedOrders   int64           `json:"completedOrders"`
	CancelledOrders   int64           `json:"cancelledOrders"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
}

// ByStatus returns the per-status counters keyed by status value
func (s OrderStats) ByStatus() map[string]int {
	return map[string]int{
		string(models.OrderStatusPending):    int(s.PendingOrders),
		string(models.OrderStatusProcessing): int(s.ProcessingOrders),
		string(models.OrderStatusCompleted):  int(s.CompletedOrders),
		string(models.OrderStatusCancelled):  int(s.CancelledOrders),
	}
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) filtered(ctx context.Context, f OrderFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.BuyerID != "" {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.Search != "" {
		q = q.Where(`LOWER(order_number) LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at < ?", *f.DateTo)
	}
	return q
}

// List returns one page of orders, newest first, with buyer and items loaded
func (r *OrderRepository) List(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := r.filtered(ctx, f).
		Preload("Buyer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at DESC").
		Scopes(paginate(f.Page, f.Limit)).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	for i := range orders {
		hydrate(&orders[i])
	}
	return orders, total, nil
}

// Get loads one order with buyer and items. Soft-deleted orders are not found.
func (r *OrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Buyer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	hydrate(&order)
	return &order, nil
}

// Create inserts the order and its items in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return nil
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		return tx.Create(&order.Items).Error
	})
}

// Update writes the given columns in a single statement
func (r *OrderRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete hides the order from every read
func (r *OrderRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Stats scans every non-deleted order. Fine for a shop's volume; a large
// catalog would want this aggregated in SQL or cached.
func (r *OrderRepository) Stats(ctx context.Context) (OrderStats, error) {
	var rows []struct {
		Status      models.OrderStatus
		TotalAmount decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Select("status", "total_amount").Find(&rows).Error; err != nil {
		return OrderStats{}, err
	}

	stats := OrderStats{TotalRevenue: decimal.Zero, AverageOrderValue: decimal.Zero}
	for _, row := range rows {
		stats.TotalOrders++
		switch row.Status {
		case models.OrderStatusPending:
			stats.PendingOrders++
		case models.OrderStatusProcessing:
			stats.ProcessingOrders++
		case models.OrderStatusCompleted:
			stats.CompletedOrders++
			stats.TotalRevenue = stats.TotalRevenue.Add(row.TotalAmount)
		case models.OrderStatusCancelled:
			stats.CancelledOrders++
		}
	}
	if stats.CompletedOrders > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(stats.CompletedOrders)).Round(2)
	}
	return stats, nil
}

// FindOrphans returns pending orders created before cutoff that have no items
func (r *OrderRepository) FindOrphans(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM order_items WHERE order_items.order_id = orders.id)").
		Find(&orders).Error
	return orders, err
}

func hydrate(order *models.Order) {
	if order.Buyer != nil {
		order.BuyerName = order.Buyer.Name
		order.BuyerEmail = order.Buyer.Email
	}
	order.ItemCount = len(order.Items)
}
