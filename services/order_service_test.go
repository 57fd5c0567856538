package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyerActor(u *models.User) Actor {
	return Actor{UserID: u.ID, Name: u.Name, Email: u.Email}
}

var adminActor = Actor{UserID: "admin-1", Name: "Admin", Email: "admin@sourcemarket.dev", Admin: true}

func checkoutInput(buyerID string) CreateOrderInput {
	snapshot := "snapshots/shop-template.png"
	return CreateOrderInput{
		BuyerID: buyerID,
		Items: []OrderItemInput{
			{ProductID: "prod-shop", ProductTitle: "E-commerce shop template", ProductPrice: decimal.NewFromInt(649000), SnapshotKey: &snapshot},
			{ProductID: "prod-blog", ProductTitle: "Blog engine", ProductPrice: decimal.NewFromInt(649000)},
		},
		TotalAmount:   decimal.NewFromInt(1298000),
		PaymentMethod: models.PaymentMethodMomo,
	}
}

func createOrder(t *testing.T, buyerID string) *models.Order {
	t.Helper()
	order, err := GetOrderService().CreateOrder(context.Background(), checkoutInput(buyerID))
	require.NoError(t, err)
	return order
}

func orderStatus(s models.OrderStatus) *models.OrderStatus       { return &s }
func paymentStatus(s models.PaymentStatus) *models.PaymentStatus { return &s }

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	number := newOrderNumber(now)
	assert.Regexp(t, regexp.MustCompile(`^ORD20260314092653[A-Z0-9]{6}$`), number)
	assert.NotEqual(t, number, newOrderNumber(now))
}

// A two item checkout is stored with both items and the submitted total
func TestCreateOrder_TwoItems(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Tran Thi Mai", models.RoleCustomer)
	sub := env.subscribe(t, realtime.TableOrders)

	order := createOrder(t, buyer.ID)

	assert.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.ItemCount)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(1298000)), "total %s", order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, buyer.Name, order.BuyerName)
	assert.Regexp(t, `^ORD\d{14}[A-Z0-9]{6}$`, order.OrderNumber)

	event := nextEvent(t, sub)
	assert.Equal(t, realtime.EventInsert, event.Type)
	assert.Equal(t, order.ID, event.RowID)

	stored, err := GetOrderService().GetOrder(context.Background(), buyerActor(buyer), order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	for _, item := range stored.Items {
		assert.True(t, item.ProductPrice.Equal(decimal.NewFromInt(649000)))
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Le Van Binh", models.RoleCustomer)

	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		kind   Kind
		code   string
	}{
		{"negative total", func(in *CreateOrderInput) { in.TotalAmount = decimal.NewFromInt(-1) }, KindValidation, "INVALID_AMOUNT"},
		{"negative item price", func(in *CreateOrderInput) { in.Items[0].ProductPrice = decimal.NewFromInt(-10) }, KindValidation, "INVALID_AMOUNT"},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, KindValidation, "VALIDATION_ERROR"},
		{"item without product", func(in *CreateOrderInput) { in.Items[1].ProductID = "" }, KindValidation, "VALIDATION_ERROR"},
		{"unknown payment method", func(in *CreateOrderInput) { in.PaymentMethod = "bitcoin" }, KindValidation, "INVALID_PAYMENT_METHOD"},
		{"strict total mismatch", func(in *CreateOrderInput) {
			in.StrictTotals = true
			in.TotalAmount = decimal.NewFromInt(1000)
		}, KindValidation, "INVALID_AMOUNT"},
		{"unknown buyer", func(in *CreateOrderInput) { in.BuyerID = "no-such-user" }, KindNotFound, "USER_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := checkoutInput(buyer.ID)
			tt.mutate(&input)

			order, err := GetOrderService().CreateOrder(context.Background(), input)
			assert.Nil(t, order)
			svcErr := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.code, svcErr.Code)

			var count int64
			require.NoError(t, env.db.Model(&models.Order{}).Count(&count).Error)
			assert.Zero(t, count, "no order may be written")
		})
	}
}

func TestCreateOrder_StrictTotalsAccepted(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Pham Minh", models.RoleCustomer)

	input := checkoutInput(buyer.ID)
	input.StrictTotals = true
	input.DiscountAmount = decimal.NewFromInt(98000)
	input.TaxAmount = decimal.NewFromInt(120000)
	input.TotalAmount = decimal.NewFromInt(1320000)

	order, err := GetOrderService().CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(1320000)))
}

// Payment and fulfillment are applied together or not at all
func TestUpdateOrder_PaidAndCompletedTogether(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Vo Thanh", models.RoleCustomer)
	order := createOrder(t, buyer.ID)
	svc := GetOrderService()
	ctx := context.Background()

	_, err := svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{Status: orderStatus(models.OrderStatusCompleted)})
	svcErr := requireKind(t, err, KindValidation)
	assert.Equal(t, "INVALID_STATE", svcErr.Code)

	unchanged, err := svc.GetOrder(ctx, adminActor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)
	assert.Equal(t, models.PaymentStatusPending, unchanged.PaymentStatus)

	updated, err := svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{
		Status:        orderStatus(models.OrderStatusCompleted),
		PaymentStatus: paymentStatus(models.PaymentStatusPaid),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	// a completed order may only be cancelled together with a refund
	_, err = svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{Status: orderStatus(models.OrderStatusCancelled)})
	requireKind(t, err, KindValidation)

	refunded, err := svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{
		Status:        orderStatus(models.OrderStatusCancelled),
		PaymentStatus: paymentStatus(models.PaymentStatusRefunded),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, refunded.Status)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.PaymentStatus)
}

func TestUpdateOrder_Validation(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Dang Huu", models.RoleCustomer)
	order := createOrder(t, buyer.ID)
	svc := GetOrderService()
	ctx := context.Background()

	_, err := svc.UpdateOrder(ctx, buyerActor(buyer), order.ID, OrderPatch{Status: orderStatus(models.OrderStatusProcessing)})
	requireKind(t, err, KindAuthorization)

	_, err = svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{Status: orderStatus("SHIPPED")})
	svcErr := requireKind(t, err, KindValidation)
	assert.Equal(t, "INVALID_STATUS", svcErr.Code)

	negative := decimal.NewFromInt(-5)
	_, err = svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{TaxAmount: &negative})
	requireKind(t, err, KindValidation)

	_, err = svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{})
	requireKind(t, err, KindValidation)

	_, err = svc.UpdateOrder(ctx, adminActor, "missing", OrderPatch{Status: orderStatus(models.OrderStatusProcessing)})
	requireKind(t, err, KindNotFound)

	notes := "Customer asked for an invoice"
	processing, err := svc.UpdateOrder(ctx, adminActor, order.ID, OrderPatch{
		Status: orderStatus(models.OrderStatusProcessing),
		Notes:  &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, processing.Status)
	assert.Equal(t, notes, *processing.Notes)
}

func TestGetOrder_Authorization(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "Hoang Lan", models.RoleCustomer)
	other := testutil.CreateUser(t, env.db, "Bui Quoc", models.RoleCustomer)
	order := createOrder(t, owner.ID)
	ctx := context.Background()

	_, err := GetOrderService().GetOrder(ctx, buyerActor(other), order.ID)
	requireKind(t, err, KindAuthorization)

	own, err := GetOrderService().GetOrder(ctx, buyerActor(owner), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, own.ID)

	_, err = GetOrderService().GetOrder(ctx, adminActor, order.ID)
	require.NoError(t, err)

	_, err = GetOrderService().GetOrder(ctx, adminActor, "missing")
	requireKind(t, err, KindNotFound)
}

func TestGetOrder_SnapshotURLs(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Ngo Tuan", models.RoleCustomer)
	order := createOrder(t, buyer.ID)
	ctx := context.Background()

	got, err := GetOrderService().GetOrder(ctx, buyerActor(buyer), order.ID)
	require.NoError(t, err)
	var withSnapshot, withoutSnapshot *models.OrderItem
	for i := range got.Items {
		if got.Items[i].SnapshotKey != nil {
			withSnapshot = &got.Items[i]
		} else {
			withoutSnapshot = &got.Items[i]
		}
	}
	require.NotNil(t, withSnapshot)
	require.NotNil(t, withoutSnapshot)
	require.NotNil(t, withSnapshot.SnapshotURL)
	assert.Contains(t, *withSnapshot.SnapshotURL, "snapshots/shop-template.png")
	assert.Nil(t, withoutSnapshot.SnapshotURL)

	// presign failures degrade to a missing link
	env.snapshots.FailWith(errors.New("s3 unavailable"))
	got, err = GetOrderService().GetOrder(ctx, buyerActor(buyer), order.ID)
	require.NoError(t, err)
	for _, item := range got.Items {
		assert.Nil(t, item.SnapshotURL)
	}
}

func TestListOrders_ScopedToBuyer(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "Alice Nguyen", models.RoleCustomer)
	bob := testutil.CreateUser(t, env.db, "Bob Tran", models.RoleCustomer)
	createOrder(t, alice.ID)
	createOrder(t, alice.ID)
	createOrder(t, bob.ID)
	ctx := context.Background()

	page, err := GetOrderService().ListOrders(ctx, buyerActor(bob), repository.OrderFilter{BuyerID: alice.ID})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, bob.ID, page.Orders[0].BuyerID)

	page, err = GetOrderService().ListOrders(ctx, adminActor, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Pagination.Total)

	page, err = GetOrderService().ListOrders(ctx, adminActor, repository.OrderFilter{BuyerID: alice.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	_, err = GetOrderService().ListOrders(ctx, adminActor, repository.OrderFilter{Status: "SHIPPED"})
	requireKind(t, err, KindValidation)
}

func TestCompletePayment(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "Do Khanh", models.RoleCustomer)
	other := testutil.CreateUser(t, env.db, "Ly Phuong", models.RoleCustomer)
	order := createOrder(t, owner.ID)
	svc := GetOrderService()
	ctx := context.Background()
	sub := env.subscribe(t, realtime.TableOrders)

	_, err := svc.CompletePayment(ctx, buyerActor(other), order.ID, nil)
	requireKind(t, err, KindAuthorization)

	paid, err := svc.CompletePayment(ctx, buyerActor(owner), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, paid.Status)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentID)
	assert.Regexp(t, `^SIM-[0-9A-F]{8}$`, *paid.PaymentID)

	event := nextEvent(t, sub)
	assert.Equal(t, realtime.EventUpdate, event.Type)
	assert.Contains(t, string(event.Old), `"status":"PENDING"`)
	assert.Contains(t, string(event.New), `"status":"COMPLETED"`)

	again, err := svc.CompletePayment(ctx, buyerActor(owner), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, *paid.PaymentID, *again.PaymentID, "paying twice is a no-op")
}

func TestCompletePayment_CancelledOrder(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Trinh Hai", models.RoleCustomer)
	order := createOrder(t, buyer.ID)
	ctx := context.Background()

	_, err := GetOrderService().UpdateOrder(ctx, adminActor, order.ID, OrderPatch{Status: orderStatus(models.OrderStatusCancelled)})
	require.NoError(t, err)

	ref := "MOMO-123"
	_, err = GetOrderService().CompletePayment(ctx, buyerActor(buyer), order.ID, &ref)
	requireKind(t, err, KindValidation)
}

func TestSoftDeleteOrder_HiddenFromReads(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Cao Linh", models.RoleCustomer)
	kept := createOrder(t, buyer.ID)
	deleted := createOrder(t, buyer.ID)
	svc := GetOrderService()
	ctx := context.Background()

	_, err := svc.CompletePayment(ctx, adminActor, deleted.ID, nil)
	require.NoError(t, err)

	requireKind(t, svc.SoftDeleteOrder(ctx, buyerActor(buyer), deleted.ID), KindAuthorization)
	require.NoError(t, svc.SoftDeleteOrder(ctx, adminActor, deleted.ID))
	requireKind(t, svc.SoftDeleteOrder(ctx, adminActor, deleted.ID), KindNotFound)

	_, err = svc.GetOrder(ctx, adminActor, deleted.ID)
	requireKind(t, err, KindNotFound)

	page, err := svc.ListOrders(ctx, adminActor, repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, kept.ID, page.Orders[0].ID)

	stats, err := svc.GetOrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalOrders)
	assert.Equal(t, int64(0), stats.CompletedOrders)
	assert.True(t, stats.TotalRevenue.IsZero(), "revenue %s", stats.TotalRevenue)
}

func TestReconcileOrphans(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "Mac Duy", models.RoleCustomer)
	healthy := createOrder(t, buyer.ID)
	ctx := context.Background()

	repo := repository.NewOrderRepository(env.db)
	stale := &models.Order{
		OrderNumber:   "ORDSTALE",
		BuyerID:       buyer.ID,
		TotalAmount:   decimal.NewFromInt(100),
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodCash,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	fresh := &models.Order{
		OrderNumber:   "ORDFRESH",
		BuyerID:       buyer.ID,
		TotalAmount:   decimal.NewFromInt(100),
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodCash,
		PaymentStatus: models.PaymentStatusPending,
	}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))
	sub := env.subscribe(t, realtime.TableOrders)

	removed, err := GetOrderService().ReconcileOrphans(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	event := nextEvent(t, sub)
	assert.Equal(t, realtime.EventDelete, event.Type)
	assert.Equal(t, stale.ID, event.RowID)

	_, err = GetOrderService().GetOrder(ctx, adminActor, stale.ID)
	requireKind(t, err, KindNotFound)
	for _, id := range []string{healthy.ID, fresh.ID} {
		_, err = GetOrderService().GetOrder(ctx, adminActor, id)
		assert.NoError(t, err)
	}

	removed, err = GetOrderService().ReconcileOrphans(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
