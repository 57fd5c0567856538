package jobs

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/services"
	"github.com/sourcemarket/sourcemarket-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setup(t *testing.T) (*gorm.DB, *lockedBuffer) {
	t.Helper()

	db := testutil.NewTestDB(t)
	broker := realtime.NewMemoryBroker()
	services.Init(services.Dependencies{
		DB:        db,
		Broker:    broker,
		Email:     services.NewMockEmailService(),
		Snapshots: services.NewMockSnapshotStore(),
	})

	logs := &lockedBuffer{}
	logger.SetOutput(logs, "info")
	t.Cleanup(func() {
		logger.SetOutput(&bytes.Buffer{}, "error")
		services.WaitForNotifications()
		broker.Close()
	})
	return db, logs
}

// staleOrder inserts a pending order without items, created an hour ago
func staleOrder(t *testing.T, db *gorm.DB, buyerID string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   "ORDSTALE" + buyerID[:6],
		BuyerID:       buyerID,
		TotalAmount:   decimal.NewFromInt(100),
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodCash,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func orderExists(db *gorm.DB, id string) bool {
	var count int64
	db.Model(&models.Order{}).Where("id = ?", id).Count(&count)
	return count > 0
}

func TestReconcileOrders(t *testing.T) {
	db, logs := setup(t)
	buyer := testutil.CreateUser(t, db, "Mac Duy", models.RoleCustomer)
	stale := staleOrder(t, db, buyer.ID)

	require.NoError(t, ReconcileOrders(context.Background()))
	assert.False(t, orderExists(db, stale.ID))
	assert.Contains(t, logs.String(), "orphaned orders reconciled")

	// nothing left to do
	require.NoError(t, ReconcileOrders(context.Background()))
}

func TestLogStatistics(t *testing.T) {
	db, logs := setup(t)
	buyer := testutil.CreateUser(t, db, "Mac Duy", models.RoleCustomer)
	staleOrder(t, db, buyer.ID)

	require.NoError(t, LogStatistics(context.Background()))
	out := logs.String()
	assert.Contains(t, out, "statistics heartbeat")
	assert.Contains(t, out, `"orders":1`)
	assert.Contains(t, out, `"service_requests":0`)
}

func TestLogStatistics_StoreFailure(t *testing.T) {
	db, _ := setup(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = LogStatistics(context.Background())
	require.Error(t, err)
	assert.Equal(t, services.KindStore, services.KindOf(err))
}

func TestScheduler_RunsReconciliation(t *testing.T) {
	db, logs := setup(t)
	buyer := testutil.CreateUser(t, db, "Mac Duy", models.RoleCustomer)
	stale := staleOrder(t, db, buyer.ID)

	scheduler, err := Start(Options{ReconcileInterval: 50 * time.Millisecond, StatsInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = scheduler.Stop() })

	assert.Eventually(t, func() bool { return !orderExists(db, stale.ID) }, 3*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(logs.String(), "background jobs started"))
}
