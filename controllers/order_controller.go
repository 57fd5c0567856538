package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/services"
)

// PayOrderRequest is the optional body of the simulated payment callback
type PayOrderRequest struct {
	PaymentID *string `json:"paymentId"`
}

func orderFilter(c *gin.Context) (repository.OrderFilter, bool) {
	filter := repository.OrderFilter{
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("paymentStatus")),
		BuyerID:       c.Query("buyerId"),
		Search:        c.Query("search"),
		Page:          queryInt(c, "page"),
		Limit:         queryInt(c, "limit"),
	}
	for key, dst := range map[string]**time.Time{"dateFrom": &filter.DateFrom, "dateTo": &filter.DateTo} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			respondFailure(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date filter", gin.H{key: raw})
			return filter, false
		}
		// dateTo is exclusive; a plain date covers the whole day
		if key == "dateTo" && dateOnly {
			t = t.Add(24 * time.Hour)
		}
		*dst = &t
	}
	return filter, true
}

// parseDate accepts RFC 3339 timestamps or plain yyyy-mm-dd dates and
// reports which form it got
func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	return t, true, err
}

// CreateOrder handles POST /api/orders - records a confirmed checkout for the caller
func CreateOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var input services.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	// buyers check out for themselves; admins may record an order for anyone
	if !actor.Admin || input.BuyerID == "" {
		input.BuyerID = actor.UserID
	}

	order, err := services.GetOrderService().CreateOrder(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

// ListOrders handles GET /api/orders and GET /api/admin/orders. Non-admins
// only ever see their own orders.
func ListOrders(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, ok := orderFilter(c)
	if !ok {
		return
	}

	page, err := services.GetOrderService().ListOrders(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// GetOrder handles GET /api/orders/:id and GET /api/admin/orders/:id
func GetOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	order, err := services.GetOrderService().GetOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// PayOrder handles POST /api/orders/:id/pay - simulated payment completion
func PayOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req PayOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	order, err := services.GetOrderService().CompletePayment(c.Request.Context(), actor, c.Param("id"), req.PaymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// UpdateOrder handles PUT/PATCH /api/admin/orders/:id
func UpdateOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var patch services.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := services.GetOrderService().UpdateOrder(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// DeleteOrder handles DELETE /api/admin/orders/:id (soft delete)
func DeleteOrder(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := services.GetOrderService().SoftDeleteOrder(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

// GetOrderStats handles GET /api/admin/orders/stats
func GetOrderStats(c *gin.Context) {
	stats, err := services.GetOrderService().GetOrderStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

// StreamOrders handles GET /api/admin/orders/stream
func StreamOrders(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, ok := orderFilter(c)
	if !ok {
		return
	}

	streamDashboard(c, realtime.TableOrders,
		func(ctx context.Context) ([]models.Order, realtime.Stats, error) {
			return services.GetOrderService().DashboardSnapshot(ctx, actor, filter)
		},
		filter.Matches,
		func(rows []models.Order, stats realtime.Stats) any {
			return gin.H{"orders": rows, "stats": stats}
		},
	)
}
