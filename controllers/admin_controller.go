package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/services"
	"golang.org/x/sync/errgroup"
)

// DashboardSummary is the landing data of the admin console
type DashboardSummary struct {
	Orders   *repository.OrderStats   `json:"orders"`
	Requests *repository.RequestStats `json:"requests"`
}

// GetDashboard handles GET /api/admin/dashboard. Order and request
// statistics are loaded concurrently.
func GetDashboard(c *gin.Context) {
	g, ctx := errgroup.WithContext(c.Request.Context())

	var summary DashboardSummary
	g.Go(func() error {
		stats, err := services.GetOrderService().GetOrderStats(ctx)
		summary.Orders = stats
		return err
	})
	g.Go(func() error {
		stats, err := services.GetServiceRequestService().GetStatistics(ctx)
		summary.Requests = stats
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// GetSettings handles GET /api/admin/settings[?key=a&key=b]
func GetSettings(c *gin.Context) {
	settings, err := services.GetSettingsService().GetSettings(c.Request.Context(), c.QueryArray("key")...)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/admin/settings with a key/value map
func UpdateSettings(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		respondBindError(c, err)
		return
	}

	settings, err := services.GetSettingsService().PutSettings(c.Request.Context(), values)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, settings)
}
