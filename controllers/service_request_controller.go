package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/services"
)

func requestFilter(c *gin.Context) repository.ServiceRequestFilter {
	return repository.ServiceRequestFilter{
		Search:      c.Query("search"),
		Status:      models.ServiceRequestStatus(c.Query("status")),
		ServiceType: models.ServiceType(c.Query("service_type")),
		Priority:    models.Priority(c.Query("priority")),
		Page:        queryInt(c, "page"),
		Limit:       queryInt(c, "limit"),
	}
}

// CreateServiceRequest handles POST /api/service-requests - public intake form
func CreateServiceRequest(c *gin.Context) {
	var input services.CreateServiceRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	request, err := services.GetServiceRequestService().CreateServiceRequest(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, gin.H{
		"request": request,
		"message": "Service request submitted successfully. We will contact you soon.",
	})
}

// ListServiceRequests handles GET /api/service-requests
func ListServiceRequests(c *gin.Context) {
	list, err := services.GetServiceRequestService().ListServiceRequests(c.Request.Context(), requestFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

// StreamServiceRequests handles GET /api/service-requests/stream
func StreamServiceRequests(c *gin.Context) {
	filter := requestFilter(c)
	streamDashboard(c, realtime.TableServiceRequests,
		func(ctx context.Context) ([]models.ServiceRequest, realtime.Stats, error) {
			return services.GetServiceRequestService().DashboardSnapshot(ctx, filter)
		},
		filter.Matches,
		func(rows []models.ServiceRequest, stats realtime.Stats) any {
			return gin.H{"requests": rows, "stats": stats}
		},
	)
}

// GetServiceRequest handles GET /api/service-requests/:id
func GetServiceRequest(c *gin.Context) {
	request, err := services.GetServiceRequestService().GetServiceRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, request)
}

// UpdateServiceRequest handles PATCH /api/service-requests/:id
func UpdateServiceRequest(c *gin.Context) {
	var patch services.RequestPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}

	request, err := services.GetServiceRequestService().UpdateRequest(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, request)
}

// QuoteServiceRequest handles POST /api/service-requests/:id/quote
func QuoteServiceRequest(c *gin.Context) {
	var quote services.QuoteInput
	if err := c.ShouldBindJSON(&quote); err != nil {
		respondBindError(c, err)
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	quote.QuotedBy = &actor.Email

	request, err := services.GetServiceRequestService().AddQuote(c.Request.Context(), c.Param("id"), quote)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, request)
}

// DeleteServiceRequest handles DELETE /api/service-requests/:id
func DeleteServiceRequest(c *gin.Context) {
	id := c.Param("id")
	if err := services.GetServiceRequestService().DeleteServiceRequest(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}
