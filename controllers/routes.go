package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/middleware"
)

// RegisterRoutes mounts every API endpoint on api. authenticate validates
// the bearer token (middleware.EnsureValidToken in production).
func RegisterRoutes(api *gin.RouterGroup, authenticate gin.HandlerFunc) {
	// public intake form
	api.POST("/service-requests", CreateServiceRequest)

	authed := api.Group("", authenticate)
	authed.POST("/users", CreateUser)

	profile := authed.Group("", middleware.LoadUser())
	{
		profile.GET("/users/me", GetMyProfile)
		profile.PUT("/users/me", UpdateMyProfile)

		profile.POST("/orders", CreateOrder)
		profile.GET("/orders", ListOrders)
		profile.GET("/orders/:id", GetOrder)
		profile.POST("/orders/:id/pay", PayOrder)
	}

	admin := profile.Group("", middleware.RequireAdmin())
	{
		requests := admin.Group("/service-requests")
		requests.GET("", ListServiceRequests)
		requests.GET("/stream", StreamServiceRequests)
		requests.GET("/:id", GetServiceRequest)
		requests.PATCH("/:id", UpdateServiceRequest)
		requests.POST("/:id/quote", QuoteServiceRequest)
		requests.DELETE("/:id", DeleteServiceRequest)
		requests.GET("/:id/messages", ListMessages)
		requests.POST("/:id/messages", SendMessage)

		orders := admin.Group("/admin/orders")
		orders.GET("", ListOrders)
		orders.GET("/stats", GetOrderStats)
		orders.GET("/stream", StreamOrders)
		orders.GET("/:id", GetOrder)
		orders.PUT("/:id", UpdateOrder)
		orders.PATCH("/:id", UpdateOrder)
		orders.DELETE("/:id", DeleteOrder)

		admin.GET("/admin/dashboard", GetDashboard)
		admin.GET("/admin/settings", GetSettings)
		admin.PUT("/admin/settings", UpdateSettings)
	}
}
