package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/controllers"
	"github.com/sourcemarket/sourcemarket-api/middleware"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/services"
	"github.com/sourcemarket/sourcemarket-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// OrderIntegrationTestSuite drives the order and service request workflows
// through the full route table
type OrderIntegrationTestSuite struct {
	suite.Suite
	router *gin.Engine
	db     *gorm.DB
	broker *realtime.MemoryBroker
	email  *services.MockEmailService

	customer *models.User
	admin    *models.User
	caller   *models.User
}

// SetupSuite runs once before all tests
func (suite *OrderIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

// SetupTest runs before each test
func (suite *OrderIntegrationTestSuite) SetupTest() {
	suite.db = testutil.NewTestDB(suite.T())
	config.SetDB(suite.db)

	suite.broker = realtime.NewMemoryBroker()
	suite.email = services.NewMockEmailService()
	services.Init(services.Dependencies{
		DB:        suite.db,
		Broker:    suite.broker,
		Email:     suite.email,
		Snapshots: services.NewMockSnapshotStore("snapshots/shop-template.png"),
	})

	suite.customer = testutil.CreateUser(suite.T(), suite.db, "Tran Thi Mai", models.RoleCustomer)
	suite.admin = testutil.CreateUser(suite.T(), suite.db, "Shop Admin", models.RoleAdmin)
	suite.caller = nil

	suite.router = gin.New()
	controllers.RegisterRoutes(suite.router.Group("/api"), suite.mockAuthMiddleware())
}

// TearDownTest runs after each test
func (suite *OrderIntegrationTestSuite) TearDownTest() {
	services.WaitForNotifications()
	suite.broker.Close()
}

// mockAuthMiddleware authenticates every request as the suite's current caller
func (suite *OrderIntegrationTestSuite) mockAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if suite.caller == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}
		c.Set(middleware.UserIDKey, suite.caller.Auth0ID)
		c.Set(middleware.AccessTokenKey, "mock-token")
		c.Set(middleware.ClaimsKey, &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: suite.caller.Auth0ID},
			CustomClaims:     &middleware.CustomClaims{Role: suite.caller.Role},
		})
		c.Next()
	}
}

func (suite *OrderIntegrationTestSuite) as(user *models.User) *OrderIntegrationTestSuite {
	suite.caller = user
	return suite
}

func (suite *OrderIntegrationTestSuite) request(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func data(response map[string]interface{}) map[string]interface{} {
	return response["data"].(map[string]interface{})
}

func errorCode(response map[string]interface{}) string {
	return response["error"].(map[string]interface{})["code"].(string)
}

func (suite *OrderIntegrationTestSuite) checkout() map[string]interface{} {
	w, response := suite.as(suite.customer).request(http.MethodPost, "/api/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"productId": "prod-shop", "productTitle": "E-commerce shop template", "productPrice": 649000, "snapshotKey": "snapshots/shop-template.png"},
			{"productId": "prod-blog", "productTitle": "Blog engine", "productPrice": 649000},
		},
		"totalAmount":   1298000,
		"paymentMethod": "momo",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, response)
	return data(response)
}

// TestOrderWorkflow_CheckoutPayAndReport tests checkout, payment and the admin report
func (suite *OrderIntegrationTestSuite) TestOrderWorkflow_CheckoutPayAndReport() {
	order := suite.checkout()
	orderID := order["id"].(string)
	assert.Equal(suite.T(), "PENDING", order["status"])
	assert.Equal(suite.T(), "PENDING", order["paymentStatus"])
	assert.Len(suite.T(), order["items"], 2)

	// the buyer sees the order with a presigned preview link
	w, response := suite.as(suite.customer).request(http.MethodGet, "/api/orders/"+orderID, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	items := data(response)["items"].([]interface{})
	var previews int
	for _, item := range items {
		if _, ok := item.(map[string]interface{})["snapshotUrl"]; ok {
			previews++
		}
	}
	assert.Equal(suite.T(), 1, previews)

	w, response = suite.as(suite.customer).request(http.MethodPost, "/api/orders/"+orderID+"/pay", nil)
	suite.Require().Equal(http.StatusOK, w.Code, response)
	assert.Equal(suite.T(), "COMPLETED", data(response)["status"])
	assert.Equal(suite.T(), "PAID", data(response)["paymentStatus"])

	w, response = suite.as(suite.admin).request(http.MethodGet, "/api/admin/orders/stats", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	stats := data(response)
	assert.EqualValues(suite.T(), 1, stats["totalOrders"])
	assert.EqualValues(suite.T(), 1, stats["completedOrders"])
}

// TestOrderWorkflow_AdminRefund tests cancelling a completed order with a refund
func (suite *OrderIntegrationTestSuite) TestOrderWorkflow_AdminRefund() {
	orderID := suite.checkout()["id"].(string)
	path := "/api/admin/orders/" + orderID

	w, response := suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"status": "COMPLETED", "paymentStatus": "PAID"})
	suite.Require().Equal(http.StatusOK, w.Code, response)

	w, response = suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"status": "CANCELLED"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "INVALID_STATE", errorCode(response))

	w, response = suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"paymentStatus": "REFUNDED"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "INVALID_STATE", errorCode(response))

	w, response = suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"status": "CANCELLED", "paymentStatus": "REFUNDED"})
	suite.Require().Equal(http.StatusOK, w.Code, response)

	// a refunded order can no longer be paid
	w, response = suite.as(suite.customer).request(http.MethodPost, "/api/orders/"+orderID+"/pay", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "INVALID_TRANSITION", errorCode(response))
}

// TestListOrders_CustomerSeesOnlyOwnOrders tests buyer scoping of the order list
func (suite *OrderIntegrationTestSuite) TestListOrders_CustomerSeesOnlyOwnOrders() {
	suite.checkout()
	suite.checkout()

	other := testutil.CreateUser(suite.T(), suite.db, "Other Buyer", models.RoleCustomer)
	w, response := suite.as(other).request(http.MethodGet, "/api/orders", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Empty(suite.T(), data(response)["orders"])

	w, response = suite.as(other).request(http.MethodGet, fmt.Sprintf("/api/orders?buyerId=%s", suite.customer.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Empty(suite.T(), data(response)["orders"], "buyerId is ignored for customers")

	w, response = suite.as(suite.admin).request(http.MethodGet, "/api/admin/orders?page=2&limit=1", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	pagination := data(response)["pagination"].(map[string]interface{})
	assert.EqualValues(suite.T(), 2, pagination["page"])
	assert.EqualValues(suite.T(), 2, pagination["total"])
	assert.EqualValues(suite.T(), 2, pagination["totalPages"])
	assert.Len(suite.T(), data(response)["orders"], 1)
}

// TestServiceRequestWorkflow_QuoteToCompletion tests a request from intake to completion
func (suite *OrderIntegrationTestSuite) TestServiceRequestWorkflow_QuoteToCompletion() {
	w, response := suite.as(nil).request(http.MethodPost, "/api/service-requests", map[string]interface{}{
		"name":         "Nguyen Van An",
		"email":        "an.nguyen@example.com",
		"service_type": "ui-redesign",
		"title":        "Refresh the storefront",
		"description":  "New theme and a faster checkout page.",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, response)
	request := data(response)["request"].(map[string]interface{})
	path := "/api/service-requests/" + request["id"].(string)

	steps := []struct {
		method string
		path   string
		body   map[string]interface{}
		status string
	}{
		{http.MethodPatch, path, map[string]interface{}{"status": "reviewing"}, "reviewing"},
		{http.MethodPost, path + "/quote", map[string]interface{}{"quoted_price": 12000000, "quoted_duration": "3 weeks"}, "quoted"},
		{http.MethodPatch, path, map[string]interface{}{"status": "approved"}, "approved"},
		{http.MethodPatch, path, map[string]interface{}{"status": "in_progress"}, "in_progress"},
		{http.MethodPatch, path, map[string]interface{}{"status": "completed", "client_feedback": "Great work"}, "completed"},
	}
	for _, step := range steps {
		w, response := suite.as(suite.admin).request(step.method, step.path, step.body)
		suite.Require().Equal(http.StatusOK, w.Code, response)
		assert.Equal(suite.T(), step.status, data(response)["status"])
	}

	w, response = suite.as(suite.admin).request(http.MethodGet, path, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.NotNil(suite.T(), data(response)["completed_at"])
	assert.Equal(suite.T(), "Great work", data(response)["client_feedback"])

	w, response = suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"status": "cancelled"})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "INVALID_TRANSITION", errorCode(response))

	w, response = suite.as(suite.admin).request(http.MethodGet, "/api/admin/dashboard", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	requests := data(response)["requests"].(map[string]interface{})
	assert.EqualValues(suite.T(), 1, requests["completed"])
	revenue, err := decimal.NewFromString(fmt.Sprint(requests["total_revenue"]))
	suite.Require().NoError(err)
	assert.True(suite.T(), revenue.Equal(decimal.NewFromInt(12000000)), revenue.String())
}

// TestServiceRequestWorkflow_SkippingTheQuote tests that approval needs a quote first
func (suite *OrderIntegrationTestSuite) TestServiceRequestWorkflow_SkippingTheQuote() {
	w, response := suite.as(nil).request(http.MethodPost, "/api/service-requests", map[string]interface{}{
		"name":         "Nguyen Van An",
		"email":        "an.nguyen@example.com",
		"service_type": "consultation",
		"title":        "Architecture review",
		"description":  "One session about scaling.",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, response)
	path := "/api/service-requests/" + data(response)["request"].(map[string]interface{})["id"].(string)

	for _, status := range []string{"quoted", "approved", "completed"} {
		w, response := suite.as(suite.admin).request(http.MethodPatch, path, map[string]interface{}{"status": status})
		assert.Equal(suite.T(), http.StatusBadRequest, w.Code, status)
		assert.Equal(suite.T(), "INVALID_TRANSITION", errorCode(response), status)
	}
}

// TestServiceRequestWorkflow_CustomerCannotManage tests that customers cannot use admin routes
func (suite *OrderIntegrationTestSuite) TestServiceRequestWorkflow_CustomerCannotManage() {
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/service-requests"},
		{http.MethodGet, "/api/service-requests/any"},
		{http.MethodPatch, "/api/service-requests/any"},
		{http.MethodPost, "/api/service-requests/any/quote"},
		{http.MethodDelete, "/api/service-requests/any"},
		{http.MethodPost, "/api/service-requests/any/messages"},
		{http.MethodGet, "/api/admin/settings"},
	}
	for _, r := range routes {
		w, response := suite.as(suite.customer).request(r.method, r.path, map[string]interface{}{})
		assert.Equal(suite.T(), http.StatusForbidden, w.Code, "%s %s", r.method, r.path)
		assert.Equal(suite.T(), "FORBIDDEN", errorCode(response))
	}
}

func TestOrderIntegrationSuite(t *testing.T) {
	suite.Run(t, new(OrderIntegrationTestSuite))
}
