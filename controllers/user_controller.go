package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/middleware"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/repository"
	"github.com/sourcemarket/sourcemarket-api/services"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=255"`
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateUser handles POST /api/users - creates a new user from Auth0 userinfo.
// The role comes from the token's role claim and defaults to customer.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token", nil)
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found", nil)
		return
	}

	provider, err := services.GetUserInfoProvider()
	if err != nil {
		logger.Error("cannot reach Auth0", "error", err)
		respondFailure(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0", nil)
		return
	}
	userInfo, err := provider.GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		logger.Error("failed to fetch Auth0 userinfo", "auth0_id", auth0ID, "error", err)
		respondFailure(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0", nil)
		return
	}

	if strings.TrimSpace(userInfo.Email) == "" {
		respondFailure(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0", nil)
		return
	}
	if strings.TrimSpace(userInfo.Name) == "" {
		respondFailure(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0", nil)
		return
	}

	role := models.RoleCustomer
	if middleware.GetRole(c) == models.RoleAdmin {
		role = models.RoleAdmin
	}

	user := &models.User{
		Auth0ID: auth0ID,
		Name:    strings.TrimSpace(userInfo.Name),
		Email:   strings.TrimSpace(userInfo.Email),
		Role:    role,
	}
	if err := repository.NewUserRepository(config.GetDB()).Create(c.Request.Context(), user); err != nil {
		if repository.IsUniqueViolation(err) {
			respondFailure(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists", nil)
			return
		}
		logger.Error("failed to create user", "auth0_id", auth0ID, "error", err)
		respondFailure(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user", nil)
		return
	}

	logger.Info("user created", "user_id", user.ID, "role", user.Role)
	respondOK(c, http.StatusCreated, user)
}

// GetMyProfile handles GET /api/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, err := middleware.GetUser(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	user, err := middleware.GetUser(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	updates := make(map[string]any)
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		updates["email"] = email
	}
	if len(updates) == 0 {
		respondOK(c, http.StatusOK, user)
		return
	}

	users := repository.NewUserRepository(config.GetDB())
	if err := users.Update(c.Request.Context(), user.ID, updates); err != nil {
		if repository.IsUniqueViolation(err) {
			respondFailure(c, http.StatusConflict, "EMAIL_EXISTS", "A user with this email already exists", nil)
			return
		}
		logger.Error("failed to update user", "user_id", user.ID, "error", err)
		respondFailure(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user profile", nil)
		return
	}

	updated, err := users.Get(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("failed to reload user", "user_id", user.ID, "error", err)
		respondFailure(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated profile", nil)
		return
	}
	respondOK(c, http.StatusOK, updated)
}
