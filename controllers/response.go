package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/middleware"
	"github.com/sourcemarket/sourcemarket-api/services"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(services.JSONFieldName)
	}
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondFailure(c *gin.Context, status int, code, message string, details any) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// respondError renders a service error. Store failures are logged with the
// cause and answered with a generic message.
func respondError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logger.Error("unexpected error", "path", c.FullPath(), "error", err)
		respondFailure(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong", nil)
		return
	}

	switch svcErr.Kind {
	case services.KindValidation:
		respondFailure(c, http.StatusBadRequest, svcErr.Code, svcErr.Message, svcErr.Details)
	case services.KindNotFound:
		respondFailure(c, http.StatusNotFound, svcErr.Code, svcErr.Message, nil)
	case services.KindAuthorization:
		respondFailure(c, http.StatusForbidden, svcErr.Code, svcErr.Message, nil)
	default:
		logger.Error("store operation failed", "path", c.FullPath(), "code", svcErr.Code, "error", err)
		respondFailure(c, http.StatusInternalServerError, svcErr.Code, svcErr.Message, nil)
	}
}

// respondBindError answers a request whose body could not be bound. Details
// are always a field map, like service validation errors.
func respondBindError(c *gin.Context, err error) {
	respondFailure(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", bindErrorDetails(err))
}

func bindErrorDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return services.ValidationDetails(verrs)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return map[string]string{typeErr.Field: "must be " + typeErr.Type.String()}
	}
	return map[string]string{"body": err.Error()}
}

// currentActor builds the services.Actor of an authenticated request
func currentActor(c *gin.Context) (services.Actor, bool) {
	user, err := middleware.GetUser(c)
	if err != nil {
		respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return services.Actor{}, false
	}
	return services.Actor{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Admin:  user.IsAdmin(),
	}, true
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
