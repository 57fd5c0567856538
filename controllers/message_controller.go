package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/services"
)

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// SendMessage handles POST /api/service-requests/:id/messages - an admin
// reply on a service request, emailed to the requester
func SendMessage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	message, err := services.GetMessageService().PostMessage(c.Request.Context(), actor, c.Param("id"), services.MessageInput{Body: req.Body})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, message)
}

// ListMessages handles GET /api/service-requests/:id/messages
func ListMessages(c *gin.Context) {
	messages, err := services.GetMessageService().ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, messages)
}
