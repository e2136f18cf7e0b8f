package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/services"
	"github.com/alb1nut/homebase/internal/utils"
)

// RestAdminHandler handles administrative account actions.
type RestAdminHandler struct {
	userService services.IUserService
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(userService services.IUserService) *RestAdminHandler {
	return &RestAdminHandler{userService: userService}
}

// SuspendUser handles POST /v1/admin/user/:id/suspend
func (h *RestAdminHandler) SuspendUser(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.userService.SuspendUser(c.Request.Context(), userID, adminID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"suspended": true})
}

// UnsuspendUser handles POST /v1/admin/user/:id/unsuspend
func (h *RestAdminHandler) UnsuspendUser(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.userService.UnsuspendUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsuspend user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"suspended": false})
}
