package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/services"
)

// RestProfileHandler handles the authenticated user's own profile.
type RestProfileHandler struct {
	userService    services.IUserService
	profileService services.IProfileService
}

// NewRestProfileHandler creates a new RestProfileHandler.
func NewRestProfileHandler(userService services.IUserService, profileService services.IProfileService) *RestProfileHandler {
	return &RestProfileHandler{
		userService:    userService,
		profileService: profileService,
	}
}

// GetMyProfile handles GET /v1/my/profile (authenticated)
// The profile row is created lazily on first read.
func (h *RestProfileHandler) GetMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve account"})
		}
		return
	}

	profile, err := h.profileService.GetOrCreateProfile(c.Request.Context(), user)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve profile"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMyProfile handles PUT /v1/my/profile (authenticated)
func (h *RestProfileHandler) UpdateMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	profile, err := h.profileService.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, profile)
}
