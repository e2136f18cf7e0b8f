package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/api/middleware"
	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/search"
	"github.com/alb1nut/homebase/internal/services"
	"github.com/alb1nut/homebase/internal/tasks"
	"github.com/alb1nut/homebase/internal/utils"
)

// currentUserID extracts the authenticated user ID set by AuthMiddleware.
// Returns false (and writes the response) when the ID is missing or malformed.
func currentUserID(c *gin.Context) (utils.SixID, bool) {
	idStr := c.GetString(middleware.ContextKeyUserID)
	if idStr == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	userID, err := utils.ParseSixID(idStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity in token"})
		return utils.SixID{}, false
	}
	return userID, true
}

// RestPropertyHandler handles REST requests for property listings.
type RestPropertyHandler struct {
	cfg             *config.Config
	propertyService services.IPropertyService
	agentService    services.IAgentService
	taskClient      IAsynqClient
}

// NewRestPropertyHandler creates a new RestPropertyHandler.
func NewRestPropertyHandler(cfg *config.Config, propertyService services.IPropertyService, agentService services.IAgentService, taskClient IAsynqClient) *RestPropertyHandler {
	return &RestPropertyHandler{
		cfg:             cfg,
		propertyService: propertyService,
		agentService:    agentService,
		taskClient:      taskClient,
	}
}

// refreshOwnerAgentStats keeps an agent's properties_count current when an
// agent account lists or removes a property. Non-agent owners are skipped.
func (h *RestPropertyHandler) refreshOwnerAgentStats(c *gin.Context, userID utils.SixID) {
	if h.agentService == nil || h.taskClient == nil {
		return
	}
	agent, err := h.agentService.FindAgentByUserID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("WARN: agent lookup for stats refresh failed for user %s: %v", userID.String(), err)
		}
		return
	}
	task, err := tasks.NewAgentStatsRefreshTask(agent.ID)
	if err != nil {
		log.Printf("WARN: failed to build stats refresh task for agent %s: %v", agent.ID.String(), err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err != nil {
		log.Printf("WARN: failed to enqueue stats refresh for agent %s: %v", agent.ID.String(), err)
	}
}

// withDefaultImage fills in the placeholder image for listings saved without one.
func (h *RestPropertyHandler) withDefaultImage(props []models.Property) []models.Property {
	for i := range props {
		if props[i].ImageURL == "" {
			props[i].ImageURL = h.cfg.DefaultPropertyImageURL
		}
	}
	return props
}

// SearchProperties handles GET /v1/property/search
func (h *RestPropertyHandler) SearchProperties(c *gin.Context) {
	criteria := search.PropertyCriteria{
		Query:        c.Query("q"),
		PropertyType: c.Query("type"),
		Location:     c.Query("location"),
		PriceRange:   c.Query("price"),
	}

	properties, err := h.propertyService.FindAllProperties(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search properties"})
		return
	}

	results := h.withDefaultImage(search.FilterProperties(properties, criteria))

	c.JSON(http.StatusOK, gin.H{
		"data":  results,
		"count": len(results),
	})
}

// GetPropertyByID handles GET /v1/property/:id
func (h *RestPropertyHandler) GetPropertyByID(c *gin.Context) {
	propertyID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	property, err := h.propertyService.FindPropertyByID(c.Request.Context(), propertyID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve property"})
		}
		return
	}

	if property.ImageURL == "" {
		property.ImageURL = h.cfg.DefaultPropertyImageURL
	}
	c.JSON(http.StatusOK, property)
}

// CreateProperty handles POST /v1/property (authenticated)
func (h *RestPropertyHandler) CreateProperty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.PropertyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	property, err := h.propertyService.CreateProperty(c.Request.Context(), userID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.refreshOwnerAgentStats(c, userID)

	c.JSON(http.StatusCreated, property)
}

// UpdateProperty handles PUT /v1/property/:id (authenticated, owner only)
func (h *RestPropertyHandler) UpdateProperty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	propertyID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	property, err := h.propertyService.UpdateProperty(c.Request.Context(), propertyID, userID, updates)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotPropertyOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this property"})
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, property)
}

// DeleteProperty handles DELETE /v1/property/:id (authenticated, owner only)
func (h *RestPropertyHandler) DeleteProperty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	propertyID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
		return
	}

	err = h.propertyService.DeleteProperty(c.Request.Context(), propertyID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotPropertyOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this property"})
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete property"})
		}
		return
	}

	h.refreshOwnerAgentStats(c, userID)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetMyProperties handles GET /v1/my/properties (authenticated)
func (h *RestPropertyHandler) GetMyProperties(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	properties, err := h.propertyService.FindPropertiesByUserID(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch properties"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.withDefaultImage(properties)})
}
