package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/search"
	"github.com/alb1nut/homebase/internal/services"
	"github.com/alb1nut/homebase/internal/tasks"
	"github.com/alb1nut/homebase/internal/utils"
)

// RestAgentHandler handles REST requests for the agent directory.
type RestAgentHandler struct {
	cfg          *config.Config
	agentService services.IAgentService
	taskClient   IAsynqClient
}

// NewRestAgentHandler creates a new RestAgentHandler.
func NewRestAgentHandler(cfg *config.Config, agentService services.IAgentService, taskClient IAsynqClient) *RestAgentHandler {
	return &RestAgentHandler{
		cfg:          cfg,
		agentService: agentService,
		taskClient:   taskClient,
	}
}

// SearchAgents handles GET /v1/agent/search
func (h *RestAgentHandler) SearchAgents(c *gin.Context) {
	criteria := search.AgentCriteria{
		Query:     c.Query("q"),
		Location:  c.Query("location"),
		Specialty: c.Query("specialty"),
		SortBy:    c.Query("sort"),
	}

	agents, err := h.agentService.FindActiveAgents(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search agents"})
		return
	}

	results := search.FilterAgents(agents, criteria)

	c.JSON(http.StatusOK, gin.H{
		"data":  results,
		"count": len(results),
	})
}

// GetAgentByID handles GET /v1/agent/:id
func (h *RestAgentHandler) GetAgentByID(c *gin.Context) {
	agentID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}

	agent, err := h.agentService.FindAgentByID(c.Request.Context(), agentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve agent"})
		}
		return
	}

	c.JSON(http.StatusOK, agent)
}

// ListAgentReviews handles GET /v1/agent/:id/reviews
func (h *RestAgentHandler) ListAgentReviews(c *gin.Context) {
	agentID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}

	reviews, err := h.agentService.ListReviews(c.Request.Context(), agentID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reviews})
}

// ContactAgent handles POST /v1/agent/:id/contact
// Public endpoint: prospective clients are not required to hold an account.
func (h *RestAgentHandler) ContactAgent(c *gin.Context) {
	agentID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}

	var input services.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	contact, err := h.agentService.CreateContact(c.Request.Context(), agentID, input)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	// Delivery happens in the background; the contact row tracks whether it went out.
	agent, err := h.agentService.FindAgentByID(c.Request.Context(), agentID)
	if err == nil && h.taskClient != nil {
		task, buildErr := tasks.NewEmailDeliveryTask(tasks.EmailTaskPayload{
			To:         agent.Email,
			TemplateID: "agent_contact",
			ContactID:  contact.ID.String(),
			Data: map[string]interface{}{
				"sender_name":  contact.Name,
				"sender_email": contact.Email,
				"message":      contact.Message,
			},
		})
		if buildErr != nil {
			log.Printf("WARN: failed to build contact email task for agent %s: %v", agentID.String(), buildErr)
		} else if _, enqErr := h.taskClient.EnqueueContext(c.Request.Context(), task); enqErr != nil {
			log.Printf("WARN: failed to enqueue contact email for agent %s: %v", agentID.String(), enqErr)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"id": contact.ID.String(), "sent": contact.Sent})
}

type reviewRequest struct {
	Rating     int    `json:"rating" binding:"required"`
	Text       string `json:"text"`
	PropertyID string `json:"property_id"`
}

// AddAgentReview handles POST /v1/agent/:id/review (authenticated)
func (h *RestAgentHandler) AddAgentReview(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agentID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID format"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: rating is required"})
		return
	}

	var propertyID *utils.SixID
	if req.PropertyID != "" {
		pid, err := utils.ParseSixID(req.PropertyID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
			return
		}
		propertyID = &pid
	}

	review, err := h.agentService.AddReview(c.Request.Context(), agentID, userID, req.Rating, req.Text, propertyID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Rating must be between 1 and 5"})
		case errors.Is(err, mongo.ErrNoDocuments):
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save review"})
		}
		return
	}

	h.enqueueStatsRefresh(c, agentID)

	c.JSON(http.StatusCreated, review)
}

// GetMyAgentProfile handles GET /v1/my/agent (authenticated)
func (h *RestAgentHandler) GetMyAgentProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	agent, err := h.agentService.FindAgentByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No agent profile for this account"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve agent profile"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":    agent,
		"complete": agent.ProfileComplete(),
	})
}

// UpdateMyAgentProfile handles PUT /v1/my/agent (authenticated)
// Completing the profile here is what clears the setup redirect on the next sign-in.
func (h *RestAgentHandler) UpdateMyAgentProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input services.AgentProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	agent, err := h.agentService.CompleteAgentProfile(c.Request.Context(), userID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":    agent,
		"complete": agent.ProfileComplete(),
	})
}

func (h *RestAgentHandler) enqueueStatsRefresh(c *gin.Context, agentID utils.SixID) {
	if h.taskClient == nil {
		return
	}
	task, err := tasks.NewAgentStatsRefreshTask(agentID)
	if err != nil {
		log.Printf("WARN: failed to build stats refresh task for agent %s: %v", agentID.String(), err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err != nil {
		log.Printf("WARN: failed to enqueue stats refresh for agent %s: %v", agentID.String(), err)
	}
}
