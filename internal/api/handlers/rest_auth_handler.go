package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/auth"
	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/models"
	"github.com/alb1nut/homebase/internal/services"
	"github.com/alb1nut/homebase/internal/session"
	"github.com/alb1nut/homebase/internal/tasks"
)

// IAsynqClient defines the interface for the Asynq client methods used by handlers.
// This allows easier mocking than using the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RestAuthHandler handles signup and login.
type RestAuthHandler struct {
	cfg            *config.Config
	userService    services.IUserService
	agentService   services.IAgentService
	taskClient     IAsynqClient
	passwordRegexp *regexp.Regexp
}

// NewRestAuthHandler creates a new RestAuthHandler.
func NewRestAuthHandler(cfg *config.Config, userService services.IUserService, agentService services.IAgentService, taskClient IAsynqClient) *RestAuthHandler {
	pattern := cfg.PasswordRegexp
	if pattern == "" {
		pattern = "^.{8,}$"
	}
	return &RestAuthHandler{
		cfg:            cfg,
		userService:    userService,
		agentService:   agentService,
		taskClient:     taskClient,
		passwordRegexp: regexp.MustCompile(pattern),
	}
}

// PublicUser is the account data returned to the client after auth.
type PublicUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	IsAgent    bool   `json:"is_agent"`
	DateJoined string `json:"date_joined"`
}

type authResponse struct {
	Token      string     `json:"token"`
	User       PublicUser `json:"user"`
	RedirectTo string     `json:"redirect_to,omitempty"`
}

func publicUser(u *models.User) PublicUser {
	return PublicUser{
		ID:         u.ID.String(),
		Email:      u.Email,
		FullName:   u.FullName,
		IsAgent:    u.IsAgent,
		DateJoined: u.CreatedAt.Format("2006-01-02"),
	}
}

// lookupAgentProfile adapts the agent service's not-found convention to the
// session package contract: a missing directory entry is (nil, nil), not an error.
func (h *RestAuthHandler) lookupAgentProfile(ctx context.Context, user *models.User) (*models.Agent, error) {
	agent, err := h.agentService.FindAgentByUserID(ctx, user.ID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return agent, err
}

// decideRedirect runs the sign-in navigation decision for a freshly authenticated account.
func (h *RestAuthHandler) decideRedirect(ctx context.Context, user *models.User) string {
	ev := session.Event{
		Kind: session.EventSignedIn,
		Account: &session.Account{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			IsAgent:   user.IsAgent,
			CreatedAt: user.CreatedAt,
		},
	}
	var profile *models.Agent
	var lookupErr error
	if user.IsAgent {
		profile, lookupErr = h.lookupAgentProfile(ctx, user)
	}
	decision := session.Decide(ev, profile, lookupErr)
	if decision.LookupFailed {
		log.Printf("WARN: agent profile lookup failed for user %s, redirecting to setup: %v", user.ID.String(), lookupErr)
	}
	return decision.RedirectTo
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	IsAgent  bool   `json:"is_agent"`
}

// Signup handles POST /v1/auth/signup
func (h *RestAuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: email, password and full_name are required"})
		return
	}

	if !h.passwordRegexp.MatchString(req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet requirements"})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Email, req.Password, req.FullName, req.IsAgent)
	if err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	h.enqueueWelcomeEmail(c.Request.Context(), user)

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, user.IsAgent, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{
		Token:      token,
		User:       publicUser(user),
		RedirectTo: h.decideRedirect(c.Request.Context(), user),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: email and password are required"})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		case errors.Is(err, services.ErrAccountSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account suspended"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		}
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, user.IsAgent, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Token:      token,
		User:       publicUser(user),
		RedirectTo: h.decideRedirect(c.Request.Context(), user),
	})
}

func (h *RestAuthHandler) enqueueWelcomeEmail(ctx context.Context, user *models.User) {
	if h.taskClient == nil {
		return
	}
	templateID := "welcome"
	if user.IsAgent {
		templateID = "welcome_agent"
	}
	task, err := tasks.NewEmailDeliveryTask(tasks.EmailTaskPayload{
		To:         user.Email,
		TemplateID: templateID,
		Data:       map[string]interface{}{"full_name": user.FullName},
	})
	if err != nil {
		log.Printf("WARN: failed to build welcome email task for %s: %v", user.Email, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("WARN: failed to enqueue welcome email for %s: %v", user.Email, err)
	}
}
