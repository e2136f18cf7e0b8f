package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alb1nut/homebase/internal/api/handlers"
	"github.com/alb1nut/homebase/internal/api/middleware"
	"github.com/alb1nut/homebase/internal/captcha"
	"github.com/alb1nut/homebase/internal/config"
	"github.com/alb1nut/homebase/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient, configSvc services.IConfigService) *gin.Engine {
	// Initialize services needed by API handlers
	agentService := services.NewAgentService(db, cfg)
	userService := services.NewUserService(db, agentService)
	propertyService := services.NewPropertyService(db, cfg)
	profileService := services.NewProfileService(db)

	// Initialize Captcha Verifier
	captchaVerifier := captcha.NewTurnstileVerifier(cfg)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, configSvc)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.CaptchaMiddleware(cfg, captchaVerifier))
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	restConfigHandler := handlers.NewRestConfigHandler(configSvc)
	restAuthHandler := handlers.NewRestAuthHandler(cfg, userService, agentService, taskClient)
	restPropertyHandler := handlers.NewRestPropertyHandler(cfg, propertyService, agentService, taskClient)
	restAgentHandler := handlers.NewRestAgentHandler(cfg, agentService, taskClient)
	restProfileHandler := handlers.NewRestProfileHandler(userService, profileService)
	restAdminHandler := handlers.NewRestAdminHandler(userService)

	v1 := r.Group("/v1")
	{
		// Public routes (rate limiting already applied globally)
		v1.GET("/config", restConfigHandler.GetPublicConfig)

		v1.POST("/auth/signup", restAuthHandler.Signup)
		v1.POST("/auth/login", restAuthHandler.Login)

		v1.GET("/property/search", restPropertyHandler.SearchProperties)
		v1.GET("/property/:id", restPropertyHandler.GetPropertyByID)

		v1.GET("/agent/search", restAgentHandler.SearchAgents)
		v1.GET("/agent/:id", restAgentHandler.GetAgentByID)
		v1.GET("/agent/:id/reviews", restAgentHandler.ListAgentReviews)
		v1.POST("/agent/:id/contact", restAgentHandler.ContactAgent)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/property", restPropertyHandler.CreateProperty)
			authRequired.PUT("/property/:id", restPropertyHandler.UpdateProperty)
			authRequired.DELETE("/property/:id", restPropertyHandler.DeleteProperty)
			authRequired.GET("/my/properties", restPropertyHandler.GetMyProperties)

			authRequired.GET("/my/profile", restProfileHandler.GetMyProfile)
			authRequired.PUT("/my/profile", restProfileHandler.UpdateMyProfile)

			authRequired.GET("/my/agent", restAgentHandler.GetMyAgentProfile)
			authRequired.PUT("/my/agent", restAgentHandler.UpdateMyAgentProfile)

			authRequired.POST("/agent/:id/review", restAgentHandler.AddAgentReview)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/user/:id/suspend", restAdminHandler.SuspendUser)
			adminRequired.POST("/user/:id/unsuspend", restAdminHandler.UnsuspendUser)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine.
// Requires Redis client for the getTestEmail endpoint.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			kind := args[0]
			emailAddr := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", emailAddr, kind)

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ { // Poll up to ~2 seconds
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey) // Delete after fetching
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
