package routes

import (
	"time"

	"kindled/handlers"
	"kindled/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Kindled API is running",
			"time":    time.Now().Unix(),
		})
	})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8080", "http://127.0.0.1:8080", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Public routes (no auth required). Auth endpoints get a tight
	// per-IP limit; everything else shares the general one.
	authLimiter := middleware.NewKeyedLimiter(10, time.Minute)
	apiLimiter := middleware.NewKeyedLimiter(120, time.Minute)
	router.Use(middleware.RateLimitMiddleware(apiLimiter))

	auth := router.Group("/api")
	auth.Use(middleware.RateLimitMiddleware(authLimiter))
	auth.POST("/signup", handlers.Signup)
	auth.POST("/login", handlers.Login)
	auth.POST("/forgot-password", handlers.ForgotPassword)
	auth.POST("/reset-password", handlers.ResetPassword)

	router.GET("/api/vapid-public-key", handlers.GetVapidPublicKey)

	// Payment gateway callback. Unauthenticated by design; content is
	// validated before it is trusted.
	router.POST("/api/payments/callback", handlers.PaymentCallback)

	// Protected routes group
	protected := router.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware())

	// Profile
	protected.GET("/me", handlers.GetMyProfile)
	protected.PUT("/me", handlers.UpdateMyProfile)
	protected.DELETE("/me", handlers.DeleteMe)
	protected.PUT("/me/location", handlers.UpdateMyLocation)
	protected.GET("/user/:id", handlers.GetUser)

	// Photos
	protected.POST("/me/photos", handlers.UploadPhoto)
	protected.DELETE("/me/photos/:photoId", handlers.DeletePhoto)

	// Matching
	protected.GET("/explore", handlers.Explore)
	protected.POST("/like", handlers.Like)
	protected.POST("/pass", handlers.Pass)
	protected.GET("/matches", handlers.GetMatches)

	// Support chat
	protected.GET("/support", handlers.GetSupportThread)
	protected.POST("/support/messages", handlers.PostSupportMessage)

	// Push subscriptions
	protected.POST("/subscribe", handlers.SubscribePush)

	// Payments
	protected.POST("/payments/initiate", handlers.InitiatePayment)

	// Admin support inbox
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/threads", handlers.ListSupportThreads)
	admin.POST("/threads/:id/engage", handlers.EngageThread)
	admin.POST("/threads/:id/close", handlers.CloseThread)
	admin.POST("/threads/:id/reply", handlers.ReplyToMessage)

	// Catch-all for undefined API routes
	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
