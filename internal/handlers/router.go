package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"comunitarr/internal/middleware"
	"comunitarr/internal/models"
	"comunitarr/internal/realtime"
	"comunitarr/internal/services"
	"comunitarr/pkg/auth"
)

type Services struct {
	Forum         *services.ForumService
	Announcements *services.AnnouncementService
	Incidents     *services.IncidentService
	Points        *services.PointsService
	Notifications *services.NotificationService
	Shop          *services.StorefrontService
}

type RouterOptions struct {
	JWT            *auth.JWTManager
	Hub            *realtime.Hub
	DB             Pinger
	Outbox         OutboxStats
	Limiter        *middleware.RateLimiter // nil disables rate limiting
	AllowedOrigins []string
	Version        string
	Log            *logrus.Entry
}

func NewRouter(svc Services, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(opts.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20))

	limit := func(c *gin.Context) { c.Next() }
	if opts.Limiter != nil {
		limit = opts.Limiter.RateLimit()
	}

	forumHandler := NewForumHandler(svc.Forum)
	announcementHandler := NewAnnouncementHandler(svc.Announcements)
	incidentHandler := NewIncidentHandler(svc.Incidents)
	userHandler := NewUserHandler(svc.Points)
	notificationHandler := NewNotificationHandler(svc.Notifications)
	shopHandler := NewShopHandler(svc.Shop)
	adminHandler := NewAdminHandler(opts.Outbox)
	healthHandler := NewHealthHandler(opts.DB, opts.Hub, opts.Version)
	wsHandler := NewWebSocketHandler(opts.Hub, opts.JWT, forumHandler, opts.AllowedOrigins, opts.Log.WithField("component", "websocket"))

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)
	router.GET("/ws", wsHandler.HandleWebSocket)

	v1 := router.Group("/api/v1")

	// Public catalog
	shop := v1.Group("/shop", limit)
	{
		shop.GET("/products", shopHandler.GetProducts)
		shop.GET("/products/:id", shopHandler.GetProduct)
	}

	protected := v1.Group("", middleware.AuthMiddleware(opts.JWT), limit)
	{
		forum := protected.Group("/forum")
		forum.GET("/messages", forumHandler.ListMessages)
		forum.POST("/messages", forumHandler.PostMessage)
		forum.DELETE("/messages/:id", forumHandler.DeleteMessage)

		announcements := protected.Group("/announcements")
		announcements.GET("", announcementHandler.GetAnnouncements)
		announcements.POST("", announcementHandler.CreateAnnouncement)
		announcements.GET("/:id", announcementHandler.GetAnnouncement)
		announcements.PUT("/:id", announcementHandler.UpdateAnnouncement)
		announcements.DELETE("/:id", announcementHandler.DeleteAnnouncement)

		incidents := protected.Group("/incidents")
		incidents.GET("", incidentHandler.GetIncidents)
		incidents.POST("", incidentHandler.ReportIncident)
		incidents.GET("/nearby", incidentHandler.GetNearbyIncidents)
		incidents.GET("/:id", incidentHandler.GetIncident)
		incidents.POST("/:id/upvote", incidentHandler.Upvote)
		incidents.DELETE("/:id/upvote", incidentHandler.RemoveUpvote)
		incidents.DELETE("/:id", incidentHandler.DeleteIncident)

		protected.GET("/users/me", userHandler.GetProfile)
		protected.GET("/leaderboard", userHandler.GetLeaderboard)

		notifications := protected.Group("/notifications")
		notifications.GET("", notificationHandler.GetNotifications)
		notifications.PUT("/:id/read", notificationHandler.MarkAsRead)
		notifications.PUT("/read-all", notificationHandler.MarkAllAsRead)
		notifications.POST("/devices", notificationHandler.RegisterDevice)

		orders := protected.Group("/shop/orders")
		orders.GET("", shopHandler.GetOrders)
		orders.POST("", shopHandler.Checkout)
		orders.GET("/:id", shopHandler.GetOrder)
		orders.POST("/:id/cancel", shopHandler.CancelOrder)

		admin := protected.Group("/admin", middleware.RequireRole(models.RoleModerator))
		admin.PUT("/announcements/:id/pin", middleware.RequirePermission(models.PermModerateContent), announcementHandler.PinAnnouncement)
		admin.PUT("/incidents/:id/status", middleware.RequirePermission(models.PermManageIncidents), incidentHandler.ChangeStatus)
		admin.POST("/products", middleware.RequirePermission(models.PermManageCatalog), shopHandler.CreateProduct)
		admin.PUT("/products/:id", middleware.RequirePermission(models.PermManageCatalog), shopHandler.UpdateProduct)
		admin.GET("/outbox", middleware.RequirePermission(models.PermViewOutbox), adminHandler.GetOutboxStats)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return router
}
