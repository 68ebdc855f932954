package router

import (
	"log/slog"
	"slices"
	"time"

	"taskhub/backend/internal/config"
	"taskhub/backend/internal/handlers"
	"taskhub/backend/internal/middleware"
	"taskhub/backend/internal/models"
	"taskhub/backend/internal/monitoring"
	"taskhub/backend/internal/notify"
	"taskhub/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Tokens  middleware.TokenValidator
	Auth    services.AuthService
	Tasks   services.TaskService
	Groups  services.GroupService
	Monitor *monitoring.Monitor

	// Subscriber is nil when Redis is not configured.
	Subscriber notify.Subscriber
	// UploadDir is served under Config.Storage.PublicPath when set.
	UploadDir string
}

func New(deps Dependencies) *gin.Engine {
	cfg, log := deps.Config, deps.Logger

	r := gin.New()
	r.Use(middleware.RecoveryWithLog(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(deps.Monitor.Middleware())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	deps.Monitor.Register(r)

	if deps.UploadDir != "" {
		r.Static(cfg.Storage.PublicPath, deps.UploadDir)
	}

	authHandler := handlers.NewAuthHandler(deps.Auth, log)
	taskHandler := handlers.NewTaskHandler(deps.Tasks, cfg.Storage.MaxUploadBytes, log)
	groupHandler := handlers.NewGroupHandler(deps.Groups, log)
	adminHandler := handlers.NewAdminHandler(deps.Auth, deps.Tasks, deps.Groups, log)
	notificationHandler := handlers.NewNotificationHandler(deps.Groups, deps.Subscriber, 0, log)

	public := r.Group("/")
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize, cfg.RateLimit.CleanupInterval)
		public.Use(middleware.RateLimit(limiter))
	}
	public.POST("/register", authHandler.Register)
	public.POST("/login", authHandler.Login)

	authenticated := r.Group("/", middleware.Authenticate(deps.Tokens))
	authenticated.GET("/me", authHandler.Me)
	authenticated.GET("/tasks", taskHandler.GetTasks)
	authenticated.POST("/tasks", taskHandler.CreateTask)
	authenticated.PUT("/tasks/:id", taskHandler.UpdateTask)
	authenticated.DELETE("/tasks/:id", taskHandler.DeleteTask)
	authenticated.POST("/tasks/:id/upload", taskHandler.UploadFile)

	admin := r.Group("/admin", middleware.Authenticate(deps.Tokens), middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:userId/tasks", adminHandler.ListUserTasks)
	admin.GET("/groups", adminHandler.ListGroups)
	admin.GET("/groups/:groupId/tasks", adminHandler.ListGroupTasks)
	admin.PUT("/tasks/:id", adminHandler.UpdateTask)
	admin.DELETE("/tasks/:id", adminHandler.DeleteTask)

	api := r.Group("/api", middleware.Authenticate(deps.Tokens))
	groups := api.Group("/groups")
	groups.POST("", groupHandler.CreateGroup)
	groups.GET("", groupHandler.ListGroups)
	groups.GET("/invitations", groupHandler.ListInvitations)
	groups.POST("/invitations/:membershipId/accept", groupHandler.AcceptInvitation)
	groups.GET("/:groupId", groupHandler.GetGroup)
	groups.GET("/:groupId/tasks", taskHandler.GetGroupTasks)
	groups.POST("/:groupId/tasks", taskHandler.CreateGroupTask)

	api.GET("/notifications/stream", notificationHandler.Stream)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
