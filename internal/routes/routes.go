package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard-api/internal/auth"
	"taskboard-api/internal/handlers"
	"taskboard-api/internal/middleware"
	"taskboard-api/internal/realtime"
	"taskboard-api/internal/service"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Tasks      *service.TaskService
	Users      *service.UserService
	Issuer     *auth.Issuer
	Hub        *realtime.Hub
	CORSOrigin string
}

func SetupRoutes(d Deps) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), middleware.RequestLogger())

	// CORS middleware (for frontend integration)
	origin := d.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	ginRouter.Use(middleware.CORS(origin))

	taskHandler := handlers.NewTaskHandler(d.Tasks)
	userHandler := handlers.NewUserHandler(d.Users)
	authHandler := handlers.NewAuthHandler(d.Users, d.Issuer)
	wsHandler := handlers.NewWSHandler(d.Hub)

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Task board API is running",
		})
	})

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		api.POST("/login", authHandler.Login)
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(d.Issuer, d.Users))
	{
		// Task endpoints; role checks happen in the task service
		protectedRoutes.GET("/tasks", taskHandler.GetTasks)
		protectedRoutes.GET("/tasks/:id", taskHandler.GetTaskByID)
		protectedRoutes.POST("/tasks", taskHandler.CreateTask)
		protectedRoutes.PUT("/tasks/:id", taskHandler.UpdateTask)
		protectedRoutes.PATCH("/tasks/:id", taskHandler.UpdateTask)
		protectedRoutes.DELETE("/tasks/:id", taskHandler.DeleteTask)
		protectedRoutes.GET("/stats/:userid", taskHandler.GetStats)

		protectedRoutes.GET("/users", userHandler.GetAllUsers)
		protectedRoutes.GET("/ws", wsHandler.Serve)
	}

	// Admin user management
	admin := protectedRoutes.Group("/admin")
	{
		admin.POST("/users", userHandler.CreateUser)
		admin.PUT("/users/:id", userHandler.UpdateUser)
		admin.DELETE("/users/:id", userHandler.DeleteUser)
	}

	return ginRouter
}
