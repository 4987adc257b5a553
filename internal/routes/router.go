package routes

import (
	"github.com/gin-gonic/gin"

	"todo-sync/internal/controller"
	"todo-sync/internal/feed"
	"todo-sync/internal/middleware"
	"todo-sync/internal/relay"
)

func base() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(gin.Recovery())
	// Health for load balancers and K8s probes
	router.GET("/health", controller.Health)
	return router
}

// Router serves the durable authority: the todo API and its change feed.
func Router(todos *controller.Todos, changes *feed.Hub, jwtSecret string) *gin.Engine {
	router := base()
	router.GET("/ready", todos.Ready)

	// Public: no auth
	router.GET("/todos", todos.GetTodos)
	router.GET("/feed", feed.ServeWS(changes))

	// Protected: JWT required
	api := router.Group("")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		api.POST("/todos", todos.CreateTodo)
		api.PATCH("/todos/:id", todos.UpdateTodo)
		api.PUT("/todos/:id", todos.UpdateTodo)
		api.DELETE("/todos/:id", todos.DeleteTodo)
	}

	return router
}

// RelayRouter serves the relay authority.
func RelayRouter(hub *relay.Hub, limits relay.Limits) *gin.Engine {
	router := base()
	router.GET("/ws", relay.ServeWS(hub, limits))
	return router
}
