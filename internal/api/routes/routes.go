package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"push-gateway/internal/api/middleware"
	"push-gateway/internal/websocket"
)

// Router wires the gateway's small HTTP surface: a health probe and the
// authenticated WebSocket endpoint.
type Router struct {
	engine    *gin.Engine
	hub       *websocket.Hub
	jwtSecret string
}

func NewRouter(hub *websocket.Hub, jwtSecret string) *Router {
	return &Router{
		engine:    gin.New(),
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())

	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": r.hub.ConnectionCount(),
		})
	})

	r.engine.GET("/ws", middleware.WSAuth(r.jwtSecret), func(c *gin.Context) {
		userID := c.GetString("user_id")
		websocket.ServeWS(r.hub, c.Writer, c.Request, userID)
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
