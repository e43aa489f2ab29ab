package tracker

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,

	// Browsers and CLIs both announce; origins are not restricted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter serves the health, stats and announce endpoints for hub.
func NewRouter(hub *Hub, logger *slog.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if debug {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	logger = logger.With("component", "router")

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "Tracker is healthy.")
	})

	r.GET("/stats", func(c *gin.Context) {
		stats, err := hub.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/announce", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}
		hub.Connect(conn)
	})

	return r
}
