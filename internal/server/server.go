// Package server exposes the WebSocket endpoint that turns accepted
// connections into terminal sessions.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/webterm-bridge/server/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The bridge binds to loopback; any origin may connect.
		return true
	},
}

// Server accepts connections and hands each one to an independent
// session.
type Server struct {
	cfg session.Config
	log *zap.SugaredLogger
}

// New creates a server spawning sessions with the given configuration.
func New(cfg session.Config, log *zap.SugaredLogger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Router returns the gin engine serving the terminal endpoint.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/", s.handleConnection)
	r.GET("/ws", s.handleConnection)

	return r
}

// handleConnection upgrades the request and runs one session on it.
// Each invocation already has its own goroutine, so sessions are
// independent and share nothing.
func (s *Server) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	s.log.Debugw("handling connection", "remote", conn.RemoteAddr())

	sess, err := session.New(conn, s.cfg, s.log)
	if err != nil {
		s.log.Errorw("session bootstrap failed", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}
	sess.Run()
}
