package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with middleware and every route.
// A nil metrics handler leaves /metrics unrouted.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(Recovery(h.log), RequestID(), RequestLogger(h.log))

	engine.GET("/identity", h.Identity)
	engine.GET("/health", h.Health)
	engine.GET("/peers", h.Peers)
	engine.GET("/peers/identity", h.PeersWithIdentity)
	engine.GET("/peers/service", h.ServicePeers)
	engine.GET("/cluster", h.Cluster)
	engine.GET("/runs", h.Runs)

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}

	return engine
}
