// Package api exposes the sync engine's caller-facing surface over HTTP
// for local dashboards and tooling. It is a thin translation layer: all
// semantics live in the engine.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seechain/seechain/internal/engine"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

// Config holds API server configuration.
type Config struct {
	// DefaultActor is used when a request does not carry an actor
	// address of its own.
	DefaultActor string

	CORSOrigins []string
}

// Server serves the client API over an Engine.
type Server struct {
	eng    *engine.Engine
	cfg    Config
	logger *zap.Logger
}

// NewServer creates an API server.
func NewServer(eng *engine.Engine, cfg Config, logger *zap.Logger) *Server {
	return &Server{eng: eng, cfg: cfg, logger: logger}
}

// Router builds the gin engine with all client routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/shipments", s.listShipments)
		api.GET("/shipments/:id", s.getShipment)
		api.POST("/shipments", s.createShipment)
		api.POST("/shipments/:id/status", s.appendStatus)
	}

	return r
}

// listShipments handles GET /api/v1/shipments.
func (s *Server) listShipments(c *gin.Context) {
	shipments := s.eng.ListShipments()
	c.JSON(http.StatusOK, gin.H{"shipments": shipments, "count": len(shipments)})
}

// getShipment handles GET /api/v1/shipments/:id. The id may be the hex
// form or a human-readable key, matching how the original dashboard
// links to shipment pages by key.
func (s *Server) getShipment(c *gin.Context) {
	raw := c.Param("id")
	id, err := shipmentid.Parse(raw)
	if err != nil {
		id = shipmentid.Derive(raw)
	}

	shipment, err := s.eng.GetShipment(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

// createShipment handles POST /api/v1/shipments.
func (s *Server) createShipment(c *gin.Context) {
	var req struct {
		HumanKey    string `json:"human_key" binding:"required"`
		Origin      string `json:"origin" binding:"required"`
		Destination string `json:"destination" binding:"required"`
		Actor       string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shipment, err := s.eng.CreateShipment(c.Request.Context(),
		req.HumanKey, req.Origin, req.Destination, s.actor(req.Actor))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shipment)
}

// appendStatus handles POST /api/v1/shipments/:id/status.
func (s *Server) appendStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Actor  string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw := c.Param("id")
	id, err := shipmentid.Parse(raw)
	if err != nil {
		id = shipmentid.Derive(raw)
	}

	shipment, err := s.eng.AppendStatus(c.Request.Context(), id, req.Status, s.actor(req.Actor))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

func (s *Server) actor(requested string) string {
	if requested != "" {
		return requested
	}
	return s.cfg.DefaultActor
}

// writeError maps the boundary error taxonomy onto HTTP statuses.
// Rejection reasons pass through verbatim; the caller decides whether
// to retry.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "shipment not found"})
	case errors.Is(err, ledger.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrRejected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrTimedOut):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrTransportUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
