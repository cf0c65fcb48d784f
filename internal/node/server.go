package node

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seechain/seechain/internal/ledger"
	"github.com/seechain/seechain/pkg/shipmentid"
	"go.uber.org/zap"
)

var (
	nodeTxsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seechain_node_txs_total",
		Help: "Total transactions accepted into the mempool by kind.",
	}, []string{"kind"})

	nodeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seechain_node_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	nodeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seechain_node_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// ServerConfig holds node HTTP API configuration.
type ServerConfig struct {
	AdminSecret  string   // empty disables the admin endpoints
	CORSOrigins  []string // empty = no CORS headers
	RateLimitRPS int      // 0 disables rate limiting
}

// Server exposes a Chain over the ledger node HTTP API.
type Server struct {
	chain  *Chain
	cfg    ServerConfig
	logger *zap.Logger
}

// NewServer creates a node API server over the given chain.
func NewServer(chain *Chain, cfg ServerConfig, logger *zap.Logger) *Server {
	return &Server{chain: chain, cfg: cfg, logger: logger}
}

// Router builds the gin engine with all node routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metricsMiddleware())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Content-Type", "X-Admin-Secret"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	if s.cfg.RateLimitRPS > 0 {
		api.Use(rateLimitMiddleware(s.cfg.RateLimitRPS))
	}
	{
		api.POST("/tx", s.submitTx)
		api.GET("/tx/:hash", s.txStatus)
		api.GET("/shipments", s.listShipments)
		api.GET("/shipments/:id", s.getShipment)
		api.GET("/roles/:actor", s.getRole)
	}

	admin := api.Group("/admin", s.requireAdmin)
	{
		admin.POST("/customs", s.setCustoms)
	}

	return r
}

// submitTx handles POST /api/v1/tx, accepting an operation into the mempool.
func (s *Server) submitTx(c *gin.Context) {
	var op ledger.Operation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.chain.SubmitTx(c.Request.Context(), op)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	nodeTxsTotal.WithLabelValues(string(op.Kind)).Inc()
	c.JSON(http.StatusAccepted, info)
}

// txStatus handles GET /api/v1/tx/:hash.
func (s *Server) txStatus(c *gin.Context) {
	info, err := s.chain.TxStatus(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tx not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// listShipments handles GET /api/v1/shipments.
func (s *Server) listShipments(c *gin.Context) {
	shipments := s.chain.AllShipments()
	c.JSON(http.StatusOK, gin.H{"shipments": shipments, "count": len(shipments)})
}

// getShipment handles GET /api/v1/shipments/:id.
func (s *Server) getShipment(c *gin.Context) {
	id, err := shipmentid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shipment id"})
		return
	}

	snap, err := s.chain.Shipment(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "shipment not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// getRole handles GET /api/v1/roles/:actor.
func (s *Server) getRole(c *gin.Context) {
	c.JSON(http.StatusOK, s.chain.Role(c.Param("actor")))
}

// setCustoms handles POST /api/v1/admin/customs. It grants or revokes
// the customs worker role for an actor.
func (s *Server) setCustoms(c *gin.Context) {
	var req struct {
		Actor string `json:"actor" binding:"required"`
		Grant bool   `json:"grant"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.chain.SetCustomsWorker(c.Request.Context(), req.Actor, req.Grant); err != nil {
		s.logger.Error("set customs role", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actor": req.Actor, "is_customs_worker": req.Grant})
}

// requireAdmin gates the admin group behind the shared secret.
func (s *Server) requireAdmin(c *gin.Context) {
	if s.cfg.AdminSecret == "" || c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin secret required"})
		return
	}
	c.Next()
}

// metricsMiddleware records per-request counters and latency.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		nodeRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		nodeRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
