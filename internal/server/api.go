package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/health", s.Health)

	api := s.engine.Group("/api")

	api.GET("/reconciliations", s.ListReconciliations)
	api.GET("/reconciliations/:invoice_id", s.GetReconciliation)
	api.GET("/outcomes", s.ListRecentOutcomes)
	api.POST("/invoices/:invoice_id/redrive", s.RedriveInvoice)
	api.GET("/status", s.GetStatus)
	api.POST("/status/reconnect", s.Reconnect)
	api.GET("/stores", s.ListStores)
	api.POST("/stores", s.RegisterStore)
}

// Health always answers 200 so the process stays schedulable; the ledger
// field tells operators whether backend calls can currently succeed.
func (s *Server) Health(c *gin.Context) {
	ledgerStatus := "ok"
	if err := s.ledger.Health(c.Request.Context()); err != nil {
		ledgerStatus = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ledger": ledgerStatus,
	})
}

func (s *Server) ListReconciliations(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	aggregates, err := s.aggregates.List(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliations": aggregates})
}

func (s *Server) GetReconciliation(c *gin.Context) {
	invoiceID := strings.TrimSpace(c.Param("invoice_id"))
	if invoiceID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	aggregate, err := s.aggregates.Get(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	state, err := s.orchestrator.DispatchState(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// A failed first recompute leaves a dispatch state but no aggregate;
	// that invoice is still worth showing.
	if aggregate == nil && state == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	outcomes, err := s.orchestrator.ListOutcomes(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	events, err := s.events.ListByInvoice(c.Request.Context(), s.db, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reconciliation": aggregate,
		"dispatch_state": state,
		"outcomes":       outcomes,
		"events":         events,
	})
}

func (s *Server) ListRecentOutcomes(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	outcomes, err := s.orchestrator.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (s *Server) RedriveInvoice(c *gin.Context) {
	invoiceID := strings.TrimSpace(c.Param("invoice_id"))
	if invoiceID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.orchestrator.Redrive(c.Request.Context(), invoiceID); err != nil {
		AbortWithError(c, err)
		return
	}

	aggregate, err := s.aggregates.Get(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": aggregate})
}

func (s *Server) GetStatus(c *gin.Context) {
	status := s.orchestrator.AuthStatus()
	c.JSON(http.StatusOK, gin.H{
		"auth":           status,
		"ledger_backend": s.cfg.Ledger.Backend,
		"ledger_mode":    s.cfg.Ledger.Mode,
	})
}

func (s *Server) Reconnect(c *gin.Context) {
	if err := s.orchestrator.Reconnect(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth": s.orchestrator.AuthStatus()})
}

type registerStoreRequest struct {
	StoreID string `json:"store_id" binding:"required"`
	Label   string `json:"label"`
	Secret  string `json:"secret" binding:"required"`
}

func (s *Server) RegisterStore(c *gin.Context) {
	var req registerStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.stores.Register(c.Request.Context(), req.StoreID, req.Label, req.Secret); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"store_id": req.StoreID})
}

func (s *Server) ListStores(c *gin.Context) {
	stores, err := s.stores.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return def
	}
	return value
}
