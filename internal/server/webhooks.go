package server

import (
	"io"
	"net/http"

	receiverdomain "github.com/blocksettle/ledgerbridge/internal/receiver/domain"
	"github.com/gin-gonic/gin"
)

// Webhook bodies are signed whole, so the raw bytes must be read before any
// JSON parsing. 1 MiB is far above any real processor delivery.
const maxWebhookBody = 1 << 20

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/webhooks/processor", s.HandleProcessorWebhook)
}

func (s *Server) HandleProcessorWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.receiver.Ingest(
		c.Request.Context(),
		body,
		c.GetHeader(receiverdomain.SignatureHeader),
	)
	if err != nil {
		// Persist failure: the processor must retry this delivery.
		AbortWithError(c, ErrInternal)
		return
	}

	switch result {
	case receiverdomain.ResultAccepted, receiverdomain.ResultAcceptedDuplicate:
		c.JSON(http.StatusOK, gin.H{"result": result})
	case receiverdomain.ResultRejectedSignature:
		c.JSON(http.StatusUnauthorized, gin.H{"result": result})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"result": result})
	}
}
