package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/blocksettle/ledgerbridge/internal/ledger/domain"
	orchestratordomain "github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	processordomain "github.com/blocksettle/ledgerbridge/internal/processor/domain"
	storedomain "github.com/blocksettle/ledgerbridge/internal/store/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orchestratordomain.ErrInvoiceUnknown),
		errors.Is(err, processordomain.ErrInvoiceNotFound),
		errors.Is(err, storedomain.ErrStoreNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, orchestratordomain.ErrDispatchHalted):
		return http.StatusConflict, errorPayload{
			Type:    "dispatch_halted",
			Message: "ledger connection halted, reconnect first",
		}
	case errors.Is(err, ledgerdomain.ErrRefreshFailed),
		errors.Is(err, ledgerdomain.ErrUnauthorized):
		return http.StatusBadGateway, errorPayload{
			Type:    "ledger_unauthorized",
			Message: "ledger backend rejected credentials",
		}
	case errors.Is(err, processordomain.ErrUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_unavailable",
			Message: "payment processor unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
