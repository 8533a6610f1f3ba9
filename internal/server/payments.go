package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges every delivery the provider must not
// resend. Retryable failures surface as 503 so it tries again later.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if paymentdomain.IsAlreadyProcessed(err) {
			s.acknowledge(c, provider, "duplicate")
			return
		}
		AbortWithError(c, err)
		return
	}

	status := "ok"
	switch {
	case result == nil:
	case result.Ignored:
		status = "ignored"
	case result.Duplicate:
		status = "duplicate"
	}
	s.acknowledge(c, provider, status)
}

// acknowledge writes the body each provider expects on success. Adyen
// retries any notification not answered with [accepted].
func (s *Server) acknowledge(c *gin.Context, provider, status string) {
	if provider == "adyen" {
		c.String(http.StatusOK, "[accepted]")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type capturePaymentRequest struct {
	Reference string `json:"reference"`
}

func (s *Server) CapturePayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req capturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "required", "reference is required"))
		return
	}

	record, err := s.fulfiller.Capture(c.Request.Context(), c.Param("provider"), reference, userID)
	if err != nil {
		if paymentdomain.IsAlreadyProcessed(err) {
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "fulfilled", "data": record})
}
