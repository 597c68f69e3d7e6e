package handler

import (
	"wallet-service/internal/adapter/gateway/paystack"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookHandler receives Paystack settlement events.
type WebhookHandler struct {
	depositSvc ports.DepositService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(depositSvc ports.DepositService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{depositSvc: depositSvc, log: log}
}

// Paystack handles POST /api/v1/wallet/paystack/webhook.
// The signature has already been verified by middleware. Events that can
// never apply are acknowledged so Paystack stops redelivering them;
// storage failures return 5xx so it retries.
func (h *WebhookHandler) Paystack(c *gin.Context) {
	raw, ok := c.Get(middleware.CtxRawBody)
	body, isBytes := raw.([]byte)
	if !ok || !isBytes {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	event, err := paystack.ParseEvent(body)
	if err != nil {
		response.Error(c, apperror.Validation("malformed webhook payload"))
		return
	}

	log := h.log.With().
		Str("event", event.Type).
		Str("reference", event.Reference).
		Logger()

	if err := h.depositSvc.HandleSettlementEvent(c.Request.Context(), event); err != nil {
		if apperror.HasCode(err, apperror.CodeStorage) || apperror.HasCode(err, apperror.CodeLockTimeout) {
			log.Error().Err(err).Msg("settlement failed, gateway will retry")
			response.Error(c, err)
			return
		}
		log.Warn().Err(err).Msg("settlement event not applicable, acknowledged")
	}

	response.OK(c, gin.H{"status": true})
}
