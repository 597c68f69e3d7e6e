package handler

import (
	"time"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeysHandler manages API keys. Routes require an identity token.
type KeysHandler struct {
	keySvc ports.APIKeyService
	now    func() time.Time
}

// NewKeysHandler creates a new KeysHandler.
func NewKeysHandler(keySvc ports.APIKeyService) *KeysHandler {
	return &KeysHandler{keySvc: keySvc, now: time.Now}
}

// Create handles POST /api/v1/keys/create.
func (h *KeysHandler) Create(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req dto.CreateKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	perms := make([]domain.Permission, len(req.Permissions))
	for i, p := range req.Permissions {
		perms[i] = domain.Permission(p)
	}

	issued, err := h.keySvc.Issue(c.Request.Context(), ports.IssueKeyRequest{
		UserID:      caller.UserID,
		Name:        req.Name,
		Permissions: perms,
		Expiry:      domain.ExpiryCode(req.Expiry),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAPIKeyResponse(issued))
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *KeysHandler) Rollover(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req dto.RolloverKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	keyID, err := uuid.Parse(req.ExpiredKeyID)
	if err != nil {
		response.Error(c, apperror.Validation("expired_key_id must be a UUID"))
		return
	}

	issued, err := h.keySvc.Rollover(c.Request.Context(), caller.UserID, keyID, domain.ExpiryCode(req.Expiry))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAPIKeyResponse(issued))
}

// Revoke handles POST /api/v1/keys/:id/revoke.
func (h *KeysHandler) Revoke(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var uri dto.KeyIDURI
	if !bindURI(c, &uri) {
		return
	}
	keyID, err := uuid.Parse(uri.ID)
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return
	}

	if err := h.keySvc.Revoke(c.Request.Context(), caller.UserID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": keyID.String(), "status": string(domain.APIKeyStatusRevoked)})
}

// List handles GET /api/v1/keys.
func (h *KeysHandler) List(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	keys, err := h.keySvc.List(c.Request.Context(), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := h.now()
	items := make([]dto.APIKeySummary, 0, len(keys))
	for _, k := range keys {
		items = append(items, dto.ToAPIKeySummary(k, now))
	}
	c.Header("Cache-Control", "no-store")
	response.OK(c, items)
}

func toAPIKeyResponse(k *ports.IssuedKey) dto.APIKeyResponse {
	return dto.APIKeyResponse{
		ID:        k.ID.String(),
		APIKey:    k.Secret,
		ExpiresAt: k.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
