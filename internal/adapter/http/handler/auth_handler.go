package handler

import (
	"context"
	"net/http"
	"time"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the upstream OAuth2 proxy.
const (
	HeaderForwardedEmail = "X-Forwarded-Email"
	HeaderForwardedUser  = "X-Forwarded-User"
	HeaderForwardedName  = "X-Forwarded-Preferred-Username"
)

const healthCheckTimeout = 3 * time.Second

// AuthHandler handles federated login.
type AuthHandler struct {
	identitySvc ports.IdentityService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(identitySvc ports.IdentityService) *AuthHandler {
	return &AuthHandler{identitySvc: identitySvc}
}

// FederatedLogin handles POST /api/v1/auth/federated.
// The proxy has completed the OAuth2 exchange and forwards the verified
// identity in request headers.
func (h *AuthHandler) FederatedLogin(c *gin.Context) {
	result, err := h.identitySvc.LoginFederated(c.Request.Context(), domain.FederatedPrincipal{
		Email:   c.GetHeader(HeaderForwardedEmail),
		Name:    c.GetHeader(HeaderForwardedName),
		Subject: c.GetHeader(HeaderForwardedUser),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:        result.Token,
		Expiry:       result.ExpiresAt.Unix(),
		Email:        result.User.Email,
		Name:         result.User.FullName,
		WalletNumber: result.WalletNumber,
	})
}

// HealthCheck handles GET /health, pinging every dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		deps := make(map[string]depStatus, len(checkers))
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(ctx); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
