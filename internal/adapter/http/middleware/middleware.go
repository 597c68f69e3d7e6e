package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names
	HeaderAPIKey         = "x-api-key"
	HeaderAuthorization  = "Authorization"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	bearerPrefix = "Bearer "

	// Context keys
	CtxCaller  = "caller"
	CtxRawBody = "raw_body"
)

// Authenticate resolves the request principal into a domain.Caller.
// An x-api-key header selects key authentication, otherwise a bearer
// identity token is required.
func Authenticate(
	tokenSvc ports.TokenService,
	identitySvc ports.IdentityService,
	keySvc ports.APIKeyService,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := resolvePrincipal(c, tokenSvc, keySvc)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		caller, err := callerFor(c.Request.Context(), identitySvc, principal)
		if err != nil {
			if !apperror.HasCode(err, apperror.CodeUnauthorized) {
				log.Error().Err(err).Msg("failed to resolve caller")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxCaller, caller)
		c.Next()
	}
}

func resolvePrincipal(c *gin.Context, tokenSvc ports.TokenService, keySvc ports.APIKeyService) (domain.Principal, error) {
	if secret := c.GetHeader(HeaderAPIKey); secret != "" {
		key, err := keySvc.Verify(c.Request.Context(), secret)
		if err != nil {
			return nil, err
		}
		return domain.KeyPrincipal{
			UserID:      key.UserID,
			KeyID:       key.ID.String(),
			Permissions: key.Permissions,
		}, nil
	}

	raw, ok := strings.CutPrefix(c.GetHeader(HeaderAuthorization), bearerPrefix)
	if !ok || raw == "" {
		return nil, apperror.ErrUnauthorized("Missing credentials")
	}
	claims, err := tokenSvc.Validate(raw)
	if err != nil {
		return nil, apperror.ErrUnauthorized("Invalid or expired token")
	}
	return domain.TokenPrincipal{UserID: claims.UserID, Email: claims.Email}, nil
}

func callerFor(ctx context.Context, identitySvc ports.IdentityService, p domain.Principal) (domain.Caller, error) {
	switch p := p.(type) {
	case domain.KeyPrincipal:
		return domain.Caller{UserID: p.UserID, ViaAPIKey: true, Permissions: p.Permissions}, nil
	case domain.TokenPrincipal:
		user, err := identitySvc.ResolveToken(ctx, p)
		if err != nil {
			return domain.Caller{}, err
		}
		return domain.Caller{UserID: user.ID}, nil
	}
	return domain.Caller{}, apperror.ErrUnauthorized("Unsupported principal")
}

// CallerFrom returns the caller set by Authenticate.
func CallerFrom(c *gin.Context) (domain.Caller, bool) {
	v, exists := c.Get(CtxCaller)
	if !exists {
		return domain.Caller{}, false
	}
	caller, ok := v.(domain.Caller)
	return caller, ok
}

// RequirePermission rejects API-key callers whose key lacks p.
// Token callers hold every permission.
func RequirePermission(p domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			response.Error(c, apperror.ErrUnauthorized("Missing credentials"))
			c.Abort()
			return
		}
		if !caller.Can(p) {
			response.Error(c, apperror.ErrForbidden(string(p)))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireToken restricts a route to identity-token callers.
// Key management is never available to API keys.
func RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			response.Error(c, apperror.ErrUnauthorized("Missing credentials"))
			c.Abort()
			return
		}
		if caller.ViaAPIKey {
			response.Error(c, apperror.New(apperror.CodeForbidden, "API keys cannot manage API keys", http.StatusForbidden))
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebhookSignature verifies the HMAC-SHA512 of the raw body against the
// signature header before the request reaches the handler. The verified
// body is stored under CtxRawBody.
func WebhookSignature(sigSvc ports.SignatureService, secret, header string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(header)
		if signature == "" || secret == "" {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		body, err := readBody(c)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}

		if !sigSvc.Verify(secret, body, signature) {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("webhook signature mismatch")
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxRawBody, body)
		c.Next()
	}
}

// RequestID propagates X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if caller, ok := CallerFrom(c); ok {
			event = event.Int64("user_id", caller.UserID).Bool("api_key", caller.ViaAPIKey)
		}

		event.
			Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, errors.New("panic"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
