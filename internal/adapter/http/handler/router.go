package handler

import (
	"wallet-service/internal/adapter/gateway/paystack"
	"wallet-service/internal/adapter/http/middleware"
	redisStore "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	TransactionSvc ports.TransactionService
	TransferSvc    ports.TransferService
	DepositSvc     ports.DepositService
	APIKeySvc      ports.APIKeyService
	IdentitySvc    ports.IdentityService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string
	DedupStore     ports.DedupStore           // nil = Idempotency-Key header ignored
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	// FederatedLogin mounts POST /auth/federated. Enable only behind a
	// proxy that sets the identity headers itself.
	FederatedLogin bool
	Mode           string // gin mode; defaults to release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	noop := func(c *gin.Context) { c.Next() }

	// rl returns the group's rate limiter, or a no-op when no store is configured.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return noop
		}
		rule, ok := rules[group]
		if !ok {
			return noop
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	idempotent := gin.HandlerFunc(noop)
	if deps.DedupStore != nil {
		idempotent = middleware.IdempotencyKey(deps.DedupStore, "transfer", middleware.IdempotencyTTL, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	if deps.FederatedLogin {
		authHandler := NewAuthHandler(deps.IdentitySvc)
		v1.POST("/auth/federated", rl(middleware.GroupAuth), authHandler.FederatedLogin)
	}

	webhookHandler := NewWebhookHandler(deps.DepositSvc, deps.Logger)
	v1.POST("/wallet/paystack/webhook",
		rl(middleware.GroupWebhook),
		middleware.WebhookSignature(deps.SigSvc, deps.WebhookSecret, paystack.SignatureHeader, deps.Logger),
		webhookHandler.Paystack,
	)

	// --- Authenticated routes (identity token or API key) ---
	authed := v1.Group("", middleware.Authenticate(deps.TokenSvc, deps.IdentitySvc, deps.APIKeySvc, deps.Logger))

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.TransactionSvc, deps.TransferSvc, deps.DepositSvc)
	wallet := authed.Group("/wallet")
	{
		wallet.POST("/deposit",
			middleware.RequirePermission(domain.PermissionDeposit), rl(middleware.GroupDeposit),
			walletHandler.Deposit)
		wallet.GET("/deposit/:reference/status",
			middleware.RequirePermission(domain.PermissionRead), rl(middleware.GroupRead),
			walletHandler.DepositStatus)
		wallet.POST("/transfer",
			middleware.RequirePermission(domain.PermissionTransfer), rl(middleware.GroupTransfer), idempotent,
			walletHandler.Transfer)
		wallet.GET("/balance",
			middleware.RequirePermission(domain.PermissionRead), rl(middleware.GroupRead),
			walletHandler.Balance)
		wallet.GET("/transactions",
			middleware.RequirePermission(domain.PermissionRead), rl(middleware.GroupRead),
			walletHandler.Transactions)
	}

	// --- Key management (identity token only) ---
	keysHandler := NewKeysHandler(deps.APIKeySvc)
	keys := authed.Group("/keys", middleware.RequireToken(), rl(middleware.GroupKeys))
	{
		keys.GET("", keysHandler.List)
		keys.POST("/create", keysHandler.Create)
		keys.POST("/rollover", keysHandler.Rollover)
		keys.POST("/:id/revoke", keysHandler.Revoke)
	}

	return r
}
