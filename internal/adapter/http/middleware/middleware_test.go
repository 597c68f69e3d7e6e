package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/core/ports/mocks"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authDeps struct {
	tokenSvc    *mocks.MockTokenService
	identitySvc *mocks.MockIdentityService
	keySvc      *mocks.MockAPIKeyService
	router      *gin.Engine
	captured    *domain.Caller
}

func setupAuth(t *testing.T, extra ...gin.HandlerFunc) *authDeps {
	ctrl := gomock.NewController(t)
	d := &authDeps{
		tokenSvc:    mocks.NewMockTokenService(ctrl),
		identitySvc: mocks.NewMockIdentityService(ctrl),
		keySvc:      mocks.NewMockAPIKeyService(ctrl),
		router:      gin.New(),
	}
	chain := []gin.HandlerFunc{Authenticate(d.tokenSvc, d.identitySvc, d.keySvc, zerolog.Nop())}
	chain = append(chain, extra...)
	chain = append(chain, func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if ok {
			d.captured = &caller
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	d.router.GET("/test", chain...)
	return d
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ErrorCode
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	d := setupAuth(t)

	w := serve(d.router, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))
	assert.Nil(t, d.captured)
}

func TestAuthenticate_NonBearerScheme(t *testing.T) {
	d := setupAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAuthorization, "Basic dXNlcjpwYXNz")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	d := setupAuth(t)
	d.tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAuthorization, "Bearer bad_token")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))
}

func TestAuthenticate_TokenSuccess(t *testing.T) {
	d := setupAuth(t)
	d.tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{UserID: 7, Email: "ada@example.com"}, nil)
	d.identitySvc.EXPECT().
		ResolveToken(gomock.Any(), domain.TokenPrincipal{UserID: 7, Email: "ada@example.com"}).
		Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAuthorization, "Bearer good_token")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.captured)
	assert.Equal(t, int64(7), d.captured.UserID)
	assert.False(t, d.captured.ViaAPIKey)
}

func TestAuthenticate_TokenForDeletedUser(t *testing.T) {
	d := setupAuth(t)
	d.tokenSvc.EXPECT().Validate("stale").Return(&ports.TokenClaims{UserID: 9}, nil)
	d.identitySvc.EXPECT().ResolveToken(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrUnauthorized("User no longer exists"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAuthorization, "Bearer stale")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_APIKeySuccess(t *testing.T) {
	d := setupAuth(t)
	keyID := uuid.New()
	d.keySvc.EXPECT().Verify(gomock.Any(), "sk_live_secret").Return(&domain.APIKey{
		ID:          keyID,
		UserID:      3,
		Permissions: []domain.Permission{domain.PermissionRead},
		Status:      domain.APIKeyStatusActive,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "sk_live_secret")
	req.Header.Set(HeaderAuthorization, "Bearer ignored")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.captured)
	assert.Equal(t, int64(3), d.captured.UserID)
	assert.True(t, d.captured.ViaAPIKey)
	assert.Equal(t, []domain.Permission{domain.PermissionRead}, d.captured.Permissions)
}

func TestAuthenticate_APIKeyErrorsKeepTheirCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"expired", apperror.ErrKeyExpired(), apperror.CodeKeyExpired},
		{"revoked", apperror.ErrKeyRevoked(), apperror.CodeKeyRevoked},
		{"unknown", apperror.ErrUnauthorized("Invalid API key"), apperror.CodeUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := setupAuth(t)
			d.keySvc.EXPECT().Verify(gomock.Any(), "sk_live_x").Return(nil, tc.err)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderAPIKey, "sk_live_x")
			w := serve(d.router, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		perms  []domain.Permission
		status int
	}{
		{"granted", []domain.Permission{domain.PermissionTransfer}, http.StatusOK},
		{"missing", []domain.Permission{domain.PermissionRead}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := setupAuth(t, RequirePermission(domain.PermissionTransfer))
			d.keySvc.EXPECT().Verify(gomock.Any(), "sk_live_x").
				Return(&domain.APIKey{ID: uuid.New(), UserID: 1, Permissions: tc.perms}, nil)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderAPIKey, "sk_live_x")
			w := serve(d.router, req)

			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequirePermission_TokenCallerHasAll(t *testing.T) {
	d := setupAuth(t, RequirePermission(domain.PermissionDeposit))
	d.tokenSvc.EXPECT().Validate("tok").Return(&ports.TokenClaims{UserID: 1}, nil)
	d.identitySvc.EXPECT().ResolveToken(gomock.Any(), gomock.Any()).Return(&domain.User{ID: 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAuthorization, "Bearer tok")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermission_WithoutCaller(t *testing.T) {
	router := gin.New()
	router.GET("/test", RequirePermission(domain.PermissionRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireToken_RejectsAPIKey(t *testing.T) {
	d := setupAuth(t, RequireToken())
	d.keySvc.EXPECT().Verify(gomock.Any(), "sk_live_x").
		Return(&domain.APIKey{ID: uuid.New(), UserID: 1, Permissions: domain.AllPermissions}, nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "sk_live_x")
	w := serve(d.router, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, errorCode(t, w))
}

func setupWebhook(t *testing.T, secret string) (*mocks.MockSignatureService, *gin.Engine, *[]byte) {
	ctrl := gomock.NewController(t)
	sigSvc := mocks.NewMockSignatureService(ctrl)
	var handled []byte

	router := gin.New()
	router.POST("/hook", WebhookSignature(sigSvc, secret, "x-paystack-signature", zerolog.Nop()), func(c *gin.Context) {
		raw, _ := c.Get(CtxRawBody)
		handled = raw.([]byte)
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return sigSvc, router, &handled
}

func TestWebhookSignature_MissingHeader(t *testing.T) {
	_, router, handled := setupWebhook(t, "whsec")

	w := serve(router, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeInvalidSignature, errorCode(t, w))
	assert.Nil(t, *handled)
}

func TestWebhookSignature_UnconfiguredSecret(t *testing.T) {
	_, router, _ := setupWebhook(t, "")

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{}`))
	req.Header.Set("x-paystack-signature", "abc")
	w := serve(router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookSignature_Mismatch(t *testing.T) {
	sigSvc, router, handled := setupWebhook(t, "whsec")
	body := `{"event":"charge.success"}`
	sigSvc.EXPECT().Verify("whsec", []byte(body), "forged").Return(false)

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", "forged")
	w := serve(router, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeInvalidSignature, errorCode(t, w))
	assert.Nil(t, *handled)
}

func TestWebhookSignature_ValidRestoresBody(t *testing.T) {
	sigSvc, router, handled := setupWebhook(t, "whsec")
	body := `{"event":"charge.success"}`
	sigSvc.EXPECT().Verify("whsec", []byte(body), "good").Return(true)

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", "good")
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.String())
	assert.Equal(t, []byte(body), *handled)
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		response.OK(c, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	w := serve(router, req)

	assert.Equal(t, "req-abc", w.Header().Get(HeaderRequestID))
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-abc", resp.RequestID)
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))

	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_000", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "something went wrong")
}

func TestMaxBodySize(t *testing.T) {
	router := gin.New()
	router.Use(MaxBodySize(16))
	router.POST("/test", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too large")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(router, httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte("small"))))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(bytes.Repeat([]byte("x"), 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
