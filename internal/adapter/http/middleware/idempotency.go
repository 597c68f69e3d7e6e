package middleware

import (
	"regexp"
	"strconv"
	"time"

	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// IdempotencyTTL is how long a client idempotency key stays reserved.
const IdempotencyTTL = 24 * time.Hour

var idempotencyKeyRe = regexp.MustCompile(`^[A-Za-z0-9_\-\.:]{1,128}$`)

// IdempotencyKey reserves the optional Idempotency-Key header per caller
// before the handler runs. A reused key is rejected with PAY_003.
// The key stays reserved whatever the outcome of the request.
func IdempotencyKey(store ports.DedupStore, scope string, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !idempotencyKeyRe.MatchString(key) {
			response.Error(c, apperror.Validation("Invalid Idempotency-Key header"))
			c.Abort()
			return
		}

		owner := extractIdentifier(c)
		if caller, ok := CallerFrom(c); ok {
			owner = strconv.FormatInt(caller.UserID, 10)
		}

		reserved, err := store.Reserve(c.Request.Context(), scope+":"+owner, key, ttl)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("idempotency store error, allowing request")
			c.Next()
			return
		}
		if !reserved {
			response.Error(c, apperror.ErrDuplicateReference(key))
			c.Abort()
			return
		}

		c.Next()
	}
}
