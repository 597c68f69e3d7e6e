package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
)

// storageErr turns a repository error into SYS_001, or SYS_002 for lock timeouts.
// Application errors pass through untouched.
func storageErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, ports.ErrLockTimeout) {
		return apperror.ErrLockTimeout(wrapped)
	}
	return apperror.ErrStorage(wrapped)
}

// newReference builds <prefix>_<unix ms>_<userID>_<8 hex chars>.
// The random suffix keeps references distinct within one millisecond.
func newReference(prefix string, userID int64, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" +
		strconv.FormatInt(userID, 10) + "_" + suffix
}
