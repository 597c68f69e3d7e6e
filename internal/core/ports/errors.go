package ports

import "errors"

// Storage-level sentinel errors. Repositories wrap these so services can
// translate them into application errors without importing the driver.
var (
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrLockTimeout     = errors.New("lock acquisition timeout")
	ErrVersionConflict = errors.New("row version conflict")
	ErrStatusConflict  = errors.New("row status changed concurrently")
)
