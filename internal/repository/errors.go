// Package repository holds the MySQL adapters.  Sentinel errors defined
// here let handlers distinguish failure scenarios; session errors use the
// booking package's sentinels so the core can classify them.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/celestia-booking/internal/booking"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned by UserRepo.Create for a duplicate email.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid means a refresh token is unknown, revoked or expired.
var ErrTokenInvalid = errors.New("refresh token invalid")

// MySQL server error numbers the adapters react to.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrno(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlErrno(err) == errDuplicateEntry }

// transient marks lock wait timeouts and deadlocks as retryable store
// failures.  Other errors are returned unchanged.
func transient(err error) error {
	switch mysqlErrno(err) {
	case errLockWaitTimeout, errDeadlock:
		return fmt.Errorf("%w: %w", booking.ErrStoreUnavailable, err)
	}
	return err
}
