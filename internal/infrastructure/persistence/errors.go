package persistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

func mysqlErrNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// IsDeadlock reports lock contention: a deadlock or a lock wait timeout.
// Errors that lost their driver type are matched on their text.
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}
	if n, ok := mysqlErrNumber(err); ok {
		return n == ErrNumDeadlock || n == ErrNumLockWait
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "er_lock_deadlock") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock wait timeout")
}

// IsDuplicateEntry reports a unique key violation.
func IsDuplicateEntry(err error) bool {
	if n, ok := mysqlErrNumber(err); ok {
		return n == ErrNumDupEntry
	}
	return err != nil && strings.Contains(err.Error(), "ER_DUP_ENTRY")
}

// IsAlreadyExists reports DDL that failed only because its target exists.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if n, ok := mysqlErrNumber(err); ok {
		switch n {
		case ErrNumTableExists, ErrNumDupFieldName, ErrNumDupKeyName, ErrNumDupFKName, ErrNumFKDupName:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate") || strings.Contains(msg, "already exists")
}

// IsNoSuchTable reports a missing table.
func IsNoSuchTable(err error) bool {
	n, ok := mysqlErrNumber(err)
	return ok && n == ErrNumNoSuchTable
}
