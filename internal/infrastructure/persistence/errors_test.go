package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: ErrNumDeadlock, Message: "Deadlock found when trying to get lock"}
	lockWait := &mysql.MySQLError{Number: ErrNumLockWait, Message: "Lock wait timeout exceeded"}
	dup := &mysql.MySQLError{Number: ErrNumDupEntry, Message: "Duplicate entry"}
	dupKey := &mysql.MySQLError{Number: ErrNumDupKeyName, Message: "Duplicate key name"}
	noTable := &mysql.MySQLError{Number: ErrNumNoSuchTable, Message: "Table doesn't exist"}

	tests := []struct {
		name          string
		err           error
		deadlock      bool
		duplicate     bool
		alreadyExists bool
		noSuchTable   bool
	}{
		{name: "nil", err: nil},
		{name: "deadlock", err: deadlock, deadlock: true},
		{name: "wrapped deadlock", err: fmt.Errorf("insert: %w", deadlock), deadlock: true},
		{name: "lock wait", err: lockWait, deadlock: true},
		{name: "deadlock text only", err: errors.New("ER_LOCK_DEADLOCK: try restarting transaction"), deadlock: true},
		{name: "duplicate entry", err: dup, duplicate: true},
		{name: "duplicate key name", err: dupKey, alreadyExists: true},
		{name: "table exists", err: &mysql.MySQLError{Number: ErrNumTableExists}, alreadyExists: true},
		{name: "fk exists", err: &mysql.MySQLError{Number: ErrNumDupFKName}, alreadyExists: true},
		{name: "no such table", err: noTable, noSuchTable: true},
		{name: "other", err: &mysql.MySQLError{Number: 1215, Message: "Cannot add foreign key constraint"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.deadlock, IsDeadlock(tt.err), "IsDeadlock")
			assert.Equal(t, tt.duplicate, IsDuplicateEntry(tt.err), "IsDuplicateEntry")
			assert.Equal(t, tt.alreadyExists, IsAlreadyExists(tt.err), "IsAlreadyExists")
			assert.Equal(t, tt.noSuchTable, IsNoSuchTable(tt.err), "IsNoSuchTable")
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	q, err := quoteIdent("AB_Contact")
	assert.NoError(t, err)
	assert.Equal(t, "`AB_Contact`", q)

	for _, bad := range []string{"", "a`b", "a b", "x;DROP"} {
		_, err := quoteIdent(bad)
		assert.Error(t, err, bad)
	}

	long := fmt.Sprintf("AB_%070d", 0)
	assert.Len(t, truncateIdent(long), maxIdentifierLength)
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}
