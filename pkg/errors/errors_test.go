package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeSQLExecution, "statement failed")

	assert.Equal(t, ErrCodeSQLExecution, err.Code)
	assert.Equal(t, "statement failed", err.Message)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Recoverable)
	assert.NotEmpty(t, err.Stack)
}

func TestWrap(t *testing.T) {
	t.Run("wraps cause", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := Wrap(cause, ErrCodeConnectionFailed, "cannot reach warehouse")

		assert.Equal(t, cause, err.Cause)
		assert.Equal(t, cause, errors.Unwrap(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("nil cause returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
	})

	t.Run("inherits context from wrapped AppError", func(t *testing.T) {
		inner := New(ErrCodeSQLExecution, "bad insert").WithContext("table", "dim_user")
		outer := Wrap(inner, ErrCodeSQLTransaction, "sync failed")

		assert.Equal(t, "dim_user", outer.Context["table"])
	})
}

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeSnapshotMissing, "gold snapshot not found").
		WithSuggestions("Run the upstream pipeline first")

	msg := err.Error()
	assert.Contains(t, msg, "GPE3001")
	assert.Contains(t, msg, "gold snapshot not found")
	assert.Contains(t, msg, "Suggestions:")
	assert.Contains(t, msg, "1. Run the upstream pipeline first")
}

func TestIs(t *testing.T) {
	a := New(ErrCodeMetabaseRequest, "a")
	b := New(ErrCodeMetabaseRequest, "b")
	c := New(ErrCodeMetabaseSetup, "c")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestIsRecoverable(t *testing.T) {
	recoverable := New(ErrCodeExportFailed, "one table failed").AsRecoverable()
	fatal := New(ErrCodeConnectionFailed, "unreachable")

	assert.True(t, IsRecoverable(recoverable))
	assert.False(t, IsRecoverable(fatal))
	assert.False(t, IsRecoverable(fmt.Errorf("plain error")))

	wrapped := fmt.Errorf("outer: %w", recoverable)
	assert.True(t, IsRecoverable(wrapped))
}

func TestGetErrorCode(t *testing.T) {
	err := New(ErrCodeDumpFailed, "pg_dump exited 1")

	assert.Equal(t, ErrCodeDumpFailed, GetErrorCode(err))
	assert.Equal(t, ErrCodeDumpFailed, GetErrorCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("plain")))
}

func TestConstructors(t *testing.T) {
	t.Run("connection", func(t *testing.T) {
		err := ConnectionError("cannot reach warehouse", fmt.Errorf("dial tcp: refused"))
		assert.Equal(t, ErrCodeConnectionFailed, err.Code)
		assert.NotEmpty(t, err.Suggestions)
	})

	t.Run("snapshot", func(t *testing.T) {
		err := SnapshotError("data/gold/dim_user.parquet")
		assert.Equal(t, ErrCodeSnapshotMissing, err.Code)
		assert.Equal(t, "data/gold/dim_user.parquet", err.Context["path"])
	})

	t.Run("sql truncates query context", func(t *testing.T) {
		long := ""
		for i := 0; i < 30; i++ {
			long += "SELECT * FROM mart_city_month;"
		}
		err := SQLError("insert failed", long, fmt.Errorf("boom"))
		q := err.Context["query"].(string)
		assert.LessOrEqual(t, len(q), 203)
	})

	t.Run("validation is recoverable warning", func(t *testing.T) {
		err := ValidationError("month", "2023-13", "month out of range")
		assert.Equal(t, SeverityWarning, err.Severity)
		assert.True(t, err.Recoverable)
	})
}
