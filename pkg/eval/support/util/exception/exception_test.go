package exception_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

type CustomError struct {
	Msg string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("CustomError: %s", e.Msg)
}

func TestNewEvalError(t *testing.T) {
	originalErr := errors.New("connection refused")
	ee := exception.NewEvalError("storage", "failed to list objects", originalErr)

	assert.Equal(t, "storage", ee.Module)
	assert.Equal(t, "failed to list objects", ee.Message)
	assert.Equal(t, originalErr, ee.Unwrap())
	assert.Equal(t, "[storage] failed to list objects: connection refused", ee.Error())
	assert.NotEmpty(t, ee.StackTrace)
}

func TestNewEvalErrorf(t *testing.T) {
	ee := exception.NewEvalErrorf("cache", "object %s missing", "metadata.csv")
	assert.Nil(t, ee.Unwrap())
	assert.Equal(t, "[cache] object metadata.csv missing", ee.Error())

	cause := errors.New("disk full")
	ee = exception.NewEvalErrorf("cache", "failed to write %s", "a.parquet", cause)
	assert.Equal(t, "failed to write a.parquet", ee.Message)
	assert.ErrorIs(t, ee, cause)
}

func TestClassification(t *testing.T) {
	unknown := exception.NewEvalErrorf("aligner", "folder %q", "hourly", exception.ErrUnknownResolution)
	wrapped := fmt.Errorf("align: %w", unknown)

	assert.True(t, exception.IsConfigurationError(wrapped))
	assert.False(t, exception.IsNoData(wrapped))
	var ee *exception.EvalError
	assert.ErrorAs(t, wrapped, &ee)
	assert.Equal(t, `folder "hourly"`, exception.ExtractErrorMessage(wrapped))

	noData := exception.NewEvalError("aligner", "no parquet files under data/pv/30_minutely", exception.ErrNoData)
	assert.True(t, exception.IsNoData(noData))
	assert.False(t, exception.IsConfigurationError(noData))

	assert.True(t, exception.IsNotFound(exception.NewEvalError("storage", "stat", fs.ErrNotExist)))
	assert.True(t, exception.IsNotFound(exception.ErrObjectNotFound))
	assert.False(t, exception.IsNotFound(errors.New("boom")))
}

func TestIsErrorOfType(t *testing.T) {
	err := exception.NewEvalError("reader", "bad file", &CustomError{Msg: "corrupt footer"})

	assert.True(t, exception.IsErrorOfType(err, "exception_test.CustomError"))
	assert.True(t, exception.IsErrorOfType(err, "corrupt footer"))
	assert.False(t, exception.IsErrorOfType(err, "timeout"))
	assert.False(t, exception.IsErrorOfType(nil, "anything"))

	noData := exception.NewEvalError("aligner", "empty", exception.ErrNoData)
	assert.True(t, exception.IsErrorOfType(noData, exception.NoDataException))
}

func TestRegisterErrorType(t *testing.T) {
	errQuota := errors.New("quota exceeded")
	exception.RegisterErrorType("QuotaExceeded", errQuota)
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("upload: %w", errQuota), "QuotaExceeded"))
	assert.False(t, exception.IsErrorOfType(errors.New("disk full"), "QuotaExceeded"))

	canceled := exception.NewEvalErrorf("app", "run interrupted", errors.Join(context.Canceled, errors.New("GET failed")))
	assert.True(t, exception.IsErrorOfType(canceled, "context.Canceled"))

	assert.Panics(t, func() { exception.RegisterErrorType("", errors.New("x")) })
	assert.Panics(t, func() { exception.RegisterErrorType("Nil", nil) })
}
