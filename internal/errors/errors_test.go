package errors

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestAppError(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := NewAppError(ErrorTypeConnection, "connection failed", cause)

	if appErr.Type != ErrorTypeConnection {
		t.Errorf("Expected type %v, got %v", ErrorTypeConnection, appErr.Type)
	}

	if appErr.Cause != cause {
		t.Errorf("Expected cause %v, got %v", cause, appErr.Cause)
	}

	if appErr.IsRecoverable() {
		t.Error("Expected non-recoverable error")
	}

	expectedError := "connection: connection failed (caused by: underlying error)"
	if appErr.Error() != expectedError {
		t.Errorf("Expected error string %v, got %v", expectedError, appErr.Error())
	}

	if !errors.Is(appErr, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestAppErrorWithContext(t *testing.T) {
	appErr := NewAppError(ErrorTypeSQL, "statement failed", nil)
	appErr.WithContext("table", "patients").WithContext("statement", 12)

	if appErr.Context["table"] != "patients" {
		t.Errorf("Expected context table=patients, got %v", appErr.Context["table"])
	}

	if appErr.Context["statement"] != 12 {
		t.Errorf("Expected context statement=12, got %v", appErr.Context["statement"])
	}
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected ErrorType
	}{
		{"validation", NewValidationError("tenant id is required", nil), ErrorTypeValidation},
		{"access denied", NewAccessDeniedError("elevated role required"), ErrorTypeAccessDenied},
		{"not found", NewNotFoundError("backup 7 not found", nil), ErrorTypeNotFound},
		{"integrity mismatch", NewIntegrityMismatchError("checksum differs"), ErrorTypeIntegrityMismatch},
		{"missing artifact", NewMissingArtifactError("dump file is empty", nil), ErrorTypeMissingArtifact},
		{"invalid artifact", NewInvalidArtifactError("no statements", nil), ErrorTypeInvalidArtifact},
		{"fatal execution", NewFatalExecutionError("no tables after restore", nil), ErrorTypeFatalExecution},
		{"failed write", NewFailedWriteError("dump is empty", nil), ErrorTypeFailedWrite},
		{"broken chain", NewBrokenChainError("no complete backup"), ErrorTypeBrokenChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.expected {
				t.Errorf("Expected type %v, got %v", tt.expected, tt.err.Type)
			}
			if !IsType(tt.err, tt.expected) {
				t.Errorf("Expected IsType to match %v", tt.expected)
			}
		})
	}
}

func TestNewPartialFailureError(t *testing.T) {
	appErr := NewPartialFailureError("restore finished with failures", 10, 2)

	if appErr.Type != ErrorTypePartialFailure {
		t.Errorf("Expected type %v, got %v", ErrorTypePartialFailure, appErr.Type)
	}
	if appErr.Context["succeeded"] != 10 || appErr.Context["failed"] != 2 {
		t.Errorf("Unexpected context %v", appErr.Context)
	}
}

func TestValidationErrors(t *testing.T) {
	var verrs ValidationErrors
	if verrs.HasErrors() {
		t.Error("Expected empty collection")
	}

	verrs.Add("tenant_id", "is required", "")
	if !verrs.HasErrors() {
		t.Error("Expected collected error")
	}
	if verrs.Error() != "validation error for field 'tenant_id': is required" {
		t.Errorf("Unexpected message %q", verrs.Error())
	}

	verrs.Add("time_of_day", "must be HH:MM", "25:00")
	if len(verrs.Messages()) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(verrs.Messages()))
	}
	expected := "2 validation errors: validation error for field 'tenant_id': is required (and 1 more)"
	if verrs.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, verrs.Error())
	}
}

func TestErrorClassifier_ClassifyMySQLError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		mysqlErr     *mysql.MySQLError
		expectedType ErrorType
		recoverable  bool
	}{
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, ErrorTypePermission, false},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, ErrorTypeNotFound, false},
		{"table doesn't exist", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, ErrorTypeSQL, false},
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, ErrorTypeSQL, true},
		{"can't connect to server", &mysql.MySQLError{Number: 2003, Message: "Can't connect"}, ErrorTypeConnection, true},
		{"server has gone away", &mysql.MySQLError{Number: 2006, Message: "gone away"}, ErrorTypeConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.mysqlErr)

			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}

			if appErr.IsRecoverable() != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v", tt.recoverable, appErr.IsRecoverable())
			}

			if appErr.Context["mysql_error_code"] != tt.mysqlErr.Number {
				t.Errorf("Expected mysql_error_code=%v, got %v", tt.mysqlErr.Number, appErr.Context["mysql_error_code"])
			}
		})
	}
}

func TestErrorClassifier_ClassifySQLError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		err          error
		expectedType ErrorType
		recoverable  bool
	}{
		{"no rows", sql.ErrNoRows, ErrorTypeNotFound, false},
		{"transaction done", sql.ErrTxDone, ErrorTypeSQL, false},
		{"connection done", sql.ErrConnDone, ErrorTypeConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.err)

			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}

			if appErr.IsRecoverable() != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v", tt.recoverable, appErr.IsRecoverable())
			}
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	classifier := NewErrorClassifier()

	if appErr := classifier.ClassifyError(context.DeadlineExceeded); appErr.Type != ErrorTypeTimeout || !appErr.IsRecoverable() {
		t.Errorf("Expected recoverable timeout, got %v", appErr)
	}

	if appErr := classifier.ClassifyError(context.Canceled); appErr.Type != ErrorTypeInterruption || appErr.IsRecoverable() {
		t.Errorf("Expected interruption, got %v", appErr)
	}
}

func TestErrorClassifier_ClassifyFileSystemError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		err          error
		expectedType ErrorType
	}{
		{"file not found", &os.PathError{Op: "open", Path: "/backups/missing.sql", Err: syscall.ENOENT}, ErrorTypeMissingArtifact},
		{"permission denied", &os.PathError{Op: "open", Path: "/restricted", Err: syscall.EACCES}, ErrorTypePermission},
		{"no space left", &os.PathError{Op: "write", Path: "/full", Err: syscall.ENOSPC}, ErrorTypeFailedWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.err)

			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}
		})
	}
}

func TestErrorClassifier_ClassifyNetworkTimeout(t *testing.T) {
	classifier := NewErrorClassifier()

	appErr := classifier.ClassifyError(&mockNetError{timeout: true})
	if appErr.Type != ErrorTypeTimeout {
		t.Errorf("Expected type %v, got %v", ErrorTypeTimeout, appErr.Type)
	}
	if !appErr.IsRecoverable() {
		t.Error("Expected recoverable error for timeout")
	}
}

func TestErrorClassifier_PassesThroughAppError(t *testing.T) {
	classifier := NewErrorClassifier()
	original := NewBrokenChainError("no complete backup")

	if got := classifier.ClassifyError(original); got != original {
		t.Errorf("Expected the same AppError, got %v", got)
	}
	if classifier.ClassifyError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

type mockNetError struct {
	timeout bool
}

func (e *mockNetError) Error() string   { return "mock network error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func TestRetryHandler_Retry(t *testing.T) {
	config := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
	handler := NewRetryHandler(config)

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return NewRecoverableError(ErrorTypeConnection, "temporary failure", nil)
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("non-recoverable error", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			return NewValidationError("bad input", nil)
		})

		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
		if GetErrorType(err) != ErrorTypeValidation {
			t.Errorf("Expected validation error, got %v", err)
		}
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			return NewRecoverableError(ErrorTypeConnection, "always fails", nil)
		})

		if err == nil {
			t.Error("Expected error, got nil")
		}
		if attempts != config.MaxAttempts {
			t.Errorf("Expected %d attempts, got %d", config.MaxAttempts, attempts)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := handler.Retry(ctx, func() error { return nil })
		if GetErrorType(err) != ErrorTypeInterruption {
			t.Errorf("Expected interruption error, got %v", err)
		}
	})
}

func TestRetryHandler_CalculateDelay(t *testing.T) {
	handler := NewRetryHandler(RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	})

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}

	for _, tt := range tests {
		if got := handler.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Error("Expected nil")
	}

	wrapped := WrapError(NewRecoverableError(ErrorTypeStorage, "upload failed", nil), "replicating backup")
	if GetErrorType(wrapped) != ErrorTypeStorage || !IsRecoverableError(wrapped) {
		t.Errorf("Expected recoverable storage error, got %v", wrapped)
	}

	classified := WrapError(context.DeadlineExceeded, "verifying backup")
	if GetErrorType(classified) != ErrorTypeTimeout {
		t.Errorf("Expected timeout, got %v", classified)
	}
}

func TestFormatUserError(t *testing.T) {
	if FormatUserError(nil) != "" {
		t.Error("Expected empty string")
	}

	appErr := NewNotFoundError("backup 9 not found", nil)
	if FormatUserError(appErr) != "backup 9 not found" {
		t.Errorf("Unexpected message %q", FormatUserError(appErr))
	}

	appErr.UserMessage = "No such backup"
	if FormatUserError(appErr) != "No such backup" {
		t.Errorf("Unexpected message %q", FormatUserError(appErr))
	}

	if FormatUserError(errors.New("boom")) == "" {
		t.Error("Expected generic message")
	}
}
