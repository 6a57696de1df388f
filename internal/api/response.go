package api

import (
	"errors"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
)

// CodePartialFailure marks a successful response whose run had failed units
const CodePartialFailure = string(apperrors.ErrorTypePartialFailure)

// Response is the uniform envelope every operation returns
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// OK builds a success response
func OK(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Partial builds a success response carrying the partial_failure code
func Partial(message string, data interface{}, cause error) Response {
	resp := Response{Success: true, Message: message, Code: CodePartialFailure, Data: data}
	if cause != nil {
		resp.Errors = []string{cause.Error()}
	}
	return resp
}

// Fail translates an error into a failure response
func Fail(err error) Response {
	resp := Response{
		Success: false,
		Message: apperrors.FormatUserError(err),
		Code:    string(apperrors.GetErrorType(err)),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		var fields apperrors.ValidationErrors
		if errors.As(appErr.Cause, &fields) {
			resp.Errors = fields.Messages()
		} else if appErr.Cause != nil {
			resp.Errors = []string{appErr.Cause.Error()}
		}
	}
	return resp
}

// Err returns the response as an error, nil on success
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	return apperrors.NewAppError(apperrors.ErrorType(r.Code), r.Message, nil)
}

// CreateBackupData is returned by CreateBackup
type CreateBackupData struct {
	ID               uint          `json:"id"`
	BackupID         string        `json:"backup_id"`
	Status           backup.Status `json:"status"`
	Stats            backup.Stats  `json:"stats"`
	Path             string        `json:"path"`
	SizeBytes        int64         `json:"size_bytes"`
	Statements       int           `json:"statements"`
	FailedTables     int           `json:"failed_tables"`
	Replicated       bool          `json:"replicated"`
	ReplicationError string        `json:"replication_error,omitempty"`
}

// RestoreData is returned by RestoreBackup
type RestoreData struct {
	ID           uint          `json:"id"`
	BackupID     string        `json:"backup_id"`
	Status       backup.Status `json:"status"`
	RestoredAt   string        `json:"restored_at"`
	RestoreCount int           `json:"restore_count"`
	Executed     int           `json:"executed"`
	Failed       int           `json:"failed"`
	DurationMS   int64         `json:"duration_ms"`
}

// ChainData is returned by GetBackupChain
type ChainData struct {
	ChainLength         int                 `json:"chain_length"`
	Chain               []backup.ChainEntry `json:"chain"`
	RestoreInstructions []string            `json:"restore_instructions"`
}
