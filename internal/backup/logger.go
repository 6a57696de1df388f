package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"hospital-backup/internal/logging"
)

// BackupLogger provides structured logging for backup operations with correlation IDs and an audit trail
type BackupLogger struct {
	logger        *logging.Logger
	auditLogger   *logrus.Logger
	correlationID string
}

// BackupLoggerConfig holds configuration for backup logging
type BackupLoggerConfig struct {
	Logger         *logging.Logger
	AuditLogFile   string
	CorrelationID  string
	EnableAuditLog bool
}

// LogEntry represents a structured log entry for backup operations
type LogEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Operation     string                 `json:"operation"`
	BackupID      string                 `json:"backup_id,omitempty"`
	TenantID      string                 `json:"tenant_id,omitempty"`
	Operator      string                 `json:"operator,omitempty"`
	Status        string                 `json:"status"`
	Duration      string                 `json:"duration,omitempty"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewBackupLogger creates a new backup logger with correlation ID support
func NewBackupLogger(config BackupLoggerConfig) (*BackupLogger, error) {
	correlationID := config.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	bl := &BackupLogger{
		logger:        logger,
		correlationID: correlationID,
	}

	if config.EnableAuditLog && config.AuditLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.AuditLogFile), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}

		auditLogger := logrus.New()
		auditLogger.SetOutput(&lumberjack.Logger{
			Filename:   config.AuditLogFile,
			MaxSize:    50,
			MaxBackups: 10,
			MaxAge:     365,
			Compress:   true,
		})
		auditLogger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		auditLogger.SetLevel(logrus.InfoLevel)

		bl.auditLogger = auditLogger
	}

	return bl, nil
}

// GetCorrelationID returns the current correlation ID
func (bl *BackupLogger) GetCorrelationID() string {
	return bl.correlationID
}

// WithCorrelationID creates a new logger with a different correlation ID
func (bl *BackupLogger) WithCorrelationID(correlationID string) *BackupLogger {
	return &BackupLogger{
		logger:        bl.logger,
		auditLogger:   bl.auditLogger,
		correlationID: correlationID,
	}
}

// LogBackupStart logs the start of a dump and returns the completion hook
func (bl *BackupLogger) LogBackupStart(ctx context.Context, principal Principal, req CreateRequest) func(error, *BackupMetadata) {
	startTime := time.Now()

	entry := LogEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "backup_create",
		TenantID:      req.TenantID,
		Operator:      principal.ID,
		Status:        "started",
		Success:       true,
		Metadata: map[string]interface{}{
			"type":             string(req.Type),
			"primary_location": req.PrimaryLocation,
			"offsite":          req.SecondaryLocation != "",
		},
	}

	bl.logStructured(entry)
	bl.logAudit(principal.ID, "backup", "create", "started", map[string]interface{}{
		"tenant_id": req.TenantID,
		"type":      string(req.Type),
	})

	return func(err error, metadata *BackupMetadata) {
		duration := time.Since(startTime)
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = duration.String()
		entry.Success = err == nil

		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
		}

		details := map[string]interface{}{
			"tenant_id": req.TenantID,
			"duration":  duration.String(),
			"error":     entry.Error,
		}
		if metadata != nil {
			entry.BackupID = metadata.BackupID
			entry.Metadata["size"] = metadata.SizeBytes
			entry.Metadata["tables"] = metadata.TableCount
			entry.Metadata["checksum"] = metadata.Checksum
			details["backup_id"] = metadata.BackupID
		}

		bl.logStructured(entry)
		bl.logAudit(principal.ID, "backup", "create", resultLabel(err), details)
	}
}

// LogOperation logs a verify, replicate or restore run against an existing backup
func (bl *BackupLogger) LogOperation(ctx context.Context, operator, action string, backup *BackupMetadata) func(error, map[string]interface{}) {
	startTime := time.Now()

	entry := LogEntry{
		Timestamp:     startTime,
		CorrelationID: bl.correlationID,
		Operation:     "backup_" + action,
		BackupID:      backup.BackupID,
		TenantID:      backup.TenantID,
		Operator:      operator,
		Status:        "started",
		Success:       true,
		Metadata:      map[string]interface{}{},
	}
	bl.logStructured(entry)

	return func(err error, metadata map[string]interface{}) {
		duration := time.Since(startTime)
		entry.Timestamp = time.Now()
		entry.Status = "completed"
		entry.Duration = duration.String()
		entry.Success = err == nil
		if err != nil {
			entry.Error = err.Error()
			entry.Status = "failed"
		}
		for k, v := range metadata {
			entry.Metadata[k] = v
		}

		bl.logStructured(entry)
		bl.logAudit(operator, "backup", action, resultLabel(err), map[string]interface{}{
			"backup_id": backup.BackupID,
			"tenant_id": backup.TenantID,
			"duration":  duration.String(),
			"error":     entry.Error,
		})
	}
}

// LogAccessDenied records a rejected request in the audit trail
func (bl *BackupLogger) LogAccessDenied(principal Principal, action, target string) {
	bl.logger.WithFields(map[string]interface{}{
		"correlation_id": bl.correlationID,
		"operator":       principal.ID,
		"action":         action,
		"target":         target,
	}).Warn("Access denied")
	bl.logAudit(principal.ID, "backup", action, "denied", map[string]interface{}{"target": target})
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// logStructured logs a structured log entry
func (bl *BackupLogger) logStructured(entry LogEntry) {
	fields := map[string]interface{}{
		"correlation_id": entry.CorrelationID,
		"operation":      entry.Operation,
		"status":         entry.Status,
		"success":        entry.Success,
	}

	if entry.BackupID != "" {
		fields["backup_id"] = entry.BackupID
	}
	if entry.TenantID != "" {
		fields["tenant_id"] = entry.TenantID
	}
	if entry.Operator != "" {
		fields["operator"] = entry.Operator
	}
	if entry.Duration != "" {
		fields["duration"] = entry.Duration
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}
	for k, v := range entry.Metadata {
		fields[k] = v
	}

	logEntry := bl.logger.WithFields(fields)

	switch {
	case !entry.Success:
		logEntry.Error("Backup operation failed")
	case entry.Status == "started":
		logEntry.Debug("Backup operation started")
	default:
		logEntry.Info("Backup operation completed successfully")
	}
}

// logAudit writes an audit trail entry
func (bl *BackupLogger) logAudit(operator, resource, action, result string, details map[string]interface{}) {
	if bl.auditLogger == nil {
		return
	}

	bl.auditLogger.WithFields(logrus.Fields{
		"correlation_id": bl.correlationID,
		"operator":       operator,
		"operation":      fmt.Sprintf("%s_%s", resource, action),
		"resource":       resource,
		"action":         action,
		"result":         result,
		"details":        details,
	}).Info("Audit log entry")
}
