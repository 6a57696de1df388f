package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-backup/internal/logging"
)

func TestBackupLogger_AuditTrail(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "audit", "backup-audit.log")
	bl, err := NewBackupLogger(BackupLoggerConfig{
		Logger:         logging.NewNopLogger(),
		AuditLogFile:   auditFile,
		CorrelationID:  "corr-1",
		EnableAuditLog: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "corr-1", bl.GetCorrelationID())

	done := bl.LogBackupStart(context.Background(), admin, CreateRequest{TenantID: "CHU-Nord", Type: BackupTypeComplete})
	done(nil, &BackupMetadata{BackupID: "backup-x", SizeBytes: 10})

	verify := bl.LogOperation(context.Background(), "dr.admin", ActionVerify, &BackupMetadata{BackupID: "backup-x", TenantID: "CHU-Nord"})
	verify(errors.New("checksum mismatch"), nil)

	bl.LogAccessDenied(Principal{ID: "nurse"}, "restore", "7")

	data, err := os.ReadFile(auditFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"result":"started"`)
	assert.Contains(t, lines[1], `"result":"success"`)
	assert.Contains(t, lines[2], `"result":"failure"`)
	assert.Contains(t, lines[3], `"result":"denied"`)
	for _, line := range lines {
		assert.Contains(t, line, `"correlation_id":"corr-1"`)
	}
}

func TestBackupLogger_Defaults(t *testing.T) {
	bl, err := NewBackupLogger(BackupLoggerConfig{})
	require.NoError(t, err)
	assert.Len(t, bl.GetCorrelationID(), 36)

	other := bl.WithCorrelationID("corr-2")
	assert.Equal(t, "corr-2", other.GetCorrelationID())

	// no audit file configured: logging must not fail
	bl.LogAccessDenied(Principal{ID: "x"}, "create", "CHU-Nord")
}
