package backup

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "hospital-backup/internal/errors"
)

// BackupMetadata is the persisted record of one backup run
type BackupMetadata struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	BackupID          string          `gorm:"size:64;uniqueIndex;not null" json:"backup_id"`
	SequenceNumber    int64           `gorm:"index" json:"sequence_number"`
	Type              BackupType      `gorm:"size:16;not null" json:"type"`
	Status            Status          `gorm:"size:16;index;not null" json:"status"`
	PrimaryLocation   string          `gorm:"size:512;not null" json:"primary_location"`
	SecondaryLocation string          `gorm:"size:512" json:"secondary_location,omitempty"`
	Compression       CompressionType `gorm:"size:16" json:"compression,omitempty"`
	EncryptionKeyRef  string          `gorm:"size:255" json:"encryption_key_ref,omitempty"`
	SizeBytes         int64           `json:"size_bytes"`
	DurationSeconds   int64           `json:"duration_seconds"`
	Checksum          string          `gorm:"size:64" json:"checksum"`
	FileChecksum      string          `gorm:"size:64" json:"file_checksum"`
	FileCount         int             `json:"file_count"`
	RowCount          int64           `json:"row_count"`
	TableCount        int             `json:"table_count"`
	StartedAt         time.Time       `gorm:"index;not null" json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	CreatedBy         string          `gorm:"size:128;not null" json:"created_by"`
	TenantID          string          `gorm:"size:128;index;not null" json:"tenant_id"`
	ErrorMessage      string          `gorm:"type:text" json:"error_message,omitempty"`
	Notes             History         `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName pins the gorm table name
func (BackupMetadata) TableName() string {
	return "backup_metadata"
}

// Validate checks the fields every persisted record must carry
func (bm *BackupMetadata) Validate() error {
	var errs apperrors.ValidationErrors

	if bm.BackupID == "" {
		errs.Add("backup_id", "backup ID is required", bm.BackupID)
	}
	if bm.TenantID == "" {
		errs.Add("tenant_id", "tenant is required", bm.TenantID)
	}
	if bm.CreatedBy == "" {
		errs.Add("created_by", "initiating principal is required", bm.CreatedBy)
	}
	if _, err := ParseBackupType(string(bm.Type)); err != nil {
		errs.Add("type", err.Error(), bm.Type)
	}
	if _, err := ParseStatus(string(bm.Status)); err != nil {
		errs.Add("status", err.Error(), bm.Status)
	}
	if strings.TrimSpace(bm.PrimaryLocation) == "" {
		errs.Add("primary_location", "primary location is required", bm.PrimaryLocation)
	}
	if bm.StartedAt.IsZero() {
		errs.Add("started_at", "start timestamp is required", bm.StartedAt)
	}
	if bm.SizeBytes < 0 {
		errs.Add("size_bytes", "size cannot be negative", bm.SizeBytes)
	}

	if errs.HasErrors() {
		return apperrors.NewValidationError("invalid backup metadata", errs)
	}
	return nil
}

// Transition moves the record to next, rejecting moves the lifecycle does not allow
func (bm *BackupMetadata) Transition(next Status) error {
	if !bm.Status.CanTransitionTo(next) {
		return apperrors.NewValidationError(
			fmt.Sprintf("backup %s cannot move from %s to %s", bm.BackupID, bm.Status, next), nil).
			WithContext("backup_id", bm.BackupID)
	}
	bm.Status = next
	return nil
}

// Reference returns the human-readable label of the record
func (bm *BackupMetadata) Reference() string {
	return fmt.Sprintf("#%d %s", bm.SequenceNumber, bm.BackupID)
}

// ToJSON serializes the BackupMetadata to JSON
func (bm *BackupMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(bm, "", "  ")
}

// Event actions recorded in the history log
const (
	ActionDump      = "dump"
	ActionVerify    = "verify"
	ActionReplicate = "replicate"
	ActionRestore   = "restore"
)

// Event outcomes
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Event is one entry of the append-only history of a backup
type Event struct {
	At       time.Time `json:"at"`
	Operator string    `json:"operator"`
	Action   string    `json:"action"`
	Outcome  string    `json:"outcome"`
	Message  string    `json:"message,omitempty"`
	Executed int       `json:"executed,omitempty"`
	Failed   int       `json:"failed,omitempty"`
}

// History is the append-only event log kept in the notes column
type History struct {
	Events []Event
}

// Append adds an event; existing events are never rewritten
func (h *History) Append(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	h.Events = append(h.Events, e)
}

// RestoreCount counts successful and partial restores
func (h History) RestoreCount() int {
	count := 0
	for _, e := range h.Events {
		if e.Action == ActionRestore && e.Outcome != OutcomeFailed {
			count++
		}
	}
	return count
}

// LastRestore returns the most recent non-failed restore event
func (h History) LastRestore() *Event {
	for i := len(h.Events) - 1; i >= 0; i-- {
		if e := h.Events[i]; e.Action == ActionRestore && e.Outcome != OutcomeFailed {
			return &e
		}
	}
	return nil
}

// LastError returns the message of the most recent failed event
func (h History) LastError() string {
	for i := len(h.Events) - 1; i >= 0; i-- {
		if h.Events[i].Outcome == OutcomeFailed {
			return h.Events[i].Message
		}
	}
	return ""
}

type historyView struct {
	RestoreCount  int        `json:"restore_count"`
	LastRestoreAt *time.Time `json:"last_restore_at,omitempty"`
	LastRestoreBy string     `json:"last_restore_by,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Events        []Event    `json:"events"`
}

// MarshalJSON renders the summary fields alongside the events
func (h History) MarshalJSON() ([]byte, error) {
	view := historyView{
		RestoreCount: h.RestoreCount(),
		LastError:    h.LastError(),
		Events:       h.Events,
	}
	if view.Events == nil {
		view.Events = []Event{}
	}
	if last := h.LastRestore(); last != nil {
		at := last.At
		view.LastRestoreAt = &at
		view.LastRestoreBy = last.Operator
	}
	return json.Marshal(view)
}

// UnmarshalJSON reads the events and ignores the derived summary
func (h *History) UnmarshalJSON(data []byte) error {
	var view historyView
	if err := json.Unmarshal(data, &view); err != nil {
		return err
	}
	h.Events = view.Events
	return nil
}

// Value implements driver.Valuer
func (h History) Value() (driver.Value, error) {
	data, err := h.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (h *History) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		h.Events = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into History", value)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		h.Events = nil
		return nil
	}
	return h.UnmarshalJSON(data)
}

// GenerateBackupID generates a unique backup ID
func GenerateBackupID(at time.Time) string {
	timestamp := at.UTC().Format("20060102-150405")
	shortUUID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("backup-%s-%s", timestamp, shortUUID)
}

// IsBackupID reports whether s has the shape produced by GenerateBackupID
func IsBackupID(s string) bool {
	return strings.HasPrefix(s, "backup-") && len(s) == len("backup-20060102-150405-")+8
}
