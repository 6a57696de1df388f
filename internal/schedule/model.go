package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"hospital-backup/internal/backup"
	apperrors "hospital-backup/internal/errors"
)

// Frequency is how often a schedule fires
type Frequency string

const (
	FrequencyHourly  Frequency = "HOURLY"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// Frequencies lists every frequency in display order
var Frequencies = []Frequency{FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly}

// ParseFrequency accepts any letter case
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Frequencies {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Last run statuses
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseTimeOfDay parses "HH:MM" on a 24 hour clock
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM", s)
	}
	fmt.Sscanf(m[1], "%d", &hour)
	fmt.Sscanf(m[2], "%d", &minute)
	return hour, minute, nil
}

// BackupSchedule is a recurring backup policy for one tenant
type BackupSchedule struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	ScheduleID        string            `gorm:"size:64;uniqueIndex;not null" json:"schedule_id"`
	TenantID          string            `gorm:"size:128;index;not null" json:"tenant_id"`
	Type              backup.BackupType `gorm:"size:16;not null" json:"type"`
	Frequency         Frequency         `gorm:"size:16;not null" json:"frequency"`
	TimeOfDay         string            `gorm:"size:5;not null" json:"time_of_day"`
	// DayOfWeek is 1 (Monday) to 7 (Sunday)
	DayOfWeek         *int              `json:"day_of_week,omitempty"`
	DayOfMonth        *int              `json:"day_of_month,omitempty"`
	RetentionDays     int               `json:"retention_days"`
	PrimaryLocation   string            `gorm:"size:512;not null" json:"primary_location"`
	SecondaryLocation string            `gorm:"size:512" json:"secondary_location,omitempty"`
	Active            bool              `gorm:"index;not null" json:"active"`
	NextExecution     *time.Time        `gorm:"index" json:"next_execution,omitempty"`
	LastExecution     *time.Time        `json:"last_execution,omitempty"`
	LastStatus        string            `gorm:"size:16" json:"last_status,omitempty"`
	LastBackupID      string            `gorm:"size:64" json:"last_backup_id,omitempty"`
	SuccessCount      int               `json:"success_count"`
	FailureCount      int               `json:"failure_count"`
	LastError         string            `gorm:"type:text" json:"last_error,omitempty"`
	CreatedBy         string            `gorm:"size:128;not null" json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TableName pins the gorm table name
func (BackupSchedule) TableName() string {
	return "backup_schedules"
}

// NewScheduleID returns a unique schedule token
func NewScheduleID() string {
	return "schedule-" + uuid.New().String()
}

// Validate checks the policy fields
func (s *BackupSchedule) Validate() error {
	var errs apperrors.ValidationErrors

	if strings.TrimSpace(s.TenantID) == "" {
		errs.Add("tenant_id", "tenant is required", s.TenantID)
	}
	if _, err := backup.ParseBackupType(string(s.Type)); err != nil {
		errs.Add("type", err.Error(), s.Type)
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		errs.Add("frequency", err.Error(), s.Frequency)
	}
	if _, _, err := ParseTimeOfDay(s.TimeOfDay); err != nil {
		errs.Add("time_of_day", err.Error(), s.TimeOfDay)
	}
	if s.DayOfWeek != nil && (*s.DayOfWeek < 1 || *s.DayOfWeek > 7) {
		errs.Add("day_of_week", "day of week must be between 1 (Monday) and 7 (Sunday)", *s.DayOfWeek)
	}
	if s.DayOfMonth != nil && (*s.DayOfMonth < 1 || *s.DayOfMonth > 31) {
		errs.Add("day_of_month", "day of month must be between 1 and 31", *s.DayOfMonth)
	}
	if s.RetentionDays < 0 {
		errs.Add("retention_days", "retention cannot be negative", s.RetentionDays)
	}
	if strings.TrimSpace(s.PrimaryLocation) == "" {
		errs.Add("primary_location", "primary location is required", s.PrimaryLocation)
	}
	if s.SecondaryLocation != "" {
		if _, err := backup.ParseLocation(s.SecondaryLocation); err != nil {
			errs.Add("secondary_location", err.Error(), s.SecondaryLocation)
		}
	}

	if errs.HasErrors() {
		return apperrors.NewValidationError("invalid backup schedule", errs)
	}
	return nil
}

// IsDue reports whether an active schedule should run at now
func (s *BackupSchedule) IsDue(now time.Time) bool {
	return s.Active && s.NextExecution != nil && !s.NextExecution.After(now)
}
