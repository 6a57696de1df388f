package display

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"hospital-backup/internal/api"
	"hospital-backup/internal/backup"
	"hospital-backup/internal/schedule"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// renderData picks a view for each payload the API returns
func (p *Printer) renderData(data interface{}) error {
	switch v := data.(type) {
	case api.CreateBackupData:
		return p.renderCreated(v)
	case *backup.BackupMetadata:
		return p.renderBackup(v)
	case *backup.TenantStats:
		return p.renderStats(v)
	case api.RestoreData:
		return p.renderRestore(v)
	case api.ChainData:
		return p.renderChain(v)
	case *schedule.BackupSchedule:
		return p.renderSchedules([]*schedule.BackupSchedule{v}, true)
	case []*schedule.BackupSchedule:
		return p.renderSchedules(v, false)
	case []time.Time:
		return p.renderTimes(v)
	case []schedule.RunOutcome:
		return p.renderOutcomes(v)
	case []backup.ObjectInfo:
		return p.renderReplicas(v)
	default:
		return p.writeYAML(v)
	}
}

// fields renders label/value pairs without borders
func (p *Printer) fields(pairs [][2]string) error {
	t := NewTable()
	t.SetBorder(NoBorderStyle)
	t.SetColumnColorizer(0, func(s string) string { return p.colors.Colorize(s, p.colors.Theme().Muted) })
	for _, pair := range pairs {
		if pair[1] == "" {
			continue
		}
		t.AddRow(pair[0]+":", pair[1])
	}
	return t.RenderTo(p.out)
}

func (p *Printer) table(headers ...string) *Table {
	t := NewTable(headers...)
	t.SetMaxWidth(p.config.MaxWidth)
	t.SetHeaderFormatter(func(s string) string { return p.colors.Colorize(s, p.colors.Theme().Primary) })
	return t
}

func (p *Printer) renderCreated(d api.CreateBackupData) error {
	replicated := ""
	switch {
	case d.Replicated:
		replicated = "yes"
	case d.ReplicationError != "":
		replicated = p.colors.Colorize("failed: "+d.ReplicationError, p.colors.Theme().Warning)
	}
	return p.fields([][2]string{
		{"ID", strconv.FormatUint(uint64(d.ID), 10)},
		{"Backup", d.BackupID},
		{"Status", p.colors.Status(string(d.Status))},
		{"Path", d.Path},
		{"Size", formatBytes(d.SizeBytes)},
		{"Tables", strconv.Itoa(d.Stats.TotalTables)},
		{"Rows", humanize.Comma(d.Stats.TotalRows)},
		{"Statements", humanize.Comma(int64(d.Statements))},
		{"Failed tables", nonZero(d.FailedTables)},
		{"Checksum", d.Stats.Checksum},
		{"Replicated", replicated},
	})
}

func (p *Printer) renderBackup(b *backup.BackupMetadata) error {
	pairs := [][2]string{
		{"ID", strconv.FormatUint(uint64(b.ID), 10)},
		{"Backup", b.BackupID},
		{"Tenant", b.TenantID},
		{"Type", string(b.Type)},
		{"Status", p.colors.Status(string(b.Status))},
		{"Sequence", strconv.FormatInt(b.SequenceNumber, 10)},
		{"Primary", b.PrimaryLocation},
		{"Secondary", b.SecondaryLocation},
		{"Size", formatBytes(b.SizeBytes)},
		{"Tables", strconv.Itoa(b.TableCount)},
		{"Rows", humanize.Comma(b.RowCount)},
		{"Duration", seconds(b.DurationSeconds)},
		{"Checksum", b.Checksum},
		{"File checksum", b.FileChecksum},
		{"Started", when(&b.StartedAt)},
		{"Finished", when(b.FinishedAt)},
		{"Expires", when(b.ExpiresAt)},
		{"Created by", b.CreatedBy},
		{"Restores", nonZero(b.Notes.RestoreCount())},
		{"Error", b.ErrorMessage},
	}
	if err := p.fields(pairs); err != nil {
		return err
	}
	if len(b.Notes.Events) == 0 {
		return nil
	}

	t := p.table("At", "Action", "Outcome", "Operator", "Message")
	t.SetColumnColorizer(2, p.outcomeColor)
	for _, e := range b.Notes.Events {
		t.AddRow(e.At.Format(timeLayout), e.Action, e.Outcome, e.Operator, e.Message)
	}
	fmt.Fprintln(p.out)
	return t.RenderTo(p.out)
}

func (p *Printer) renderStats(s *backup.TenantStats) error {
	if err := p.fields([][2]string{
		{"Tenant", s.TenantID},
		{"Backups", strconv.Itoa(s.Total)},
		{"Successful", strconv.Itoa(s.SuccessCount)},
		{"Failed", strconv.Itoa(s.FailedCount)},
		{"Total size", formatBytes(s.TotalBytes)},
		{"Last success", when(s.LastSuccess)},
	}); err != nil {
		return err
	}

	t := p.table("Status", "Count")
	t.SetColumnAlignment(1, AlignRight)
	t.SetColumnColorizer(0, p.statusCell)
	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		t.AddRow(status, strconv.Itoa(s.ByStatus[backup.Status(status)]))
	}
	if t.Len() == 0 {
		return nil
	}
	fmt.Fprintln(p.out)
	return t.RenderTo(p.out)
}

func (p *Printer) renderRestore(d api.RestoreData) error {
	return p.fields([][2]string{
		{"ID", strconv.FormatUint(uint64(d.ID), 10)},
		{"Backup", d.BackupID},
		{"Status", p.colors.Status(string(d.Status))},
		{"Restored at", d.RestoredAt},
		{"Statements", humanize.Comma(int64(d.Executed))},
		{"Failed", nonZero(d.Failed)},
		{"Duration", duration(time.Duration(d.DurationMS) * time.Millisecond)},
		{"Restore count", strconv.Itoa(d.RestoreCount)},
	})
}

func (p *Printer) renderChain(c api.ChainData) error {
	t := p.table("#", "Backup", "Type", "Status", "Started", "Size", "")
	t.SetColumnAlignment(5, AlignRight)
	t.SetColumnColorizer(3, p.statusCell)
	for i, entry := range c.Chain {
		b := entry.Backup
		marker := ""
		if entry.Current {
			marker = "target"
		}
		t.AddRow(strconv.Itoa(i+1), b.BackupID, string(b.Type), string(b.Status),
			b.StartedAt.Format(timeLayout), formatBytes(b.SizeBytes), marker)
	}
	if err := t.RenderTo(p.out); err != nil {
		return err
	}

	if len(c.RestoreInstructions) > 0 {
		fmt.Fprintln(p.out, "\nRestore order:")
		for _, step := range c.RestoreInstructions {
			fmt.Fprintf(p.out, "  %s\n", step)
		}
	}
	return nil
}

func (p *Printer) renderSchedules(list []*schedule.BackupSchedule, detail bool) error {
	if detail && len(list) == 1 {
		s := list[0]
		return p.fields([][2]string{
			{"ID", strconv.FormatUint(uint64(s.ID), 10)},
			{"Schedule", s.ScheduleID},
			{"Tenant", s.TenantID},
			{"Type", string(s.Type)},
			{"Runs", cadence(s)},
			{"Retention", fmt.Sprintf("%d days", s.RetentionDays)},
			{"Primary", s.PrimaryLocation},
			{"Secondary", s.SecondaryLocation},
			{"Active", strconv.FormatBool(s.Active)},
			{"Next", when(s.NextExecution)},
			{"Last", when(s.LastExecution)},
			{"Last status", p.colors.Status(s.LastStatus)},
			{"Last backup", s.LastBackupID},
			{"Successes", strconv.Itoa(s.SuccessCount)},
			{"Failures", strconv.Itoa(s.FailureCount)},
			{"Last error", s.LastError},
		})
	}

	t := p.table("ID", "Schedule", "Tenant", "Type", "Runs", "Active", "Next", "Last")
	t.SetColumnAlignment(0, AlignRight)
	t.SetColumnColorizer(7, p.statusCell)
	for _, s := range list {
		t.AddRow(strconv.FormatUint(uint64(s.ID), 10), s.ScheduleID, s.TenantID, string(s.Type), cadence(s),
			strconv.FormatBool(s.Active), when(s.NextExecution), s.LastStatus)
	}
	return t.RenderTo(p.out)
}

func (p *Printer) renderTimes(times []time.Time) error {
	t := p.table("#", "Execution", "In")
	t.SetColumnAlignment(0, AlignRight)
	for i, at := range times {
		t.AddRow(strconv.Itoa(i+1), at.Format(timeLayout), humanize.Time(at))
	}
	return t.RenderTo(p.out)
}

func (p *Printer) renderOutcomes(outcomes []schedule.RunOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	t := p.table("Schedule", "Tenant", "Status", "Backup", "Duration", "Next", "Error")
	t.SetColumnColorizer(2, p.statusCell)
	for _, o := range outcomes {
		t.AddRow(o.ScheduleID, o.TenantID, o.Status, o.BackupID, duration(o.Duration), when(o.NextExecution), o.Error)
	}
	return t.RenderTo(p.out)
}

func (p *Printer) renderReplicas(objects []backup.ObjectInfo) error {
	t := p.table("Key", "Size", "Modified")
	t.SetColumnAlignment(1, AlignRight)
	for _, o := range objects {
		t.AddRow(o.Key, formatBytes(o.Size), o.ModTime.Format(timeLayout))
	}
	return t.RenderTo(p.out)
}

// statusCell colors a padded status cell, keeping the padding outside the escape codes
func (p *Printer) statusCell(s string) string {
	status := strings.TrimRight(s, " ")
	return p.colors.Status(status) + s[len(status):]
}

func (p *Printer) outcomeColor(s string) string {
	theme := p.colors.Theme()
	switch strings.TrimSpace(s) {
	case backup.OutcomeSuccess:
		return p.colors.Colorize(s, theme.Success)
	case backup.OutcomePartial:
		return p.colors.Colorize(s, theme.Warning)
	case backup.OutcomeFailed:
		return p.colors.Colorize(s, theme.Error)
	}
	return s
}

func cadence(s *schedule.BackupSchedule) string {
	switch {
	case s.Frequency == schedule.FrequencyWeekly && s.DayOfWeek != nil:
		return fmt.Sprintf("WEEKLY %s %s", time.Weekday(*s.DayOfWeek%7), s.TimeOfDay)
	case s.Frequency == schedule.FrequencyMonthly && s.DayOfMonth != nil:
		return fmt.Sprintf("MONTHLY day %d %s", *s.DayOfMonth, s.TimeOfDay)
	case s.Frequency == schedule.FrequencyHourly:
		if _, minute, err := schedule.ParseTimeOfDay(s.TimeOfDay); err == nil {
			return fmt.Sprintf("HOURLY at :%02d", minute)
		}
	}
	return fmt.Sprintf("%s %s", s.Frequency, s.TimeOfDay)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func nonZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func seconds(s int64) string {
	return duration(time.Duration(s) * time.Second)
}

func duration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

func when(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s)", t.Format(timeLayout), humanize.Time(*t))
}
