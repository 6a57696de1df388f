package confirmation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"hospital-backup/internal/backup"
	"hospital-backup/internal/display"
)

// RestorePlan describes the backup a restore will replay
type RestorePlan struct {
	Backup *backup.BackupMetadata
	// Chain lists the restore instructions of an incremental chain, oldest first
	Chain []string
}

// ConfirmationService asks the operator before a restore overwrites tenant data
type ConfirmationService interface {
	ConfirmRestore(ctx context.Context, plan RestorePlan, autoApprove bool) (bool, error)
	DisplayRestoreSummary(plan RestorePlan)
}

// confirmationService implements the ConfirmationService interface
type confirmationService struct {
	colors *display.ColorSystem
	reader *bufio.Reader
	out    io.Writer
}

// NewConfirmationService prompts on out and reads answers from in
func NewConfirmationService(in io.Reader, out io.Writer, colors *display.ColorSystem) ConfirmationService {
	if colors == nil {
		colors = display.NewColorSystem(out, display.ColorNever, display.PlainTextTheme())
	}
	return &confirmationService{
		colors: colors,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// ConfirmRestore shows the summary then prompts until the operator answers yes or no. A
// canceled context aborts the prompt and returns the context error.
func (cs *confirmationService) ConfirmRestore(ctx context.Context, plan RestorePlan, autoApprove bool) (bool, error) {
	if plan.Backup == nil {
		return false, fmt.Errorf("no backup to restore")
	}
	cs.DisplayRestoreSummary(plan)

	theme := cs.colors.Theme()
	if autoApprove {
		fmt.Fprintln(cs.out, cs.colors.Colorize("✓ Auto-approving restore...", theme.Success))
		return true, nil
	}

	for {
		input, err := cs.prompt(ctx, plan)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(cs.out, "\n"+cs.colors.Colorize("⚠ Restore cancelled", theme.Warning))
			}
			return false, err
		}

		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			fmt.Fprintln(cs.out, cs.colors.Colorize("Restore cancelled by operator", theme.Muted))
			return false, nil
		case "d", "details":
			cs.displayDetails(plan)
		default:
			fmt.Fprintf(cs.out, "Invalid input '%s'. Please enter 'y' for yes, 'n' for no, or 'd' for details.\n", input)
		}
	}
}

// DisplayRestoreSummary prints what the restore will touch
func (cs *confirmationService) DisplayRestoreSummary(plan RestorePlan) {
	b := plan.Backup
	theme := cs.colors.Theme()

	fmt.Fprintln(cs.out, cs.colors.Colorize("Restore Summary", theme.Primary))
	fmt.Fprintln(cs.out, strings.Repeat("-", 30))
	fmt.Fprintf(cs.out, "Backup:   %s (%s, %s)\n", b.BackupID, b.Type, cs.colors.Status(string(b.Status)))
	fmt.Fprintf(cs.out, "Tenant:   %s\n", b.TenantID)
	fmt.Fprintf(cs.out, "Taken:    %s (%s)\n", b.StartedAt.Format(time.RFC1123), humanize.Time(b.StartedAt))
	fmt.Fprintf(cs.out, "Contents: %d tables, %s rows, %s\n", b.TableCount, humanize.Comma(b.RowCount), humanize.IBytes(uint64(max(b.SizeBytes, 0))))
	if n := b.Notes.RestoreCount(); n > 0 {
		fmt.Fprintf(cs.out, "Restored: %d time(s) before\n", n)
	}
	fmt.Fprintln(cs.out)

	fmt.Fprintln(cs.out, cs.colors.Colorize("⚠ RESTORE OVERWRITES TENANT DATA", theme.Error))
	fmt.Fprintf(cs.out, "Every statement of the dump is replayed into the database of %s.\n", b.TenantID)
	if len(plan.Chain) > 1 {
		fmt.Fprintf(cs.out, "This backup belongs to a chain of %d backups; enter 'd' to list them.\n", len(plan.Chain))
	}
	fmt.Fprintln(cs.out)
}

// prompt reads one answer; the read runs in a goroutine so cancellation is not blocked on input
func (cs *confirmationService) prompt(ctx context.Context, plan RestorePlan) (string, error) {
	fmt.Fprint(cs.out, cs.colors.Colorize(
		fmt.Sprintf("Restore %s into %s? [y/N/d]: ", plan.Backup.BackupID, plan.Backup.TenantID), cs.colors.Theme().Warning))

	type answer struct {
		input string
		err   error
	}
	answers := make(chan answer, 1)
	go func() {
		input, err := cs.reader.ReadString('\n')
		if err != nil && !(err == io.EOF && input != "") {
			answers <- answer{err: fmt.Errorf("failed to read input: %w", err)}
			return
		}
		answers <- answer{input: strings.TrimSpace(input)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-answers:
		return a.input, a.err
	}
}

// displayDetails lists the chain and the backup history
func (cs *confirmationService) displayDetails(plan RestorePlan) {
	theme := cs.colors.Theme()
	fmt.Fprintln(cs.out, "\n"+cs.colors.Colorize("Restore order:", theme.Primary))
	if len(plan.Chain) == 0 {
		fmt.Fprintf(cs.out, "  1. %s\n", plan.Backup.BackupID)
	}
	for _, step := range plan.Chain {
		fmt.Fprintf(cs.out, "  %s\n", step)
	}

	if events := plan.Backup.Notes.Events; len(events) > 0 {
		fmt.Fprintln(cs.out, "\n"+cs.colors.Colorize("History:", theme.Primary))
		for _, e := range events {
			fmt.Fprintf(cs.out, "  %s  %-9s %-8s %s\n", e.At.Format(time.RFC3339), e.Action, e.Outcome, e.Operator)
		}
	}
	fmt.Fprintln(cs.out)
}
