package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"hospital-backup/internal/api"
	"hospital-backup/internal/application"
	"hospital-backup/internal/config"
	"hospital-backup/internal/database"
	"hospital-backup/internal/display"
	apperrors "hospital-backup/internal/errors"
	"hospital-backup/internal/logging"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	// exitPartial means the command ran but some units (tables, statements, schedules) failed
	exitPartial = 2
)

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// cli holds the global flags and the writers of one invocation
type cli struct {
	cfgFile   string
	operator  string
	roles     []string
	format    string
	colorMode string
	theme     string
	verbose   bool
	quiet     bool
	logFile   string
	timeout   time.Duration

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	// interactive is set when in is a terminal an operator can answer prompts on
	interactive bool
	// databases replaces the tenant database connector; nil uses the default
	databases database.DatabaseService
}

// exitError carries the exit code of a command whose response was already printed
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the command line and exits with its status
func Execute() {
	c := &cli{
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
	os.Exit(c.execute(os.Args[1:]))
}

func (c *cli) execute(args []string) int {
	root := newRootCommand(c)
	root.SetArgs(args)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	application.HandleError(c.errOut, nil, err)
	return exitFailure
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "hospital-backup",
		Short: "Back up, verify and restore hospital tenant databases",
		Long: `hospital-backup dumps a tenant database to a plain SQL file, records each backup in a
metadata catalog with its checksums and history, verifies artifacts against their recorded
fingerprints and restores them statement by statement.

Scheduled backups, off-site replication (S3, Azure Blob Storage, Google Cloud Storage) and
incremental chains are managed from the same catalog.

Examples:
  # Create a complete backup of one tenant
  hospital-backup backup create --tenant CHU-Nord --type COMPLETE --primary daily

  # Verify then restore it
  hospital-backup backup verify 42
  hospital-backup restore 42 --roles ADMIN

  # Run every schedule that is due, as a cron job
  hospital-backup schedule run-due --roles SYSTEM --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose && c.quiet {
				return apperrors.NewValidationError("--verbose and --quiet flags are mutually exclusive", nil)
			}
			if _, err := display.ParseFormat(c.format); err != nil {
				return apperrors.NewValidationError(err.Error(), nil)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./hospital-backup.yaml, then $HOME/.config/hospital-backup/)")
	flags.StringVar(&c.operator, "operator", "", "operator identity recorded in the audit trail")
	flags.StringSliceVar(&c.roles, "roles", nil, "operator roles (ADMIN, SUPER_ADMIN, SYSTEM)")
	flags.StringVar(&c.format, "format", "table", "output format (table, json, yaml)")
	flags.StringVar(&c.colorMode, "color", "auto", "color output (auto, always, never)")
	flags.StringVar(&c.theme, "theme", "dark", "color theme (dark, light, plain)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "log errors only")
	flags.StringVar(&c.logFile, "log-file", "", "also write logs to this file, rotated")
	flags.DurationVar(&c.timeout, "timeout", 0, "abort the operation after this duration (0 disables)")

	root.AddCommand(
		newBackupCommand(c),
		newRestoreCommand(c),
		newScheduleCommand(c),
		newConfigCommand(c),
		newVersionCommand(c),
	)
	return root
}

func newVersionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "hospital-backup version %s\n", version)
			fmt.Fprintf(c.out, "Built: %s\n", buildTime)
			fmt.Fprintf(c.out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(c.out, "Go version: %s\n", goVersion)
		},
	}
}

// loadConfig reads the configuration then applies the global flags over it
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().Load(c.cfgFile)
	if err != nil {
		return nil, err
	}

	if c.operator != "" {
		cfg.Operator.ID = c.operator
	}
	if len(c.roles) > 0 {
		roles := make([]string, 0, len(c.roles))
		for _, r := range c.roles {
			roles = append(roles, strings.ToUpper(strings.TrimSpace(r)))
		}
		cfg.Operator.Roles = roles
	}
	switch {
	case c.verbose:
		cfg.Logging.Level = string(logging.LogLevelVerbose)
	case c.quiet:
		cfg.Logging.Level = string(logging.LogLevelQuiet)
	}
	if c.logFile != "" {
		cfg.Logging.File = c.logFile
	}
	return cfg, nil
}

func (c *cli) printer() (*display.Printer, error) {
	format, err := display.ParseFormat(c.format)
	if err != nil {
		return nil, err
	}
	return display.NewPrinter(&display.DisplayConfig{
		Format:    format,
		ColorMode: display.ColorMode(c.colorMode),
		Theme:     c.theme,
		Output:    c.out,
		Status:    c.errOut,
	})
}

// operation is one API call made on behalf of the configured operator
type operation func(ctx context.Context, app *application.Application) api.Response

// gate runs before an operation; a non-nil response ends the command with that response
type gate func(ctx context.Context, app *application.Application) *api.Response

// run wires the application, runs op under signal handling, prints the response and maps it to
// an exit code. A non-empty spin message shows a spinner while op runs.
func (c *cli) run(cmd *cobra.Command, spin string, op operation) error {
	return c.runGated(cmd, spin, nil, op)
}

func (c *cli) runGated(cmd *cobra.Command, spin string, before gate, op operation) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	printer, err := c.printer()
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := application.New(ctx, cfg, application.Options{Databases: c.databases})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Shutdown(); err != nil {
			app.GetLogger().WithField("error", err.Error()).Warn("Shutdown did not complete cleanly")
		}
	}()

	ctx, cancel := app.HandleSignals(ctx)
	defer cancel()
	if c.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.timeout)
		defer cancelTimeout()
	}

	if before != nil {
		if resp := before(ctx, app); resp != nil {
			if err := printer.Print(*resp); err != nil {
				return err
			}
			return c.outcome(printer, *resp)
		}
	}

	var spinner *display.Spinner
	if spin != "" {
		spinner = printer.Spinner(spin)
		spinner.Start()
	}
	resp := op(ctx, app)
	if spinner != nil {
		elapsed := spinner.Stop()
		app.GetLogger().WithField("elapsed", elapsed.String()).Debug("Operation finished")
	}

	if err := printer.Print(resp); err != nil {
		return err
	}
	return c.outcome(printer, resp)
}

// outcome maps a printed response to an exit code, adding hints for failures on table output
func (c *cli) outcome(printer *display.Printer, resp api.Response) error {
	switch {
	case !resp.Success:
		if printer.Format() == display.FormatTable {
			hints := application.TroubleshootingHints(apperrors.ErrorType(resp.Code))
			if len(hints) > 0 {
				fmt.Fprintln(c.errOut, "\nTroubleshooting:")
				for _, hint := range hints {
					fmt.Fprintf(c.errOut, "  • %s\n", hint)
				}
			}
		}
		return &exitError{code: exitFailure}
	case resp.Code == api.CodePartialFailure:
		return &exitError{code: exitPartial}
	}
	return nil
}

// parseID reads a numeric backup or schedule id
func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid id %q: expected a positive number", arg), err)
	}
	return uint(id), nil
}

func parseError(flag, value string, err error) error {
	return apperrors.NewValidationError(fmt.Sprintf("invalid %s value %q", flag, value), err)
}
