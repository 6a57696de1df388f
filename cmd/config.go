package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hospital-backup/internal/api"
	"hospital-backup/internal/config"
	"hospital-backup/internal/display"
	apperrors "hospital-backup/internal/errors"
)

const redacted = "********"

func newConfigCommand(c *cli) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, show and check the configuration",
		Long: `Generate, show and check the configuration.

Settings are read from hospital-backup.yaml in the current directory,
$HOME/.config/hospital-backup/ or /etc/hospital-backup/, or from the file given with --config.
Every setting can be overridden with a HOSPITAL_BACKUP_* environment variable, for example
HOSPITAL_BACKUP_DB_PASSWORD or HOSPITAL_BACKUP_OFFSITE_ENCRYPTION_KEY_REF.`,
	}

	configCmd.AddCommand(
		newConfigInitCommand(c),
		newConfigShowCommand(c),
		newConfigCheckCommand(c),
	)
	return configCmd
}

func newConfigInitCommand(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented configuration template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Configuration template written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printer, err := c.printer()
			if err != nil {
				return err
			}

			cfg = redact(cfg)
			if printer.Format() == display.FormatJSON {
				return printer.PrintValue(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = c.out.Write(data)
			return err
		},
	}
}

func newConfigCheckCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and check the backup and metadata directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printer, err := c.printer()
			if err != nil {
				return err
			}

			result := config.NewChecker(cfg).Run()
			resp := api.Response{
				Success: result.Success,
				Message: "Configuration is ready",
				Errors:  result.Errors,
				Data:    result,
			}
			if !result.Success {
				resp.Message = "Configuration has problems"
				resp.Code = string(apperrors.ErrorTypeValidation)
			}
			if err := printer.Print(resp); err != nil {
				return err
			}
			return c.outcome(printer, resp)
		},
	}
}

// redact returns a copy of cfg without credentials
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Database.Password)
	mask(&out.Metadata.DSN)
	mask(&out.Offsite.S3.SecretKey)
	mask(&out.Offsite.Azure.AccountKey)
	mask(&out.Vault.Token)
	return &out
}
