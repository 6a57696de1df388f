package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OutputFormat selects how responses are printed
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ColorMode controls when ANSI colors are emitted
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// DisplayConfig holds output settings
type DisplayConfig struct {
	Format    OutputFormat
	ColorMode ColorMode
	Theme     string
	// MaxWidth caps table width; 0 uses the terminal width
	MaxWidth int
	Output   io.Writer
	// Status receives spinners and progress lines
	Status io.Writer
}

// DefaultDisplayConfig returns table output to stdout with automatic color detection
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		Format:    FormatTable,
		ColorMode: ColorAuto,
		Theme:     "dark",
		Output:    os.Stdout,
		Status:    os.Stderr,
	}
}

// ParseFormat accepts table, json and yaml in any case
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (table, json, yaml)", s)
	}
}

// SetDefaults fills in unset fields
func (dc *DisplayConfig) SetDefaults() {
	if dc.Format == "" {
		dc.Format = FormatTable
	}
	if dc.ColorMode == "" {
		dc.ColorMode = ColorAuto
	}
	if dc.Theme == "" {
		dc.Theme = "dark"
	}
	if dc.Output == nil {
		dc.Output = os.Stdout
	}
	if dc.Status == nil {
		dc.Status = os.Stderr
	}
}

// Validate checks the format, color mode and width
func (dc *DisplayConfig) Validate() error {
	if _, err := ParseFormat(string(dc.Format)); err != nil {
		return err
	}
	switch dc.ColorMode {
	case ColorAuto, ColorAlways, ColorNever, "":
	default:
		return fmt.Errorf("invalid color mode %q (auto, always, never)", dc.ColorMode)
	}
	if dc.MaxWidth < 0 {
		return fmt.Errorf("max width cannot be negative")
	}
	return nil
}
