package display

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"hospital-backup/internal/api"
)

// Printer renders API responses and plain values in the configured format
type Printer struct {
	config *DisplayConfig
	colors *ColorSystem
	out    io.Writer
}

// NewPrinter creates a printer; a nil config uses DefaultDisplayConfig
func NewPrinter(config *DisplayConfig) (*Printer, error) {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Printer{
		config: config,
		colors: NewColorSystem(config.Output, config.ColorMode, GetThemeByName(config.Theme)),
		out:    config.Output,
	}, nil
}

// Colors returns the color system bound to the output
func (p *Printer) Colors() *ColorSystem {
	return p.colors
}

// Format returns the output format
func (p *Printer) Format() OutputFormat {
	return p.config.Format
}

// Spinner returns a spinner on the status writer; it stays silent for json and yaml output
func (p *Printer) Spinner(message string) *Spinner {
	colors := NewColorSystem(p.config.Status, p.config.ColorMode, GetThemeByName(p.config.Theme))
	if p.config.Format != FormatTable {
		colors = NewColorSystem(p.config.Status, ColorNever, PlainTextTheme())
	}
	return NewSpinner(p.config.Status, colors, message)
}

// Print renders a response: the whole envelope for json and yaml, a status line plus the data
// for tables
func (p *Printer) Print(resp api.Response) error {
	switch p.config.Format {
	case FormatJSON:
		return p.writeJSON(resp)
	case FormatYAML:
		return p.writeYAML(resp)
	}

	if err := p.statusLine(resp); err != nil {
		return err
	}
	if resp.Data == nil {
		return nil
	}
	return p.renderData(resp.Data)
}

// PrintValue renders any value; tables fall back to YAML for types without a dedicated view
func (p *Printer) PrintValue(v interface{}) error {
	switch p.config.Format {
	case FormatJSON:
		return p.writeJSON(v)
	case FormatYAML:
		return p.writeYAML(v)
	}
	return p.renderData(v)
}

func (p *Printer) statusLine(resp api.Response) error {
	theme := p.colors.Theme()
	var line string
	switch {
	case !resp.Success:
		line = p.colors.Colorize("✗ "+resp.Message, theme.Error)
		if resp.Code != "" {
			line += p.colors.Colorize(fmt.Sprintf(" [%s]", resp.Code), theme.Muted)
		}
	case resp.Code == api.CodePartialFailure:
		line = p.colors.Colorize("⚠ "+resp.Message, theme.Warning)
	default:
		line = p.colors.Colorize("✓ "+resp.Message, theme.Success)
	}
	if _, err := fmt.Fprintln(p.out, line); err != nil {
		return err
	}
	for _, e := range resp.Errors {
		if _, err := fmt.Fprintf(p.out, "  - %s\n", e); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json output: %w", err)
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

// writeYAML goes through the JSON encoding so field names and custom marshalers match the json output
func (p *Printer) writeYAML(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode yaml output: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to encode yaml output: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(p.out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode yaml output: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles the JSON input carries
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}
