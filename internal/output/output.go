// Package output renders CLI results as YAML or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding used for command output.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// current is set once by the root command's --output flag before any
// subcommand runs.
var current = FormatYAML

// SetOutputFormat selects the format for subsequent Output calls.
// Unrecognized values fall back to YAML.
func SetOutputFormat(format string) {
	if Format(format) == FormatJSON {
		current = FormatJSON
		return
	}
	current = FormatYAML
}

// GetOutputFormat returns the active format.
func GetOutputFormat() Format {
	return current
}

// Output writes v to stdout in the active format.
func Output(v any) error {
	return Encode(os.Stdout, current, v)
}

// Encode writes v to w in the given format.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
