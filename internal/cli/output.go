package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"
)

func validateOutput(format string) error {
	switch format {
	case outputJSON, outputYAML, outputTable:
		return nil
	}
	return types.NewValidationError(fmt.Sprintf("invalid output format %q (expected json, yaml or table)", format))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func printStatus(w io.Writer, format string, st types.PadStatus) error {
	switch format {
	case outputYAML:
		return printYAML(w, st)
	case outputTable:
		table := uitable.New()
		table.MaxColWidth = 40
		table.AddRow("FIELD", "VALUE")
		for _, f := range st.Fields() {
			table.AddRow(f[0], f[1])
		}
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		return printJSON(w, st)
	}
}

func printCapabilities(w io.Writer, format string, caps types.Capabilities) error {
	switch format {
	case outputYAML:
		return printYAML(w, caps)
	case outputTable:
		table := uitable.New()
		table.AddRow("FEATURE", "SUPPORTED")
		table.AddRow("model", caps.ModelHint)
		table.AddRow("power", caps.SupportsPower)
		table.AddRow("lock", caps.SupportsLock)
		table.AddRow("mode", caps.SupportsMode)
		table.AddRow("sensitivity", caps.SupportsSensitivity)
		table.AddRow("known models", fmt.Sprint(caps.SupportedModels))
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		return printJSON(w, caps)
	}
}
