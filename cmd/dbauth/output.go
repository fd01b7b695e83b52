package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// tokenView is what the token command prints.
type tokenView struct {
	Account  string    `json:"account" yaml:"account"`
	Password string    `json:"password" yaml:"password"`
	Issued   time.Time `json:"issued" yaml:"issued"`
}

// formatToken writes view to w in the given format.
func formatToken(w io.Writer, format string, view tokenView) error {
	switch format {
	case formatTable, "":
		data := pterm.TableData{
			{"Account", "Password", "Issued"},
			{view.Account, view.Password, view.Issued.Format(time.RFC3339)},
		}
		return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()

	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(view); err != nil {
			return errors.Annotate(err, "failed to encode JSON")
		}
		return nil

	case formatYAML:
		encoder := yaml.NewEncoder(w)
		defer func() { _ = encoder.Close() }()
		encoder.SetIndent(2)
		if err := encoder.Encode(view); err != nil {
			return errors.Annotate(err, "failed to encode YAML")
		}
		return nil

	default:
		return errors.NotValidf("output format %q", format)
	}
}
