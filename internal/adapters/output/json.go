package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONPrinter emits indented JSON, selected by the --json flag.
type JSONPrinter struct{}

// Print marshals the result and writes it to stdout.
func (JSONPrinter) Print(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(payload))
	return err
}
