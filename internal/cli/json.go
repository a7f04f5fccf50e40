package cli

import (
	"encoding/json"
	"io"

	"github.com/rileyhilliard/dgxops/internal/service"
)

// machineMode is --json: print the daemon's envelope verbatim and skip
// human decorations.
var machineMode bool

// writeEnvelope prints r the way the daemon serves it, indented.
func writeEnvelope(w io.Writer, r service.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// writeFailure prints the envelope for err with the same summary and code
// the daemon would have produced.
func writeFailure(w io.Writer, err error) error {
	return writeEnvelope(w, service.Fail(err))
}

// render prints data as a success envelope under --json and through
// human otherwise.
func render(w io.Writer, data any, human func(w io.Writer)) error {
	if machineMode {
		return writeEnvelope(w, service.OK(data))
	}
	human(w)
	return nil
}
