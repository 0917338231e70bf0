package cli

import (
	"encoding/json"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats counts with thousands separators for human output.
var printer = message.NewPrinter(language.English)

func orStd(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
