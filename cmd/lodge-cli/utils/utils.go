package utils

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

func NewTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// WriteJSON writes `value` indented by two spaces without escaping html characters.
func WriteJSON(w io.Writer, value any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	err := enc.Encode(value)
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
