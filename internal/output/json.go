package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter writes each payload as one JSON document.
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
	}
}

func (w *JSONWriter) Write(payload any) error {
	var (
		out []byte
		err error
	)
	if w.pretty {
		out, err = json.MarshalIndent(payload, "", w.indent)
	} else {
		out, err = json.Marshal(payload)
	}
	if err != nil {
		return err
	}
	if _, err := w.w.Write(out); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONWriter) Close() error {
	return w.w.Flush()
}

// JSONLWriter writes newline-delimited JSON. A list payload is split into
// one line per element so results can be piped into line-based tools.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

func (w *JSONLWriter) Write(payload any) error {
	if items, ok := payload.([]any); ok {
		for _, item := range items {
			if err := w.line(item); err != nil {
				return err
			}
		}
		return w.w.Flush()
	}
	if err := w.line(payload); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLWriter) line(v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(out); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}
