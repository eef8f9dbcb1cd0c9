package ndjson

import (
	"bufio"
	"encoding/json"
	"io"
)

// Writer writes one JSON document per line.
type Writer struct {
	w     *bufio.Writer
	count int
}

// NewWriter creates a Writer that buffers into w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write serialises v as a single line.
func (n *Writer) Write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	n.count++
	return nil
}

// Count returns the number of lines written.
func (n *Writer) Count() int { return n.count }

// Flush flushes any buffered data to the underlying writer.
func (n *Writer) Flush() error {
	return n.w.Flush()
}
