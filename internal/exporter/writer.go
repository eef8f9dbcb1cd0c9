package exporter

import (
	"bufio"
	"io"
	"strings"
)

// Writer writes pre-quoted cells as comma separated lines.
type Writer struct {
	w    *bufio.Writer
	rows int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(cells []string) error {
	if _, err := w.w.WriteString(strings.Join(cells, ",")); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows counts the lines written, header included.
func (w *Writer) Rows() int { return w.rows }

func (w *Writer) Flush() error { return w.w.Flush() }
