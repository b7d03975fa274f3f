package csv

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/shopspring/decimal"

	ledgerio "github.com/hed1ad/goledger/pkg/io"
	"github.com/hed1ad/goledger/pkg/record"
)

var _ ledgerio.Writer = (*Writer)(nil)

// Writer writes records as CSV in the default column order.
type Writer struct {
	closer      io.Closer
	writer      *csv.Writer
	header      bool
	wroteHeader bool
}

// Create creates filename and returns a writer that closes it on Close.
func Create(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := NewWriter(file)
	w.closer = file
	return w, nil
}

// NewWriter writes CSV with a header row to dst. Close does not close dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{
		writer: csv.NewWriter(dst),
		header: true,
	}
}

// Write outputs a single record.
func (w *Writer) Write(r record.Record) error {
	if w.header && !w.wroteHeader {
		if err := w.writer.Write(Columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	return w.writer.Write([]string{
		r.ID,
		r.Kind.String(),
		FormatAmount(r.Amount),
		r.Category,
		r.Note,
		r.Date,
	})
}

// WriteAll outputs multiple records and flushes.
func (w *Writer) WriteAll(records []record.Record) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows and closes the file opened by Create.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// FormatAmount renders an amount with two decimals.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
