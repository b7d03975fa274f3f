// Package csv reads and writes ledger records as CSV.
//
// The column set is id,type,amount,category,note,date. With a header row the
// columns may appear in any order and unknown columns are ignored.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledgerio "github.com/hed1ad/goledger/pkg/io"
	"github.com/hed1ad/goledger/pkg/record"
)

var _ ledgerio.Reader = (*Reader)(nil)

// Columns is the default column order.
var Columns = []string{"id", "type", "amount", "category", "note", "date"}

// Reader reads records from CSV files.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	cols      map[string]int
	line      int
	skipped   int
	logger    *zap.Logger
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithLogger sets the logger skipped rows are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReader opens filename for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFrom(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReaderFrom reads CSV from src. Close does not close src.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	r := &Reader{
		reader:    cr,
		hasHeader: true,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.cols = make(map[string]int, len(Columns))
	for i, c := range Columns {
		r.cols[c] = i
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		r.line++
		r.headers = headers
		r.cols = make(map[string]int, len(headers))
		for i, h := range headers {
			r.cols[strings.ToLower(strings.TrimSpace(h))] = i
		}
		for _, c := range []string{"type", "amount", "date"} {
			if _, ok := r.cols[c]; !ok {
				return nil, fmt.Errorf("header is missing column %q", c)
			}
		}
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Skipped returns how many malformed rows were dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns all well-formed records.
func (r *Reader) Read() ([]record.Record, error) {
	var data []record.Record

	for {
		rec, ok, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if ok {
			data = append(data, rec)
		}
	}

	return data, nil
}

// Stream returns a channel of records for incremental processing.
func (r *Reader) Stream(ctx context.Context) (<-chan record.Record, error) {
	out := make(chan record.Record, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				rec, ok, err := r.next()
				if err == io.EOF {
					return
				}
				if err != nil {
					r.logger.Error("csv stream aborted", zap.Int("line", r.line), zap.Error(err))
					return
				}
				if !ok {
					continue
				}

				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// next reads one row. A malformed row yields ok == false and is counted.
func (r *Reader) next() (rec record.Record, ok bool, err error) {
	row, err := r.reader.Read()
	if err == io.EOF {
		return rec, false, err
	}
	r.line++

	var perr *csv.ParseError
	if errors.As(err, &perr) {
		r.skip(err)
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}

	rec, err = r.parseRow(row)
	if err != nil {
		r.skip(err)
		return rec, false, nil
	}
	return rec, true, nil
}

func (r *Reader) skip(err error) {
	r.skipped++
	r.logger.Warn("skipping malformed row", zap.Int("line", r.line), zap.Error(err))
}

func (r *Reader) field(row []string, name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseRow converts a CSV row to a record.
func (r *Reader) parseRow(row []string) (record.Record, error) {
	if len(row) == 0 {
		return record.Record{}, errors.New("empty row")
	}

	kind, err := record.ParseKind(r.field(row, "type"))
	if err != nil {
		return record.Record{}, err
	}

	amount, err := ParseAmount(r.field(row, "amount"))
	if err != nil {
		return record.Record{}, err
	}

	date := r.field(row, "date")
	if _, err := record.ParseDate(date); err != nil {
		return record.Record{}, err
	}

	id := r.field(row, "id")
	if id == "" {
		id = record.NewID()
	}

	return record.Record{
		ID:       id,
		Kind:     kind,
		Amount:   amount,
		Category: r.field(row, "category"),
		Note:     r.field(row, "note"),
		Date:     date,
	}, nil
}

// ParseAmount parses a non-negative amount such as "1200", "$1,200.50" or
// "80.1". Currency symbols and thousands separators are dropped.
func ParseAmount(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if clean == "" {
		return 0, errors.New("empty amount")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %q", s)
	}

	f, _ := d.Round(2).Float64()
	return f, nil
}
