// Package io provides record ingestion and export contracts.
package io

import (
	"context"

	"github.com/hed1ad/goledger/pkg/record"
)

// Reader is the interface for reading records from various sources.
type Reader interface {
	// Read returns every record of the source.
	Read() ([]record.Record, error)

	// Stream returns a channel of records for incremental processing.
	// The channel is closed at the end of the source or when ctx is done.
	Stream(ctx context.Context) (<-chan record.Record, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for exporting records.
type Writer interface {
	// Write outputs a single record.
	Write(r record.Record) error

	// WriteAll outputs multiple records.
	WriteAll(records []record.Record) error

	// Close flushes and releases resources.
	Close() error
}
