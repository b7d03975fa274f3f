// Package index provides in-memory record indexes.
package index

import "github.com/hed1ad/goledger/pkg/record"

// Index is the common contract of the record indexes.
type Index interface {
	// Insert stores a copy of r.
	Insert(r record.Record)

	// DeleteByID removes the record with the given id.
	// It returns false if no such record is stored.
	DeleteByID(id string) bool

	// FindByID returns a copy of the record with the given id.
	FindByID(id string) (record.Record, bool)

	// All returns copies of every stored record in the index's natural order.
	All() []record.Record

	// Len returns the number of stored records.
	Len() int
}
