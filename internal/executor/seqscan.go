// Package executor provides the sequential-scan contract spec.md §1 names
// as an external collaborator of the Buffer Pool: it drives heap.Table's
// Scan purely through Fetch/Unpin, never reaching into page internals.
// Grounded in the teacher's internal/sql/executor package's iterator
// shape, trimmed to the one operator this system owns.
package executor

import (
	"github.com/tuannm99/gopherdb/internal/common"
	"github.com/tuannm99/gopherdb/internal/heap"
	"github.com/tuannm99/gopherdb/internal/record"
)

// Predicate filters rows during a scan; nil means "match everything".
type Predicate func(record.Row) bool

// SeqScan iterates every live row of a table, optionally filtered by a
// predicate, pulling one page at a time through the buffer pool.
type SeqScan struct {
	scanner   *heap.Scanner
	predicate Predicate
}

func NewSeqScan(tb *heap.Table, predicate Predicate) *SeqScan {
	return &SeqScan{scanner: tb.Scan(), predicate: predicate}
}

// Next returns the next row matching the predicate, or ok=false once the
// table is exhausted.
func (s *SeqScan) Next() (common.RID, record.Row, bool, error) {
	for {
		rid, row, ok, err := s.scanner.Next()
		if err != nil || !ok {
			return common.RID{}, nil, false, err
		}
		if s.predicate == nil || s.predicate(row) {
			return rid, row, true, nil
		}
	}
}

// Collect drains the scan into a slice; intended for tests and small
// administrative queries, not for production-sized scans.
func (s *SeqScan) Collect() ([]record.Row, error) {
	var out []record.Row
	for {
		_, row, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}
