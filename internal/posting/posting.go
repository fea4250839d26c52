// Package posting owns the (document, word) uniqueness of posting records.
// A Builder collects the records of one document on a single goroutine; a
// Store holds committed records for lookup and flushing, resolving
// duplicates with an explicit Policy.
package posting

import (
	"fmt"
	"sync/atomic"

	"github.com/nylar/kensaku/internal/model"
)

// Posting is a snapshot of one committed record.
type Posting struct {
	DocumentID int
	Index      *model.Index
}

// TermEntry groups every posting of one term, sorted by document id.
type TermEntry struct {
	Term     string
	Postings []Posting
}

// Policy decides how a commit treats a (document, word) pair that already
// has a record.
type Policy int

const (
	// PolicyReject fails the whole commit with ErrPostingExists.
	PolicyReject Policy = iota
	// PolicyMerge appends the incoming locations to the existing record.
	PolicyMerge
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyMerge:
		return "merge"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "reject":
		return PolicyReject, nil
	case "merge":
		return PolicyMerge, nil
	default:
		return 0, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// IDAllocator hands out posting record ids starting at 1. It is safe for
// concurrent use.
type IDAllocator struct {
	last atomic.Int64
}

// NewIDAllocator returns an allocator whose next id is after+1.
func NewIDAllocator(after int) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(int64(after))
	return a
}

func (a *IDAllocator) Next() int {
	return int(a.last.Add(1))
}

// Last returns the most recently issued id, or the seed if none was issued.
func (a *IDAllocator) Last() int {
	return int(a.last.Load())
}
