package posting

import (
	"sort"
	"sync"

	"github.com/nylar/kensaku/internal/model"
	apperrors "github.com/nylar/kensaku/pkg/errors"
)

// Store is the posting table consulted by the tokenizer pipeline and by
// lookups.
type Store interface {
	// GetOrCreate returns the live record for (documentID, word), creating an
	// empty one if needed. Appends to the returned record must be serialised
	// by the caller and must not overlap with Find, Get or Snapshot.
	GetOrCreate(documentID int, word string) (*model.Index, bool)
	// AppendLocation is GetOrCreate followed by AppendLocation under the
	// store's own lock.
	AppendLocation(documentID int, word string, position int)
	// Commit adds the records built for one document, resolving existing
	// (document, word) pairs with the store's Policy. It reports how many
	// records were merged into existing ones.
	Commit(documentID int, records []*model.Index) (merged int, err error)
	Get(documentID int, word string) (Posting, bool)
	// Find returns snapshots of every record for word, ordered by document id.
	Find(word string) []Posting
}

// MemoryStore is an in-memory Store keyed by word, then document id.
type MemoryStore struct {
	mu     sync.RWMutex
	index  map[string]map[int]*model.Index
	docs   map[int]int
	size   int64
	policy Policy
	ids    *IDAllocator
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(policy Policy, ids *IDAllocator) *MemoryStore {
	if ids == nil {
		ids = NewIDAllocator(0)
	}
	return &MemoryStore{
		index:  make(map[string]map[int]*model.Index),
		docs:   make(map[int]int),
		policy: policy,
		ids:    ids,
	}
}

func (m *MemoryStore) Policy() Policy {
	return m.policy
}

// IDs returns the allocator shared with builders feeding this store.
func (m *MemoryStore) IDs() *IDAllocator {
	return m.ids
}

func (m *MemoryStore) GetOrCreate(documentID int, word string) (*model.Index, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(documentID, word)
}

func (m *MemoryStore) AppendLocation(documentID int, word string, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, _ := m.getOrCreateLocked(documentID, word)
	idx.AppendLocation(position)
	m.size += 8
}

func (m *MemoryStore) getOrCreateLocked(documentID int, word string) (*model.Index, bool) {
	if idx, ok := m.index[word][documentID]; ok {
		return idx, false
	}
	idx := model.NewIndex(m.ids.Next(), word, nil)
	m.insertLocked(documentID, idx)
	return idx, true
}

func (m *MemoryStore) insertLocked(documentID int, idx *model.Index) {
	docs, ok := m.index[idx.Word()]
	if !ok {
		docs = make(map[int]*model.Index)
		m.index[idx.Word()] = docs
	}
	docs[documentID] = idx
	m.docs[documentID]++
	m.size += int64(len(idx.Word())+idx.Len()*8) + 64
}

// Commit applies records for documentID. Under PolicyReject the commit is
// all-or-nothing: if any word already has a record for the document, or the
// batch itself repeats a word, nothing is applied. Under PolicyMerge the
// incoming locations are appended to the existing record, which keeps its id.
func (m *MemoryStore) Commit(documentID int, records []*model.Index) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.policy == PolicyReject {
		seen := make(map[string]struct{}, len(records))
		for _, r := range records {
			if _, dup := seen[r.Word()]; dup {
				return 0, apperrors.Newf(apperrors.ErrPostingExists, "document %d word %q repeated in commit", documentID, r.Word())
			}
			seen[r.Word()] = struct{}{}
			if _, exists := m.index[r.Word()][documentID]; exists {
				return 0, apperrors.Newf(apperrors.ErrPostingExists, "document %d word %q", documentID, r.Word())
			}
		}
	}

	merged := 0
	for _, r := range records {
		existing, ok := m.index[r.Word()][documentID]
		if !ok {
			m.insertLocked(documentID, r.Clone())
			continue
		}
		for _, loc := range r.Locations() {
			existing.AppendLocation(loc)
		}
		m.size += int64(r.Len() * 8)
		merged++
	}
	return merged, nil
}

func (m *MemoryStore) Get(documentID int, word string) (Posting, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.index[word][documentID]
	if !ok {
		return Posting{}, false
	}
	return Posting{DocumentID: documentID, Index: idx.Clone()}, true
}

func (m *MemoryStore) Find(word string) []Posting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.index[word]
	if !ok {
		return nil
	}
	return sortedPostings(docs)
}

// Snapshot copies every record, grouped by term and sorted by term.
func (m *MemoryStore) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *MemoryStore) snapshotLocked() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: sortedPostings(docs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Flush hands a snapshot to write while holding the store's write lock and
// resets the store only if write succeeds, so no commit can land between the
// snapshot and the reset.
func (m *MemoryStore) Flush(write func([]TermEntry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.index) == 0 {
		return nil
	}
	if err := write(m.snapshotLocked()); err != nil {
		return err
	}
	m.resetLocked()
	return nil
}

// Size is an approximation of the memory held by the records, in bytes.
func (m *MemoryStore) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryStore) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Reset discards all records. The id allocator keeps counting so ids stay
// unique across flushes.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MemoryStore) resetLocked() {
	m.index = make(map[string]map[int]*model.Index)
	m.docs = make(map[int]int)
	m.size = 0
}

func sortedPostings(docs map[int]*model.Index) []Posting {
	out := make([]Posting, 0, len(docs))
	for docID, idx := range docs {
		out = append(out, Posting{DocumentID: docID, Index: idx.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}
