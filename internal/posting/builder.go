package posting

import "github.com/nylar/kensaku/internal/model"

// Builder accumulates the posting records of a single document. It must be
// used by one goroutine at a time; the indexer creates one per document.
type Builder struct {
	documentID int
	ids        *IDAllocator
	byWord     map[string]*model.Index
	order      []*model.Index
}

func NewBuilder(documentID int, ids *IDAllocator) *Builder {
	return &Builder{
		documentID: documentID,
		ids:        ids,
		byWord:     make(map[string]*model.Index),
	}
}

func (b *Builder) DocumentID() int {
	return b.documentID
}

// GetOrCreate returns the record for word, creating an empty one with a fresh
// id on first sight. The bool reports whether the record was created.
func (b *Builder) GetOrCreate(word string) (*model.Index, bool) {
	if idx, ok := b.byWord[word]; ok {
		return idx, false
	}
	idx := model.NewIndex(b.ids.Next(), word, nil)
	b.byWord[word] = idx
	b.order = append(b.order, idx)
	return idx, true
}

// Add records one occurrence of word at position.
func (b *Builder) Add(word string, position int) {
	idx, _ := b.GetOrCreate(word)
	idx.AppendLocation(position)
}

// Records returns the built records in first-occurrence order.
func (b *Builder) Records() []*model.Index {
	out := make([]*model.Index, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of distinct words seen.
func (b *Builder) Len() int {
	return len(b.order)
}
