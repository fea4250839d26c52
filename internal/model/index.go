package model

// Index is the posting record for one term within one document: the term and
// the positions at which it occurs, in the order the tokenizer found them.
//
// An Index owns its location slice exclusively. It has no internal locking;
// concurrent AppendLocation calls on the same record must be serialised by
// the caller.
type Index struct {
	id        int
	word      string
	locations []int
}

// NewIndex returns a posting record for word. The given locations are copied,
// so the caller may keep using its slice without affecting the record.
func NewIndex(id int, word string, locations []int) *Index {
	owned := make([]int, len(locations), max(len(locations), 4))
	copy(owned, locations)
	return &Index{
		id:        id,
		word:      word,
		locations: owned,
	}
}

func (i *Index) ID() int {
	return i.id
}

func (i *Index) Word() string {
	return i.word
}

// Locations returns a copy of the occurrence positions in append order.
func (i *Index) Locations() []int {
	out := make([]int, len(i.locations))
	copy(out, i.locations)
	return out
}

// Len returns the number of recorded occurrences.
func (i *Index) Len() int {
	return len(i.locations)
}

// AppendLocation records one more occurrence at the end of the list. Values
// are neither deduplicated nor checked against earlier positions.
func (i *Index) AppendLocation(position int) {
	i.locations = append(i.locations, position)
}

// Clone returns a deep copy of the record.
func (i *Index) Clone() *Index {
	return NewIndex(i.id, i.word, i.locations)
}
