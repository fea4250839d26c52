package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/nylar/kensaku/internal/model"
	"github.com/nylar/kensaku/internal/posting"
	apperrors "github.com/nylar/kensaku/pkg/errors"
)

// Reader serves term lookups from one segment file. The dictionary and the
// set of document ids are held in memory; postings are read on demand.
type Reader struct {
	file   *os.File
	name   string
	header Header
	dict   []DictEntry
	docs   map[int]struct{}
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", filepath.Base(path), err)
	}
	r.name = filepath.Base(path)
	return r, nil
}

func readSegment(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "unsupported version %d", header.Version)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if err := checkLayout(header, info.Size()); err != nil {
		return nil, err
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(dictBytes); want != got {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "dictionary checksum mismatch: want %08x got %08x", want, got)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	docs, err := readDocIDs(f, header, dict)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:   f,
		header: header,
		dict:   dict,
		docs:   docs,
	}, nil
}

// checkLayout rejects headers whose regions fall outside the file, so a
// corrupt size cannot drive an allocation.
func checkLayout(h Header, size int64) error {
	switch {
	case h.PostOffset < int64(HeaderSize), h.PostSize < 0, h.PostSize > size,
		h.DictSize < 0, h.DictOffset < h.PostOffset+h.PostSize,
		h.DictOffset > size, h.DictSize > size-h.DictOffset-int64(FooterSize):
		return apperrors.Newf(apperrors.ErrCorruptSegment,
			"header regions out of bounds (postings %d+%d, dictionary %d+%d, file %d)",
			h.PostOffset, h.PostSize, h.DictOffset, h.DictSize, size)
	}
	return nil
}

// readDocIDs collects the document ids present in the segment.
func readDocIDs(f *os.File, h Header, dict []DictEntry) (map[int]struct{}, error) {
	block := make([]byte, h.PostSize)
	if _, err := f.ReadAt(block, h.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	docs := make(map[int]struct{}, h.DocCount)
	for _, entry := range dict {
		end := entry.PostOffset + int64(entry.PostLen)
		if entry.PostOffset < 0 || entry.PostLen < 0 || end > h.PostSize {
			return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "postings for %q out of bounds", entry.Term)
		}
		var stored []struct {
			DocumentID int `json:"d"`
		}
		if err := json.Unmarshal(block[entry.PostOffset:end], &stored); err != nil {
			return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
		}
		for _, sp := range stored {
			docs[sp.DocumentID] = struct{}{}
		}
	}
	return docs, nil
}

// Find returns the postings stored for term, ordered by document id.
func (r *Reader) Find(term string) ([]posting.Posting, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return nil, nil
	}
	entry := r.dict[i]
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", term, err)
	}
	var stored []storedPosting
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", term, err)
	}
	out := make([]posting.Posting, 0, len(stored))
	for _, sp := range stored {
		out = append(out, posting.Posting{
			DocumentID: sp.DocumentID,
			Index:      model.NewIndex(sp.ID, term, sp.Locations),
		})
	}
	return out, nil
}

// HasDocument reports whether any record in the segment belongs to id.
func (r *Reader) HasDocument(id int) bool {
	_, ok := r.docs[id]
	return ok
}

// Contains reports whether the segment holds a record for (documentID, term).
func (r *Reader) Contains(documentID int, term string) (bool, error) {
	if !r.HasDocument(documentID) {
		return false, nil
	}
	postings, err := r.Find(term)
	if err != nil {
		return false, err
	}
	for _, p := range postings {
		if p.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// MaxID is the largest posting id stored in the segment.
func (r *Reader) MaxID() int {
	return int(r.header.MaxID)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
