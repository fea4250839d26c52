package segment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nylar/kensaku/internal/model"
	"github.com/nylar/kensaku/internal/posting"
	apperrors "github.com/nylar/kensaku/pkg/errors"
)

func sampleEntries() []posting.TermEntry {
	return []posting.TermEntry{
		{Term: "acme", Postings: []posting.Posting{
			{DocumentID: 1, Index: model.NewIndex(3, "acme", []int{4, 4, 1})},
			{DocumentID: 2, Index: model.NewIndex(9, "acme", []int{0})},
		}},
		{Term: "we", Postings: []posting.Posting{
			{DocumentID: 1, Index: model.NewIndex(2, "we", []int{3, 15, 72})},
		}},
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, Extension))

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, name, r.Name())
	assert.Equal(t, 2, r.Terms())
	assert.Equal(t, uint32(2), r.DocCount())
	assert.Equal(t, 9, r.MaxID())

	got, err := r.Find("acme")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].DocumentID)
	assert.Equal(t, 3, got[0].Index.ID())
	assert.Equal(t, "acme", got[0].Index.Word())
	assert.Equal(t, []int{4, 4, 1}, got[0].Index.Locations())

	got, err = r.Find("we")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []int{3, 15, 72}, got[0].Index.Locations())

	got, err = r.Find("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWriteEmpty(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(nil)
	assert.Error(t, err)
}

func TestOpenReaderBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+Extension)
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0o644))

	_, err := OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSegment)
}

func TestOpenReaderChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries())
	require.NoError(t, err)
	path := filepath.Join(dir, name)

	r, err := OpenReader(path)
	require.NoError(t, err)
	dictOffset := r.header.DictOffset
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// flip one byte inside the dictionary; '[' becomes '{'
	data[dictOffset] ^= 0x20
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSegment)
}

func TestReaderDocuments(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries())
	require.NoError(t, err)
	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.HasDocument(1))
	assert.True(t, r.HasDocument(2))
	assert.False(t, r.HasDocument(3))

	for _, tc := range []struct {
		doc  int
		term string
		want bool
	}{
		{1, "we", true},
		{2, "acme", true},
		{2, "we", false},
		{3, "acme", false},
		{1, "missing", false},
	} {
		got, err := r.Contains(tc.doc, tc.term)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "doc %d term %q", tc.doc, tc.term)
	}
}

func TestOpenReaderBadLayout(t *testing.T) {
	tests := []struct {
		name   string
		modify func(h *Header)
	}{
		{"huge dictionary", func(h *Header) { h.DictSize = 1 << 62 }},
		{"negative dictionary", func(h *Header) { h.DictSize = -1 }},
		{"dictionary past end", func(h *Header) { h.DictOffset += 1 << 20 }},
		{"huge postings", func(h *Header) { h.PostSize = 1 << 62 }},
		{"postings overlap header", func(h *Header) { h.PostOffset = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			name, err := NewWriter(dir).Write(sampleEntries())
			require.NoError(t, err)
			path := filepath.Join(dir, name)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			h := decodeHeader(data[:HeaderSize])
			tt.modify(&h)
			encodeHeader(data[:HeaderSize], h)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err = OpenReader(path)
			assert.ErrorIs(t, err, apperrors.ErrCorruptSegment)
		})
	}
}

func TestWriteRemovesTempFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.rename = func(string, string) error { return errors.New("device busy") }

	_, err := w.Write(sampleEntries())
	assert.ErrorContains(t, err, "device busy")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
