package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrPostingExists, "document %d word %q", 4, "acme")
	wrapped := fmt.Errorf("committing postings: %w", err)

	assert.True(t, Is(wrapped, ErrPostingExists))
	assert.False(t, Is(wrapped, ErrDocumentExists))
	assert.Equal(t, `posting already exists for document and word: document 4 word "acme"`, err.Error())

	var appErr *AppError
	assert.True(t, As(wrapped, &appErr))
	assert.Equal(t, `document 4 word "acme"`, appErr.Message)
}

func TestNew(t *testing.T) {
	err := New(ErrInvalidInput, "url is required")
	assert.Equal(t, "invalid input: url is required", err.Error())
}
