package redis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(ErrNil))
	assert.True(t, IsNilError(fmt.Errorf("get postings:acme: %w", ErrNil)))
	assert.False(t, IsNilError(nil))
	assert.False(t, IsNilError(fmt.Errorf("connection refused")))
}
