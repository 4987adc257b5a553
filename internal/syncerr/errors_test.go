package syncerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomy(t *testing.T) {
	te := Transport("send", ErrDisconnected)
	assert.True(t, IsTransport(te))
	assert.ErrorIs(t, te, ErrDisconnected)
	assert.False(t, IsPersistence(te))
	// already a transport error: not wrapped twice
	assert.Same(t, te, Transport("connect", te))
	assert.NoError(t, Transport("send", nil))

	pe := fmt.Errorf("add: %w", &PersistenceError{Op: "insert", ID: "1", Err: errors.New("500")})
	assert.True(t, IsPersistence(pe))
	assert.Contains(t, pe.Error(), "persist insert 1: 500")

	ve := &ValidationError{Field: "text", Err: ErrEmptyText}
	assert.True(t, IsValidation(ve))
	assert.ErrorIs(t, ve, ErrEmptyText)
	assert.Equal(t, "invalid text: todo text must not be empty", ve.Error())

	assert.ErrorIs(t, Transport("connect", context.Canceled), context.Canceled)
}
