package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	e := New(2001, 0, "boom", nil)
	assert.Equal(t, 200, e.HttpCode)
	assert.Equal(t, "boom", e.Error())

	wrapped := e.WithError(io.EOF)
	assert.Nil(t, e.Err, "WithError must not mutate the receiver")
	assert.Equal(t, "boom: EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, io.EOF)
}

func TestIsByCode(t *testing.T) {
	base := New(2002, 404, "not found", nil)
	derived := base.WithMessage("user 7 not found").WithError(io.ErrUnexpectedEOF)

	assert.True(t, Is(derived, base))
	assert.False(t, Is(derived, ErrNotFound))

	chained := fmt.Errorf("lookup: %w", derived)
	assert.True(t, Is(chained, base))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 401, HTTPStatus(ErrUnauthorized.WithMessage("bad token")))
	assert.Equal(t, 404, HTTPStatus(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.Equal(t, 500, HTTPStatus(io.EOF))
}
