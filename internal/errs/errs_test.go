package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	nf := NotFound("update memory", "m1")
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.False(t, errors.Is(nf, ErrInvalid))
	assert.Equal(t, "update memory m1: not found", nf.Error())

	wrapped := fmt.Errorf("outer: %w", nf)
	assert.Equal(t, TypeNotFound, TypeOf(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}

func TestExternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("send message", "c1", cause)

	assert.True(t, errors.Is(err, ErrExternal))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "send message c1: connection refused", err.Error())
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))

	assert.Nil(t, External("noop", "", nil))
}

func TestUnclassified(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, TypeInternal, TypeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Superseded("test connection", "openai")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Invalid("save", "name is required")))
}
