package domainerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, CodeTimeout, "waiting for consent")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, HasCode(err, CodeTimeout))
	assert.False(t, HasCode(err, CodeInternal))
	assert.Equal(t, "timeout: waiting for consent: context deadline exceeded", err.Error())
}

func TestHasCodeFindsInnerCode(t *testing.T) {
	inner := New(CodeInvalidInput, "bad alias")
	outer := Wrap(inner, CodeBadRequest, "build data model")

	assert.True(t, HasCode(outer, CodeBadRequest))
	assert.True(t, HasCode(outer, CodeInvalidInput))
	assert.Equal(t, CodeBadRequest, CodeOf(outer))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, CodeInternal))
}
