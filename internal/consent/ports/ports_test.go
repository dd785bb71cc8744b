package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationCancelIsIdempotent(t *testing.T) {
	calls := 0
	r := NewRegistration(func() { calls++ })

	r.Cancel()
	r.Cancel()

	assert.Equal(t, 1, calls)
}

func TestNilRegistrationCancel(t *testing.T) {
	var r *Registration
	assert.NotPanics(t, r.Cancel)
	assert.NotPanics(t, NewRegistration(nil).Cancel)
}
