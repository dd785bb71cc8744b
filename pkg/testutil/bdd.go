package testutil

import "testing"

// Given and Then name subtests as scenario steps. Each runs fn as a subtest,
// so a failing step reports its full scenario path.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("given "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("then "+desc, fn)
}
