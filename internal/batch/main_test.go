package batch

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies every worker goroutine spun up by New/NewTextProcessor
// is gone by the time the package's tests finish, since both processors
// own background worker pools that must shut down cleanly on Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
