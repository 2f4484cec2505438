package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// testModeEnv is set by test binaries; the mains return before touching
// the network when it is true.
const testModeEnv = "AUTHCORE_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads the environment flag.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.on.Store(on)
}
