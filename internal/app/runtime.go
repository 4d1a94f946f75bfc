package app

import (
	"os"
	"strconv"
)

// TestModeEnv switches the command entrypoints into a no-op mode so they can
// be imported by tests without dialing Postgres or Redis.
const TestModeEnv = "MARKET_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value. The variable is
// read on every call so t.Setenv takes effect.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
