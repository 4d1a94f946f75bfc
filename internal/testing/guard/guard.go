// Package guard pins the environment for packages that build the runtime
// from env. Import it for side effects only.
package guard

import "os"

// Kept in sync with app.TestModeEnv; importing app here would create a cycle
// for its own tests.
const testModeEnv = "MARKET_TEST_MODE"

// Variables that would make a test reach real infrastructure.
var external = []string{"KAFKA_BROKERS", "PG_DSN", "REDIS_ADDR", "REDIS_PASSWORD"}

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
	for _, key := range external {
		_ = os.Unsetenv(key)
	}
}
