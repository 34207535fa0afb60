// Package guard flips the runtime into test mode when imported from tests,
// keeping entrypoints away from live infrastructure.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LARDER_TEST_MODE") == "" {
			_ = os.Setenv("LARDER_TEST_MODE", "1")
		}
	})
}
