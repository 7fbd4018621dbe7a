// Package guard switches the process into test mode when imported, so
// binaries and wiring code skip network side effects under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("KITCHENSTOCK_TEST_MODE") == "" {
			_ = os.Setenv("KITCHENSTOCK_TEST_MODE", "1")
		}
	})
}
