package labelcache

import (
	"log/slog"
	"sync"
)

// The catalog runs one label cache per process, constructed once during
// resource registration. The guard below keeps concurrent initialization
// attempts from double-constructing the underlying caches.

var (
	sharedMu sync.Mutex
	shared   *Cache
)

// Initialize constructs the process-wide shared cache. The first call wins;
// later calls are no-ops that only log. Lookups through Shared before
// Initialize are a programmer error.
func Initialize(cfg Config) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("label cache is already initialized")
		return nil
	}

	c, err := New(cfg)
	if err != nil {
		return err
	}
	shared = c
	return nil
}

// Shared returns the process-wide cache, or nil if Initialize has not
// been called.
func Shared() *Cache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}

// CleanUp evicts all entries and marks the shared cache uninitialized so a
// subsequent Initialize performs a full rebuild. Used for process shutdown
// and test isolation.
func CleanUp() {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		shared.Reset()
		shared = nil
	}
}
