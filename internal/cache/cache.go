package cache

import (
	"sync"
	"time"

	"github.com/juju/clock"

	applog "trackitall/internal/log"
)

// Cache defines a generic process-local cache
type Cache[T any] interface {
	// Get retrieves a value from the cache; expired entries are misses
	Get(key string) (T, bool)

	// Set stores a value for ttl. A non-positive ttl uses the cache default.
	Set(key string, data T, ttl time.Duration)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	clock  clock.Clock
	logger *applog.Logger

	mu          sync.Mutex
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager(clk clock.Clock, logger *applog.Logger) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Manager{
		clock:  clk,
		logger: logger.WithComponent(applog.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup begins periodic cleanup of all registered caches.
// Calling it while a cleanup loop is running is a no-op.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCleanup != nil {
		return
	}
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanup(interval, m.stopCleanup, m.cleanupDone)
}

func (m *Manager) cleanup(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-m.clock.After(interval):
			if n := m.CleanAll(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "removed", n)
			}
		case <-stop:
			return
		}
	}
}

// CleanAll purges expired entries from every registered cache.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.mu.Lock()
	stop, done := m.stopCleanup, m.cleanupDone
	m.stopCleanup, m.cleanupDone = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	m.logger.Debug("Cache cleanup stopped")
}
