package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"

	"trackitall/internal/cache"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
	"trackitall/internal/taxonomy"
)

// CategoriesCacheKey is the cache entry holding the full category set.
const CategoriesCacheKey = "ExpenseCategories"

// CategoryProviderConfig holds the refresh schedule.
type CategoryProviderConfig struct {
	RefreshInterval time.Duration
	CacheMargin     time.Duration
}

// DefaultCategoryProviderConfig returns a daily refresh with a one hour margin.
func DefaultCategoryProviderConfig() CategoryProviderConfig {
	return CategoryProviderConfig{
		RefreshInterval: 24 * time.Hour,
		CacheMargin:     time.Hour,
	}
}

// CategoryProvider reloads categories from the secondary store into the
// cache on start and then every RefreshInterval. Refreshes never overlap:
// the next delay starts only after the previous load returns.
type CategoryProvider struct {
	source  taxonomy.CategoryReader
	cache   cache.Cache[[]core.Category]
	clock   clock.Clock
	config  CategoryProviderConfig
	metrics *metrics.Collector
	logger  *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewCategoryProvider(
	source taxonomy.CategoryReader,
	c cache.Cache[[]core.Category],
	clk clock.Clock,
	config CategoryProviderConfig,
	m *metrics.Collector,
	logger *applog.Logger,
) *CategoryProvider {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &CategoryProvider{
		source:  source,
		cache:   c,
		clock:   clk,
		config:  config,
		metrics: m,
		logger:  logger.WithComponent(applog.ComponentCategory),
	}
}

// cacheTTL outlives the refresh interval so one failed cycle does not empty
// the cache.
func (p *CategoryProvider) cacheTTL() time.Duration {
	return p.config.RefreshInterval + p.config.CacheMargin
}

// Start begins the refresh loop. Returns an error if already running.
func (p *CategoryProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("category provider is already running")
	}
	if p.config.RefreshInterval <= 0 {
		return fmt.Errorf("category refresh interval must be positive, got %v", p.config.RefreshInterval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.runLoop(ctx, p.stopCh, p.doneCh)

	p.logger.InfoContext(ctx, "Category provider started",
		"refresh_interval", p.config.RefreshInterval,
		"cache_ttl", p.cacheTTL())
	return nil
}

// Stop halts the loop and waits for an in-flight refresh, bounded by ctx.
func (p *CategoryProvider) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	close(p.stopCh)
	done := p.doneCh
	p.running = false
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Category provider stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop category provider: %w", ctx.Err())
	}
}

// IsRunning returns whether the refresh loop is active
func (p *CategoryProvider) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *CategoryProvider) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		// errors are logged and counted inside Refresh; the loop keeps going
		_ = p.Refresh(ctx)

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-p.clock.After(p.config.RefreshInterval):
		}
	}
}

// Refresh loads the full category set once. An empty result keeps the
// previously cached set.
func (p *CategoryProvider) Refresh(ctx context.Context) error {
	start := p.clock.Now()
	cats, err := p.source.ListCategories(ctx)
	if err != nil {
		p.metrics.CategoryRefresh(0, err)
		p.logger.ErrorContext(ctx, "Failed to refresh categories",
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldError, err)
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	p.metrics.CategoryRefresh(len(cats), nil)

	if len(cats) == 0 {
		p.logger.WarnContext(ctx, "Category source returned no categories, keeping cached set")
		return nil
	}

	p.cache.Set(CategoriesCacheKey, cats, p.cacheTTL())
	p.logger.InfoContext(ctx, "Categories refreshed",
		applog.FieldCategoryCount, len(cats),
		applog.FieldDuration, p.clock.Now().Sub(start).Milliseconds())
	return nil
}

// Categories returns a copy of the cached set, or an empty slice while the
// cache is cold. It never blocks on a refresh.
func (p *CategoryProvider) Categories() []core.Category {
	cats, ok := p.cache.Get(CategoriesCacheKey)
	if !ok {
		return []core.Category{}
	}
	out := make([]core.Category, len(cats))
	copy(out, cats)
	return out
}
