package optimization

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imageopt/optimizer/internal/pkg/registry"
	"github.com/imageopt/optimizer/internal/pkg/ttlstore"
)

// expiredContextSweepInterval is the fixed hourly cadence for sweeping
// expired request contexts and unlinking their temp files.
const expiredContextSweepInterval = time.Hour

// CleanupScheduler runs the TTL-store sweep and the hourly expired-context
// sweep on a single scheduler goroutine.
type CleanupScheduler struct {
	store           *ttlstore.Store
	registry        *registry.Registry
	storeInterval   time.Duration
	contextInterval time.Duration
	stopCh          chan struct{}
}

// NewCleanupScheduler builds a scheduler over store and registry. A
// non-positive storeInterval falls back to 5 minutes.
func NewCleanupScheduler(store *ttlstore.Store, reg *registry.Registry, storeInterval time.Duration) *CleanupScheduler {
	if storeInterval <= 0 {
		storeInterval = 5 * time.Minute
	}
	return &CleanupScheduler{
		store:           store,
		registry:        reg,
		storeInterval:   storeInterval,
		contextInterval: expiredContextSweepInterval,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the scheduler's background loop.
func (c *CleanupScheduler) Start() {
	go c.loop()
}

// Stop halts the background loop.
func (c *CleanupScheduler) Stop() {
	close(c.stopCh)
}

func (c *CleanupScheduler) loop() {
	storeTicker := time.NewTicker(c.storeInterval)
	defer storeTicker.Stop()
	contextTicker := time.NewTicker(c.contextInterval)
	defer contextTicker.Stop()

	for {
		select {
		case <-storeTicker.C:
			c.sweepStore()
		case <-contextTicker.C:
			c.sweepExpiredContexts()
		case <-c.stopCh:
			return
		}
	}
}

func (c *CleanupScheduler) sweepStore() {
	removed := c.store.Sweep()
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("cleanup: swept expired ttl entries")
	}
}

func (c *CleanupScheduler) sweepExpiredContexts() {
	paths := c.registry.ExpiredContextsWithFiles(time.Now())
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("cleanup: failed to unlink temp file")
		}
	}
	if len(paths) > 0 {
		log.Info().Int("unlinked", len(paths)).Msg("cleanup: swept expired request contexts")
	}
}
