package metrics

import (
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/storage"
)

// Collector periodically samples the session store to keep gauge
// metrics (as opposed to counters, which update inline at the call
// site) current between scrapes.
type Collector struct {
	store  storage.SessionStore
	stopCh chan struct{}
}

// NewCollector builds a Collector over store.
func NewCollector(store storage.SessionStore) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins the sampling loop in a goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	sessions, err := c.store.Iter()
	if err != nil {
		return
	}
	ActiveSessions.Set(float64(len(sessions)))
}
