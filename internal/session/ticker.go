package session

import (
	"sync"
	"time"
)

// DurationTicker reports the elapsed call time at a fixed interval while a
// call is active.
type DurationTicker struct {
	interval time.Duration
	mu       sync.Mutex
	stop     chan struct{}
	onTick   func(elapsed time.Duration)
}

func NewDurationTicker(interval time.Duration) *DurationTicker {
	if interval <= 0 {
		interval = time.Second
	}
	return &DurationTicker{interval: interval}
}

func (d *DurationTicker) OnTick(callback func(elapsed time.Duration)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTick = callback
}

// Start begins ticking from startedAt, replacing any running ticker.
func (d *DurationTicker) Start(startedAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		close(d.stop)
	}
	stop := make(chan struct{})
	d.stop = stop

	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				d.mu.Lock()
				callback := d.onTick
				stopped := d.stop != stop
				d.mu.Unlock()

				if stopped {
					return
				}
				if callback != nil {
					callback(now.Sub(startedAt).Truncate(time.Second))
				}
			}
		}
	}()
}

func (d *DurationTicker) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

func (d *DurationTicker) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}
