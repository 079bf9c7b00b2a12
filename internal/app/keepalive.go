package app

import (
	"sync"
	"sync/atomic"
	"time"
)

// KeepAlive probes one connection for liveness. Each tick it checks
// whether the peer was heard from since the last probe; after maxMisses
// consecutive silent intervals it invokes terminate. Any inbound frame
// should call MarkAlive.
type KeepAlive struct {
	interval  time.Duration
	maxMisses int
	probe     func()
	terminate func()

	alive    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

func NewKeepAlive(interval time.Duration, maxMisses int, probe, terminate func()) *KeepAlive {
	k := &KeepAlive{
		interval:  interval,
		maxMisses: maxMisses,
		probe:     probe,
		terminate: terminate,
		done:      make(chan struct{}),
	}
	k.alive.Store(true)
	return k
}

func (k *KeepAlive) Start() {
	go k.loop()
}

func (k *KeepAlive) MarkAlive() {
	k.alive.Store(true)
}

func (k *KeepAlive) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *KeepAlive) loop() {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			if !k.alive.Swap(false) {
				misses++
				if misses >= k.maxMisses {
					k.terminate()
					return
				}
			} else {
				misses = 0
			}
			k.probe()
		}
	}
}
