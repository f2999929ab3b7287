package registry

import (
	"log"
	"sync"
	"time"

	"keepkeycore/internal/corelog"
	"keepkeycore/internal/deviceinfo"
)

// DefaultPollInterval is how often the watcher re-enumerates devices
// when NewWatcher is given a non-positive interval (cmd/keepkeyd
// passes config.HotplugPollInterval instead). This interval just
// bounds how quickly an attach/detach is noticed.
const DefaultPollInterval = 250 * time.Millisecond

// DefaultConcurrency bounds how many devices the watcher opens
// carriers for at once during a single poll, mirroring the teacher's
// ConcurrentScans knob.
const DefaultConcurrency = 8

// Enumerator lists the devices currently visible to the OS. The real
// implementation walks USB/HID enumeration; tests inject a fake that
// returns a scripted descriptor list per call (spec §4.7: "polls or
// subscribes to OS events", abstracted behind this interface so the
// watcher's diff logic is testable without real hardware).
type Enumerator interface {
	Enumerate() ([]deviceinfo.Descriptor, error)
}

// Watcher polls an Enumerator on a bounded interval and diffs the
// observed descriptor set against what it last saw, feeding
// attach/detach transitions to a Registry. Generalizes
// internal/discovery/discovery.go's concurrent-fan-out-with-semaphore
// pattern: instead of probing IP ranges, it fans out carrier opens
// (and the registry's RunOnWorker calls) across newly seen and newly
// lost devices.
type Watcher struct {
	registry    *Registry
	enumerator  Enumerator
	interval    time.Duration
	concurrency int

	quit chan struct{}
	done chan struct{}
	log  *log.Logger
}

// NewWatcher constructs a Watcher. interval and concurrency fall back
// to DefaultPollInterval / DefaultConcurrency when <= 0.
func NewWatcher(registry *Registry, enumerator Enumerator, interval time.Duration, concurrency int) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Watcher{
		registry:    registry,
		enumerator:  enumerator,
		interval:    interval,
		concurrency: concurrency,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		log:         corelog.For("registry.hotplug"),
	}
}

// Run is the watcher's goroutine body; call it with `go w.Run()`.
func (w *Watcher) Run() {
	defer close(w.done)
	known := make(map[string]deviceinfo.Descriptor)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(known)
	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			w.poll(known)
			w.registry.expirePending(time.Now())
		}
	}
}

// Stop signals the watcher to exit and waits for it to do so.
func (w *Watcher) Stop() {
	close(w.quit)
	<-w.done
}

// poll runs one enumerate-diff-dispatch cycle, mutating known in place
// to reflect what it just observed.
func (w *Watcher) poll(known map[string]deviceinfo.Descriptor) {
	current, err := w.enumerator.Enumerate()
	if err != nil {
		w.log.Printf("enumerate: %v", err)
		return
	}

	seen := make(map[string]deviceinfo.Descriptor, len(current))
	for _, d := range current {
		seen[d.RawID()] = d
	}

	var attached, detached []deviceinfo.Descriptor
	for rawID, d := range seen {
		if _, ok := known[rawID]; !ok {
			attached = append(attached, d)
		}
	}
	for rawID, d := range known {
		if _, ok := seen[rawID]; !ok {
			detached = append(detached, d)
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.concurrency)

	for _, d := range attached {
		wg.Add(1)
		sem <- struct{}{}
		go func(d deviceinfo.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			w.registry.attach(d)
		}(d)
	}
	for _, d := range detached {
		wg.Add(1)
		sem <- struct{}{}
		go func(d deviceinfo.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			w.registry.detach(d.RawID(), d)
		}(d)
	}
	wg.Wait()

	for id := range known {
		delete(known, id)
	}
	for id, d := range seen {
		known[id] = d
	}
}
