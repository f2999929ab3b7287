// Package registry implements the device registry and hotplug watcher
// (spec §4.7): a canonical-id -> worker map plus a raw-id alias map,
// kept behind a single lock since only attach/detach ever touch it.
package registry

import (
	"log"
	"sync"
	"time"

	"keepkeycore/internal/corelog"
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/queue"
	"keepkeycore/internal/status"
	"keepkeycore/internal/transport"
)

// DefaultReconnectWindow is how long a worker with an active recovery
// session is kept alive after its device detaches (spec §4.7).
const DefaultReconnectWindow = 60 * time.Second

// pendingReconnect tracks a suspended worker waiting for its device to
// reattach under a new raw id.
type pendingReconnect struct {
	canonicalID string
	deadline    time.Time
}

// Registry owns the canonical-id -> worker map and the raw-id alias
// map (spec §4.7, §3 "device alias multimap"). It has no knowledge of
// *how* devices are discovered; Watcher (hotplug.go) drives it.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*queue.Worker
	aliases map[string]string
	pending map[string]pendingReconnect

	bus             *events.Bus
	thresholds      status.Thresholds
	hidOpen         transport.HIDOpener
	requestTimeout  time.Duration
	reconnectWindow time.Duration
	log             *log.Logger

	// carrierFactory builds the Carrier for a newly observed
	// descriptor. Defaults to transport.Select; tests in this package
	// override it with a scripted fake to exercise attach/detach/
	// reconnect logic without real hardware.
	carrierFactory func(deviceinfo.Descriptor) transport.Carrier
}

// New constructs an empty Registry. hidOpen is the seam for a real
// hidapi-style binding (spec §4.2.1); requestTimeout bounds every
// worker's per-request deadline (spec §5).
func New(bus *events.Bus, thresholds status.Thresholds, hidOpen transport.HIDOpener, requestTimeout time.Duration) *Registry {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}
	r := &Registry{
		workers:         make(map[string]*queue.Worker),
		aliases:         make(map[string]string),
		pending:         make(map[string]pendingReconnect),
		bus:             bus,
		thresholds:      thresholds,
		hidOpen:         hidOpen,
		requestTimeout:  requestTimeout,
		reconnectWindow: DefaultReconnectWindow,
		log:             corelog.For("registry"),
	}
	r.carrierFactory = func(d deviceinfo.Descriptor) transport.Carrier {
		return transport.Select(d, r.hidOpen)
	}
	return r
}

// SetCarrierFactory overrides how attach/reattach open a device's
// carrier, in place of the default transport.Select(d, hidOpen). This
// is the seam integration tests and the bridge package's own tests use
// to exercise the registry's attach/detach/reconnect logic against a
// scripted fake instead of real USB/HID hardware.
func (r *Registry) SetCarrierFactory(factory func(deviceinfo.Descriptor) transport.Carrier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carrierFactory = factory
}

// Get returns the worker for canonicalID, if one is currently tracked.
func (r *Registry) Get(canonicalID string) (*queue.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[canonicalID]
	return w, ok
}

// Resolve maps a raw (OS-reported) id to its canonical id, following
// the alias map.
func (r *Registry) Resolve(rawID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.aliases[rawID]
	return id, ok
}

// CanonicalIDs returns a snapshot of every canonical id currently
// tracked, for diagnostics and tests.
func (r *Registry) CanonicalIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every tracked worker. Call once, after the hotplug
// watcher's goroutine has exited.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	workers := make([]*queue.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*queue.Worker)
	r.aliases = make(map[string]string)
	r.pending = make(map[string]pendingReconnect)
	r.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// attach handles one observed descriptor: reuse an existing worker
// (plain pid refresh, or resuming a suspended reconnect), or start a
// new one. Grounded on the per-IP probe step of the teacher's
// DiscoverServers fan-out, generalized from "dial and record a
// result" to "open a carrier and adopt/create a worker".
func (r *Registry) attach(d deviceinfo.Descriptor) {
	rawID := d.RawID()
	canonicalID := d.CanonicalID()

	r.mu.Lock()
	if existing, ok := r.aliases[rawID]; ok {
		canonicalID = existing
	}
	w, exists := r.workers[canonicalID]
	pend, isPending := r.pending[canonicalID]
	r.mu.Unlock()

	switch {
	case isPending:
		r.resumeSuspended(d, rawID, canonicalID, w, pend)
	case exists:
		r.refreshTransport(d, rawID, canonicalID, w)
	default:
		r.createWorker(d, rawID, canonicalID)
	}
}

func (r *Registry) resumeSuspended(d deviceinfo.Descriptor, rawID, canonicalID string, w *queue.Worker, pend pendingReconnect) {
	var resumeErr error
	w.RunOnWorker(func(w *queue.Worker) {
		resumeErr = w.ResumeRecoverySession(canonicalID)
	})

	carrier := r.carrierFactory(d)
	if err := carrier.Open(d); err != nil {
		r.log.Printf("reconnect %s: carrier open failed: %v", canonicalID, err)
		return
	}
	w.AdoptTransport(d, carrier)

	r.mu.Lock()
	delete(r.pending, canonicalID)
	r.aliases[rawID] = canonicalID
	r.mu.Unlock()

	if resumeErr != nil {
		r.log.Printf("reconnect %s: recovery session not resumed: %v", canonicalID, resumeErr)
		return
	}
	r.bus.Publish(events.Event{
		Kind:     events.KindRecoveryReconnect,
		DeviceID: canonicalID,
		Payload:  events.RecoveryReconnectPayload{OldCanonicalID: pend.canonicalID, NewCanonicalID: canonicalID},
	})
}

func (r *Registry) refreshTransport(d deviceinfo.Descriptor, rawID, canonicalID string, w *queue.Worker) {
	if !w.HasTransport() {
		carrier := r.carrierFactory(d)
		if err := carrier.Open(d); err != nil {
			r.log.Printf("reopen %s: %v", canonicalID, err)
		} else {
			w.AdoptTransport(d, carrier)
		}
	}
	r.mu.Lock()
	r.aliases[rawID] = canonicalID
	r.mu.Unlock()
}

func (r *Registry) createWorker(d deviceinfo.Descriptor, rawID, canonicalID string) {
	carrier := r.carrierFactory(d)
	if err := carrier.Open(d); err != nil {
		r.log.Printf("open %s: %v", canonicalID, err)
		return
	}

	w := queue.New(d, carrier, r.bus, r.thresholds, r.requestTimeout)
	go w.Run()

	r.mu.Lock()
	r.workers[canonicalID] = w
	r.aliases[rawID] = canonicalID
	r.mu.Unlock()

	r.bus.Publish(events.Event{
		Kind:     events.KindDeviceAttached,
		DeviceID: canonicalID,
		Payload:  events.DeviceAttachedPayload{Descriptor: d},
	})
}

// detach handles the loss of rawID: a worker mid-recovery is retained
// in a pending-reconnect state for reconnectWindow; any other worker
// is stopped and dropped immediately (spec §4.7).
func (r *Registry) detach(rawID string, last deviceinfo.Descriptor) {
	r.mu.Lock()
	canonicalID, ok := r.aliases[rawID]
	if !ok {
		r.mu.Unlock()
		return
	}
	w, ok := r.workers[canonicalID]
	r.mu.Unlock()
	if !ok {
		return
	}

	var suspended bool
	w.RunOnWorker(func(w *queue.Worker) {
		suspended = w.SuspendRecoveryForReconnect(r.reconnectWindow)
	})
	if suspended {
		r.mu.Lock()
		r.pending[canonicalID] = pendingReconnect{canonicalID: canonicalID, deadline: time.Now().Add(r.reconnectWindow)}
		delete(r.aliases, rawID)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	delete(r.workers, canonicalID)
	delete(r.aliases, rawID)
	r.mu.Unlock()

	w.Stop()
	r.bus.Publish(events.Event{
		Kind:     events.KindDeviceDetached,
		DeviceID: canonicalID,
		Payload:  events.DeviceDetachedPayload{Descriptor: last},
	})
}

// expirePending drops any pending-reconnect entry whose window has
// elapsed without a matching reattach, stopping its worker for good.
func (r *Registry) expirePending(now time.Time) {
	r.mu.Lock()
	var expired []string
	for id, p := range r.pending {
		if now.After(p.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.pending, id)
	}
	workers := make([]*queue.Worker, 0, len(expired))
	for _, id := range expired {
		if w, ok := r.workers[id]; ok {
			workers = append(workers, w)
			delete(r.workers, id)
		}
	}
	r.mu.Unlock()

	for i, w := range workers {
		w.Stop()
		r.bus.Publish(events.Event{Kind: events.KindDeviceDetached, DeviceID: expired[i]})
	}
}
