package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/queue"
	"keepkeycore/internal/status"
	"keepkeycore/internal/transport"
)

// fakeCarrier never fails to open and never replies usefully; these
// tests only assert on attach/detach/alias bookkeeping, not on wire
// traffic (that is worker_test.go's job).
type fakeCarrier struct {
	openErr error
}

func (c *fakeCarrier) Open(deviceinfo.Descriptor) error { return c.openErr }
func (c *fakeCarrier) Close() error                     { return nil }
func (c *fakeCarrier) MTU() int                          { return 63 }
func (c *fakeCarrier) Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error) {
	return 0, nil, context.DeadlineExceeded
}

// scriptedEnumerator replays successive descriptor lists on each call,
// letting a test script an attach/detach/reattach sequence without a
// real hotplug source.
type scriptedEnumerator struct {
	calls [][]deviceinfo.Descriptor
	i     int
}

func (e *scriptedEnumerator) Enumerate() ([]deviceinfo.Descriptor, error) {
	if e.i >= len(e.calls) {
		return e.calls[len(e.calls)-1], nil
	}
	out := e.calls[e.i]
	e.i++
	return out, nil
}

func newTestRegistry() *Registry {
	bus := events.NewBus()
	r := New(bus, status.Thresholds{}, nil, time.Second)
	r.SetCarrierFactory(func(deviceinfo.Descriptor) transport.Carrier { return &fakeCarrier{} })
	return r
}

func TestRegistry_AttachCreatesWorker(t *testing.T) {
	r := newTestRegistry()
	defer r.Shutdown()

	d := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern}
	r.attach(d)

	w, ok := r.Get(d.CanonicalID())
	require.True(t, ok)
	assert.Equal(t, d.CanonicalID(), w.CanonicalID)

	canon, ok := r.Resolve(d.RawID())
	require.True(t, ok)
	assert.Equal(t, d.CanonicalID(), canon)
}

func TestRegistry_PIDChangeSameSerialKeepsCanonicalID(t *testing.T) {
	r := newTestRegistry()
	defer r.Shutdown()

	legacy := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDLegacyBootloader, Bus: 1, Address: 1}
	r.attach(legacy)
	before, ok := r.Get(legacy.CanonicalID())
	require.True(t, ok)

	modern := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern, Bus: 1, Address: 2}
	r.attach(modern)

	assert.Equal(t, legacy.CanonicalID(), modern.CanonicalID())
	after, ok := r.Get(modern.CanonicalID())
	require.True(t, ok)
	assert.Same(t, before, after, "refreshTransport should reuse the existing worker, not spawn a second one")
}

func TestRegistry_DetachWithoutRecoverySessionStopsWorker(t *testing.T) {
	r := newTestRegistry()
	defer r.Shutdown()

	d := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern}
	r.attach(d)
	_, ok := r.Get(d.CanonicalID())
	require.True(t, ok)

	r.detach(d.RawID(), d)

	_, ok = r.Get(d.CanonicalID())
	assert.False(t, ok, "detach with no active recovery session should drop the worker immediately")
}

func TestRegistry_DetachDuringRecoverySessionIsRetainedThenResumed(t *testing.T) {
	r := newTestRegistry()
	defer r.Shutdown()

	d := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern, Bus: 1, Address: 1}
	r.attach(d)
	w, ok := r.Get(d.CanonicalID())
	require.True(t, ok)

	w.RunOnWorker(func(w *queue.Worker) {
		w.StartRecoverySessionForTest()
	})

	r.detach(d.RawID(), d)
	_, ok = r.Get(d.CanonicalID())
	assert.True(t, ok, "a worker with an active recovery session must be retained across detach")

	reattached := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern, Bus: 2, Address: 5}
	sub := r.bus.Subscribe(4)
	r.attach(reattached)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, events.KindRecoveryReconnect, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected recovery_reconnected event")
	}
}

func TestRegistry_ExpirePendingDropsStaleReconnect(t *testing.T) {
	r := newTestRegistry()
	defer r.Shutdown()

	d := deviceinfo.Descriptor{Serial: "abc", ProductID: deviceinfo.PIDModern}
	r.attach(d)
	w, _ := r.Get(d.CanonicalID())
	w.RunOnWorker(func(w *queue.Worker) { w.StartRecoverySessionForTest() })

	r.detach(d.RawID(), d)
	_, ok := r.Get(d.CanonicalID())
	require.True(t, ok)

	r.expirePending(time.Now().Add(2 * time.Hour))

	_, ok = r.Get(d.CanonicalID())
	assert.False(t, ok, "an expired pending-reconnect worker must be dropped")
}
