package bridge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/registry"
	"keepkeycore/internal/status"
	"keepkeycore/internal/transport"
)

// fakeCarrier lets the bridge test drive a worker without real
// hardware, the same role the queue package's scripted carriers play
// in worker_test.go.
type fakeCarrier struct{}

func (f *fakeCarrier) Open(deviceinfo.Descriptor) error { return nil }
func (f *fakeCarrier) Close() error                     { return nil }
func (f *fakeCarrier) MTU() int                         { return 63 }
func (f *fakeCarrier) Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error) {
	return 0, nil, context.DeadlineExceeded
}

// singleShotEnumerator reports one descriptor on the first poll and
// nothing thereafter, enough for the watcher to attach exactly once.
type singleShotEnumerator struct {
	d    deviceinfo.Descriptor
	done bool
}

func (e *singleShotEnumerator) Enumerate() ([]deviceinfo.Descriptor, error) {
	if e.done {
		return nil, nil
	}
	e.done = true
	return []deviceinfo.Descriptor{e.d}, nil
}

func dialBufconn(t *testing.T, lis *bufconn.Listener) *Client {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	return &Client{conn: conn}
}

func TestBridge_ListDevices(t *testing.T) {
	bus := events.NewBus()
	reg := registry.New(bus, status.Thresholds{}, nil, time.Second)
	reg.SetCarrierFactory(func(deviceinfo.Descriptor) transport.Carrier { return &fakeCarrier{} })
	t.Cleanup(reg.Shutdown)

	d := deviceinfo.Descriptor{VendorID: 0x2b24, ProductID: deviceinfo.PIDModern, Serial: "abc123"}
	watcher := registry.NewWatcher(reg, &singleShotEnumerator{d: d}, 5*time.Millisecond, 2)
	go watcher.Run()
	t.Cleanup(watcher.Stop)

	require.Eventually(t, func() bool {
		_, ok := reg.Get(d.CanonicalID())
		return ok
	}, time.Second, 5*time.Millisecond)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterService(srv, NewServer(reg, bus))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client := dialBufconn(t, lis)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	list, err := client.ListDevices(ctx)
	require.NoError(t, err)
	assert.Contains(t, list.CanonicalIDs, d.CanonicalID())
}

func TestBridge_GetFeaturesUnknownDevice(t *testing.T) {
	bus := events.NewBus()
	reg := registry.New(bus, status.Thresholds{}, nil, time.Second)
	t.Cleanup(reg.Shutdown)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterService(srv, NewServer(reg, bus))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client := dialBufconn(t, lis)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.GetFeatures(ctx, "serial:does-not-exist")
	require.NoError(t, err)
	require.NotNil(t, resp.Err)
	assert.Contains(t, resp.Err.Msg, "no device")
}
