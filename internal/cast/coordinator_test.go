package cast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

type fakeDiscoverer struct {
	mu      sync.Mutex
	devices []Device
	calls   atomic.Int32
	block   bool
	err     error
}

func (f *fakeDiscoverer) Discover(ctx context.Context) ([]Device, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Device(nil), f.devices...), f.err
}

type fakeConn struct {
	mu      sync.Mutex
	loaded  []MediaRequest
	status  MediaStatus
	loadErr error
	statErr error
	closed  bool
	stopped bool
}

func (c *fakeConn) Load(_ context.Context, req MediaRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return c.loadErr
	}
	c.loaded = append(c.loaded, req)
	c.status = MediaStatus{PlayerState: "PLAYING", ContentID: req.URL}
	return nil
}

func (c *fakeConn) Status(context.Context) (MediaStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.statErr
}

func (c *fakeConn) Close(stopMedia bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopped = stopMedia
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, _ Device) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

var lobby = Device{ID: "uuid-lobby", Name: "Lobby TV", Address: "10.0.0.5", Port: 8009}

func newCoordinator(disc Discoverer, dial Dialer) (*Coordinator, *telemetry.Metrics) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	opts := Options{DiscoveryTimeout: 50 * time.Millisecond, ConnectTimeout: time.Second}
	return NewCoordinator(disc, dial, opts, metrics, zerolog.Nop()), metrics
}

func TestMatchDevice(t *testing.T) {
	devices := []Device{
		{ID: "a", Name: "Kitchen"},
		{ID: "b", Name: "Lobby TV (Chromecast Ultra)"},
		{ID: "c", Name: "lobby"},
	}

	assert.Equal(t, "a", MatchDevice(devices, "a", "Lobby").ID)
	assert.Equal(t, "c", MatchDevice(devices, "gone", "lobby").ID)
	assert.Equal(t, "a", MatchDevice(devices, "", "KITCHEN").ID)
	assert.Equal(t, "b", MatchDevice(devices, "", "lobby tv").ID)
	assert.Nil(t, MatchDevice(devices, "gone", ""))
	assert.Nil(t, MatchDevice(devices, "", "Garage"))
}

func TestDiscoverTimeoutIsEmptyResult(t *testing.T) {
	c, _ := newCoordinator(&fakeDiscoverer{block: true}, &fakeDialer{})

	devs, err := c.Discover(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, devs)
}

func TestDiscoverErrorPropagates(t *testing.T) {
	c, metrics := newCoordinator(&fakeDiscoverer{err: errors.New("no multicast")}, &fakeDialer{})

	_, err := c.Discover(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CastOperations.WithLabelValues("discover", "error")))
}

func TestDiscoverCache(t *testing.T) {
	disc := &fakeDiscoverer{devices: []Device{lobby}}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	c := NewCoordinator(disc, &fakeDialer{}, Options{DiscoveryCacheTTL: time.Minute}, metrics, zerolog.Nop())

	for i := 0; i < 3; i++ {
		devs, err := c.Discover(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, devs, 1)
	}
	assert.Equal(t, int32(1), disc.calls.Load())
}

func TestConnectCorrectsStaleID(t *testing.T) {
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, dial)

	id, err := c.Connect(context.Background(), "stale-id", "lobby tv")
	require.NoError(t, err)
	assert.Equal(t, lobby.ID, id)
	assert.Equal(t, StateConnected, c.State(lobby.ID).State)
	assert.Equal(t, StateIdle, c.State("stale-id").State)
}

// gatedDialer blocks every dial until release is closed.
type gatedDialer struct {
	fakeDialer
	dialing chan struct{}
	release chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, dev Device) (Conn, error) {
	d.dialing <- struct{}{}
	<-d.release
	return d.fakeDialer.Dial(ctx, dev)
}

func TestConnectHoldsCorrectedDeviceLock(t *testing.T) {
	disc := &fakeDiscoverer{devices: []Device{lobby}}
	dial := &gatedDialer{dialing: make(chan struct{}, 1), release: make(chan struct{})}
	c, _ := newCoordinator(disc, dial)

	connected := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background(), "stale-id", "Lobby TV")
		connected <- err
	}()
	<-dial.dialing

	loaded := make(chan error, 1)
	go func() {
		loaded <- c.LoadMedia(context.Background(), lobby.ID, MediaRequest{URL: "http://media.local/a.mp4"})
	}()
	select {
	case err := <-loaded:
		t.Fatalf("load ran while the session was still dialing: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(dial.release)
	require.NoError(t, <-connected)
	require.NoError(t, <-loaded)
	assert.Equal(t, StateCasting, c.State(lobby.ID).State)
}

func TestConnectUnknownDevice(t *testing.T) {
	c, metrics := newCoordinator(&fakeDiscoverer{}, &fakeDialer{})

	_, err := c.Connect(context.Background(), "missing", "")
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, StateError, c.State("missing").State)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CastOperations.WithLabelValues("connect", "not_found")))
}

func TestConnectDialFailure(t *testing.T) {
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, &fakeDialer{err: errors.New("refused")})

	_, err := c.Connect(context.Background(), lobby.ID, "")
	require.Error(t, err)
	info := c.State(lobby.ID)
	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.Error, "refused")
}

func TestReconnectReleasesPreviousSession(t *testing.T) {
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, dial)
	ctx := context.Background()

	_, err := c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	require.NoError(t, c.LoadMedia(ctx, lobby.ID, MediaRequest{URL: "http://cdn/a.mp4"}))
	first := dial.last()

	_, err = c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	assert.True(t, first.closed)
	assert.True(t, first.stopped)
	assert.NotSame(t, first, dial.last())
	assert.Equal(t, StateConnected, c.State(lobby.ID).State)
}

func TestLoadMedia(t *testing.T) {
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, dial)
	ctx := context.Background()

	err := c.LoadMedia(ctx, lobby.ID, MediaRequest{URL: "x"})
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	require.NoError(t, c.LoadMedia(ctx, lobby.ID, MediaRequest{URL: "http://cdn/a.mp4", ContentType: "video/mp4"}))

	info := c.State(lobby.ID)
	assert.Equal(t, StateCasting, info.State)
	assert.Equal(t, "http://cdn/a.mp4", info.MediaURL)
	require.Len(t, dial.last().loaded, 1)
}

func TestLoadFailureMovesToError(t *testing.T) {
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, dial)
	ctx := context.Background()

	_, err := c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	conn := dial.last()
	conn.loadErr = errors.New("unsupported media")

	require.Error(t, c.LoadMedia(ctx, lobby.ID, MediaRequest{URL: "x"}))
	assert.Equal(t, StateError, c.State(lobby.ID).State)
	assert.True(t, conn.closed)
	assert.Len(t, conn.loaded, 0)
}

func TestPoll(t *testing.T) {
	devices := []Device{lobby, {ID: "uuid-bar", Name: "Bar"}}
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: devices}, dial)
	ctx := context.Background()

	_, err := c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	require.NoError(t, c.LoadMedia(ctx, lobby.ID, MediaRequest{URL: "a"}))
	lobbyConn := dial.last()

	_, err = c.Connect(ctx, "uuid-bar", "")
	require.NoError(t, err)
	require.NoError(t, c.LoadMedia(ctx, "uuid-bar", MediaRequest{URL: "b"}))
	barConn := dial.last()

	lobbyConn.mu.Lock()
	lobbyConn.status = MediaStatus{PlayerState: "IDLE"}
	lobbyConn.mu.Unlock()
	barConn.mu.Lock()
	barConn.statErr = errors.New("connection reset")
	barConn.mu.Unlock()

	infos := c.Poll(ctx)
	assert.Len(t, infos, 2)
	assert.Equal(t, StateIdle, c.State(lobby.ID).State)
	assert.Equal(t, StateError, c.State("uuid-bar").State)
}

func TestDisconnectAndClose(t *testing.T) {
	dial := &fakeDialer{}
	c, _ := newCoordinator(&fakeDiscoverer{devices: []Device{lobby}}, dial)
	ctx := context.Background()

	_, err := c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(lobby.ID))
	assert.True(t, dial.last().closed)
	assert.Equal(t, StateIdle, c.State(lobby.ID).State)

	_, err = c.Connect(ctx, lobby.ID, "")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.True(t, dial.last().closed)

	_, err = c.Discover(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
