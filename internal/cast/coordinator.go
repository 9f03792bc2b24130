package cast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Nixie-Tech-LLC/marquee/internal/lockmap"
	"github.com/Nixie-Tech-LLC/marquee/internal/telemetry"
)

type Options struct {
	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration
	LoadTimeout      time.Duration
	StatusTimeout    time.Duration

	// DiscoveryCacheTTL reuses a discovery result for this long. Zero
	// disables the cache.
	DiscoveryCacheTTL time.Duration
	// DiscoveryInterval is the minimum gap between network broadcasts.
	// Zero disables throttling.
	DiscoveryInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		DiscoveryTimeout:  3 * time.Second,
		ConnectTimeout:    5 * time.Second,
		LoadTimeout:       5 * time.Second,
		StatusTimeout:     2 * time.Second,
		DiscoveryCacheTTL: 5 * time.Second,
		DiscoveryInterval: time.Second,
	}
}

type session struct {
	device    Device
	conn      Conn
	state     State
	mediaURL  string
	err       error
	updatedAt time.Time
}

func (s *session) info() SessionInfo {
	info := SessionInfo{Device: s.device, State: s.state, MediaURL: s.mediaURL, UpdatedAt: s.updatedAt}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Coordinator owns every cast session. Network calls for one device are
// serialized by that device's lock and never run under the session map
// lock, so a hung receiver only blocks callers of that receiver.
type Coordinator struct {
	discoverer Discoverer
	dialer     Dialer
	opts       Options
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	group   singleflight.Group
	limiter *rate.Limiter

	cacheMu  sync.Mutex
	cache    []Device
	cachedAt time.Time

	devices  *lockmap.Map[string]
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewCoordinator(discoverer Discoverer, dialer Dialer, opts Options, metrics *telemetry.Metrics, logger zerolog.Logger) *Coordinator {
	def := DefaultOptions()
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = opts.ConnectTimeout
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = def.StatusTimeout
	}
	limit := rate.Inf
	if opts.DiscoveryInterval > 0 {
		limit = rate.Every(opts.DiscoveryInterval)
	}
	return &Coordinator{
		discoverer: discoverer,
		dialer:     dialer,
		opts:       opts,
		metrics:    metrics,
		logger:     logger.With().Str("component", "cast").Logger(),
		now:        time.Now,
		limiter:    rate.NewLimiter(limit, 1),
		devices:    lockmap.New[string](),
		sessions:   make(map[string]*session),
	}
}

func (c *Coordinator) Options() Options { return c.opts }

// Discover returns the receivers that answered within timeout (the
// configured discovery timeout when timeout <= 0). Nothing answering is an
// empty result, not an error. Concurrent callers share one broadcast.
func (c *Coordinator) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = c.opts.DiscoveryTimeout
	}
	if devs, ok := c.cached(); ok {
		return devs, nil
	}

	ch := c.group.DoChan("discover", func() (any, error) {
		if !c.limiter.Allow() {
			c.cacheMu.Lock()
			defer c.cacheMu.Unlock()
			return cloneDevices(c.cache), nil
		}
		dctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		devs, err := c.discoverer.Discover(dctx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			c.metrics.CastOperations.WithLabelValues("discover", "error").Inc()
			return nil, err
		}
		c.metrics.CastOperations.WithLabelValues("discover", "ok").Inc()
		c.logger.Debug().Int("devices", len(devs)).Dur("timeout", timeout).Msg("discovery finished")

		c.cacheMu.Lock()
		c.cache = cloneDevices(devs)
		c.cachedAt = c.now()
		c.cacheMu.Unlock()
		return devs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("discover cast devices: %w", res.Err)
		}
		return cloneDevices(res.Val.([]Device)), nil
	}
}

// Find discovers and matches one device by id, falling back to name.
func (c *Coordinator) Find(ctx context.Context, deviceID, deviceName string) (*Device, error) {
	devs, err := c.Discover(ctx, 0)
	if err != nil {
		return nil, err
	}
	return MatchDevice(devs, deviceID, deviceName), nil
}

// Connect opens a session with the device known as deviceID, or by
// deviceName when the id no longer answers. It returns the id actually
// used, which differs from deviceID when a cached id was corrected. Any
// existing session for the device is released first.
func (c *Coordinator) Connect(ctx context.Context, deviceID, deviceName string) (string, error) {
	key := deviceID
	if key == "" {
		key = deviceName
	}
	if key == "" {
		return "", fmt.Errorf("%w: no device id or name", ErrDeviceNotFound)
	}
	unlock := c.devices.Lock(key)
	defer func() { unlock() }()

	c.teardown(key, true)
	c.put(key, &session{device: Device{ID: deviceID, Name: deviceName}, state: StateDiscovering})

	dev, err := c.Find(ctx, deviceID, deviceName)
	if err != nil {
		c.fail(key, err)
		return "", err
	}
	if dev == nil {
		err := fmt.Errorf("%w: id=%q name=%q", ErrDeviceNotFound, deviceID, deviceName)
		c.fail(key, err)
		c.metrics.CastOperations.WithLabelValues("connect", "not_found").Inc()
		return "", err
	}
	if dev.ID != key {
		c.detach(key)
		// one device lock at a time keeps lock order trivial
		unlock()
		unlock = c.devices.Lock(dev.ID)
		c.teardown(dev.ID, true)
		c.logger.Info().Str("cached_id", deviceID).Str("device_id", dev.ID).Str("name", dev.Name).Msg("cast device id corrected")
	}
	c.put(dev.ID, &session{device: *dev, state: StateDiscovering})

	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, err := c.dialer.Dial(dctx, *dev)
	cancel()
	c.metrics.CastOperations.WithLabelValues("connect", telemetry.Result(err)).Inc()
	if err != nil {
		err = fmt.Errorf("connect to %s: %w", dev.ID, err)
		c.fail(dev.ID, err)
		return "", err
	}

	if replaced := c.put(dev.ID, &session{device: *dev, conn: conn, state: StateConnected}); replaced != nil && replaced.conn != nil && replaced.conn != conn {
		_ = replaced.conn.Close(true)
	}
	c.logger.Info().Str("device_id", dev.ID).Str("address", dev.Address).Msg("cast session connected")
	return dev.ID, nil
}

// LoadMedia starts rendering req on a connected device. It does not retry;
// on failure the session moves to error and the caller decides whether to
// reconnect.
func (c *Coordinator) LoadMedia(ctx context.Context, deviceID string, req MediaRequest) error {
	unlock := c.devices.Lock(deviceID)
	defer unlock()

	conn, err := c.liveConn(deviceID)
	if err != nil {
		return err
	}

	lctx, cancel := context.WithTimeout(ctx, c.opts.LoadTimeout)
	err = conn.Load(lctx, req)
	cancel()
	c.metrics.CastOperations.WithLabelValues("load", telemetry.Result(err)).Inc()
	if err != nil {
		err = fmt.Errorf("load media on %s: %w", deviceID, err)
		c.fail(deviceID, err)
		return err
	}

	c.mu.Lock()
	if s, ok := c.sessions[deviceID]; ok {
		s.state = StateCasting
		s.mediaURL = req.URL
		s.err = nil
		s.updatedAt = c.now()
	}
	c.mu.Unlock()
	c.logger.Info().Str("device_id", deviceID).Str("title", req.Title).Msg("media loaded")
	return nil
}

// Status asks the receiver what it is playing.
func (c *Coordinator) Status(ctx context.Context, deviceID string) (MediaStatus, error) {
	unlock := c.devices.Lock(deviceID)
	defer unlock()
	return c.status(ctx, deviceID)
}

func (c *Coordinator) status(ctx context.Context, deviceID string) (MediaStatus, error) {
	conn, err := c.liveConn(deviceID)
	if err != nil {
		return MediaStatus{}, err
	}
	sctx, cancel := context.WithTimeout(ctx, c.opts.StatusTimeout)
	defer cancel()
	st, err := conn.Status(sctx)
	if err != nil {
		return MediaStatus{}, fmt.Errorf("status of %s: %w", deviceID, err)
	}
	return st, nil
}

// Poll checks every casting session. Receivers that stopped playing move
// to idle and receivers that stopped answering move to error.
func (c *Coordinator) Poll(ctx context.Context) []SessionInfo {
	c.mu.Lock()
	var casting []string
	for id, s := range c.sessions {
		if s.state == StateCasting {
			casting = append(casting, id)
		}
	}
	c.mu.Unlock()

	for _, id := range casting {
		unlock := c.devices.Lock(id)
		st, err := c.status(ctx, id)
		switch {
		case err != nil:
			c.fail(id, err)
			c.logger.Warn().Err(err).Str("device_id", id).Msg("cast session lost")
		case st.Idle():
			c.mu.Lock()
			if s, ok := c.sessions[id]; ok {
				s.state = StateIdle
				s.mediaURL = ""
				s.updatedAt = c.now()
			}
			c.mu.Unlock()
		}
		unlock()
	}
	return c.Sessions()
}

// Disconnect releases the device session and stops its media.
func (c *Coordinator) Disconnect(deviceID string) error {
	unlock := c.devices.Lock(deviceID)
	defer unlock()
	return c.teardown(deviceID, true)
}

// State reports the session for deviceID; devices without a session are
// idle.
func (c *Coordinator) State(deviceID string) SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[deviceID]; ok {
		return s.info()
	}
	return SessionInfo{Device: Device{ID: deviceID}, State: StateIdle}
}

func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionInfo, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.info())
	}
	return out
}

// Close releases every session. Later calls fail with ErrClosed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	all := c.sessions
	c.sessions = make(map[string]*session)
	c.mu.Unlock()

	var errs []error
	for id, s := range all {
		if s.conn == nil {
			continue
		}
		if err := s.conn.Close(true); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) liveConn(deviceID string) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	s, ok := c.sessions[deviceID]
	if !ok || s.conn == nil || (s.state != StateConnected && s.state != StateCasting) {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}
	return s.conn, nil
}

func (c *Coordinator) put(id string, s *session) *session {
	s.updatedAt = c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.sessions[id]
	c.sessions[id] = s
	return prev
}

func (c *Coordinator) detach(id string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[id]
	delete(c.sessions, id)
	return s
}

// fail moves the session to error and drops its connection.
func (c *Coordinator) fail(id string, err error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	var conn Conn
	if ok {
		conn = s.conn
		s.conn = nil
		s.state = StateError
		s.err = err
		s.mediaURL = ""
		s.updatedAt = c.now()
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(false)
	}
}

func (c *Coordinator) teardown(id string, stopMedia bool) error {
	s := c.detach(id)
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(stopMedia); err != nil {
		c.logger.Warn().Err(err).Str("device_id", id).Msg("cast session close failed")
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

func (c *Coordinator) cached() ([]Device, bool) {
	if c.opts.DiscoveryCacheTTL <= 0 {
		return nil, false
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cachedAt.IsZero() || c.now().Sub(c.cachedAt) > c.opts.DiscoveryCacheTTL {
		return nil, false
	}
	return cloneDevices(c.cache), true
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// MatchDevice finds a device by exact id, then exact name, then by a
// case-insensitive or normalized name.
func MatchDevice(devices []Device, deviceID, deviceName string) *Device {
	deviceID = strings.TrimSpace(deviceID)
	deviceName = strings.TrimSpace(deviceName)

	if deviceID != "" {
		for i := range devices {
			if devices[i].ID == deviceID {
				return &devices[i]
			}
		}
	}
	if deviceName == "" {
		return nil
	}
	for i := range devices {
		if strings.TrimSpace(devices[i].Name) == deviceName {
			return &devices[i]
		}
	}
	normalized := normalizeName(deviceName)
	for i := range devices {
		if strings.EqualFold(strings.TrimSpace(devices[i].Name), deviceName) ||
			normalizeName(devices[i].Name) == normalized {
			return &devices[i]
		}
	}
	return nil
}

// normalizeName lowercases and drops a trailing " (model)" suffix.
func normalizeName(v string) string {
	n := strings.ToLower(strings.TrimSpace(v))
	if idx := strings.LastIndex(n, " ("); idx > 0 && strings.HasSuffix(n, ")") {
		n = strings.TrimSpace(n[:idx])
	}
	return n
}

func cloneDevices(in []Device) []Device {
	if in == nil {
		return []Device{}
	}
	out := make([]Device, len(in))
	copy(out, in)
	return out
}
