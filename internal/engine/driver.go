package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/liveness"
)

// CycleReport summarizes one pass over every player.
type CycleReport struct {
	StartedAt   time.Time             `json:"started_at"`
	Duration    time.Duration         `json:"duration"`
	Results     []SyncResult          `json:"results"`
	Errors      map[int]string        `json:"errors,omitempty"`
	Transitions []liveness.Transition `json:"transitions,omitempty"`
}

// RunCycle refreshes every player with a bounded number of workers, then
// sweeps liveness and polls active cast sessions. A failure or panic in one
// player's pipeline is reported for that player and does not stop the
// others.
func (e *Engine) RunCycle(ctx context.Context) (report CycleReport, err error) {
	started := e.now()
	report = CycleReport{StartedAt: started, Errors: make(map[int]string)}
	defer func() {
		report.Duration = e.now().Sub(started)
		e.metrics.CycleDuration.Observe(report.Duration.Seconds())
	}()

	players, err := e.store.ListPlayers(ctx)
	if err != nil {
		return report, fmt.Errorf("list players: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range players {
		p := players[i]
		g.Go(func() error {
			res, err := e.refreshSafely(p.ID, func() (SyncResult, error) { return e.refresh(gctx, p) })
			mu.Lock()
			defer mu.Unlock()
			report.Results = append(report.Results, res)
			if err != nil {
				report.Errors[p.ID] = err.Error()
				e.metrics.CyclePlayerErrors.Inc()
				e.logger.Error().Err(err).Int("player_id", p.ID).Msg("player sync failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Transitions, err = e.tracker.Sweep(ctx); err != nil {
		return report, err
	}
	e.reconcileCast(ctx)
	return report, nil
}

func (e *Engine) refreshSafely(playerID int, fn func() (SyncResult, error)) (res SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = SyncResult{PlayerID: playerID}
			err = fmt.Errorf("player %d pipeline panicked: %v", playerID, r)
		}
	}()
	return fn()
}

// reconcileCast clears the playback of cast players whose receiver went
// idle or stopped answering since the media was loaded.
func (e *Engine) reconcileCast(ctx context.Context) {
	if e.caster == nil {
		return
	}
	infos := e.caster.Poll(ctx)
	if len(infos) == 0 {
		return
	}
	players, err := e.store.ListPlayers(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("cast reconcile skipped")
		return
	}
	byDevice := make(map[string]int, len(players))
	for _, p := range players {
		if p.CastDeviceID != nil && *p.CastDeviceID != "" {
			byDevice[*p.CastDeviceID] = p.ID
		}
	}
	for _, info := range infos {
		if info.State != cast.StateIdle && info.State != cast.StateError {
			continue
		}
		if id, ok := byDevice[info.Device.ID]; ok {
			e.clearPlayback(ctx, id)
		}
	}
}

// Driver runs cycles on a fixed interval and on demand.
type Driver struct {
	engine   *Engine
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	trigger chan struct{}
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lastMu sync.RWMutex
	last   *CycleReport
}

// NewDriver builds a driver. Each cycle is bounded by the interval so a
// slow cycle cannot overlap the next.
func NewDriver(e *Engine, interval time.Duration, logger zerolog.Logger) *Driver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Driver{
		engine:   e,
		interval: interval,
		timeout:  interval,
		logger:   logger.With().Str("component", "driver").Logger(),
		trigger:  make(chan struct{}, 1),
	}
}

func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info().Dur("interval", d.interval).Msg("driver started")
}

// Stop cancels the loop and waits for the running cycle to return.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.running = false
	d.logger.Info().Msg("driver stopped")
}

// Trigger asks for a cycle as soon as the current one finishes. Triggers
// arriving while one is already queued are merged.
func (d *Driver) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Driver) Last() (CycleReport, bool) {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	if d.last == nil {
		return CycleReport{}, false
	}
	return *d.last, true
}

func (d *Driver) loop(ctx context.Context) {
	defer d.wg.Done()

	d.run(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.run(ctx)
		case <-d.trigger:
			d.run(ctx)
		}
	}
}

func (d *Driver) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	report, err := d.engine.RunCycle(cctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("cycle failed")
		return
	}
	d.lastMu.Lock()
	d.last = &report
	d.lastMu.Unlock()
	d.logger.Debug().
		Int("players", len(report.Results)).
		Int("errors", len(report.Errors)).
		Dur("duration", report.Duration).
		Msg("cycle finished")
}
