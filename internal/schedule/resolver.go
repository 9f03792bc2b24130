package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// Source supplies the schedules attached to a player.
type Source interface {
	SchedulesForPlayer(ctx context.Context, playerID int) ([]model.Schedule, error)
}

// Gate is an extra admission check applied to schedules that already match
// in time. A non-nil error rejects the schedule as misconfigured.
type Gate func(s *model.Schedule, now time.Time) error

// Rejection is a schedule skipped because of a configuration error.
type Rejection struct {
	Schedule model.Schedule
	Err      error
}

// ResolvedState is the outcome of one resolution pass. Main is nil when no
// main-layer schedule is active; that is an idle state, not an error.
type ResolvedState struct {
	PlayerID int
	At       time.Time
	Main     *model.Schedule
	Overlays []model.Schedule
	Rejected []Rejection
}

type Resolver struct {
	source  Source
	matcher Matcher
	gate    Gate
}

func NewResolver(source Source, matcher Matcher) *Resolver {
	return &Resolver{source: source, matcher: matcher}
}

// WithGate returns a copy of r that applies gate during Resolve.
func (r *Resolver) WithGate(gate Gate) *Resolver {
	cp := *r
	cp.gate = gate
	return &cp
}

func (r *Resolver) Matcher() Matcher { return r.matcher }

// Resolve loads the player's schedules and selects the active layers.
func (r *Resolver) Resolve(ctx context.Context, playerID int, now time.Time) (ResolvedState, error) {
	if r.source == nil {
		return ResolvedState{}, errors.New("resolver has no schedule source")
	}
	list, err := r.source.SchedulesForPlayer(ctx, playerID)
	if err != nil {
		return ResolvedState{}, fmt.Errorf("load schedules for player %d: %w", playerID, err)
	}
	return r.Select(playerID, list, now, r.gate), nil
}

// Select is the pure part of Resolve. Schedules that belong to other
// players or are inactive are ignored.
func (r *Resolver) Select(playerID int, schedules []model.Schedule, now time.Time, gate Gate) ResolvedState {
	state := ResolvedState{PlayerID: playerID, At: now}

	var mains []model.Schedule
	for i := range schedules {
		s := schedules[i]
		if s.PlayerID != playerID || !s.IsActive {
			continue
		}
		ok, err := r.matcher.Check(&s, now)
		if err != nil {
			state.Rejected = append(state.Rejected, Rejection{Schedule: s, Err: err})
			continue
		}
		if !ok {
			continue
		}
		if gate != nil {
			if err := gate(&s, now); err != nil {
				state.Rejected = append(state.Rejected, Rejection{Schedule: s, Err: err})
				continue
			}
		}
		if s.ContentType == model.LayerOverlay {
			state.Overlays = append(state.Overlays, s)
		} else {
			mains = append(mains, s)
		}
	}

	if len(mains) > 0 {
		sort.Slice(mains, func(i, j int) bool { return outranks(&mains[i], &mains[j]) })
		winner := mains[0]
		state.Main = &winner
	}

	// Overlays do not compete; the order only makes output stable.
	sort.Slice(state.Overlays, func(i, j int) bool {
		a, b := state.Overlays[i], state.Overlays[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return state
}

// outranks orders main candidates: higher priority, then earlier start
// date, then lower id.
func outranks(a, b *model.Schedule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	as, bs := civilDate(a.StartDate), civilDate(b.StartDate)
	if !as.Equal(bs) {
		return as.Before(bs)
	}
	return a.ID < b.ID
}

// Rejections flattens rejected schedules for reporting.
func (s ResolvedState) Rejections() []model.ScheduleRejection {
	if len(s.Rejected) == 0 {
		return nil
	}
	out := make([]model.ScheduleRejection, 0, len(s.Rejected))
	for _, r := range s.Rejected {
		out = append(out, model.ScheduleRejection{
			ScheduleID: r.Schedule.ID,
			CampaignID: r.Schedule.CampaignID,
			Reason:     r.Err.Error(),
		})
	}
	return out
}
