// Package liveness decides whether players are online. The classification
// is always derived from timestamps; no online flag is stored.
package liveness

import (
	"time"

	"github.com/Nixie-Tech-LLC/marquee/internal/model"
)

// OnlineThreshold is how long a player stays online after its last
// confirmed contact.
const OnlineThreshold = 300 * time.Second

// Kind selects how presence is established for a player.
type Kind int

const (
	// KindNetwork players report in over the network; presence is ping
	// recency.
	KindNetwork Kind = iota
	// KindCast players are external receivers that must answer discovery.
	KindCast
)

func (k Kind) String() string {
	if k == KindCast {
		return "cast"
	}
	return "network"
}

// KindOf is decided once per player from its platform and cast identity.
func KindOf(p *model.Player) Kind {
	if p.Platform == model.PlatformCast && p.CastDeviceID != nil && *p.CastDeviceID != "" {
		return KindCast
	}
	return KindNetwork
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Reasons reported with a classification.
const (
	ReasonRecentPing       = "recent_ping"
	ReasonStalePing        = "stale_ping"
	ReasonNeverSeen        = "never_seen"
	ReasonUnknownTimestamp = "unknown"
	ReasonVerified         = "verified"
	ReasonNotVerified      = "not_verified"
	ReasonStaleVerified    = "stale_verification"
)

type Classification struct {
	PlayerID int        `json:"player_id"`
	Kind     string     `json:"kind"`
	Status   Status     `json:"status"`
	Reason   string     `json:"reason"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func (c Classification) Online() bool { return c.Status == StatusOnline }

// Classify derives the player's status at now. Network players are online
// while last_ping is recent. Cast players are online only while the last
// successful discovery is recent; a recent ping alone is not enough.
func Classify(p *model.Player, now time.Time, threshold time.Duration) Classification {
	if threshold <= 0 {
		threshold = OnlineThreshold
	}
	kind := KindOf(p)
	c := Classification{PlayerID: p.ID, Kind: kind.String(), Status: StatusOffline}

	ts := p.LastPing
	if kind == KindCast {
		ts = p.LastVerifiedAt
	}
	c.LastSeen = ts.Ptr()

	switch {
	case !ts.Valid && ts.Raw != "":
		c.Reason = ReasonUnknownTimestamp
	case !ts.Valid && kind == KindCast:
		c.Reason = ReasonNotVerified
	case !ts.Valid:
		c.Reason = ReasonNeverSeen
	case now.Sub(ts.Time) < threshold:
		c.Status = StatusOnline
		c.Reason = ReasonRecentPing
		if kind == KindCast {
			c.Reason = ReasonVerified
		}
	case kind == KindCast:
		c.Reason = ReasonStaleVerified
	default:
		c.Reason = ReasonStalePing
	}
	return c
}
