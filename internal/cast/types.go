// Package cast discovers, connects to and drives third-party cast
// receivers on the local network.
package cast

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDeviceNotFound = errors.New("cast device not found")
	ErrNotConnected   = errors.New("cast device not connected")
	ErrClosed         = errors.New("cast coordinator closed")
)

type Device struct {
	ID      string `json:"device_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// State of a per-device session:
// idle -> discovering -> connected -> casting -> idle | error.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateConnected   State = "connected"
	StateCasting     State = "casting"
	StateError       State = "error"
)

type MediaRequest struct {
	URL         string            `json:"url"`
	ContentType string            `json:"content_type"`
	Title       string            `json:"title"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MediaStatus is what the receiver reports about its current media.
type MediaStatus struct {
	PlayerState string  `json:"player_state"`
	ContentID   string  `json:"content_id"`
	CurrentTime float64 `json:"current_time"`
}

// Idle reports whether the receiver is not rendering anything.
func (s MediaStatus) Idle() bool {
	return s.PlayerState == "" || s.PlayerState == "IDLE"
}

// Discoverer browses the local network until ctx is done and returns the
// devices that answered. Running out of time is not an error.
type Discoverer interface {
	Discover(ctx context.Context) ([]Device, error)
}

// Dialer opens a control session with a receiver.
type Dialer interface {
	Dial(ctx context.Context, d Device) (Conn, error)
}

// Conn is an open receiver session. Calls are bounded by ctx.
type Conn interface {
	Load(ctx context.Context, req MediaRequest) error
	Status(ctx context.Context) (MediaStatus, error)
	Close(stopMedia bool) error
}

// SessionInfo is a snapshot of one device session.
type SessionInfo struct {
	Device    Device    `json:"device"`
	State     State     `json:"state"`
	MediaURL  string    `json:"media_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
