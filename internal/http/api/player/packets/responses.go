package packets

import "github.com/Nixie-Tech-LLC/marquee/internal/model"

// RESPONSES FOR /api/players/:id/*

type PlaylistResponse struct {
	ETag string `json:"etag"`
	model.Playlist
}

type PlaybackResponse struct {
	Active  bool                   `json:"active"`
	Session *model.PlaybackSession `json:"session,omitempty"`
}
