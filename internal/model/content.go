package model

import "time"

// Content is a single playable media asset. Duration is the default play
// time in seconds.
type Content struct {
	ID            int       `db:"id"              json:"id"`
	Name          string    `db:"name"            json:"name"`
	Type          string    `db:"type"            json:"type"`
	URL           string    `db:"url"             json:"url"`
	Duration      int       `db:"duration"        json:"duration"`
	FileSizeBytes int64     `db:"file_size_bytes" json:"file_size_bytes"`
	CreatedAt     time.Time `db:"created_at"      json:"created_at"`
}
