package packets

// REQUESTS FOR /api/distributions/*

type CreateDistributionRequest struct {
	ContentID int `json:"content_id" binding:"required,gt=0"`
	PlayerID  int `json:"player_id"  binding:"required,gt=0"`
	Priority  int `json:"priority"   binding:"gte=0"`
}

type ProgressRequest struct {
	BytesDownloaded int64   `json:"bytes_downloaded" binding:"gte=0"`
	DownloadSpeed   float64 `json:"download_speed"   binding:"gte=0"`
}

type FailRequest struct {
	Reason string `json:"reason" binding:"required"`
}
