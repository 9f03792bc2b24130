package packets

import "github.com/Nixie-Tech-LLC/marquee/internal/model"

type CreateDistributionResponse struct {
	ID int `json:"id"`
}

// DistributionResponse adds derived figures to the stored row.
type DistributionResponse struct {
	model.ContentDistribution
	ExactProgress        float64  `json:"exact_progress"`
	EstimatedSecondsLeft *float64 `json:"estimated_seconds_left,omitempty"`
}
