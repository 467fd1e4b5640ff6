package models

// ArticleRecommendationRequest is the ingestion body for article rankings.
// Keys of Recommendations are decimal user ids (JSON object keys are strings).
type ArticleRecommendationRequest struct {
	Recommendations map[string][]Candidate `json:"recommendations"`
}

// TopicRecommendationRequest is the ingestion body for topic rankings.
type TopicRecommendationRequest struct {
	Recommendations map[string][]TopicCandidate `json:"recommendations"`
}

// SimpleResponse is the legacy ingestion envelope.
type SimpleResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RewardQuery selects a window and shape for the reward aggregator.
type RewardQuery struct {
	Start       string `form:"start" validate:"required,datetime=2006-01-02"`
	End         string `form:"end" validate:"required,datetime=2006-01-02"`
	Mode        string `form:"mode" validate:"omitempty,oneof=article topic"`
	Aggregation string `form:"aggregation" validate:"omitempty,oneof=day week month"`
}

// RewardSeries is the aligned output of the reward aggregator.
type RewardSeries struct {
	SystemID              int64     `json:"system_id"`
	Mode                  string    `json:"mode"`
	Aggregation           string    `json:"aggregation"`
	Labels                []string  `json:"labels"`
	Impressions           []int     `json:"impressions"`
	MeanNormalizedRewards []float64 `json:"mean_normalized_rewards"`
}

// OutcomeSeries is the aligned win/tie/loss view of the same windows.
type OutcomeSeries struct {
	SystemID     int64     `json:"system_id"`
	Aggregation  string    `json:"aggregation"`
	Labels       []string  `json:"labels"`
	Impressions  []int     `json:"impressions"`
	MeanOutcomes []float64 `json:"mean_outcomes"`
}

// UserList is the paged id listing served to external systems.
type UserList struct {
	Num     int     `json:"num"`
	Start   int     `json:"start"`
	UserIDs []int64 `json:"user_ids"`
}

// RateLimitInfo describes the caller's current rate-limit window.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
