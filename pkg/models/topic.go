package models

import "time"

// TopicState tracks what a user did with a suggested or self-added topic.
type TopicState string

const (
	TopicUserAdded           TopicState = "USER_ADDED"
	TopicUserRejected        TopicState = "USER_REJECTED"
	TopicRecommendedAccepted TopicState = "SYSTEM_RECOMMENDED_ACCEPTED"
	TopicRecommendedRejected TopicState = "SYSTEM_RECOMMENDED_REJECTED"
	TopicExpired             TopicState = "EXPIRED"
	TopicRefreshed           TopicState = "REFRESHED"
)

// ValidTopicState reports whether s is one of the known lifecycle states.
func ValidTopicState(s TopicState) bool {
	switch s {
	case TopicUserAdded, TopicUserRejected, TopicRecommendedAccepted,
		TopicRecommendedRejected, TopicExpired, TopicRefreshed:
		return true
	}
	return false
}

// TopicCandidate is one entry of a system's ranked topic list for a user.
type TopicCandidate struct {
	Topic string  `json:"topic" db:"topic"`
	Score float64 `json:"score" db:"score"`
}

// SuggestedTopic is a fused topic suggestion as returned to the UI.
type SuggestedTopic struct {
	Topic             string    `json:"topic"`
	InterleavingOrder int       `json:"interleaving_order"`
	InterleavingBatch time.Time `json:"interleaving_batch"`
}

// TopicFeedbackRow is the topic-mode projection for the reward aggregator.
type TopicFeedbackRow struct {
	Date     time.Time
	UserID   int64
	SystemID int64
	State    *TopicState
}
