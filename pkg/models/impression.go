package models

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one entry of a system's ranked list for a user, as pushed
// through the ingestion surface. Lists are kept sorted by Score descending.
type Candidate struct {
	ArticleID   string  `json:"article_id" db:"article_id"`
	Score       float64 `json:"score" db:"score"`
	Explanation string  `json:"explanation" db:"explanation"`
}

// Impression is one (user, article, system) row of the feedback ledger: a
// system's contribution reached a user at some position of the fused ranking.
// The contributing system is fixed at fusion time and never re-attributed.
type Impression struct {
	UserID        int64      `json:"user_id" db:"user_id"`
	ArticleID     string     `json:"article_id" db:"article_id"`
	SystemID      int64      `json:"system_id" db:"system_id"`
	PositionScore int        `json:"score" db:"score"`
	Explanation   string     `json:"explanation" db:"explanation"`
	InterleavedAt time.Time  `json:"recommendation_date" db:"recommendation_date"`
	SeenEmail     *time.Time `json:"seen_email,omitempty" db:"seen_email"`
	SeenWeb       *time.Time `json:"seen_web,omitempty" db:"seen_web"`
	ClickedEmail  *time.Time `json:"clicked_email,omitempty" db:"clicked_email"`
	ClickedWeb    *time.Time `json:"clicked_web,omitempty" db:"clicked_web"`
	Saved         *time.Time `json:"saved,omitempty" db:"saved"`
	ClickTrace    *uuid.UUID `json:"-" db:"trace_click_email"`
	SaveTrace     *uuid.UUID `json:"-" db:"trace_save_email"`
}

// DigestArticle is one ledger row joined with article metadata, as the digest
// dispatcher consumes it.
type DigestArticle struct {
	ArticleID     string
	Title         string
	Authors       []string
	Explanation   string
	PositionScore int
	InterleavedAt time.Time
}

// TraceStamp records the traces minted for one emitted (user, article) pair.
type TraceStamp struct {
	UserID     int64
	ArticleID  string
	ClickTrace uuid.UUID
	SaveTrace  uuid.UUID
}

// FeedbackRow is the flat impression+flags projection the reward aggregator
// reads. Date is the UTC calendar date of the interleaving.
type FeedbackRow struct {
	Date         time.Time
	UserID       int64
	SystemID     int64
	ClickedEmail *time.Time
	ClickedWeb   *time.Time
	Saved        *time.Time
}
