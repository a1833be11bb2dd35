package models

import "time"

// QuestionLog records one answered question for reporting.
type QuestionLog struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Subject   string    `json:"subject"`
	Question  string    `json:"question"`
	Tier      ModelTier `json:"tier,omitempty"`
	FromCache bool      `json:"from_cache"`
	Source    Source    `json:"source"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Overview aggregates usage over the whole history.
type Overview struct {
	TotalUsers     int64   `json:"total_users"`
	TotalQuestions int64   `json:"total_questions"`
	CacheHits      int64   `json:"cache_hits"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
}

// PeriodStats aggregates usage since a point in time.
type PeriodStats struct {
	Since        time.Time      `json:"since"`
	NewUsers     int64          `json:"new_users"`
	Questions    int64          `json:"questions"`
	ActiveUsers  int64          `json:"active_users"`
	CacheHits    int64          `json:"cache_hits"`
	CacheHitRate float64        `json:"cache_hit_rate"`
	TopSubjects  []SubjectCount `json:"top_subjects,omitempty"`
	Daily        []DailyCount   `json:"daily,omitempty"`
}

// AvgDaily returns the mean number of questions per day in the breakdown.
func (p PeriodStats) AvgDaily() float64 {
	if len(p.Daily) == 0 {
		return 0
	}
	return float64(p.Questions) / float64(len(p.Daily))
}

// SubjectCount is a question count for one subject.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int64  `json:"count"`
}

// DailyCount is a question count for one calendar day (UTC).
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// UserActivity is a row of the most active users.
type UserActivity struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Questions int64  `json:"questions"`
}
