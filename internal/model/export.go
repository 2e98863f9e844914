package model

import "time"

// SessionReport is the JSON export of one completed practice session.
type SessionReport struct {
	SessionID   string         `json:"interview_id"`
	TargetRole  string         `json:"target_role"`
	Difficulty  Difficulty     `json:"difficulty"`
	CompletedAt time.Time      `json:"completed_at"`
	Questions   []Question     `json:"questions"`
	Answers     []AnswerRecord `json:"answers"`
	Summary     SessionSummary `json:"summary"`
}
