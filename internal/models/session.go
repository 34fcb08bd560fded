package models

import "time"

// StreamSession 监控会话
type StreamSession struct {
	ID        string     `json:"id"`
	SubjectID string     `json:"subjectId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Active    bool       `json:"active"`
}
