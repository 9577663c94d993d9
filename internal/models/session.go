package models

import (
	"time"
)

// ExamSession is one scheduled occurrence of an exam. Lifecycle is owned by
// the external session-management service; this service reads it to decide
// eligibility and to key prints.
type ExamSession struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	ExamID uint   `json:"exam_id" gorm:"not null;index"`
	Title  string `json:"title" gorm:"size:255;not null"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Hidden sessions are never answerable regardless of the time window
	Hidden bool `json:"hidden" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exam Exam `json:"exam" gorm:"foreignKey:ExamID"`
}

// IsOpenAt reports whether the session accepts answers at the given instant.
func (s *ExamSession) IsOpenAt(t time.Time) bool {
	if s.Hidden {
		return false
	}
	return !t.Before(s.StartTime) && !t.After(s.EndTime)
}
