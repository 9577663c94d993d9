package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExamPrint is one student's personal, randomized copy of an exam session.
// Created lazily on first access, mutated on every answer submission and
// finalized exactly once. At most one print exists per (session, user) pair,
// enforced by idx_print_session_user.
type ExamPrint struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID uint   `json:"session_id" gorm:"not null;uniqueIndex:idx_print_session_user"`
	UserID    string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_print_session_user"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	// Sent marks the print as finalized; no further mutation is accepted
	Sent bool `json:"sent" gorm:"not null;default:false;index"`

	// Aggregate counters, derived from the question rows and persisted for
	// fast reads. Recomputed from scratch on every change, never incremented.
	NumQuestions         int     `json:"num_questions"`
	NumQuestionsNotBlank int     `json:"num_questions_not_blank"`
	Score                float64 `json:"score"`
	ScoreValid           float64 `json:"score_valid"`
	NumCorrect           int     `json:"num_correct"`
	NumWrongNegative     int     `json:"num_wrong_negative"`
	NumWrongZero         int     `json:"num_wrong_zero"`
	NumWrongPositive     int     `json:"num_wrong_positive"`
	NumBlank             int     `json:"num_blank"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Session   ExamSession       `json:"session" gorm:"foreignKey:SessionID"`
	Questions []PrintedQuestion `json:"questions" gorm:"foreignKey:PrintID"`
}

// PrintedQuestion is one question drawn into a print. The shuffle permutation
// is generated once at creation and never regenerated; it maps display
// position to underlying option index.
type PrintedQuestion struct {
	ID            uint `json:"id" gorm:"primaryKey"`
	PrintID       uint `json:"print_id" gorm:"not null;uniqueIndex:idx_printed_question"`
	QuestionIndex int  `json:"question_index" gorm:"not null;uniqueIndex:idx_printed_question"`

	QuestionID uint `json:"question_id" gorm:"not null;index"`
	SetID      uint `json:"set_id" gorm:"not null;index"`

	// Empty for non-choice answer types
	ShuffleIndexes datatypes.JSONSlice[int] `json:"shuffle_indexes" gorm:"type:jsonb"`

	// RawAnswer encoding by type: integer/float/text the literal value as
	// text; true/false a single 'T'/'F' or empty; choice a comma-separated
	// list of selected underlying option indices.
	RawAnswer string  `json:"raw_answer" gorm:"type:text"`
	Score     float64 `json:"score"`

	// Valid is snapshotted from the set question at draw time; invalidated
	// questions are excluded from ScoreValid.
	Valid bool `json:"valid" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Print    ExamPrint `json:"print" gorm:"foreignKey:PrintID"`
	Question Question  `json:"question" gorm:"foreignKey:QuestionID"`
}

// IsBlank reports whether no answer content is stored for the question.
func (q *PrintedQuestion) IsBlank() bool {
	return q.RawAnswer == ""
}
