package models

import (
	"time"

	"gorm.io/datatypes"
)

type AnswerType string

const (
	AnswerInteger        AnswerType = "integer"
	AnswerFloat          AnswerType = "float"
	AnswerTrueFalse      AnswerType = "true_false"
	AnswerSingleChoice   AnswerType = "single_choice"
	AnswerMultipleChoice AnswerType = "multiple_choice"
	AnswerText           AnswerType = "text"
)

// IsChoice reports whether the type renders a list of options and therefore
// carries a shuffle permutation on each printed copy.
func (t AnswerType) IsChoice() bool {
	return t == AnswerSingleChoice || t == AnswerMultipleChoice
}

// Question is the question bank's content for one question. The bank is owned
// by the authoring service; this service only ever reads these rows.
type Question struct {
	ID   uint       `json:"id" gorm:"primaryKey"`
	Type AnswerType `json:"type" gorm:"not null;index"`
	Stem string     `json:"stem" gorm:"type:text;not null"`

	// Options stored as JSONB; empty for non-choice types
	Options datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb"`

	// Answer holds the type-specific correct-answer key as JSONB
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	CourseID  uint      `json:"course_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ===== ANSWER KEY SCHEMAS =====
//
// One schema per answer type, unmarshalled from Question.Answer. A malformed
// or missing key is a data-integrity fault, never silently defaulted.

type IntegerKey struct {
	Value int64 `json:"value"`
}

// FloatKey stores an inclusive acceptance range. Min and Max may arrive
// reversed from the authoring side; the scorer normalizes the order.
type FloatKey struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type TrueFalseKey struct {
	Answer string `json:"answer"` // "T" or "F"
}

// ChoiceKey aligns one correctness flag to each underlying option index.
type ChoiceKey struct {
	Correct []bool `json:"correct"`
}

type TextKey struct {
	Accepted      []string `json:"accepted"`
	CaseSensitive bool     `json:"case_sensitive"`
}
