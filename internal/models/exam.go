package models

import (
	"time"
)

// Exam is a reusable definition of question sets belonging to a course.
// Authoring (create/edit) is owned by the external exam-authoring service;
// this service reads exams to build prints and to cascade course removals.
type Exam struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`
	Title    string `json:"title" gorm:"size:255;not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sets []ExamSet `json:"sets" gorm:"foreignKey:ExamID"`
}

// ExamSet is a named subgroup of an exam's question pool contributing a fixed
// number of questions to every generated print.
type ExamSet struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	ExamID   uint   `json:"exam_id" gorm:"not null;index"`
	Title    string `json:"title" gorm:"size:255;not null"`
	Position int    `json:"position" gorm:"not null"`

	// NumQuestionsToPrint is how many questions this set contributes to each
	// print. The candidate pool may be smaller; the draw degrades gracefully.
	NumQuestionsToPrint int `json:"num_questions_to_print" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exam      Exam          `json:"exam" gorm:"foreignKey:ExamID"`
	Questions []SetQuestion `json:"questions" gorm:"foreignKey:SetID"`
}

// SetQuestion references one candidate question of a set. The declared answer
// type and shuffle flag are snapshotted here by the authoring side so a later
// bank edit cannot change the semantics of already-printed copies.
type SetQuestion struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	SetID      uint       `json:"set_id" gorm:"not null;index;uniqueIndex:idx_set_question"`
	QuestionID uint       `json:"question_id" gorm:"not null;index;uniqueIndex:idx_set_question"`
	Type       AnswerType `json:"type" gorm:"not null"`
	Shuffle    bool       `json:"shuffle" gorm:"not null;default:false"`

	// Invalid marks a question voided by staff after the session; its score
	// keeps counting into the raw total but not into the valid total.
	Invalid bool `json:"invalid" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`

	Set      ExamSet  `json:"set" gorm:"foreignKey:SetID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}
