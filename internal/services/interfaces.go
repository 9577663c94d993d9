package services

import (
	"context"

	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/scoring"
)

// ===== REQUEST/RESPONSE DTOs =====

type SubmitAnswerRequest struct {
	QuestionIndex int `json:"question_index" validate:"min=0"`

	// RawAnswer uses the per-type encoding: the literal value for integer,
	// float and text questions; "T"/"F" for true/false; a comma-separated
	// list of underlying option indices for choice questions, independent
	// of the shuffled display order.
	RawAnswer string `json:"raw_answer" validate:"max=4000"`
}

type PrintResponse struct {
	*models.ExamPrint
	CanAnswer bool                   `json:"can_answer"`
	Questions []*PrintedQuestionView `json:"questions,omitempty"`
}

// PrintedQuestionView is one question as the student sees it: options in
// display order, answer key withheld, score only once the print is sent.
type PrintedQuestionView struct {
	QuestionIndex int               `json:"question_index"`
	QuestionID    uint              `json:"question_id"`
	SetID         uint              `json:"set_id"`
	Type          models.AnswerType `json:"type"`
	Stem          string            `json:"stem"`
	Options       []string          `json:"options,omitempty"`
	RawAnswer     string            `json:"raw_answer"`
	Blank         bool              `json:"blank"`
	Valid         bool              `json:"valid"`
	Score         *float64          `json:"score,omitempty"`
}

type PrintListResponse struct {
	Prints []*PrintResponse `json:"prints"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ===== SERVICE CONFIG =====

// PrintConfig carries the tunables of the print engine.
type PrintConfig struct {
	// MaxQuestionsPerPrint caps the total questions drawn across all sets.
	MaxQuestionsPerPrint int

	Scoring scoring.Config
}

func DefaultPrintConfig() PrintConfig {
	return PrintConfig{
		MaxQuestionsPerPrint: 100,
		Scoring:              scoring.DefaultConfig(),
	}
}

// ===== SERVICE INTERFACES =====

// EligibilityChecker decides whether a user may sit a session. Enrollment and
// group membership live outside this service; the production implementation
// calls the course platform.
type EligibilityChecker interface {
	CanTake(ctx context.Context, session *models.ExamSession, userID string) (bool, error)
}

type PrintService interface {
	// Open returns the user's print for the session, creating and persisting
	// it on first access. Concurrent first opens converge on a single print.
	Open(ctx context.Context, sessionID uint, userID string) (*PrintResponse, error)

	// SubmitAnswer records one answer, rescores the question and recomputes
	// the print's aggregates atomically.
	SubmitAnswer(ctx context.Context, printID uint, req *SubmitAnswerRequest, userID string) (*PrintResponse, error)

	// Finish finalizes the print. Finishing an already-sent print is a no-op
	// that returns the stored result.
	Finish(ctx context.Context, printID uint, userID string) (*PrintResponse, error)

	// Get operations
	GetByID(ctx context.Context, printID uint, userID string) (*PrintResponse, error)
	GetBySession(ctx context.Context, sessionID uint, userID string) (*PrintResponse, error)

	// ListBySession returns all prints of a session for staff review.
	ListBySession(ctx context.Context, sessionID uint, filters repositories.PrintFilters) (*PrintListResponse, error)

	// Cleanup hooks driven by external account and course lifecycle
	RemoveForUser(ctx context.Context, userID string) (int64, error)
	RemoveForUserInCourse(ctx context.Context, userID string, courseID uint) (int64, error)
	RemoveForCourse(ctx context.Context, courseID uint) (int64, error)
}

type ExportService interface {
	// ExportSessionResults renders a session's prints as an xlsx workbook.
	ExportSessionResults(ctx context.Context, sessionID uint) ([]byte, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Print() PrintService
	Export() ExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
