package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type PrintFilters struct {
	Sent      *bool      `json:"sent"`
	UserID    *string    `json:"user_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "started_at", "score", "user_id"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

// PrintAggregates carries the derived counters persisted on a print. They are
// always recomputed from the question rows, never hand-edited.
type PrintAggregates struct {
	NumQuestions         int     `json:"num_questions"`
	NumQuestionsNotBlank int     `json:"num_questions_not_blank"`
	Score                float64 `json:"score"`
	ScoreValid           float64 `json:"score_valid"`
	NumCorrect           int     `json:"num_correct"`
	NumWrongNegative     int     `json:"num_wrong_negative"`
	NumWrongZero         int     `json:"num_wrong_zero"`
	NumWrongPositive     int     `json:"num_wrong_positive"`
	NumBlank             int     `json:"num_blank"`
}

// ===== REPOSITORY INTERFACES =====

// PrintRepository persists exam prints and enforces the at-most-one-per-
// (session, user) invariant at the storage level.
type PrintRepository interface {
	// Create inserts the print plus its question rows. When another request
	// already created a print for the same (session, user) pair the insert is
	// a no-op and created is false; callers must reread.
	Create(ctx context.Context, tx *gorm.DB, print *models.ExamPrint, questions []*models.PrintedQuestion) (created bool, err error)

	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error)

	// GetBySessionAndUser returns the pair's print, or a not-found error when
	// none exists yet.
	GetBySessionAndUser(ctx context.Context, tx *gorm.DB, sessionID uint, userID string) (*models.ExamPrint, error)

	UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, agg PrintAggregates) error
	Finalize(ctx context.Context, tx *gorm.DB, id uint, endedAt time.Time, agg PrintAggregates) error

	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uint, filters PrintFilters) ([]*models.ExamPrint, int64, error)

	// Bulk cleanup hooks for the external account/course deletion workflow
	RemoveForUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	RemoveForUserInCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error)
	RemoveForCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error)
}

type PrintedQuestionRepository interface {
	GetByPrint(ctx context.Context, tx *gorm.DB, printID uint) ([]*models.PrintedQuestion, error)
	GetByPrintAndIndex(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int) (*models.PrintedQuestion, error)
	UpdateAnswer(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int, rawAnswer string, score float64) error
}

// SessionRepository reads externally-owned exam sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error)
	GetByIDWithExam(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error)
}

// ExamRepository reads externally-owned exam definitions.
type ExamRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)

	// GetSetsForExam returns the exam's sets ordered by position, each with
	// its candidate question pool loaded.
	GetSetsForExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamSet, error)
}

// QuestionRepository reads the externally-owned question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.Question, error)
}
