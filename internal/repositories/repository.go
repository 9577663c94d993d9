package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates the storage interfaces the print engine depends on.
type Repository interface {
	Print() PrintRepository
	PrintedQuestion() PrintedQuestionRepository

	// Read-only views of externally-owned data
	Session() SessionRepository
	Exam() ExamRepository
	Question() QuestionRepository

	// WithTransaction runs fn against a transaction-bound Repository; the
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// IsNotFoundError reports whether err means the requested row does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
