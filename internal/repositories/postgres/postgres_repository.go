package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/cache"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	print           repositories.PrintRepository
	printedQuestion repositories.PrintedQuestionRepository
	session         repositories.SessionRepository
	exam            repositories.ExamRepository
	question        repositories.QuestionRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

// NewPostgreSQLRepository creates a repository with all sub-repositories wired.
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	cacheManager := cache.NewCacheManager(config.RedisClient)

	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cacheManager,
	}

	repo.print = NewPrintPostgreSQL(config.DB)
	repo.printedQuestion = NewPrintedQuestionPostgreSQL(config.DB)
	repo.session = NewSessionPostgreSQL(config.DB, cacheManager)
	repo.exam = NewExamPostgreSQL(config.DB, cacheManager)
	repo.question = NewQuestionPostgreSQL(config.DB, cacheManager)

	return repo
}

func (r *PostgreSQLRepository) Print() repositories.PrintRepository { return r.print }

func (r *PostgreSQLRepository) PrintedQuestion() repositories.PrintedQuestionRepository {
	return r.printedQuestion
}

func (r *PostgreSQLRepository) Session() repositories.SessionRepository { return r.session }

func (r *PostgreSQLRepository) Exam() repositories.ExamRepository { return r.exam }

func (r *PostgreSQLRepository) Question() repositories.QuestionRepository { return r.question }

// WithTransaction runs fn against a transaction-bound copy of the repository.
// The copy carries a pass-through cache manager: guard reads inside a
// transaction, the session time window above all, must see current rows, not
// entries aged up to a TTL.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		passThrough := cache.NewCacheManager(nil)
		bound := &PostgreSQLRepository{
			db:              tx,
			redisClient:     r.redisClient,
			cacheManager:    passThrough,
			print:           NewPrintPostgreSQL(tx),
			printedQuestion: NewPrintedQuestionPostgreSQL(tx),
			session:         NewSessionPostgreSQL(tx, passThrough),
			exam:            NewExamPostgreSQL(tx, passThrough),
			question:        NewQuestionPostgreSQL(tx, passThrough),
		}
		return fn(bound)
	})
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

// ===== REPOSITORY MANAGER =====

type postgreSQLRepositoryManager struct {
	config     RepositoryConfig
	repository repositories.Repository
}

// NewRepositoryManager creates a manager for repository lifecycle.
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &postgreSQLRepositoryManager{config: config}
}

func (m *postgreSQLRepositoryManager) Initialize() error {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}
	m.repository = NewPostgreSQLRepository(m.config)
	return nil
}

func (m *postgreSQLRepositoryManager) GetRepository() repositories.Repository {
	return m.repository
}

func (m *postgreSQLRepositoryManager) HealthCheck(ctx context.Context) error {
	if m.repository == nil {
		return fmt.Errorf("repository not initialized")
	}
	return m.repository.Ping(ctx)
}

func (m *postgreSQLRepositoryManager) Shutdown(ctx context.Context) error {
	if m.repository == nil {
		return nil
	}
	return m.repository.Close()
}
