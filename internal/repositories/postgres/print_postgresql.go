package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

type PrintPostgreSQL struct {
	db *gorm.DB
}

func NewPrintPostgreSQL(db *gorm.DB) repositories.PrintRepository {
	return &PrintPostgreSQL{db: db}
}

// Create inserts the print and its question rows in one transaction; a print
// must never exist without its rows, or every later Open would resume an
// empty attempt. The unique index on (session_id, user_id) plus ON CONFLICT
// DO NOTHING closes the double-Open race: the loser of the race sees
// created=false and must reread.
func (p *PrintPostgreSQL) Create(ctx context.Context, tx *gorm.DB, print *models.ExamPrint, questions []*models.PrintedQuestion) (bool, error) {
	db := getDB(p.db, tx)

	created := false
	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).
			Create(print)
		if result.Error != nil {
			return fmt.Errorf("failed to create print: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true

		for _, question := range questions {
			question.PrintID = print.ID
		}
		if len(questions) > 0 {
			if err := txn.Create(questions).Error; err != nil {
				return fmt.Errorf("failed to create printed questions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (p *PrintPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error) {
	db := getDB(p.db, tx)
	var print models.ExamPrint
	if err := db.WithContext(ctx).First(&print, id).Error; err != nil {
		return nil, err
	}
	return &print, nil
}

func (p *PrintPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error) {
	db := getDB(p.db, tx)
	var print models.ExamPrint
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		First(&print, id).Error; err != nil {
		return nil, err
	}
	return &print, nil
}

func (p *PrintPostgreSQL) GetBySessionAndUser(ctx context.Context, tx *gorm.DB, sessionID uint, userID string) (*models.ExamPrint, error) {
	db := getDB(p.db, tx)
	var print models.ExamPrint
	if err := db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		First(&print).Error; err != nil {
		return nil, err
	}
	return &print, nil
}

func (p *PrintPostgreSQL) UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, agg repositories.PrintAggregates) error {
	db := getDB(p.db, tx)
	return db.WithContext(ctx).Model(&models.ExamPrint{}).
		Where("id = ?", id).
		Updates(aggregateColumns(agg)).Error
}

// Finalize stamps the end time and the sent flag together with the final
// counters in one statement.
func (p *PrintPostgreSQL) Finalize(ctx context.Context, tx *gorm.DB, id uint, endedAt time.Time, agg repositories.PrintAggregates) error {
	db := getDB(p.db, tx)
	columns := aggregateColumns(agg)
	columns["ended_at"] = endedAt
	columns["sent"] = true
	return db.WithContext(ctx).Model(&models.ExamPrint{}).
		Where("id = ?", id).
		Updates(columns).Error
}

func (p *PrintPostgreSQL) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uint, filters repositories.PrintFilters) ([]*models.ExamPrint, int64, error) {
	db := getDB(p.db, tx)
	var prints []*models.ExamPrint
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamPrint{}).Where("session_id = ?", sessionID)
	query = applyPrintFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPrintPaginationAndSort(query, filters)
	if err := query.Find(&prints).Error; err != nil {
		return nil, 0, err
	}
	return prints, total, nil
}

// ===== BULK CLEANUP =====

func (p *PrintPostgreSQL) RemoveForUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := getDB(p.db, tx)
	return p.removeWhere(ctx, db, db.WithContext(ctx).
		Model(&models.ExamPrint{}).
		Where("user_id = ?", userID))
}

func (p *PrintPostgreSQL) RemoveForUserInCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	db := getDB(p.db, tx)
	return p.removeWhere(ctx, db, db.WithContext(ctx).
		Model(&models.ExamPrint{}).
		Where("user_id = ? AND session_id IN (?)", userID, sessionIDsForCourse(db, courseID)))
}

func (p *PrintPostgreSQL) RemoveForCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error) {
	db := getDB(p.db, tx)
	return p.removeWhere(ctx, db, db.WithContext(ctx).
		Model(&models.ExamPrint{}).
		Where("session_id IN (?)", sessionIDsForCourse(db, courseID)))
}

// removeWhere deletes the matched prints and their question rows.
func (p *PrintPostgreSQL) removeWhere(ctx context.Context, db *gorm.DB, matched *gorm.DB) (int64, error) {
	var ids []uint
	if err := matched.Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to collect prints for removal: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := db.WithContext(ctx).
		Where("print_id IN ?", ids).
		Delete(&models.PrintedQuestion{}).Error; err != nil {
		return 0, fmt.Errorf("failed to remove printed questions: %w", err)
	}
	result := db.WithContext(ctx).Delete(&models.ExamPrint{}, ids)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to remove prints: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func sessionIDsForCourse(db *gorm.DB, courseID uint) *gorm.DB {
	return db.Model(&models.ExamSession{}).
		Select("exam_sessions.id").
		Joins("JOIN exams ON exams.id = exam_sessions.exam_id").
		Where("exams.course_id = ?", courseID)
}

func aggregateColumns(agg repositories.PrintAggregates) map[string]interface{} {
	return map[string]interface{}{
		"num_questions":           agg.NumQuestions,
		"num_questions_not_blank": agg.NumQuestionsNotBlank,
		"score":                   agg.Score,
		"score_valid":             agg.ScoreValid,
		"num_correct":             agg.NumCorrect,
		"num_wrong_negative":      agg.NumWrongNegative,
		"num_wrong_zero":          agg.NumWrongZero,
		"num_wrong_positive":      agg.NumWrongPositive,
		"num_blank":               agg.NumBlank,
	}
}
