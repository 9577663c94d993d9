package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

type PrintedQuestionPostgreSQL struct {
	db *gorm.DB
}

func NewPrintedQuestionPostgreSQL(db *gorm.DB) repositories.PrintedQuestionRepository {
	return &PrintedQuestionPostgreSQL{db: db}
}

func (p *PrintedQuestionPostgreSQL) GetByPrint(ctx context.Context, tx *gorm.DB, printID uint) ([]*models.PrintedQuestion, error) {
	db := getDB(p.db, tx)
	var questions []*models.PrintedQuestion
	if err := db.WithContext(ctx).
		Where("print_id = ?", printID).
		Order("question_index ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get printed questions: %w", err)
	}
	return questions, nil
}

func (p *PrintedQuestionPostgreSQL) GetByPrintAndIndex(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int) (*models.PrintedQuestion, error) {
	db := getDB(p.db, tx)
	var question models.PrintedQuestion
	if err := db.WithContext(ctx).
		Where("print_id = ? AND question_index = ?", printID, questionIndex).
		First(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (p *PrintedQuestionPostgreSQL) UpdateAnswer(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int, rawAnswer string, score float64) error {
	db := getDB(p.db, tx)
	result := db.WithContext(ctx).Model(&models.PrintedQuestion{}).
		Where("print_id = ? AND question_index = ?", printID, questionIndex).
		Updates(map[string]interface{}{
			"raw_answer": rawAnswer,
			"score":      score,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update answer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
