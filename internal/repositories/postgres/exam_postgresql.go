package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/cache"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db, cacheManager: cacheManager}
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := getDB(e.db, tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		var row models.Exam
		if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, err
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetSetsForExam returns sets in position order with their candidate pools.
// Not cached: the pool is read exactly once per print creation.
func (e *ExamPostgreSQL) GetSetsForExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamSet, error) {
	db := getDB(e.db, tx)
	var sets []*models.ExamSet
	if err := db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("position ASC").
		Preload("Questions").
		Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("failed to get sets for exam: %w", err)
	}
	return sets, nil
}
