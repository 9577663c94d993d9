package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/cache"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := getDB(q.db, tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.Question

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var row models.Question
		if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, err
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// GetByIDs batch-loads questions and returns them keyed by ID. Missing IDs
// are simply absent from the map; callers decide whether that is an error.
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.Question, error) {
	db := getDB(q.db, tx)
	result := make(map[uint]*models.Question, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []*models.Question
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}
