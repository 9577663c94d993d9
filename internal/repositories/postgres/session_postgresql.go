package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/cache"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

type SessionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSessionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	db := getDB(s.db, tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var session models.ExamSession

	err := s.cacheManager.Session.CacheOrExecute(ctx, cacheKey, &session, cache.SessionCacheConfig.TTL, func() (interface{}, error) {
		var row models.ExamSession
		if err := db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, err
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByIDWithExam(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	db := getDB(s.db, tx)
	var session models.ExamSession
	if err := db.WithContext(ctx).Preload("Exam").First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}
