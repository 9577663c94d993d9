package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
)

// mockStore is the shared in-memory state behind the mock repositories.
type mockStore struct {
	mu sync.Mutex

	prints           map[uint]*models.ExamPrint
	questionsByPrint map[uint][]*models.PrintedQuestion
	sessions         map[uint]*models.ExamSession
	exams            map[uint]*models.Exam
	setsByExam       map[uint][]*models.ExamSet
	questions        map[uint]*models.Question

	nextPrintID uint
}

func newMockStore() *mockStore {
	return &mockStore{
		prints:           make(map[uint]*models.ExamPrint),
		questionsByPrint: make(map[uint][]*models.PrintedQuestion),
		sessions:         make(map[uint]*models.ExamSession),
		exams:            make(map[uint]*models.Exam),
		setsByExam:       make(map[uint][]*models.ExamSet),
		questions:        make(map[uint]*models.Question),
		nextPrintID:      1,
	}
}

func (s *mockStore) courseForSession(sessionID uint) uint {
	session, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	exam, ok := s.exams[session.ExamID]
	if !ok {
		return 0
	}
	return exam.CourseID
}

type mockRepository struct {
	store *mockStore
}

func newMockRepository(store *mockStore) *mockRepository {
	return &mockRepository{store: store}
}

func (m *mockRepository) Print() repositories.PrintRepository { return &mockPrintRepo{m.store} }
func (m *mockRepository) PrintedQuestion() repositories.PrintedQuestionRepository {
	return &mockPrintedQuestionRepo{m.store}
}
func (m *mockRepository) Session() repositories.SessionRepository { return &mockSessionRepo{m.store} }
func (m *mockRepository) Exam() repositories.ExamRepository       { return &mockExamRepo{m.store} }
func (m *mockRepository) Question() repositories.QuestionRepository {
	return &mockQuestionRepo{m.store}
}

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== PRINT =====

type mockPrintRepo struct {
	store *mockStore
}

func (r *mockPrintRepo) Create(ctx context.Context, tx *gorm.DB, print *models.ExamPrint, questions []*models.PrintedQuestion) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.prints {
		if existing.SessionID == print.SessionID && existing.UserID == print.UserID {
			return false, nil
		}
	}

	print.ID = s.nextPrintID
	s.nextPrintID++

	stored := *print
	s.prints[print.ID] = &stored
	for i, q := range questions {
		row := *q
		row.ID = uint(len(s.questionsByPrint[print.ID]) + i + 1)
		row.PrintID = print.ID
		s.questionsByPrint[print.ID] = append(s.questionsByPrint[print.ID], &row)
	}
	return true, nil
}

func (r *mockPrintRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	print, ok := s.prints[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *print
	return &copied, nil
}

func (r *mockPrintRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamPrint, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	print, ok := s.prints[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *print
	rows := s.questionsByPrint[id]
	copied.Questions = make([]models.PrintedQuestion, len(rows))
	for i, row := range rows {
		copied.Questions[i] = *row
	}
	sort.Slice(copied.Questions, func(i, j int) bool {
		return copied.Questions[i].QuestionIndex < copied.Questions[j].QuestionIndex
	})
	return &copied, nil
}

func (r *mockPrintRepo) GetBySessionAndUser(ctx context.Context, tx *gorm.DB, sessionID uint, userID string) (*models.ExamPrint, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, print := range s.prints {
		if print.SessionID == sessionID && print.UserID == userID {
			copied := *print
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockPrintRepo) UpdateAggregates(ctx context.Context, tx *gorm.DB, id uint, agg repositories.PrintAggregates) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	print, ok := s.prints[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyAggregates(print, agg)
	return nil
}

func (r *mockPrintRepo) Finalize(ctx context.Context, tx *gorm.DB, id uint, endedAt time.Time, agg repositories.PrintAggregates) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	print, ok := s.prints[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyAggregates(print, agg)
	print.Sent = true
	print.EndedAt = &endedAt
	return nil
}

func (r *mockPrintRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uint, filters repositories.PrintFilters) ([]*models.ExamPrint, int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ExamPrint
	for _, print := range s.prints {
		if print.SessionID != sessionID {
			continue
		}
		if filters.Sent != nil && print.Sent != *filters.Sent {
			continue
		}
		if filters.UserID != nil && print.UserID != *filters.UserID {
			continue
		}
		copied := *print
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, int64(len(out)), nil
}

func (r *mockPrintRepo) RemoveForUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	return r.removeWhere(func(print *models.ExamPrint) bool {
		return print.UserID == userID
	})
}

func (r *mockPrintRepo) RemoveForUserInCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (int64, error) {
	return r.removeWhere(func(print *models.ExamPrint) bool {
		return print.UserID == userID && r.store.courseForSession(print.SessionID) == courseID
	})
}

func (r *mockPrintRepo) RemoveForCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error) {
	return r.removeWhere(func(print *models.ExamPrint) bool {
		return r.store.courseForSession(print.SessionID) == courseID
	})
}

func (r *mockPrintRepo) removeWhere(match func(*models.ExamPrint) bool) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, print := range s.prints {
		if match(print) {
			delete(s.prints, id)
			delete(s.questionsByPrint, id)
			removed++
		}
	}
	return removed, nil
}

// ===== PRINTED QUESTION =====

type mockPrintedQuestionRepo struct {
	store *mockStore
}

func (r *mockPrintedQuestionRepo) GetByPrint(ctx context.Context, tx *gorm.DB, printID uint) ([]*models.PrintedQuestion, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.questionsByPrint[printID]
	out := make([]*models.PrintedQuestion, len(rows))
	for i, row := range rows {
		copied := *row
		out[i] = &copied
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

func (r *mockPrintedQuestionRepo) GetByPrintAndIndex(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int) (*models.PrintedQuestion, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.questionsByPrint[printID] {
		if row.QuestionIndex == questionIndex {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockPrintedQuestionRepo) UpdateAnswer(ctx context.Context, tx *gorm.DB, printID uint, questionIndex int, rawAnswer string, score float64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.questionsByPrint[printID] {
		if row.QuestionIndex == questionIndex {
			row.RawAnswer = rawAnswer
			row.Score = score
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ===== SESSION =====

type mockSessionRepo struct {
	store *mockStore
}

func (r *mockSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *mockSessionRepo) GetByIDWithExam(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	session, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if exam, ok := s.exams[session.ExamID]; ok {
		session.Exam = *exam
	}
	return session, nil
}

// ===== EXAM =====

type mockExamRepo struct {
	store *mockStore
}

func (r *mockExamRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	exam, ok := s.exams[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *exam
	return &copied, nil
}

func (r *mockExamRepo) GetSetsForExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamSet, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := s.setsByExam[examID]
	out := make([]*models.ExamSet, len(sets))
	for i, set := range sets {
		copied := *set
		out[i] = &copied
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ===== QUESTION =====

type mockQuestionRepo struct {
	store *mockStore
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	question, ok := s.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *question
	return &copied, nil
}

func (r *mockQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.Question, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uint]*models.Question, len(ids))
	for _, id := range ids {
		if question, ok := s.questions[id]; ok {
			copied := *question
			out[id] = &copied
		}
	}
	return out, nil
}
