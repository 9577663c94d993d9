package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/swad-platform/examprint-service/internal/events"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/selector"
	"github.com/swad-platform/examprint-service/internal/validator"
)

const (
	fixtureSessionID = uint(1)
	fixtureExamID    = uint(1)
	fixtureCourseID  = uint(10)
)

// seedFixture loads an open session whose exam draws two integer questions
// from a pool of three, then one shuffled single-choice question. The draw is
// deterministic in size and in set order: indexes 0 and 1 are integers,
// index 2 is the choice question.
func seedFixture(store *mockStore) {
	now := time.Now()
	store.sessions[fixtureSessionID] = &models.ExamSession{
		ID:        fixtureSessionID,
		ExamID:    fixtureExamID,
		Title:     "Midterm",
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}
	store.exams[fixtureExamID] = &models.Exam{
		ID:       fixtureExamID,
		CourseID: fixtureCourseID,
		Title:    "Algebra",
	}

	store.setsByExam[fixtureExamID] = []*models.ExamSet{
		{
			ID:                  1,
			ExamID:              fixtureExamID,
			Title:               "Warm-up",
			Position:            1,
			NumQuestionsToPrint: 2,
			Questions: []models.SetQuestion{
				{SetID: 1, QuestionID: 101, Type: models.AnswerInteger},
				{SetID: 1, QuestionID: 102, Type: models.AnswerInteger},
				{SetID: 1, QuestionID: 103, Type: models.AnswerInteger},
			},
		},
		{
			ID:                  2,
			ExamID:              fixtureExamID,
			Title:               "Choice",
			Position:            2,
			NumQuestionsToPrint: 1,
			Questions: []models.SetQuestion{
				{SetID: 2, QuestionID: 201, Type: models.AnswerSingleChoice, Shuffle: true},
			},
		},
	}

	// every integer question accepts 7, so a correct answer does not depend
	// on which one the draw picked
	for _, id := range []uint{101, 102, 103} {
		store.questions[id] = &models.Question{
			ID:     id,
			Type:   models.AnswerInteger,
			Stem:   "integer",
			Answer: datatypes.JSON(`{"value": 7}`),
		}
	}
	store.questions[201] = &models.Question{
		ID:      201,
		Type:    models.AnswerSingleChoice,
		Stem:    "choice",
		Options: []string{"a", "b", "c", "d"},
		Answer:  datatypes.JSON(`{"correct": [false, true, false, false]}`),
	}
}

func newTestService(t *testing.T, store *mockStore) (*printService, *events.MockEventPublisher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := events.NewMockEventPublisher(logger)

	svc := NewPrintService(
		newMockRepository(store),
		logger,
		validator.New(),
		publisher,
		NewAllowAllEligibility(),
		DefaultPrintConfig(),
	).(*printService)
	svc.newSelector = func() *selector.Selector {
		return selector.NewSeeded(7, 11)
	}
	return svc, publisher
}

func eventsOfType(publisher *events.MockEventPublisher, eventType string) []*events.Event {
	var out []*events.Event
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// ===== OPEN =====

func TestPrintService_Open_CreatesPrint(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	print, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if print.NumQuestions != 3 {
		t.Errorf("NumQuestions = %d, want 3", print.NumQuestions)
	}
	if print.NumBlank != 3 {
		t.Errorf("NumBlank = %d, want 3", print.NumBlank)
	}
	if print.Sent {
		t.Error("fresh print is already sent")
	}
	if !print.CanAnswer {
		t.Error("fresh print is not answerable")
	}
	if len(print.Questions) != 3 {
		t.Fatalf("response carries %d questions, want 3", len(print.Questions))
	}

	for i, view := range print.Questions {
		if view.QuestionIndex != i {
			t.Errorf("question %d has index %d", i, view.QuestionIndex)
		}
		if view.Score != nil {
			t.Errorf("question %d exposes a score before finish", i)
		}
	}

	// set order: two integers then the choice question
	if print.Questions[0].Type != models.AnswerInteger || print.Questions[1].Type != models.AnswerInteger {
		t.Error("indexes 0 and 1 are not integer questions")
	}
	choice := print.Questions[2]
	if choice.Type != models.AnswerSingleChoice {
		t.Fatalf("index 2 type = %s, want single_choice", choice.Type)
	}
	if len(choice.Options) != 4 {
		t.Errorf("choice question shows %d options, want 4", len(choice.Options))
	}

	created := eventsOfType(publisher, events.EventPrintCreated)
	if len(created) != 1 {
		t.Errorf("expected 1 created event, got %d", len(created))
	}
}

func TestPrintService_Open_ResumesExisting(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	second, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("resume created a new print: %d then %d", first.ID, second.ID)
	}
	for i := range first.Questions {
		if first.Questions[i].QuestionID != second.Questions[i].QuestionID {
			t.Errorf("position %d changed question on resume", i)
		}
	}

	if created := eventsOfType(publisher, events.EventPrintCreated); len(created) != 1 {
		t.Errorf("expected 1 created event after resume, got %d", len(created))
	}
}

func TestPrintService_Open_DistinctUsersGetDistinctPrints(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	alice, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("Open(alice) error = %v", err)
	}
	bob, err := svc.Open(ctx, fixtureSessionID, "bob")
	if err != nil {
		t.Fatalf("Open(bob) error = %v", err)
	}

	if alice.ID == bob.ID {
		t.Error("two users share one print")
	}
}

func TestPrintService_Open_SessionClosed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ExamSession)
	}{
		{name: "before window", mutate: func(s *models.ExamSession) {
			s.StartTime = time.Now().Add(time.Hour)
			s.EndTime = time.Now().Add(2 * time.Hour)
		}},
		{name: "after window", mutate: func(s *models.ExamSession) {
			s.StartTime = time.Now().Add(-2 * time.Hour)
			s.EndTime = time.Now().Add(-time.Hour)
		}},
		{name: "hidden", mutate: func(s *models.ExamSession) {
			s.Hidden = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			seedFixture(store)
			tt.mutate(store.sessions[fixtureSessionID])
			svc, _ := newTestService(t, store)

			_, err := svc.Open(context.Background(), fixtureSessionID, "alice")
			if !errors.Is(err, ErrSessionClosed) {
				t.Errorf("expected ErrSessionClosed, got %v", err)
			}
		})
	}
}

func TestPrintService_Open_SessionNotFound(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store)

	_, err := svc.Open(context.Background(), 999, "alice")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

type denyAllEligibility struct{}

func (denyAllEligibility) CanTake(ctx context.Context, session *models.ExamSession, userID string) (bool, error) {
	return false, nil
}

func TestPrintService_Open_NotEligible(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	svc.eligibility = denyAllEligibility{}

	_, err := svc.Open(context.Background(), fixtureSessionID, "alice")
	if !IsPermissionError(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestPrintService_Open_TooManyQuestions(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	svc.cfg.MaxQuestionsPerPrint = 2

	_, err := svc.Open(context.Background(), fixtureSessionID, "alice")
	if !errors.Is(err, ErrTooManyQuestions) {
		t.Errorf("expected ErrTooManyQuestions, got %v", err)
	}
}

func TestPrintService_Open_NoQuestions(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	store.setsByExam[fixtureExamID] = nil
	svc, _ := newTestService(t, store)

	_, err := svc.Open(context.Background(), fixtureSessionID, "alice")
	if !errors.Is(err, ErrNoQuestionsDrawn) {
		t.Errorf("expected ErrNoQuestionsDrawn, got %v", err)
	}
}

// racePrintRepo reports the print missing on the first lookup so the service
// runs into the storage-level uniqueness guard.
type racePrintRepo struct {
	repositories.PrintRepository
	misses int
}

func (r *racePrintRepo) GetBySessionAndUser(ctx context.Context, tx *gorm.DB, sessionID uint, userID string) (*models.ExamPrint, error) {
	if r.misses > 0 {
		r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.PrintRepository.GetBySessionAndUser(ctx, tx, sessionID, userID)
}

type raceRepository struct {
	*mockRepository
	printRepo repositories.PrintRepository
}

func (r *raceRepository) Print() repositories.PrintRepository { return r.printRepo }

func (r *raceRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func TestPrintService_Open_ConcurrentCreationConverges(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	winner, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// second request that never saw the winner's insert
	base := newMockRepository(store)
	svc.repo = &raceRepository{
		mockRepository: base,
		printRepo:      &racePrintRepo{PrintRepository: base.Print(), misses: 1},
	}

	loser, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("racing Open() error = %v", err)
	}

	if loser.ID != winner.ID {
		t.Errorf("race produced print %d, want winner %d", loser.ID, winner.ID)
	}
	if len(store.prints) != 1 {
		t.Errorf("store holds %d prints, want 1", len(store.prints))
	}
}

// failingCreatePrintRepo rejects the first Create outright, the way a
// transactional insert fails: nothing persisted.
type failingCreatePrintRepo struct {
	repositories.PrintRepository
	failures int
}

func (r *failingCreatePrintRepo) Create(ctx context.Context, tx *gorm.DB, print *models.ExamPrint, questions []*models.PrintedQuestion) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("connection reset by peer")
	}
	return r.PrintRepository.Create(ctx, tx, print, questions)
}

func TestPrintService_Open_RetryAfterCreateFailure(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	base := newMockRepository(store)
	svc.repo = &raceRepository{
		mockRepository: base,
		printRepo:      &failingCreatePrintRepo{PrintRepository: base.Print(), failures: 1},
	}

	if _, err := svc.Open(ctx, fixtureSessionID, "alice"); err == nil {
		t.Fatal("Open() succeeded despite create failure")
	}
	// a failed create must persist nothing, or the retry would resume a
	// print without its question rows
	if len(store.prints) != 0 {
		t.Fatalf("failed create left %d prints behind", len(store.prints))
	}
	if created := eventsOfType(publisher, events.EventPrintCreated); len(created) != 0 {
		t.Errorf("failed create published %d created events", len(created))
	}

	print, err := svc.Open(ctx, fixtureSessionID, "alice")
	if err != nil {
		t.Fatalf("retried Open() error = %v", err)
	}
	if print.NumQuestions != 3 || len(print.Questions) != 3 {
		t.Errorf("retried print has %d/%d questions, want 3/3", print.NumQuestions, len(print.Questions))
	}
	if created := eventsOfType(publisher, events.EventPrintCreated); len(created) != 1 {
		t.Errorf("expected 1 created event after retry, got %d", len(created))
	}
}

// ===== SUBMIT ANSWER =====

func openFixturePrint(t *testing.T, svc *printService, userID string) *PrintResponse {
	t.Helper()
	print, err := svc.Open(context.Background(), fixtureSessionID, userID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return print
}

func TestPrintService_SubmitAnswer_ScoresAndRecomputes(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	resp, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "alice")
	if err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}

	stored := store.prints[print.ID]
	if stored.NumQuestionsNotBlank != 1 {
		t.Errorf("NumQuestionsNotBlank = %d, want 1", stored.NumQuestionsNotBlank)
	}
	if stored.NumBlank != 2 {
		t.Errorf("NumBlank = %d, want 2", stored.NumBlank)
	}
	if stored.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", stored.Score)
	}
	if stored.NumCorrect != 1 {
		t.Errorf("NumCorrect = %d, want 1", stored.NumCorrect)
	}
	if resp.Questions[0].Blank {
		t.Error("answered question reported blank")
	}

	if answered := eventsOfType(publisher, events.EventPrintAnswered); len(answered) != 1 {
		t.Errorf("expected 1 answered event, got %d", len(answered))
	}
}

func TestPrintService_SubmitAnswer_ReplacementNotIncrement(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	// correct, then wrong, then erased; counters must follow, not accumulate
	steps := []struct {
		raw           string
		wantScore     float64
		wantNotBlank  int
		wantCorrect   int
		wantWrongZero int
	}{
		{raw: "7", wantScore: 1.0, wantNotBlank: 1, wantCorrect: 1},
		{raw: "8", wantScore: 0, wantNotBlank: 1, wantWrongZero: 1},
		{raw: "", wantScore: 0, wantNotBlank: 0},
	}
	for _, step := range steps {
		if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: step.raw}, "alice"); err != nil {
			t.Fatalf("SubmitAnswer(%q) error = %v", step.raw, err)
		}
		stored := store.prints[print.ID]
		if stored.Score != step.wantScore {
			t.Errorf("after %q: Score = %v, want %v", step.raw, stored.Score, step.wantScore)
		}
		if stored.NumQuestionsNotBlank != step.wantNotBlank {
			t.Errorf("after %q: NumQuestionsNotBlank = %d, want %d", step.raw, stored.NumQuestionsNotBlank, step.wantNotBlank)
		}
		if stored.NumCorrect != step.wantCorrect {
			t.Errorf("after %q: NumCorrect = %d, want %d", step.raw, stored.NumCorrect, step.wantCorrect)
		}
		if stored.NumWrongZero != step.wantWrongZero {
			t.Errorf("after %q: NumWrongZero = %d, want %d", step.raw, stored.NumWrongZero, step.wantWrongZero)
		}
	}
}

func TestPrintService_SubmitAnswer_SingleChoiceToggleOff(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	// index 2 is the single-choice question
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 2, RawAnswer: "1"}, "alice"); err != nil {
		t.Fatalf("first SubmitAnswer() error = %v", err)
	}
	rows := store.questionsByPrint[print.ID]
	var choiceRow *models.PrintedQuestion
	for _, row := range rows {
		if row.QuestionIndex == 2 {
			choiceRow = row
		}
	}
	if choiceRow.RawAnswer != "1" {
		t.Fatalf("stored answer = %q, want \"1\"", choiceRow.RawAnswer)
	}
	if choiceRow.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", choiceRow.Score)
	}

	// picking the same option again deselects it
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 2, RawAnswer: "1"}, "alice"); err != nil {
		t.Fatalf("toggle SubmitAnswer() error = %v", err)
	}
	if choiceRow.RawAnswer != "" {
		t.Errorf("stored answer after toggle = %q, want empty", choiceRow.RawAnswer)
	}
	if choiceRow.Score != 0 {
		t.Errorf("Score after toggle = %v, want 0", choiceRow.Score)
	}
	if store.prints[print.ID].NumBlank != 3 {
		t.Errorf("NumBlank after toggle = %d, want 3", store.prints[print.ID].NumBlank)
	}

	// a different option replaces instead of toggling
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 2, RawAnswer: "0"}, "alice"); err != nil {
		t.Fatalf("replace SubmitAnswer() error = %v", err)
	}
	if choiceRow.RawAnswer != "0" {
		t.Errorf("stored answer = %q, want \"0\"", choiceRow.RawAnswer)
	}
}

func TestPrintService_SubmitAnswer_Rejections(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	t.Run("wrong owner", func(t *testing.T) {
		_, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "mallory")
		if !IsPermissionError(err) {
			t.Errorf("expected permission error, got %v", err)
		}
	})

	t.Run("index outside print", func(t *testing.T) {
		_, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 42, RawAnswer: "7"}, "alice")
		if !errors.Is(err, ErrInvalidQuestion) {
			t.Errorf("expected ErrInvalidQuestion, got %v", err)
		}
	})

	t.Run("missing print", func(t *testing.T) {
		_, err := svc.SubmitAnswer(ctx, 999, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "alice")
		if !errors.Is(err, ErrPrintNotFound) {
			t.Errorf("expected ErrPrintNotFound, got %v", err)
		}
	})

	t.Run("choice index out of range", func(t *testing.T) {
		_, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 2, RawAnswer: "9"}, "alice")
		if !IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("after finish", func(t *testing.T) {
		if _, err := svc.Finish(ctx, print.ID, "alice"); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		_, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "alice")
		if !errors.Is(err, ErrPrintAlreadySent) {
			t.Errorf("expected ErrPrintAlreadySent, got %v", err)
		}
	})

	t.Run("session closed", func(t *testing.T) {
		print2 := openFixturePrint(t, svc, "bob")
		store.sessions[fixtureSessionID].EndTime = time.Now().Add(-time.Minute)
		_, err := svc.SubmitAnswer(ctx, print2.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "bob")
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("expected ErrSessionClosed, got %v", err)
		}
	})
}

// ===== FINISH =====

func TestPrintService_Finish_Idempotent(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "alice"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}

	first, err := svc.Finish(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("first Finish() error = %v", err)
	}
	if !first.Sent {
		t.Error("print not marked sent")
	}
	if first.EndedAt == nil {
		t.Fatal("EndedAt not set")
	}
	if first.CanAnswer {
		t.Error("finished print still answerable")
	}
	if first.Questions[0].Score == nil {
		t.Error("finished print hides question scores")
	}

	second, err := svc.Finish(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
	if !second.EndedAt.Equal(*first.EndedAt) {
		t.Errorf("EndedAt changed: %v then %v", first.EndedAt, second.EndedAt)
	}
	if second.Score != first.Score {
		t.Errorf("Score changed: %v then %v", first.Score, second.Score)
	}

	if submitted := eventsOfType(publisher, events.EventPrintSubmitted); len(submitted) != 1 {
		t.Errorf("expected 1 submitted event, got %d", len(submitted))
	}
}

type failingFinalizePrintRepo struct {
	repositories.PrintRepository
	failures int
}

func (r *failingFinalizePrintRepo) Finalize(ctx context.Context, tx *gorm.DB, printID uint, endedAt time.Time, agg repositories.PrintAggregates) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset by peer")
	}
	return r.PrintRepository.Finalize(ctx, tx, printID, endedAt, agg)
}

func TestPrintService_Finish_NoEventWhenFinalizeFails(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	base := newMockRepository(store)
	svc.repo = &raceRepository{
		mockRepository: base,
		printRepo:      &failingFinalizePrintRepo{PrintRepository: base.Print(), failures: 1},
	}

	if _, err := svc.Finish(ctx, print.ID, "alice"); err == nil {
		t.Fatal("Finish() succeeded despite finalize failure")
	}
	// the failed attempt must leave no audit trace and no sent flag
	if submitted := eventsOfType(publisher, events.EventPrintSubmitted); len(submitted) != 0 {
		t.Errorf("failed finalize published %d submitted events", len(submitted))
	}
	if store.prints[print.ID].Sent {
		t.Error("failed finalize marked the print sent")
	}

	finished, err := svc.Finish(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("retried Finish() error = %v", err)
	}
	if !finished.Sent {
		t.Error("retried finish did not mark the print sent")
	}
	if submitted := eventsOfType(publisher, events.EventPrintSubmitted); len(submitted) != 1 {
		t.Errorf("expected 1 submitted event after retry, got %d", len(submitted))
	}
}

func TestPrintService_Finish_WrongOwner(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)

	print := openFixturePrint(t, svc, "alice")
	_, err := svc.Finish(context.Background(), print.ID, "mallory")
	if !IsPermissionError(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

// ===== VALIDITY =====

func TestPrintService_InvalidQuestionExcludedFromValidScore(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	// void the single-choice question
	store.setsByExam[fixtureExamID][1].Questions[0].Invalid = true
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	print := openFixturePrint(t, svc, "alice")

	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "7"}, "alice"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 2, RawAnswer: "1"}, "alice"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}

	finished, err := svc.Finish(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if finished.Score != 2.0 {
		t.Errorf("Score = %v, want 2.0", finished.Score)
	}
	// the voided choice question keeps counting into the raw score only
	if finished.ScoreValid != 1.0 {
		t.Errorf("ScoreValid = %v, want 1.0", finished.ScoreValid)
	}
}

// ===== CLEANUP =====

func TestPrintService_RemoveForUser(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, publisher := newTestService(t, store)
	ctx := context.Background()

	openFixturePrint(t, svc, "alice")
	openFixturePrint(t, svc, "bob")

	removed, err := svc.RemoveForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("RemoveForUser() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(store.prints) != 1 {
		t.Errorf("store holds %d prints, want 1", len(store.prints))
	}
	if _, err := svc.GetBySession(ctx, fixtureSessionID, "alice"); !errors.Is(err, ErrPrintNotFound) {
		t.Errorf("expected ErrPrintNotFound after removal, got %v", err)
	}

	if removals := eventsOfType(publisher, events.EventPrintsRemoved); len(removals) != 1 {
		t.Errorf("expected 1 removal event, got %d", len(removals))
	}
}

func TestPrintService_RemoveForCourse(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	openFixturePrint(t, svc, "alice")
	openFixturePrint(t, svc, "bob")

	t.Run("other course untouched", func(t *testing.T) {
		removed, err := svc.RemoveForCourse(ctx, 999)
		if err != nil {
			t.Fatalf("RemoveForCourse() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})

	t.Run("matching course cleared", func(t *testing.T) {
		removed, err := svc.RemoveForCourse(ctx, fixtureCourseID)
		if err != nil {
			t.Fatalf("RemoveForCourse() error = %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}
		if len(store.prints) != 0 {
			t.Errorf("store holds %d prints, want 0", len(store.prints))
		}
	})
}

func TestPrintService_RemoveForUserInCourse(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	openFixturePrint(t, svc, "alice")
	openFixturePrint(t, svc, "bob")

	removed, err := svc.RemoveForUserInCourse(ctx, "bob", fixtureCourseID)
	if err != nil {
		t.Fatalf("RemoveForUserInCourse() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := svc.GetBySession(ctx, fixtureSessionID, "alice"); err != nil {
		t.Errorf("alice's print removed by bob's cleanup: %v", err)
	}
}

// ===== LIST =====

func TestPrintService_ListBySession(t *testing.T) {
	store := newMockStore()
	seedFixture(store)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	alice := openFixturePrint(t, svc, "alice")
	openFixturePrint(t, svc, "bob")
	if _, err := svc.Finish(ctx, alice.ID, "alice"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	all, err := svc.ListBySession(ctx, fixtureSessionID, repositories.PrintFilters{})
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if all.Total != 2 {
		t.Errorf("Total = %d, want 2", all.Total)
	}

	sent := true
	onlySent, err := svc.ListBySession(ctx, fixtureSessionID, repositories.PrintFilters{Sent: &sent})
	if err != nil {
		t.Fatalf("ListBySession(sent) error = %v", err)
	}
	if onlySent.Total != 1 {
		t.Errorf("sent Total = %d, want 1", onlySent.Total)
	}
	if len(onlySent.Prints) != 1 || onlySent.Prints[0].UserID != "alice" {
		t.Errorf("sent listing = %+v, want alice's print", onlySent.Prints)
	}
}

// ===== END TO END =====

// One set of three shuffled four-option single-choice questions, two drawn
// per print. Walks the full student flow: open, answer both by underlying
// option index, finish, reread.
func TestPrintService_EndToEnd_ShuffledChoiceDraw(t *testing.T) {
	store := newMockStore()
	now := time.Now()
	store.sessions[1] = &models.ExamSession{
		ID: 1, ExamID: 1, Title: "Final",
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	}
	store.exams[1] = &models.Exam{ID: 1, CourseID: 10, Title: "Logic"}
	store.setsByExam[1] = []*models.ExamSet{{
		ID: 1, ExamID: 1, Title: "All", Position: 1, NumQuestionsToPrint: 2,
		Questions: []models.SetQuestion{
			{SetID: 1, QuestionID: 301, Type: models.AnswerSingleChoice, Shuffle: true},
			{SetID: 1, QuestionID: 302, Type: models.AnswerSingleChoice, Shuffle: true},
			{SetID: 1, QuestionID: 303, Type: models.AnswerSingleChoice, Shuffle: true},
		},
	}}
	// underlying index 2 is correct on every question
	for _, id := range []uint{301, 302, 303} {
		store.questions[id] = &models.Question{
			ID:      id,
			Type:    models.AnswerSingleChoice,
			Stem:    "pick c",
			Options: []string{"a", "b", "c", "d"},
			Answer:  datatypes.JSON(`{"correct": [false, false, true, false]}`),
		}
	}

	svc, _ := newTestService(t, store)
	ctx := context.Background()

	print, err := svc.Open(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if print.NumQuestions != 2 {
		t.Fatalf("NumQuestions = %d, want 2", print.NumQuestions)
	}
	if print.Questions[0].QuestionID == print.Questions[1].QuestionID {
		t.Fatal("draw repeated a question")
	}
	for i, view := range print.Questions {
		if len(view.Options) != 4 {
			t.Fatalf("question %d shows %d options, want 4", i, len(view.Options))
		}
		// display order is a permutation of the bank options
		seen := map[string]bool{}
		for _, option := range view.Options {
			seen[option] = true
		}
		for _, want := range []string{"a", "b", "c", "d"} {
			if !seen[want] {
				t.Errorf("question %d is missing option %q", i, want)
			}
		}
	}

	// one right, one wrong
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 0, RawAnswer: "2"}, "alice"); err != nil {
		t.Fatalf("SubmitAnswer(0) error = %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, print.ID, &SubmitAnswerRequest{QuestionIndex: 1, RawAnswer: "0"}, "alice"); err != nil {
		t.Fatalf("SubmitAnswer(1) error = %v", err)
	}

	finished, err := svc.Finish(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	wantScore := 1.0 - 1.0/3.0
	if diff := finished.Score - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Score = %v, want %v", finished.Score, wantScore)
	}
	if finished.NumCorrect != 1 || finished.NumWrongNegative != 1 {
		t.Errorf("buckets = correct %d / wrong-negative %d, want 1 / 1", finished.NumCorrect, finished.NumWrongNegative)
	}

	// the finished print reads back identically
	reread, err := svc.GetByID(ctx, print.ID, "alice")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if reread.Score != finished.Score || !reread.Sent {
		t.Errorf("reread print diverges: score %v sent %v", reread.Score, reread.Sent)
	}
}
