package services

import (
	"context"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"github.com/swad-platform/examprint-service/internal/events"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/selector"
	"github.com/swad-platform/examprint-service/internal/validator"
)

type printService struct {
	repo        repositories.Repository
	logger      *slog.Logger
	validator   *validator.Validator
	publisher   events.EventPublisher
	eligibility EligibilityChecker
	cfg         PrintConfig

	// newSelector is swapped for a seeded factory in tests
	newSelector func() *selector.Selector
}

func NewPrintService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, eligibility EligibilityChecker, cfg PrintConfig) PrintService {
	return &printService{
		repo:        repo,
		logger:      logger,
		validator:   validator,
		publisher:   publisher,
		eligibility: eligibility,
		cfg:         cfg,
		newSelector: func() *selector.Selector {
			return selector.NewSeeded(mrand.Uint64(), mrand.Uint64())
		},
	}
}

// allowAllEligibility admits everyone. Used when the course platform is not
// wired in, such as local development.
type allowAllEligibility struct{}

func (allowAllEligibility) CanTake(ctx context.Context, session *models.ExamSession, userID string) (bool, error) {
	return true, nil
}

func NewAllowAllEligibility() EligibilityChecker {
	return allowAllEligibility{}
}

// ===== CORE PRINT OPERATIONS =====

func (s *printService) Open(ctx context.Context, sessionID uint, userID string) (*PrintResponse, error) {
	s.logger.Info("Opening exam print",
		"session_id", sessionID,
		"user_id", userID)

	session, err := s.repo.Session().GetByIDWithExam(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Hidden || !session.IsOpenAt(time.Now()) {
		return nil, ErrSessionClosed
	}

	canTake, err := s.eligibility.CanTake(ctx, session, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check eligibility: %w", err)
	}
	if !canTake {
		return nil, NewPermissionError(userID, sessionID, "session", "open", "not eligible for this session")
	}

	// Resume an existing print before drawing a new one
	existing, err := s.repo.Print().GetBySessionAndUser(ctx, nil, sessionID, userID)
	if err == nil {
		s.logger.Info("Resuming existing print", "print_id", existing.ID, "user_id", userID)
		return s.buildResponseByID(ctx, existing.ID)
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get print: %w", err)
	}

	print, rows, err := s.drawPrint(ctx, session, userID)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Print().Create(ctx, nil, print, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to create print: %w", err)
	}

	if !created {
		// Another request won the race; its print is the print
		winner, err := s.repo.Print().GetBySessionAndUser(ctx, nil, sessionID, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: reread after conflict failed: %v", ErrStorageConflict, err)
		}
		s.logger.Info("Concurrent open detected, using existing print",
			"print_id", winner.ID,
			"user_id", userID)
		return s.buildResponseByID(ctx, winner.ID)
	}

	s.publish(ctx, events.NewEvent(events.EventPrintCreated, &events.PrintCreatedEvent{
		PrintID:      print.ID,
		SessionID:    sessionID,
		UserID:       userID,
		NumQuestions: print.NumQuestions,
		StartedAt:    print.StartedAt,
	}))

	s.logger.Info("Exam print created",
		"print_id", print.ID,
		"session_id", sessionID,
		"user_id", userID,
		"num_questions", print.NumQuestions)

	return s.buildResponseByID(ctx, print.ID)
}

func (s *printService) SubmitAnswer(ctx context.Context, printID uint, req *SubmitAnswerRequest, userID string) (*PrintResponse, error) {
	s.logger.Info("Submitting answer",
		"print_id", printID,
		"question_index", req.QuestionIndex,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var answered *models.PrintedQuestion
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		print, err := r.Print().GetByID(ctx, nil, printID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrPrintNotFound
			}
			return fmt.Errorf("failed to get print: %w", err)
		}

		if print.UserID != userID {
			return NewPermissionError(userID, printID, "print", "submit_answer", "not owned by user")
		}
		if print.Sent {
			return ErrPrintAlreadySent
		}

		session, err := r.Session().GetByID(ctx, nil, print.SessionID)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if !session.IsOpenAt(time.Now()) {
			return ErrSessionClosed
		}

		pq, err := r.PrintedQuestion().GetByPrintAndIndex(ctx, nil, printID, req.QuestionIndex)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrInvalidQuestion
			}
			return fmt.Errorf("failed to get printed question: %w", err)
		}

		question, err := r.Question().GetByID(ctx, nil, pq.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return NewDataIntegrityError("question", pq.QuestionID, "printed question references a missing question", err)
			}
			return fmt.Errorf("failed to get question: %w", err)
		}

		raw, err := normalizeRawAnswer(question, pq, req.RawAnswer)
		if err != nil {
			return err
		}

		score, err := s.scoreAnswer(question, raw)
		if err != nil {
			return err
		}

		if err := r.PrintedQuestion().UpdateAnswer(ctx, nil, printID, req.QuestionIndex, raw, score); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}

		if err := s.recomputeAggregates(ctx, r, printID, nil); err != nil {
			return err
		}

		answered = pq
		answered.RawAnswer = raw
		answered.Score = score
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventPrintAnswered, &events.PrintAnsweredEvent{
		PrintID:       printID,
		UserID:        userID,
		QuestionIndex: req.QuestionIndex,
		Blank:         answered.IsBlank(),
	}))

	return s.buildResponseByID(ctx, printID)
}

func (s *printService) Finish(ctx context.Context, printID uint, userID string) (*PrintResponse, error) {
	s.logger.Info("Finishing exam print",
		"print_id", printID,
		"user_id", userID)

	var finished *models.ExamPrint
	var justFinished bool
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		print, err := r.Print().GetByID(ctx, nil, printID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrPrintNotFound
			}
			return fmt.Errorf("failed to get print: %w", err)
		}

		if print.UserID != userID {
			return NewPermissionError(userID, printID, "print", "finish", "not owned by user")
		}

		// Finishing twice keeps the first result
		if print.Sent {
			finished = print
			return nil
		}

		rows, err := r.PrintedQuestion().GetByPrint(ctx, nil, printID)
		if err != nil {
			return fmt.Errorf("failed to get printed questions: %w", err)
		}
		agg := computeAggregates(rows)

		endedAt := time.Now()
		if err := r.Print().Finalize(ctx, nil, printID, endedAt, agg); err != nil {
			return fmt.Errorf("failed to finalize print: %w", err)
		}

		print.Sent = true
		print.EndedAt = &endedAt
		applyAggregates(print, agg)
		finished = print
		justFinished = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Publish only after the transaction committed; a rolled-back finalize
	// must not leave an audit trace. The idempotent second call stays silent.
	if justFinished {
		s.publish(ctx, events.NewEvent(events.EventPrintSubmitted, &events.PrintSubmittedEvent{
			PrintID:    printID,
			SessionID:  finished.SessionID,
			UserID:     userID,
			Score:      finished.Score,
			ScoreValid: finished.ScoreValid,
			EndedAt:    *finished.EndedAt,
		}))
	}

	s.logger.Info("Exam print finished",
		"print_id", printID,
		"user_id", userID,
		"score", finished.Score)

	return s.buildResponseByID(ctx, printID)
}

// ===== GET OPERATIONS =====

func (s *printService) GetByID(ctx context.Context, printID uint, userID string) (*PrintResponse, error) {
	print, err := s.repo.Print().GetByIDWithQuestions(ctx, nil, printID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPrintNotFound
		}
		return nil, fmt.Errorf("failed to get print: %w", err)
	}

	if print.UserID != userID {
		return nil, NewPermissionError(userID, printID, "print", "read", "not owned by user")
	}

	return s.buildPrintResponse(ctx, print)
}

func (s *printService) GetBySession(ctx context.Context, sessionID uint, userID string) (*PrintResponse, error) {
	print, err := s.repo.Print().GetBySessionAndUser(ctx, nil, sessionID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPrintNotFound
		}
		return nil, fmt.Errorf("failed to get print: %w", err)
	}

	return s.buildResponseByID(ctx, print.ID)
}

// ===== LIST OPERATIONS =====

func (s *printService) ListBySession(ctx context.Context, sessionID uint, filters repositories.PrintFilters) (*PrintListResponse, error) {
	if _, err := s.repo.Session().GetByID(ctx, nil, sessionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	prints, total, err := s.repo.Print().ListBySession(ctx, nil, sessionID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list prints: %w", err)
	}

	responses := make([]*PrintResponse, len(prints))
	for i, print := range prints {
		responses[i] = &PrintResponse{
			ExamPrint: print,
			CanAnswer: !print.Sent,
		}
	}

	return &PrintListResponse{
		Prints: responses,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// ===== CLEANUP OPERATIONS =====

func (s *printService) RemoveForUser(ctx context.Context, userID string) (int64, error) {
	removed, err := s.repo.Print().RemoveForUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove prints for user: %w", err)
	}

	s.logger.Info("Removed prints for user", "user_id", userID, "removed", removed)
	s.publish(ctx, events.NewEvent(events.EventPrintsRemoved, &events.PrintsRemovedEvent{
		Scope:   "user",
		UserID:  userID,
		Removed: removed,
	}))
	return removed, nil
}

func (s *printService) RemoveForUserInCourse(ctx context.Context, userID string, courseID uint) (int64, error) {
	removed, err := s.repo.Print().RemoveForUserInCourse(ctx, nil, userID, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove prints for user in course: %w", err)
	}

	s.logger.Info("Removed prints for user in course",
		"user_id", userID,
		"course_id", courseID,
		"removed", removed)
	s.publish(ctx, events.NewEvent(events.EventPrintsRemoved, &events.PrintsRemovedEvent{
		Scope:    "user_course",
		UserID:   userID,
		CourseID: courseID,
		Removed:  removed,
	}))
	return removed, nil
}

func (s *printService) RemoveForCourse(ctx context.Context, courseID uint) (int64, error) {
	removed, err := s.repo.Print().RemoveForCourse(ctx, nil, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove prints for course: %w", err)
	}

	s.logger.Info("Removed prints for course", "course_id", courseID, "removed", removed)
	s.publish(ctx, events.NewEvent(events.EventPrintsRemoved, &events.PrintsRemovedEvent{
		Scope:    "course",
		CourseID: courseID,
		Removed:  removed,
	}))
	return removed, nil
}
