package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/swad-platform/examprint-service/internal/events"
	"github.com/swad-platform/examprint-service/internal/models"
	"github.com/swad-platform/examprint-service/internal/repositories"
	"github.com/swad-platform/examprint-service/internal/scoring"
)

// ===== PRINT GENERATION =====

// drawPrint realizes a new print for the session: a random draw from every
// set in position order, each choice question with its own shuffle
// permutation. Nothing is persisted here.
func (s *printService) drawPrint(ctx context.Context, session *models.ExamSession, userID string) (*models.ExamPrint, []*models.PrintedQuestion, error) {
	sets, err := s.repo.Exam().GetSetsForExam(ctx, nil, session.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get exam sets: %w", err)
	}

	questionIDs := make([]uint, 0)
	for _, set := range sets {
		for _, candidate := range set.Questions {
			questionIDs = append(questionIDs, candidate.QuestionID)
		}
	}
	questions, err := s.repo.Question().GetByIDs(ctx, nil, questionIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get questions: %w", err)
	}

	optionCount := func(questionID uint) (int, error) {
		question, ok := questions[questionID]
		if !ok {
			return 0, NewDataIntegrityError("question", questionID, "set references a missing question", ErrQuestionNotFound)
		}
		return len(question.Options), nil
	}

	sel := s.newSelector()
	rows := make([]*models.PrintedQuestion, 0)
	for _, set := range sets {
		seeds, err := sel.Draw(set, optionCount)
		if err != nil {
			var intErr *DataIntegrityError
			if errors.As(err, &intErr) {
				return nil, nil, err
			}
			return nil, nil, NewDataIntegrityError("set", set.ID, "draw failed", err)
		}
		for _, seed := range seeds {
			rows = append(rows, &models.PrintedQuestion{
				QuestionIndex:  len(rows),
				QuestionID:     seed.QuestionID,
				SetID:          seed.SetID,
				ShuffleIndexes: seed.ShuffleIndexes,
				Valid:          seed.Valid,
			})
		}
	}

	if len(rows) == 0 {
		return nil, nil, ErrNoQuestionsDrawn
	}
	if len(rows) > s.cfg.MaxQuestionsPerPrint {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrTooManyQuestions, len(rows), s.cfg.MaxQuestionsPerPrint)
	}

	print := &models.ExamPrint{
		SessionID:    session.ID,
		UserID:       userID,
		StartedAt:    time.Now(),
		NumQuestions: len(rows),
		NumBlank:     len(rows),
	}
	return print, rows, nil
}

// ===== ANSWER NORMALIZATION =====

// normalizeRawAnswer validates and canonicalizes a submitted answer into its
// stored form. An empty result erases the stored answer. Resubmitting the
// current single-choice selection toggles it off.
func normalizeRawAnswer(question *models.Question, pq *models.PrintedQuestion, rawAnswer string) (string, error) {
	raw := strings.TrimSpace(rawAnswer)
	if raw == "" {
		return "", nil
	}

	switch question.Type {
	case models.AnswerTrueFalse:
		upper := strings.ToUpper(raw)
		if upper != "T" && upper != "F" {
			return "", NewValidationError("raw_answer", fmt.Sprintf("true/false answer must be T or F, got %q", raw))
		}
		return upper, nil

	case models.AnswerSingleChoice:
		indices, err := decodeChoiceAnswer(question, pq, raw)
		if err != nil {
			return "", err
		}
		if len(indices) != 1 {
			return "", NewValidationError("raw_answer", "single-choice answer must select exactly one option")
		}
		encoded := scoring.EncodeChoice(indices)
		if encoded == pq.RawAnswer {
			// same option picked again: deselect
			return "", nil
		}
		return encoded, nil

	case models.AnswerMultipleChoice:
		indices, err := decodeChoiceAnswer(question, pq, raw)
		if err != nil {
			return "", err
		}
		sort.Ints(indices)
		indices = dedupeInts(indices)
		return scoring.EncodeChoice(indices), nil

	case models.AnswerInteger, models.AnswerFloat, models.AnswerText:
		return raw, nil

	default:
		return "", NewValidationError("raw_answer", fmt.Sprintf("unsupported answer type %q", question.Type))
	}
}

// decodeChoiceAnswer parses selected underlying option indices and bounds
// them against the printed copy's realized option count.
func decodeChoiceAnswer(question *models.Question, pq *models.PrintedQuestion, raw string) ([]int, error) {
	indices, err := scoring.DecodeChoice(raw)
	if err != nil {
		return nil, NewValidationError("raw_answer", err.Error())
	}

	n := len(pq.ShuffleIndexes)
	if n == 0 {
		n = len(question.Options)
	}
	for _, index := range indices {
		if index < 0 || index >= n {
			return nil, NewValidationError("raw_answer", fmt.Sprintf("option index %d outside [0,%d)", index, n))
		}
	}
	return indices, nil
}

func dedupeInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// scoreAnswer grades one normalized answer. Malformed stored keys surface as
// data-integrity faults rather than silent zero scores.
func (s *printService) scoreAnswer(question *models.Question, raw string) (float64, error) {
	result, err := scoring.Score(question, raw, s.cfg.Scoring)
	if err != nil {
		if errors.Is(err, scoring.ErrMalformedAnswerKey) {
			return 0, NewDataIntegrityError("question", question.ID, "malformed answer key", err)
		}
		return 0, fmt.Errorf("failed to score answer: %w", err)
	}
	if result.Blank {
		return 0, nil
	}
	return result.Score, nil
}

// ===== AGGREGATES =====

// computeAggregates derives every persisted counter from the question rows.
// Counters are always rebuilt from scratch so a resubmitted answer can never
// leave a stale increment behind.
func computeAggregates(rows []*models.PrintedQuestion) repositories.PrintAggregates {
	var agg repositories.PrintAggregates
	agg.NumQuestions = len(rows)

	for _, row := range rows {
		if row.IsBlank() {
			agg.NumBlank++
			continue
		}
		agg.NumQuestionsNotBlank++
		agg.Score += row.Score
		if row.Valid {
			agg.ScoreValid += row.Score
		}

		switch {
		case row.Score >= 1.0:
			agg.NumCorrect++
		case row.Score < 0:
			agg.NumWrongNegative++
		case row.Score == 0:
			agg.NumWrongZero++
		default:
			agg.NumWrongPositive++
		}
	}
	return agg
}

// recomputeAggregates rebuilds and persists the counters inside the caller's
// transaction. rows may be passed when already loaded.
func (s *printService) recomputeAggregates(ctx context.Context, r repositories.Repository, printID uint, rows []*models.PrintedQuestion) error {
	if rows == nil {
		var err error
		rows, err = r.PrintedQuestion().GetByPrint(ctx, nil, printID)
		if err != nil {
			return fmt.Errorf("failed to get printed questions: %w", err)
		}
	}

	agg := computeAggregates(rows)
	if err := r.Print().UpdateAggregates(ctx, nil, printID, agg); err != nil {
		return fmt.Errorf("failed to update aggregates: %w", err)
	}
	return nil
}

func applyAggregates(print *models.ExamPrint, agg repositories.PrintAggregates) {
	print.NumQuestions = agg.NumQuestions
	print.NumQuestionsNotBlank = agg.NumQuestionsNotBlank
	print.Score = agg.Score
	print.ScoreValid = agg.ScoreValid
	print.NumCorrect = agg.NumCorrect
	print.NumWrongNegative = agg.NumWrongNegative
	print.NumWrongZero = agg.NumWrongZero
	print.NumWrongPositive = agg.NumWrongPositive
	print.NumBlank = agg.NumBlank
}

// ===== RESPONSE BUILDING =====

func (s *printService) buildResponseByID(ctx context.Context, printID uint) (*PrintResponse, error) {
	print, err := s.repo.Print().GetByIDWithQuestions(ctx, nil, printID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPrintNotFound
		}
		return nil, fmt.Errorf("failed to get print: %w", err)
	}
	return s.buildPrintResponse(ctx, print)
}

// buildPrintResponse assembles the student-facing view: stems and options in
// display order, never the answer key, scores only once the print is sent.
func (s *printService) buildPrintResponse(ctx context.Context, print *models.ExamPrint) (*PrintResponse, error) {
	questionIDs := make([]uint, len(print.Questions))
	for i, row := range print.Questions {
		questionIDs[i] = row.QuestionID
	}
	questions, err := s.repo.Question().GetByIDs(ctx, nil, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}

	views := make([]*PrintedQuestionView, len(print.Questions))
	for i := range print.Questions {
		row := &print.Questions[i]
		question, ok := questions[row.QuestionID]
		if !ok {
			return nil, NewDataIntegrityError("question", row.QuestionID, "printed question references a missing question", ErrQuestionNotFound)
		}

		view := &PrintedQuestionView{
			QuestionIndex: row.QuestionIndex,
			QuestionID:    row.QuestionID,
			SetID:         row.SetID,
			Type:          question.Type,
			Stem:          question.Stem,
			RawAnswer:     row.RawAnswer,
			Blank:         row.IsBlank(),
			Valid:         row.Valid,
		}

		if question.Type.IsChoice() {
			options, err := displayOptions(question, row)
			if err != nil {
				return nil, err
			}
			view.Options = options
		}

		if print.Sent {
			score := row.Score
			view.Score = &score
		}

		views[i] = view
	}

	return &PrintResponse{
		ExamPrint: print,
		CanAnswer: !print.Sent,
		Questions: views,
	}, nil
}

// displayOptions orders the question's options by the print's stored shuffle
// permutation.
func displayOptions(question *models.Question, row *models.PrintedQuestion) ([]string, error) {
	if len(row.ShuffleIndexes) != len(question.Options) {
		return nil, NewDataIntegrityError("question", question.ID,
			fmt.Sprintf("shuffle permutation has %d entries for %d options", len(row.ShuffleIndexes), len(question.Options)), nil)
	}

	options := make([]string, len(question.Options))
	for position, underlying := range row.ShuffleIndexes {
		if underlying < 0 || underlying >= len(question.Options) {
			return nil, NewDataIntegrityError("question", question.ID,
				fmt.Sprintf("shuffle index %d outside [0,%d)", underlying, len(question.Options)), nil)
		}
		options[position] = question.Options[underlying]
	}
	return options, nil
}

// ===== EVENTS =====

// publish sends an audit event without ever failing the request it records.
func (s *printService) publish(ctx context.Context, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
