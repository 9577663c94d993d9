package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/swad-platform/examprint-service/internal/models"
)

// ErrMalformedAnswerKey signals a corrupted stored answer key. Callers treat
// it as a data-integrity fault for the whole request; a broken key must never
// be coerced into a zero score that could under- or over-credit a student.
var ErrMalformedAnswerKey = errors.New("malformed answer key")

// Config holds the penalty knobs applied to wrong answers. All defaults keep
// a correct answer worth 1.0 before any exam-level weighting.
type Config struct {
	IntegerPenalty   float64 // score for a wrong integer answer
	FloatPenalty     float64 // score for an out-of-range float answer
	TrueFalsePenalty float64 // score for a wrong T/F answer

	// NegativeChoiceMarking scores a wrong single-choice pick as -1/(n-1)
	// for an n-option question instead of 0
	NegativeChoiceMarking bool
}

// DefaultConfig returns the grading defaults used in production.
func DefaultConfig() Config {
	return Config{
		IntegerPenalty:        0,
		FloatPenalty:          0,
		TrueFalsePenalty:      -0.5,
		NegativeChoiceMarking: true,
	}
}

// Result is the outcome of scoring one answered question. Blank always
// carries a zero score and excludes the question from the not-blank count.
type Result struct {
	Score float64
	Blank bool
}

// Score grades one question. It is a pure function: no I/O, no global state,
// identical inputs always yield the identical result, which is what makes
// regrading reproducible.
func Score(question *models.Question, rawAnswer string, cfg Config) (Result, error) {
	raw := strings.TrimSpace(rawAnswer)
	if raw == "" {
		return Result{Blank: true}, nil
	}

	switch question.Type {
	case models.AnswerInteger:
		return scoreInteger(question, raw, cfg)
	case models.AnswerFloat:
		return scoreFloat(question, raw, cfg)
	case models.AnswerTrueFalse:
		return scoreTrueFalse(question, raw, cfg)
	case models.AnswerSingleChoice:
		return scoreSingleChoice(question, raw, cfg)
	case models.AnswerMultipleChoice:
		return scoreMultipleChoice(question, raw)
	case models.AnswerText:
		return scoreText(question, raw)
	default:
		return Result{}, fmt.Errorf("unsupported answer type: %s", question.Type)
	}
}

func scoreInteger(question *models.Question, raw string, cfg Config) (Result, error) {
	key, err := decodeKey[models.IntegerKey](question)
	if err != nil {
		return Result{}, err
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// unparseable user input counts as no answer
		return Result{Blank: true}, nil
	}

	if value == key.Value {
		return Result{Score: 1.0}, nil
	}
	return Result{Score: cfg.IntegerPenalty}, nil
}

func scoreFloat(question *models.Question, raw string, cfg Config) (Result, error) {
	key, err := decodeKey[models.FloatKey](question)
	if err != nil {
		return Result{}, err
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Result{Blank: true}, nil
	}

	lo, hi := key.Min, key.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	if value >= lo && value <= hi {
		return Result{Score: 1.0}, nil
	}
	return Result{Score: cfg.FloatPenalty}, nil
}

func scoreTrueFalse(question *models.Question, raw string, cfg Config) (Result, error) {
	key, err := decodeKey[models.TrueFalseKey](question)
	if err != nil {
		return Result{}, err
	}
	if key.Answer != "T" && key.Answer != "F" {
		return Result{}, fmt.Errorf("%w: true/false key %q", ErrMalformedAnswerKey, key.Answer)
	}

	if raw == key.Answer {
		return Result{Score: 1.0}, nil
	}
	return Result{Score: cfg.TrueFalsePenalty}, nil
}

func scoreSingleChoice(question *models.Question, raw string, cfg Config) (Result, error) {
	key, err := choiceKey(question)
	if err != nil {
		return Result{}, err
	}

	selected, err := DecodeChoice(raw)
	if err != nil || len(selected) != 1 {
		return Result{}, fmt.Errorf("malformed single-choice answer %q", raw)
	}
	index := selected[0]
	if index < 0 || index >= len(key.Correct) {
		return Result{}, fmt.Errorf("%w: option index %d outside [0,%d)", ErrMalformedAnswerKey, index, len(key.Correct))
	}

	if key.Correct[index] {
		return Result{Score: 1.0}, nil
	}
	if cfg.NegativeChoiceMarking && len(key.Correct) > 1 {
		return Result{Score: -1.0 / float64(len(key.Correct)-1)}, nil
	}
	return Result{Score: 0}, nil
}

// scoreMultipleChoice credits the fraction of options whose marked state
// matches the correctness vector, over all options of the question.
func scoreMultipleChoice(question *models.Question, raw string) (Result, error) {
	key, err := choiceKey(question)
	if err != nil {
		return Result{}, err
	}

	selected, err := DecodeChoice(raw)
	if err != nil {
		return Result{}, fmt.Errorf("malformed multiple-choice answer %q", raw)
	}
	marked := make([]bool, len(key.Correct))
	for _, index := range selected {
		if index < 0 || index >= len(key.Correct) {
			return Result{}, fmt.Errorf("%w: option index %d outside [0,%d)", ErrMalformedAnswerKey, index, len(key.Correct))
		}
		marked[index] = true
	}

	matches := 0
	for i := range key.Correct {
		if marked[i] == key.Correct[i] {
			matches++
		}
	}
	return Result{Score: float64(matches) / float64(len(key.Correct))}, nil
}

func scoreText(question *models.Question, raw string) (Result, error) {
	key, err := decodeKey[models.TextKey](question)
	if err != nil {
		return Result{}, err
	}

	given := normalizeText(raw, key.CaseSensitive)
	for _, accepted := range key.Accepted {
		if given == normalizeText(accepted, key.CaseSensitive) {
			return Result{Score: 1.0}, nil
		}
	}
	return Result{Score: 0}, nil
}

// ===== RAW ANSWER ENCODING =====

// EncodeChoice renders selected underlying option indices as the stored
// comma-separated form, e.g. "0,2,3".
func EncodeChoice(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	parts := make([]string, len(indices))
	for i, index := range indices {
		parts[i] = strconv.Itoa(index)
	}
	return strings.Join(parts, ",")
}

// DecodeChoice parses the stored comma-separated option-index list.
func DecodeChoice(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		index, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid option index %q: %w", part, err)
		}
		indices = append(indices, index)
	}
	return indices, nil
}

// ===== HELPERS =====

func decodeKey[K any](question *models.Question) (K, error) {
	var key K
	if len(question.Answer) == 0 {
		return key, fmt.Errorf("%w: question %d has no answer key", ErrMalformedAnswerKey, question.ID)
	}
	if err := json.Unmarshal(question.Answer, &key); err != nil {
		return key, fmt.Errorf("%w: question %d: %v", ErrMalformedAnswerKey, question.ID, err)
	}
	return key, nil
}

func choiceKey(question *models.Question) (models.ChoiceKey, error) {
	key, err := decodeKey[models.ChoiceKey](question)
	if err != nil {
		return key, err
	}
	if len(key.Correct) == 0 {
		return key, fmt.Errorf("%w: question %d has empty correctness vector", ErrMalformedAnswerKey, question.ID)
	}
	if len(question.Options) != 0 && len(question.Options) != len(key.Correct) {
		return key, fmt.Errorf("%w: question %d has %d options but %d correctness flags",
			ErrMalformedAnswerKey, question.ID, len(question.Options), len(key.Correct))
	}
	return key, nil
}

func normalizeText(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
