package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/swad-platform/examprint-service/internal/models"
)

// ErrInvalidOptionIndex signals an underlying option index outside the
// configured bound. It indicates corrupted question-bank data and is fatal to
// the whole draw.
var ErrInvalidOptionIndex = errors.New("invalid option index")

// MaxOptionsPerQuestion bounds the option count a choice question may carry.
const MaxOptionsPerQuestion = 10

// Seed is the material for one printed question: which question, from which
// set, and the realized option shuffle. The selector never persists anything;
// the store turns seeds into rows.
type Seed struct {
	QuestionID uint
	SetID      uint
	Type       models.AnswerType
	Valid      bool

	// ShuffleIndexes maps display position to underlying option index.
	// Nil for non-choice answer types.
	ShuffleIndexes []int
}

// Selector draws random, non-repeating question subsets per set. The random
// source is injected so prints are reproducible under test.
type Selector struct {
	rng *rand.Rand
}

// New builds a selector around the given source.
func New(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// NewSeeded builds a selector from two seed words.
func NewSeeded(seed1, seed2 uint64) *Selector {
	return New(rand.NewPCG(seed1, seed2))
}

// Draw selects min(pool, set.NumQuestionsToPrint) distinct questions from the
// set's candidate pool, in random order, and generates a shuffle permutation
// for each choice question. optionCount reports the option count of a
// question; it is only consulted for choice types.
func (s *Selector) Draw(set *models.ExamSet, optionCount func(questionID uint) (int, error)) ([]Seed, error) {
	k := set.NumQuestionsToPrint
	if k <= 0 {
		return nil, nil
	}

	pool := set.Questions
	if k > len(pool) {
		k = len(pool)
	}

	picks := s.rng.Perm(len(pool))[:k]
	seeds := make([]Seed, 0, k)
	for _, pick := range picks {
		candidate := pool[pick]
		seed := Seed{
			QuestionID: candidate.QuestionID,
			SetID:      set.ID,
			Type:       candidate.Type,
			Valid:      !candidate.Invalid,
		}

		if candidate.Type.IsChoice() {
			n, err := optionCount(candidate.QuestionID)
			if err != nil {
				return nil, fmt.Errorf("option count for question %d: %w", candidate.QuestionID, err)
			}
			if n <= 0 || n > MaxOptionsPerQuestion {
				return nil, fmt.Errorf("%w: question %d has %d options", ErrInvalidOptionIndex, candidate.QuestionID, n)
			}
			seed.ShuffleIndexes = s.permutation(n, candidate.Shuffle)
		}

		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// permutation returns the identity order when shuffling is disabled, and a
// uniformly random permutation of [0,n) otherwise.
func (s *Selector) permutation(n int, shuffle bool) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if shuffle {
		s.rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	}
	return perm
}
