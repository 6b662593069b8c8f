package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// OptionKey identifies one answer option of a multiple-choice question.
type OptionKey string

const (
	OptionA OptionKey = "A"
	OptionB OptionKey = "B"
	OptionC OptionKey = "C"
	OptionD OptionKey = "D"
)

// OptionKeys is the fixed alphabet option keys are drawn from.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether k belongs to the option alphabet.
func (k OptionKey) Valid() bool {
	for _, known := range OptionKeys {
		if k == known {
			return true
		}
	}
	return false
}

var (
	ErrNoOptions            = errors.New("question has no options")
	ErrUnknownOptionKey     = errors.New("option key outside A-D")
	ErrCorrectOptionMissing = errors.New("correct option is not one of the options")
)

// Question represents a single multiple-choice exam question.
type Question struct {
	ID            uuid.UUID            `json:"id"`
	Prompt        string               `json:"prompt"`
	Options       map[OptionKey]string `json:"options"`
	CorrectOption OptionKey            `json:"correct_option"`
	OrderNum      int                  `json:"order_num"`
}

// HasOption reports whether key is one of the question's options.
func (q *Question) HasOption(key OptionKey) bool {
	_, ok := q.Options[key]
	return ok
}

// Validate checks that the option keys are known and the correct option is present.
func (q *Question) Validate() error {
	if len(q.Options) == 0 {
		return ErrNoOptions
	}
	for k := range q.Options {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownOptionKey, k)
		}
	}
	if !q.HasOption(q.CorrectOption) {
		return ErrCorrectOptionMissing
	}
	return nil
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID      uuid.UUID            `json:"id"`
	Prompt  string               `json:"prompt"`
	Options map[OptionKey]string `json:"options"`
}
