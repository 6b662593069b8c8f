// Package grading turns a set of selections into a pass/fail Result.
package grading

import "github.com/stemsi/exstem-session/internal/model"

// Grade partitions questions into correct and wrong answers in question order.
// An index with no selection counts as wrong. The verdict is Pass iff the number
// of correct answers is at least passingMarks.
func Grade(questions []model.Question, selected map[int]model.OptionKey, passingMarks int) model.Result {
	correct := make([]model.Question, 0, len(questions))
	wrong := make([]model.Question, 0, len(questions))

	for i, q := range questions {
		if key, ok := selected[i]; ok && key == q.CorrectOption {
			correct = append(correct, q)
			continue
		}
		wrong = append(wrong, q)
	}

	verdict := model.VerdictFail
	if len(correct) >= passingMarks {
		verdict = model.VerdictPass
	}

	return model.Result{
		CorrectAnswers: correct,
		WrongAnswers:   wrong,
		Verdict:        verdict,
	}
}

// Score scales the correct-answer ratio to the exam's total marks.
func Score(result model.Result, totalMarks int) float64 {
	n := result.CorrectCount() + result.WrongCount()
	if n == 0 || totalMarks <= 0 {
		return 0
	}
	return float64(result.CorrectCount()) / float64(n) * float64(totalMarks)
}
