package memory

import (
	"context"

	"quizastrous-server/internal/domain"
)

// StaticBankLoader serves a fixed in-memory question bank (config file or built-in defaults).
type StaticBankLoader struct {
	questions []domain.Question
}

func NewStaticBankLoader(questions []domain.Question) *StaticBankLoader {
	return &StaticBankLoader{questions: questions}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) ([]domain.Question, error) {
	if len(l.questions) == 0 {
		return nil, domain.ErrEmptyBank
	}
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}

// DefaultBank is the built-in bank used when nothing else is configured.
func DefaultBank() []domain.Question {
	return []domain.Question{
		{Text: "2 + 2 = ?", Options: []string{"3", "4", "5"}, Correct: "4"},
		{Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, Correct: "Paris"},
		{Text: "Which is a programming language?", Options: []string{"Python", "Snake", "Lion"}, Correct: "Python"},
	}
}
