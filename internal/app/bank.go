package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/domain"
)

// LoadBank fetches the question bank once and checks every entry is playable.
func LoadBank(ctx context.Context, loader BankLoader) ([]domain.Question, error) {
	bank, err := loader.LoadBank(ctx)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	if len(bank) == 0 {
		return nil, domain.ErrEmptyBank
	}
	for i, q := range bank {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %d: missing text", i)
		}
		if strings.TrimSpace(q.Correct) == "" {
			return nil, fmt.Errorf("question %d: missing correct answer", i)
		}
	}
	return bank, nil
}

// FallbackLoader reads Primary and switches to Fallback when Primary holds no questions, so an
// empty store does not keep the game from starting.
type FallbackLoader struct {
	Primary  BankLoader
	Fallback BankLoader
}

func (l FallbackLoader) LoadBank(ctx context.Context) ([]domain.Question, error) {
	bank, err := l.Primary.LoadBank(ctx)
	if err == nil && len(bank) > 0 {
		return bank, nil
	}
	if err != nil && !errors.Is(err, domain.ErrEmptyBank) {
		return nil, err
	}
	log.Warn().Msg("question store is empty, serving fallback bank")
	return l.Fallback.LoadBank(ctx)
}
