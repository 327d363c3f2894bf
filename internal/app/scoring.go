package app

import (
	"fmt"
	"strings"
	"time"
)

// ScoringKind selects how a correct answer is rewarded.
type ScoringKind string

const (
	// ScoringFlat awards one point per correct answer.
	ScoringFlat ScoringKind = "flat"
	// ScoringDecay awards floor(MaxScore * timeLeft / answerWindow).
	ScoringDecay ScoringKind = "decay"
)

// ScoringPolicy computes the points for a correct answer.
type ScoringPolicy struct {
	Kind     ScoringKind
	MaxScore int
}

// ParseScoringKind maps a config string to a ScoringKind. Empty means flat.
func ParseScoringKind(raw string) (ScoringKind, error) {
	switch ScoringKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScoringFlat:
		return ScoringFlat, nil
	case ScoringDecay:
		return ScoringDecay, nil
	}
	return "", fmt.Errorf("unknown scoring policy %q", raw)
}

// Points returns the award for a correct answer submitted with timeLeft remaining in a window of
// the given length.
func (p ScoringPolicy) Points(timeLeft, window time.Duration) int {
	if p.Kind != ScoringDecay {
		return 1
	}
	if window <= 0 || timeLeft <= 0 {
		return 0
	}
	if timeLeft > window {
		timeLeft = window
	}
	return int(int64(p.MaxScore) * int64(timeLeft) / int64(window))
}

// DisasterPolicy decides when the DisasterMeter goes back to zero.
type DisasterPolicy string

const (
	// DisasterNever keeps the meter for the process lifetime.
	DisasterNever DisasterPolicy = "never"
	// DisasterPerRound resets the meter when a new round starts.
	DisasterPerRound DisasterPolicy = "round"
)

// ParseDisasterPolicy maps a config string to a DisasterPolicy. Empty means never.
func ParseDisasterPolicy(raw string) (DisasterPolicy, error) {
	switch DisasterPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DisasterNever:
		return DisasterNever, nil
	case DisasterPerRound:
		return DisasterPerRound, nil
	}
	return "", fmt.Errorf("unknown disaster reset policy %q", raw)
}

func normalizeAnswer(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}
