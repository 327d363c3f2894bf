// Package round derives the game clock (round, phase, question, time left) from wall-clock time.
//
// Everything here is a pure function of (now, Config). The only anchor is Config.Epoch, which is
// fixed once when the config is built and never recomputed.
package round

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Phase is the sub-state of the round clock.
type Phase string

const (
	PhaseWaiting      Phase = "waiting"
	PhaseReading      Phase = "reading"
	PhaseAnswering    Phase = "answering"
	PhaseLeaderboard  Phase = "leaderboard"
	PhaseIntermission Phase = "intermission"
)

// shuffleStream is the second PCG seed word; the round number is the first.
const shuffleStream = 0x71756973

// Config holds the fixed timing constants of the game clock.
type Config struct {
	Epoch                time.Time
	ReadDuration         time.Duration
	AnswerDuration       time.Duration
	LeaderboardDuration  time.Duration
	RoundDuration        time.Duration
	IntermissionDuration time.Duration
	BankSize             int
	Shuffle              bool
}

// QuestionDuration is the length of one question slot, leaderboard included.
func (c Config) QuestionDuration() time.Duration {
	return c.ReadDuration + c.AnswerDuration + c.LeaderboardDuration
}

// CycleLength is one round plus its intermission.
func (c Config) CycleLength() time.Duration {
	return c.RoundDuration + c.IntermissionDuration
}

// SlotsPerRound counts question slots in a round, a truncated final slot included.
func (c Config) SlotsPerRound() int64 {
	qd := c.QuestionDuration()
	return int64((c.RoundDuration + qd - 1) / qd)
}

// Validate checks that the clock can be evaluated.
func (c Config) Validate() error {
	switch {
	case c.Epoch.IsZero():
		return fmt.Errorf("round config: epoch not set")
	case c.ReadDuration < 0 || c.LeaderboardDuration < 0 || c.IntermissionDuration < 0:
		return fmt.Errorf("round config: durations must not be negative")
	case c.AnswerDuration <= 0:
		return fmt.Errorf("round config: answer duration must be positive")
	case c.RoundDuration <= 0:
		return fmt.Errorf("round config: round duration must be positive")
	case c.BankSize <= 0:
		return fmt.Errorf("round config: question bank size must be positive")
	}
	return nil
}

// AnchorBefore returns the latest multiple of align (counted from the zero time, UTC) at or before t.
func AnchorBefore(t time.Time, align time.Duration) time.Time {
	if align <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(align)
}

// Info is the derived clock state at one instant. It is never stored.
type Info struct {
	At           time.Time
	Round        int64
	Intermission bool
	Phase        Phase
	// QuestionIndex is the bank index, -1 outside a question slot.
	QuestionIndex int
	// Slot is the position of the question inside the round, -1 outside a question slot.
	Slot int64
	// Seq numbers question occurrences across rounds, -1 outside a question slot.
	Seq           int64
	PhaseTimeLeft time.Duration
	RoundTimeLeft time.Duration

	QuestionStart time.Time
	AnswerOpen    time.Time
	AnswerClose   time.Time
}

// HasQuestion reports whether a question slot is on the clock.
func (i Info) HasQuestion() bool {
	return i.Seq >= 0
}

// Accepting reports whether answers may be submitted.
func (i Info) Accepting() bool {
	return i.Phase == PhaseAnswering
}

// Open reports whether the current question has not yet passed its answering window.
func (i Info) Open() bool {
	return i.Phase == PhaseReading || i.Phase == PhaseAnswering
}

// Engine evaluates a Config. It is immutable and safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// At maps a timestamp to the clock state. The same timestamp always yields the same Info.
func (e *Engine) At(now time.Time) Info {
	c := e.cfg
	info := Info{At: now, QuestionIndex: -1, Slot: -1, Seq: -1}

	if now.Before(c.Epoch) {
		left := c.Epoch.Sub(now)
		info.Phase = PhaseWaiting
		info.PhaseTimeLeft = left
		info.RoundTimeLeft = left
		return info
	}

	cycle := c.CycleLength()
	elapsed := now.Sub(c.Epoch)
	info.Round = int64(elapsed / cycle)
	inCycle := elapsed % cycle
	roundStart := c.Epoch.Add(time.Duration(info.Round) * cycle)

	if inCycle >= c.RoundDuration {
		left := cycle - inCycle
		info.Intermission = true
		info.Phase = PhaseIntermission
		info.PhaseTimeLeft = left
		info.RoundTimeLeft = left
		return info
	}

	roundLeft := c.RoundDuration - inCycle
	roundEnd := roundStart.Add(c.RoundDuration)
	qd := c.QuestionDuration()
	slot := int64(inCycle / qd)
	within := inCycle % qd

	info.Slot = slot
	info.Seq = info.Round*c.SlotsPerRound() + slot
	info.QuestionIndex = e.questionIndex(info.Round, slot)
	info.RoundTimeLeft = roundLeft
	info.QuestionStart = roundStart.Add(time.Duration(slot) * qd)
	info.AnswerOpen = capTime(info.QuestionStart.Add(c.ReadDuration), roundEnd)
	info.AnswerClose = capTime(info.AnswerOpen.Add(c.AnswerDuration), roundEnd)

	switch {
	case within < c.ReadDuration:
		info.Phase = PhaseReading
		info.PhaseTimeLeft = c.ReadDuration - within
	case within < c.ReadDuration+c.AnswerDuration:
		info.Phase = PhaseAnswering
		info.PhaseTimeLeft = c.ReadDuration + c.AnswerDuration - within
	default:
		info.Phase = PhaseLeaderboard
		info.PhaseTimeLeft = qd - within
	}
	if info.PhaseTimeLeft > roundLeft {
		info.PhaseTimeLeft = roundLeft
	}
	return info
}

// ClosedThrough returns the highest seq whose answering window has closed by now, or -1 when
// none has.
func (e *Engine) ClosedThrough(now time.Time) int64 {
	info := e.At(now)
	switch {
	case info.Phase == PhaseWaiting:
		return -1
	case info.Intermission:
		return (info.Round+1)*e.cfg.SlotsPerRound() - 1
	case !now.Before(info.AnswerClose):
		return info.Seq
	default:
		return info.Seq - 1
	}
}

// Occurrence returns the clock state at the start of the question slot numbered seq.
func (e *Engine) Occurrence(seq int64) Info {
	c := e.cfg
	slots := c.SlotsPerRound()
	start := c.Epoch.
		Add(time.Duration(seq/slots) * c.CycleLength()).
		Add(time.Duration(seq%slots) * c.QuestionDuration())
	return e.At(start)
}

// questionIndex picks the bank entry for a slot. With Shuffle, each round walks a permutation
// seeded by the round number so a round does not repeat questions before exhausting the bank.
func (e *Engine) questionIndex(round, slot int64) int {
	n := int64(e.cfg.BankSize)
	pos := int(slot % n)
	if !e.cfg.Shuffle {
		return pos
	}
	perm := rand.New(rand.NewPCG(uint64(round), shuffleStream)).Perm(int(n))
	return perm[pos]
}

func capTime(t, limit time.Time) time.Time {
	if t.After(limit) {
		return limit
	}
	return t
}
