package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/domain"
	"quizastrous-server/internal/round"
)

// Broadcaster delivers snapshots to live observers. Publish must not block.
type Broadcaster interface {
	Publish(snapshot domain.Snapshot)
}

// BankLoader fetches the ordered question bank from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context) ([]domain.Question, error)
}

// Options are the game policies that are not part of the clock.
type Options struct {
	Scoring                     ScoringPolicy
	CaseSensitive               bool
	AllowLateJoin               bool
	AllowJoinDuringIntermission bool
	UniqueNames                 bool
	DisasterReset               DisasterPolicy
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		Scoring:                     ScoringPolicy{Kind: ScoringFlat, MaxScore: 100},
		AllowJoinDuringIntermission: true,
		UniqueNames:                 true,
		DisasterReset:               DisasterNever,
	}
}

// Game owns every piece of mutable game state: the player registry, the pending result sets and
// the DisasterMeter. All mutations go through mu, so a submit racing a resolve is either accepted
// into the question or rejected as too late.
type Game struct {
	engine      *round.Engine
	bank        []domain.Question
	clock       clockwork.Clock
	opts        Options
	broadcaster Broadcaster
	newID       func() string

	mu            sync.Mutex
	players       map[string]*domain.Player
	names         map[string]string
	pending       map[int64]pendingSet
	lastResolved  int64
	disaster      int
	disasterRound int64
}

type submission struct {
	answer   string
	timeLeft time.Duration
	window   time.Duration
}

// pendingSet holds the submissions for one question occurrence, keyed by player id.
type pendingSet map[string]submission

// NewGame wires a game over a validated engine and bank. broadcaster may be nil.
func NewGame(engine *round.Engine, bank []domain.Question, clock clockwork.Clock, opts Options, broadcaster Broadcaster) (*Game, error) {
	if len(bank) == 0 {
		return nil, domain.ErrEmptyBank
	}
	if size := engine.Config().BankSize; size != len(bank) {
		return nil, fmt.Errorf("engine expects %d questions, bank has %d", size, len(bank))
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Game{
		engine:        engine,
		bank:          bank,
		clock:         clock,
		opts:          opts,
		broadcaster:   broadcaster,
		newID:         func() string { return uuid.New().String() },
		players:       make(map[string]*domain.Player),
		names:         make(map[string]string),
		pending:       make(map[int64]pendingSet),
		lastResolved:  -1,
		disasterRound: -1,
	}, nil
}

// Now returns the clock state for the current instant.
func (g *Game) Now() round.Info {
	return g.engine.At(g.clock.Now())
}

// Join registers a new player and pushes the updated state to observers.
func (g *Game) Join(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	info := g.engine.At(now)
	if info.Intermission && !g.opts.AllowJoinDuringIntermission {
		return "", domain.ErrJoinClosed
	}
	player, err := g.registerLocked(name, now)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("player_id", player.ID).
		Str("name", player.Name).
		Str("phase", string(info.Phase)).
		Msg("player joined")
	g.publishLocked(info)
	return player.ID, nil
}

// Player returns a copy of the registered player.
func (g *Game) Player(id string) (domain.Player, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return *p, nil
}

// PlayerView returns the snapshot view of one player at the current instant.
func (g *Game) PlayerView(id string) (domain.PlayerView, error) {
	info := g.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[id]
	if !ok {
		return domain.PlayerView{}, domain.ErrPlayerNotFound
	}
	return viewOf(p, info), nil
}

// Submit records an answer against the clock state of this instant.
func (g *Game) Submit(_ context.Context, playerID, answer string) (domain.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLocked(playerID, answer, g.engine.At(g.clock.Now()))
}

// SubmitAt records an answer against an already computed clock state.
func (g *Game) SubmitAt(playerID, answer string, info round.Info) (domain.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLocked(playerID, answer, info)
}

func (g *Game) submitLocked(playerID, answer string, info round.Info) (domain.SubmitResult, error) {
	if strings.TrimSpace(answer) == "" {
		return domain.SubmitResult{}, domain.ErrInvalidAnswer
	}
	if !info.Accepting() || info.Seq <= g.lastResolved {
		return domain.SubmitResult{}, domain.ErrNotAcceptingAnswers
	}
	player, ok := g.players[playerID]
	if !ok {
		return domain.SubmitResult{}, domain.ErrPlayerNotFound
	}
	if !g.eligible(player, info) {
		return domain.SubmitResult{}, domain.ErrJoinedMidQuestion
	}
	if player.AnsweredSeq == info.Seq {
		// Client retry: the first submission stands.
		return domain.SubmitResult{Seq: info.Seq, Duplicate: true}, nil
	}

	set, ok := g.pending[info.Seq]
	if !ok {
		set = make(pendingSet)
		g.pending[info.Seq] = set
	}
	set[playerID] = submission{
		answer:   answer,
		timeLeft: info.PhaseTimeLeft,
		window:   info.AnswerClose.Sub(info.AnswerOpen),
	}
	player.AnsweredSeq = info.Seq

	log.Debug().
		Str("player_id", playerID).
		Int64("seq", info.Seq).
		Dur("time_left", info.PhaseTimeLeft).
		Msg("answer recorded")
	g.publishLocked(info)
	return domain.SubmitResult{Seq: info.Seq}, nil
}

// Resolve scores the question occurrence described by info. It runs at most once per occurrence;
// later calls for the same or an older sequence are skipped and reported as false.
func (g *Game) Resolve(info round.Info) (domain.Resolution, bool) {
	if !info.HasQuestion() {
		return domain.Resolution{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if info.Seq <= g.lastResolved {
		log.Debug().
			Int64("seq", info.Seq).
			Int64("last_resolved", g.lastResolved).
			Msg("skipping resolve for already resolved question")
		return domain.Resolution{}, false
	}
	g.lastResolved = info.Seq
	set := g.pending[info.Seq]
	delete(g.pending, info.Seq)
	for seq := range g.pending {
		if seq < info.Seq {
			log.Warn().Int64("seq", seq).Msg("dropping stale pending set")
			delete(g.pending, seq)
		}
	}

	now := g.clock.Now()
	correct := normalizeAnswer(g.bank[info.QuestionIndex].Correct, g.opts.CaseSensitive)
	res := domain.Resolution{
		Round:         info.Round,
		Seq:           info.Seq,
		QuestionIndex: info.QuestionIndex,
		ResolvedAt:    now,
	}

	for _, player := range g.sortedPlayersLocked() {
		sub, answered := set[player.ID]
		if !answered && !g.eligible(player, info) {
			continue
		}
		outcome := domain.Outcome{PlayerID: player.ID, Answered: answered}
		if answered && normalizeAnswer(sub.answer, g.opts.CaseSensitive) == correct {
			outcome.Correct = true
			outcome.Awarded = g.opts.Scoring.Points(sub.timeLeft, sub.window)
			player.Score += outcome.Awarded
			player.LastUpdated = now
		} else {
			res.DisasterDelta++
		}
		player.ResolvedSeq = info.Seq
		res.Outcomes = append(res.Outcomes, outcome)
	}
	g.disaster += res.DisasterDelta
	res.DisasterMeter = g.disaster

	log.Info().
		Int64("round", info.Round).
		Int64("seq", info.Seq).
		Int("question", info.QuestionIndex).
		Int("answers", len(set)).
		Int("disaster_delta", res.DisasterDelta).
		Msg("question resolved")
	return res, true
}

// Advance applies clock-driven policies that are not tied to one question. It reports whether
// state changed.
func (g *Game) Advance(info round.Info) bool {
	if g.opts.DisasterReset != DisasterPerRound || info.Phase == round.PhaseWaiting {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if info.Round <= g.disasterRound {
		return false
	}
	g.disasterRound = info.Round
	if g.disaster == 0 {
		return false
	}
	log.Info().Int64("round", info.Round).Int("disaster", g.disaster).Msg("disaster meter reset")
	g.disaster = 0
	return true
}

// DisasterMeter returns the current count of wrong or missed answers.
func (g *Game) DisasterMeter() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disaster
}

// Snapshot builds the observer payload for the given clock state.
func (g *Game) Snapshot(info round.Info) domain.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked(info)
}

func (g *Game) snapshotLocked(info round.Info) domain.Snapshot {
	players := g.sortedPlayersLocked()
	views := make([]domain.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, viewOf(p, info))
	}
	sortLeaderboard(views, g.players)

	snap := domain.Snapshot{
		Players:         views,
		DisasterMeter:   g.disaster,
		RoundNumber:     info.Round,
		Phase:           string(info.Phase),
		Intermission:    info.Intermission,
		PhaseTimeLeftMs: info.PhaseTimeLeft.Milliseconds(),
		RoundTimeLeftMs: info.RoundTimeLeft.Milliseconds(),
		ServerTime:      info.At,
	}
	if info.HasQuestion() {
		view := g.bank[info.QuestionIndex].View(info.QuestionIndex)
		snap.CurrentQuestion = &view
	}
	return snap
}

// broadcastSnapshot builds the snapshot and hands it to b in one critical section, so it cannot
// overtake a snapshot published by a concurrent mutation.
func (g *Game) broadcastSnapshot(info round.Info, b Broadcaster) domain.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := g.snapshotLocked(info)
	if b != nil {
		b.Publish(snap)
	}
	return snap
}

func (g *Game) publishLocked(info round.Info) {
	if g.broadcaster == nil {
		return
	}
	g.broadcaster.Publish(g.snapshotLocked(info))
}

// eligible reports whether the player may answer, or be counted as missing, the question in info.
// Players who joined before the question started are always eligible; late joiners only when the
// policy allows and they joined before the answering window closed.
func (g *Game) eligible(p *domain.Player, info round.Info) bool {
	if p.JoinedAt.Before(info.QuestionStart) {
		return true
	}
	return g.opts.AllowLateJoin && p.JoinedAt.Before(info.AnswerClose)
}
