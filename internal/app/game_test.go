package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quizastrous-server/internal/app"
	"quizastrous-server/internal/domain"
	"quizastrous-server/internal/round"
)

var epoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func testBank() []domain.Question {
	return []domain.Question{
		{Text: "2 + 2 = ?", Options: []string{"3", "4", "5"}, Correct: "4"},
		{Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, Correct: "Paris"},
		{Text: "Which is a programming language?", Options: []string{"Python", "Snake", "Lion"}, Correct: "Python"},
	}
}

// Questions: q0 reads 0-5s, answers 5-15s, leaderboard 15-20s; q1 starts at 20s; intermission at 60s.
func testEngine(t *testing.T) *round.Engine {
	t.Helper()
	engine, err := round.NewEngine(round.Config{
		Epoch:                epoch,
		ReadDuration:         5 * time.Second,
		AnswerDuration:       10 * time.Second,
		LeaderboardDuration:  5 * time.Second,
		RoundDuration:        time.Minute,
		IntermissionDuration: 30 * time.Second,
		BankSize:             3,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

type recorder struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
	ch    chan domain.Snapshot
}

func (r *recorder) Publish(s domain.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	if r.ch != nil {
		select {
		case r.ch <- s:
		default:
		}
	}
}

func (r *recorder) last() (domain.Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return domain.Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type fixture struct {
	game   *app.Game
	engine *round.Engine
	clock  fakeClock
	rec    *recorder
}

func newFixture(t *testing.T, opts app.Options) fixture {
	t.Helper()
	engine := testEngine(t)
	clock := clockwork.NewFakeClockAt(epoch.Add(-time.Second))
	rec := &recorder{}
	game, err := app.NewGame(engine, testBank(), clock, opts, rec)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return fixture{game: game, engine: engine, clock: clock, rec: rec}
}

func (f fixture) at(offset time.Duration) round.Info {
	return f.engine.At(epoch.Add(offset))
}

func (f fixture) join(t *testing.T, name string) string {
	t.Helper()
	id, err := f.game.Join(context.Background(), name)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return id
}

func (f fixture) score(t *testing.T, id string) int {
	t.Helper()
	p, err := f.game.Player(id)
	if err != nil {
		t.Fatalf("player %s: %v", id, err)
	}
	return p.Score
}

func TestJoinRegistersAndBroadcasts(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "  Alice ")

	p, err := f.game.Player(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Alice" || p.Score != 0 {
		t.Fatalf("unexpected player %+v", p)
	}
	snap, n := f.rec.last()
	if n != 1 || len(snap.Players) != 1 || snap.Players[0].ID != id {
		t.Fatalf("expected join broadcast with the new player, got %d snapshots: %+v", n, snap)
	}
}

func TestJoinRejectsDuplicateAndEmptyNames(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	f.join(t, "Alice")

	if _, err := f.game.Join(context.Background(), "alice"); !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
	if _, err := f.game.Join(context.Background(), "   "); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected invalid name error, got %v", err)
	}
	if _, err := f.game.Join(context.Background(), strings.Repeat("x", 33)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for long name, got %v", err)
	}
}

func TestJoinAllowsSameNameWhenNotUnique(t *testing.T) {
	opts := app.DefaultOptions()
	opts.UniqueNames = false
	f := newFixture(t, opts)
	a := f.join(t, "Alice")
	b := f.join(t, "Alice")
	if a == b {
		t.Fatalf("expected fresh ids, got %s twice", a)
	}
}

func TestJoinDuringIntermissionPolicy(t *testing.T) {
	opts := app.DefaultOptions()
	opts.AllowJoinDuringIntermission = false
	f := newFixture(t, opts)
	f.clock.Advance(65 * time.Second)

	_, err := f.game.Join(context.Background(), "Alice")
	if !errors.Is(err, domain.ErrJoinClosed) || !domain.IsPhaseRejected(err) {
		t.Fatalf("expected join closed, got %v", err)
	}
}

func TestGetUnknownPlayer(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	if _, err := f.game.Player("nope"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFlatScoringRoundTrip(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")

	if _, err := f.game.SubmitAt(id, "4", f.at(6*time.Second)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, ok := f.game.Resolve(f.at(14 * time.Second))
	if !ok {
		t.Fatalf("expected resolution")
	}
	if got := f.score(t, id); got != 1 {
		t.Fatalf("expected score 1, got %d", got)
	}
	if f.game.DisasterMeter() != 0 || res.DisasterDelta != 0 {
		t.Fatalf("expected disaster unchanged, got %d (delta %d)", f.game.DisasterMeter(), res.DisasterDelta)
	}
}

func TestDecayScoringScenario(t *testing.T) {
	opts := app.DefaultOptions()
	opts.Scoring = app.ScoringPolicy{Kind: app.ScoringDecay, MaxScore: 100}
	f := newFixture(t, opts)
	id := f.join(t, "Alice")

	info := f.at(11 * time.Second)
	if info.PhaseTimeLeft != 4*time.Second {
		t.Fatalf("expected 4s left, got %v", info.PhaseTimeLeft)
	}
	if _, err := f.game.SubmitAt(id, "4", info); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.game.Resolve(info)
	if got := f.score(t, id); got != 40 {
		t.Fatalf("expected floor(100*4/10)=40, got %d", got)
	}
}

func TestSubmitOutsideAnsweringWindow(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")

	for _, offset := range []time.Duration{2 * time.Second, 16 * time.Second, 70 * time.Second} {
		_, err := f.game.SubmitAt(id, "4", f.at(offset))
		if !errors.Is(err, domain.ErrNotAcceptingAnswers) {
			t.Fatalf("offset %v: expected not accepting, got %v", offset, err)
		}
	}
	f.game.Resolve(f.at(6 * time.Second))
	if got := f.score(t, id); got != 0 {
		t.Fatalf("expected score unaffected, got %d", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	if _, err := f.game.SubmitAt("ghost", "4", f.at(6*time.Second)); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected unknown player, got %v", err)
	}
	id := f.join(t, "Alice")
	if _, err := f.game.SubmitAt(id, "  ", f.at(6*time.Second)); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
}

func TestDuplicateSubmissionKeepsFirst(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")

	if _, err := f.game.SubmitAt(id, "3", f.at(6*time.Second)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := f.game.SubmitAt(id, "4", f.at(7*time.Second))
	if err != nil || !res.Duplicate {
		t.Fatalf("expected idempotent duplicate, got %+v %v", res, err)
	}
	f.game.Resolve(f.at(7 * time.Second))
	if got := f.score(t, id); got != 0 {
		t.Fatalf("expected first (wrong) answer to stand, got score %d", got)
	}
	if f.game.DisasterMeter() != 1 {
		t.Fatalf("expected disaster 1, got %d", f.game.DisasterMeter())
	}
}

func TestMissedAnswerIncrementsDisasterOnce(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	alice := f.join(t, "Alice")
	bob := f.join(t, "Bob")

	if _, err := f.game.SubmitAt(alice, "4", f.at(8*time.Second)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, _ := f.game.Resolve(f.at(8 * time.Second))
	if f.game.DisasterMeter() != 1 || res.DisasterDelta != 1 {
		t.Fatalf("expected disaster 1, got %d", f.game.DisasterMeter())
	}
	if f.score(t, alice) != 1 || f.score(t, bob) != 0 {
		t.Fatalf("unexpected scores alice=%d bob=%d", f.score(t, alice), f.score(t, bob))
	}
}

func TestResolveRunsOncePerQuestion(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")
	f.game.SubmitAt(id, "4", f.at(6*time.Second))

	if _, ok := f.game.Resolve(f.at(9 * time.Second)); !ok {
		t.Fatalf("expected first resolve to run")
	}
	if _, ok := f.game.Resolve(f.at(10 * time.Second)); ok {
		t.Fatalf("expected second resolve to be skipped")
	}
	if got := f.score(t, id); got != 1 {
		t.Fatalf("expected single award, got %d", got)
	}
	if _, err := f.game.SubmitAt(id, "4", f.at(12*time.Second)); !errors.Is(err, domain.ErrNotAcceptingAnswers) {
		t.Fatalf("expected submit after resolve to be too late, got %v", err)
	}
}

func TestLateJoinBlockedByDefault(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	early := f.join(t, "Early")
	f.clock.Advance(3 * time.Second) // reading phase of q0
	late := f.join(t, "Late")

	_, err := f.game.SubmitAt(late, "4", f.at(6*time.Second))
	if !errors.Is(err, domain.ErrJoinedMidQuestion) || !domain.IsPhaseRejected(err) {
		t.Fatalf("expected late joiner to be rejected, got %v", err)
	}
	f.game.SubmitAt(early, "4", f.at(6*time.Second))
	f.game.Resolve(f.at(6 * time.Second))
	if f.game.DisasterMeter() != 0 {
		t.Fatalf("ineligible late joiner must not count as missed, disaster=%d", f.game.DisasterMeter())
	}

	// Eligible again from the next question on.
	if _, err := f.game.SubmitAt(late, "Paris", f.at(26*time.Second)); err != nil {
		t.Fatalf("expected late joiner eligible for next question, got %v", err)
	}
}

func TestLateJoinAllowed(t *testing.T) {
	opts := app.DefaultOptions()
	opts.AllowLateJoin = true
	f := newFixture(t, opts)
	f.clock.Advance(3 * time.Second)
	late := f.join(t, "Late")
	f.join(t, "AlsoLate")

	if _, err := f.game.SubmitAt(late, "4", f.at(6*time.Second)); err != nil {
		t.Fatalf("expected late joiner accepted, got %v", err)
	}
	f.game.Resolve(f.at(6 * time.Second))
	if got := f.score(t, late); got != 1 {
		t.Fatalf("expected late joiner scored, got %d", got)
	}
	if f.game.DisasterMeter() != 1 {
		t.Fatalf("expected eligible silent late joiner counted as missed, got %d", f.game.DisasterMeter())
	}
}

func TestAnswerNormalization(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")
	f.game.SubmitAt(id, "  pARIS ", f.at(26*time.Second))
	f.game.Resolve(f.at(26 * time.Second))
	if got := f.score(t, id); got != 1 {
		t.Fatalf("expected normalized match, got %d", got)
	}

	opts := app.DefaultOptions()
	opts.CaseSensitive = true
	g := newFixture(t, opts)
	id = g.join(t, "Alice")
	g.game.SubmitAt(id, "paris", g.at(26*time.Second))
	g.game.Resolve(g.at(26 * time.Second))
	if got := g.score(t, id); got != 0 {
		t.Fatalf("expected case-sensitive mismatch, got %d", got)
	}
}

func TestSnapshotOmitsCorrectAnswer(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	id := f.join(t, "Alice")
	f.game.SubmitAt(id, "4", f.at(6*time.Second))

	snap := f.game.Snapshot(f.at(6 * time.Second))
	if snap.CurrentQuestion == nil || snap.CurrentQuestion.Text != "2 + 2 = ?" {
		t.Fatalf("expected current question, got %+v", snap.CurrentQuestion)
	}
	if snap.Players[0].AnswerState != domain.AnswerPending {
		t.Fatalf("expected pending answer state, got %s", snap.Players[0].AnswerState)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(raw)), "correct") {
		t.Fatalf("snapshot leaks correct answer: %s", raw)
	}

	f.game.Resolve(f.at(16 * time.Second))
	snap = f.game.Snapshot(f.at(16 * time.Second))
	if snap.Players[0].AnswerState != domain.AnswerResolved {
		t.Fatalf("expected resolved answer state, got %s", snap.Players[0].AnswerState)
	}
	if snap = f.game.Snapshot(f.at(70 * time.Second)); snap.CurrentQuestion != nil || !snap.Intermission {
		t.Fatalf("expected no question during intermission, got %+v", snap)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	alice := f.join(t, "Alice")
	bob := f.join(t, "Bob")
	f.game.SubmitAt(bob, "4", f.at(6*time.Second))
	f.game.Resolve(f.at(6 * time.Second))

	snap := f.game.Snapshot(f.at(16 * time.Second))
	if snap.Players[0].ID != bob || snap.Players[1].ID != alice {
		t.Fatalf("expected Bob to lead, got %+v", snap.Players)
	}
}

func TestDisasterResetPolicy(t *testing.T) {
	opts := app.DefaultOptions()
	opts.DisasterReset = app.DisasterPerRound
	f := newFixture(t, opts)
	f.join(t, "Alice")

	f.game.Advance(f.at(time.Second))
	f.game.Resolve(f.at(6 * time.Second))
	if f.game.DisasterMeter() != 1 {
		t.Fatalf("expected missed answer counted, got %d", f.game.DisasterMeter())
	}
	if f.game.Advance(f.at(70 * time.Second)) {
		t.Fatalf("intermission of the same round must not reset")
	}
	if !f.game.Advance(f.at(91*time.Second)) || f.game.DisasterMeter() != 0 {
		t.Fatalf("expected reset on new round, got %d", f.game.DisasterMeter())
	}

	g := newFixture(t, app.DefaultOptions())
	g.join(t, "Alice")
	g.game.Resolve(g.at(6 * time.Second))
	g.game.Advance(g.at(91 * time.Second))
	if g.game.DisasterMeter() != 1 {
		t.Fatalf("expected process-lifetime meter to persist, got %d", g.game.DisasterMeter())
	}
}

func TestScoringPolicyPoints(t *testing.T) {
	flat := app.ScoringPolicy{Kind: app.ScoringFlat}
	if got := flat.Points(time.Second, 10*time.Second); got != 1 {
		t.Fatalf("flat: expected 1, got %d", got)
	}
	decay := app.ScoringPolicy{Kind: app.ScoringDecay, MaxScore: 100}
	cases := []struct {
		left, window time.Duration
		want         int
	}{
		{4 * time.Second, 10 * time.Second, 40},
		{3333 * time.Millisecond, 10 * time.Second, 33},
		{20 * time.Second, 10 * time.Second, 100},
		{0, 10 * time.Second, 0},
	}
	for _, tc := range cases {
		if got := decay.Points(tc.left, tc.window); got != tc.want {
			t.Fatalf("decay(%v/%v): expected %d, got %d", tc.left, tc.window, tc.want, got)
		}
	}
}

func TestNewGameRejectsMismatchedBank(t *testing.T) {
	if _, err := app.NewGame(testEngine(t), testBank()[:2], nil, app.DefaultOptions(), nil); err == nil {
		t.Fatalf("expected bank size mismatch error")
	}
	if _, err := app.NewGame(testEngine(t), nil, nil, app.DefaultOptions(), nil); !errors.Is(err, domain.ErrEmptyBank) {
		t.Fatalf("expected empty bank error, got %v", err)
	}
}

func TestSubmitRacingResolveIsScoredOrRejected(t *testing.T) {
	f := newFixture(t, app.DefaultOptions())
	const players = 32
	ids := make([]string, players)
	for i := range ids {
		ids[i] = f.join(t, fmt.Sprintf("p%02d", i))
	}

	answering := f.at(14 * time.Second)
	accepted := make([]bool, players)
	var resolution domain.Resolution
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, err := f.game.SubmitAt(id, "4", answering)
			switch {
			case err == nil:
				accepted[i] = true
			case !errors.Is(err, domain.ErrNotAcceptingAnswers):
				t.Errorf("submit %d: unexpected error %v", i, err)
			}
		}(i, id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		res, ok := f.game.Resolve(answering)
		if !ok {
			t.Errorf("resolve skipped")
		}
		resolution = res
	}()
	close(start)
	wg.Wait()

	outcomes := map[string]domain.Outcome{}
	for _, o := range resolution.Outcomes {
		outcomes[o.PlayerID] = o
	}
	missed := 0
	for i, id := range ids {
		o, ok := outcomes[id]
		if !ok {
			t.Fatalf("player %d missing from resolution", i)
		}
		scored := f.score(t, id) == 1
		if accepted[i] != o.Correct || accepted[i] != scored {
			t.Fatalf("player %d: accepted=%v correct=%v scored=%v", i, accepted[i], o.Correct, scored)
		}
		if !accepted[i] {
			missed++
		}
	}
	if resolution.DisasterDelta != missed || f.game.DisasterMeter() != missed {
		t.Fatalf("expected disaster %d, got delta=%d meter=%d", missed, resolution.DisasterDelta, f.game.DisasterMeter())
	}
}
