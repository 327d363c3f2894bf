package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/domain"
	"quizastrous-server/internal/round"
)

// SnapshotSink keeps a copy of the latest snapshot outside the process (e.g. Redis).
type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, snapshot domain.Snapshot) error
}

// ResultSink receives every question resolution (e.g. a NATS subject).
type ResultSink interface {
	PublishResolution(ctx context.Context, res domain.Resolution) error
}

// HeartbeatConfig controls the tick cadence.
type HeartbeatConfig struct {
	Interval time.Duration
	// Budget bounds the I/O done by one tick.
	Budget time.Duration
}

// Heartbeat is the only component that turns clock transitions into side effects: it resolves
// questions as their answering window closes and pushes a snapshot every tick.
type Heartbeat struct {
	game        *Game
	engine      *round.Engine
	clock       clockwork.Clock
	broadcaster Broadcaster
	snapshots   SnapshotSink
	results     []ResultSink
	cfg         HeartbeatConfig

	// next is the first seq not yet handed to Resolve.
	next    int64
	started bool
}

const catchUpWarnAfter = 3

func NewHeartbeat(game *Game, clock clockwork.Clock, broadcaster Broadcaster, cfg HeartbeatConfig) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 100 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Heartbeat{
		game:        game,
		engine:      game.engine,
		clock:       clock,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// WithSnapshotSink mirrors each tick's snapshot into sink.
func (h *Heartbeat) WithSnapshotSink(sink SnapshotSink) *Heartbeat {
	h.snapshots = sink
	return h
}

// WithResultSink forwards every resolution to sink.
func (h *Heartbeat) WithResultSink(sink ResultSink) *Heartbeat {
	h.results = append(h.results, sink)
	return h
}

// Run ticks until ctx is done. The first tick happens immediately.
func (h *Heartbeat) Run(ctx context.Context) {
	h.Step(ctx, h.clock.Now())

	ticker := h.clock.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", h.cfg.Interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("heartbeat stopped")
			return
		case now := <-ticker.Chan():
			h.Step(ctx, now)
		}
	}
}

// Step runs one tick for the given instant. A failing tick is logged and never propagates.
func (h *Heartbeat) Step(ctx context.Context, now time.Time) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Time("tick", now).Msg("heartbeat tick failed")
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, h.cfg.Budget)
	defer cancel()

	h.resolveClosed(tickCtx, now)

	info := h.engine.At(now)
	h.game.Advance(info)
	snapshot := h.game.broadcastSnapshot(info, h.broadcaster)
	if h.snapshots != nil {
		if err := h.snapshots.StoreSnapshot(tickCtx, snapshot); err != nil {
			log.Warn().Err(err).Msg("snapshot mirror failed")
		}
	}

	if elapsed := time.Since(started); elapsed > h.cfg.Budget {
		log.Warn().Dur("elapsed", elapsed).Dur("budget", h.cfg.Budget).Msg("heartbeat tick over budget")
	}
}

func (h *Heartbeat) publishResolution(ctx context.Context, res domain.Resolution) {
	for _, sink := range h.results {
		if err := sink.PublishResolution(ctx, res); err != nil {
			log.Warn().Err(err).Int64("seq", res.Seq).Msg("publish resolution failed")
		}
	}
}

// resolveClosed resolves, in order, every question whose answering window closed since the
// previous tick. Questions that closed before the first tick had no live heartbeat and are not
// replayed.
func (h *Heartbeat) resolveClosed(ctx context.Context, now time.Time) {
	closed := h.engine.ClosedThrough(now)
	if !h.started {
		h.next = closed + 1
		h.started = true
		return
	}
	if closed-h.next >= catchUpWarnAfter {
		log.Warn().Int64("from", h.next).Int64("to", closed).Msg("heartbeat catching up on missed questions")
	}
	for ; h.next <= closed; h.next++ {
		if res, ok := h.game.Resolve(h.engine.Occurrence(h.next)); ok {
			h.publishResolution(ctx, res)
		}
	}
}
