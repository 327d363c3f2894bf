package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"quizastrous-server/internal/domain"
	"quizastrous-server/internal/round"
)

const maxNameLength = 32

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", domain.ErrInvalidName, maxNameLength)
	}
	return nil
}

func (g *Game) registerLocked(name string, now time.Time) (*domain.Player, error) {
	key := strings.ToLower(name)
	if g.opts.UniqueNames {
		if _, taken := g.names[key]; taken {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateName, name)
		}
	}

	player := &domain.Player{
		ID:          g.newID(),
		Name:        name,
		JoinedAt:    now,
		LastUpdated: now,
		AnsweredSeq: -1,
		ResolvedSeq: -1,
	}
	g.players[player.ID] = player
	g.names[key] = player.ID
	return player, nil
}

// sortedPlayersLocked returns players ordered by id so resolution is deterministic.
func (g *Game) sortedPlayersLocked() []*domain.Player {
	out := make([]*domain.Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func viewOf(p *domain.Player, info round.Info) domain.PlayerView {
	state := domain.AnswerNone
	if info.HasQuestion() && p.AnsweredSeq == info.Seq {
		state = domain.AnswerPending
		if p.ResolvedSeq == info.Seq {
			state = domain.AnswerResolved
		}
	}
	return domain.PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		AnswerState: state,
	}
}

// sortLeaderboard orders by score desc, then whoever reached the score first, then name.
func sortLeaderboard(views []domain.PlayerView, players map[string]*domain.Player) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Score != views[j].Score {
			return views[i].Score > views[j].Score
		}
		pi, pj := players[views[i].ID], players[views[j].ID]
		if pi != nil && pj != nil && !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return views[i].Name < views[j].Name
	})
}
