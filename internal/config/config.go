package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quizastrous-server/internal/app"
	"quizastrous-server/internal/domain"
	"quizastrous-server/internal/round"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Game      Game              `yaml:"game"`
	Questions []domain.Question `yaml:"questions"`
}

// Game holds the clock and rule settings.
type Game struct {
	ReadDuration         string `yaml:"read_duration"`
	AnswerDuration       string `yaml:"answer_duration"`
	LeaderboardDuration  string `yaml:"leaderboard_duration"`
	RoundDuration        string `yaml:"round_duration"`
	IntermissionDuration string `yaml:"intermission_duration"`
	// Epoch pins the clock anchor (RFC3339). Empty anchors to the quarter-hour before startup.
	Epoch             string `yaml:"epoch"`
	Shuffle           bool   `yaml:"shuffle"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	TickBudget        string `yaml:"tick_budget"`
	Scoring           struct {
		Policy   string `yaml:"policy"`
		MaxScore int    `yaml:"max_score"`
	} `yaml:"scoring"`
	CaseSensitive               bool   `yaml:"case_sensitive"`
	AllowLateJoin               bool   `yaml:"allow_late_join"`
	AllowJoinDuringIntermission *bool  `yaml:"allow_join_during_intermission"`
	UniqueNames                 *bool  `yaml:"unique_names"`
	DisasterReset               string `yaml:"disaster_reset"`
}

const (
	defaultRead         = 5 * time.Second
	defaultAnswer       = 10 * time.Second
	defaultLeaderboard  = 5 * time.Second
	defaultRound        = 10 * time.Minute
	defaultIntermission = 5 * time.Minute
	defaultMaxScore     = 100
	epochAlignment      = 15 * time.Minute
)

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as an empty config.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	return cfg, err
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Validate rejects settings the game cannot run with.
func (c Config) Validate() error {
	g := c.Game
	durations := []struct {
		name     string
		raw      string
		positive bool
	}{
		{"read_duration", g.ReadDuration, false},
		{"answer_duration", g.AnswerDuration, true},
		{"leaderboard_duration", g.LeaderboardDuration, false},
		{"round_duration", g.RoundDuration, true},
		{"intermission_duration", g.IntermissionDuration, false},
		{"heartbeat_interval", g.HeartbeatInterval, true},
		{"tick_budget", g.TickBudget, true},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("game.%s: %w", d.name, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("game.%s: must be positive", d.name)
		}
	}
	slot := Duration(g.ReadDuration, defaultRead) + Duration(g.AnswerDuration, defaultAnswer) + Duration(g.LeaderboardDuration, defaultLeaderboard)
	if hb := Duration(g.HeartbeatInterval, time.Second); hb > slot {
		return fmt.Errorf("game.heartbeat_interval: %s exceeds the %s question slot", hb, slot)
	}
	if c.Server.WriteTimeout != "" {
		if d, err := time.ParseDuration(c.Server.WriteTimeout); err != nil || d <= 0 {
			return fmt.Errorf("server.write_timeout: invalid duration %q", c.Server.WriteTimeout)
		}
	}
	if g.Epoch != "" {
		if _, err := time.Parse(time.RFC3339, g.Epoch); err != nil {
			return fmt.Errorf("game.epoch: %w", err)
		}
	}
	if _, err := app.ParseScoringKind(g.Scoring.Policy); err != nil {
		return fmt.Errorf("game.scoring.policy: %w", err)
	}
	if g.Scoring.MaxScore < 0 {
		return fmt.Errorf("game.scoring.max_score must not be negative")
	}
	if _, err := app.ParseDisasterPolicy(g.DisasterReset); err != nil {
		return fmt.Errorf("game.disaster_reset: %w", err)
	}
	return nil
}

// RoundConfig builds the clock configuration. startedAt anchors the epoch when none is pinned.
func (g Game) RoundConfig(startedAt time.Time, bankSize int) (round.Config, error) {
	epoch := round.AnchorBefore(startedAt, epochAlignment)
	if g.Epoch != "" {
		pinned, err := time.Parse(time.RFC3339, g.Epoch)
		if err != nil {
			return round.Config{}, fmt.Errorf("game.epoch: %w", err)
		}
		epoch = pinned
	}
	cfg := round.Config{
		Epoch:                epoch,
		ReadDuration:         Duration(g.ReadDuration, defaultRead),
		AnswerDuration:       Duration(g.AnswerDuration, defaultAnswer),
		LeaderboardDuration:  Duration(g.LeaderboardDuration, defaultLeaderboard),
		RoundDuration:        Duration(g.RoundDuration, defaultRound),
		IntermissionDuration: Duration(g.IntermissionDuration, defaultIntermission),
		BankSize:             bankSize,
		Shuffle:              g.Shuffle,
	}
	return cfg, cfg.Validate()
}

// Options builds the game rule set.
func (g Game) Options() (app.Options, error) {
	opts := app.DefaultOptions()
	kind, err := app.ParseScoringKind(g.Scoring.Policy)
	if err != nil {
		return opts, err
	}
	reset, err := app.ParseDisasterPolicy(g.DisasterReset)
	if err != nil {
		return opts, err
	}
	opts.Scoring = app.ScoringPolicy{Kind: kind, MaxScore: g.Scoring.MaxScore}
	if opts.Scoring.MaxScore == 0 {
		opts.Scoring.MaxScore = defaultMaxScore
	}
	opts.DisasterReset = reset
	opts.CaseSensitive = g.CaseSensitive
	opts.AllowLateJoin = g.AllowLateJoin
	if g.AllowJoinDuringIntermission != nil {
		opts.AllowJoinDuringIntermission = *g.AllowJoinDuringIntermission
	}
	if g.UniqueNames != nil {
		opts.UniqueNames = *g.UniqueNames
	}
	return opts, nil
}

// Heartbeat builds the heartbeat cadence.
func (g Game) Heartbeat() app.HeartbeatConfig {
	return app.HeartbeatConfig{
		Interval: Duration(g.HeartbeatInterval, time.Second),
		Budget:   Duration(g.TickBudget, 100*time.Millisecond),
	}
}
