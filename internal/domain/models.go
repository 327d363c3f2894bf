package domain

import "time"

// AnswerState describes where a player is for the question currently on the clock.
type AnswerState string

const (
	AnswerNone     AnswerState = "none"
	AnswerPending  AnswerState = "pending"
	AnswerResolved AnswerState = "resolved"
)

// Player is a registered participant. Players are never removed while the process runs.
type Player struct {
	ID       string
	Name     string
	Score    int
	JoinedAt time.Time
	// LastUpdated is when the score last changed; used as a leaderboard tie-breaker.
	LastUpdated time.Time
	// AnsweredSeq is the question sequence of the latest submission, -1 if none.
	AnsweredSeq int64
	// ResolvedSeq is the latest question sequence scored for this player, -1 if none.
	ResolvedSeq int64
}

// Question is an immutable entry of the question bank.
type Question struct {
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options,omitempty" yaml:"options"`
	Correct string   `json:"correct" yaml:"correct"`
}

// QuestionView is the client-facing form of a Question. It has no correct-answer field.
type QuestionView struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// View strips the correct answer.
func (q Question) View(index int) QuestionView {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return QuestionView{Index: index, Text: q.Text, Options: opts}
}

// PlayerView is a snapshot-friendly view of a player.
type PlayerView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Score       int         `json:"score"`
	AnswerState AnswerState `json:"answerState"`
}

// Snapshot is the full game state pushed to observers.
type Snapshot struct {
	Players         []PlayerView  `json:"players"`
	DisasterMeter   int           `json:"disasterMeter"`
	RoundNumber     int64         `json:"roundNumber"`
	Phase           string        `json:"phase"`
	Intermission    bool          `json:"intermission"`
	PhaseTimeLeftMs int64         `json:"phaseTimeLeftMs"`
	RoundTimeLeftMs int64         `json:"roundTimeLeftMs"`
	CurrentQuestion *QuestionView `json:"currentQuestion"`
	ServerTime      time.Time     `json:"serverTime"`
}

// Outcome is the scoring result of one player for one question.
type Outcome struct {
	PlayerID string `json:"playerId"`
	Answered bool   `json:"answered"`
	Correct  bool   `json:"correct"`
	Awarded  int    `json:"awarded"`
}

// Resolution summarizes the one-time scoring of a question occurrence.
type Resolution struct {
	Round         int64     `json:"round"`
	Seq           int64     `json:"seq"`
	QuestionIndex int       `json:"questionIndex"`
	Outcomes      []Outcome `json:"outcomes"`
	DisasterDelta int       `json:"disasterDelta"`
	DisasterMeter int       `json:"disasterMeter"`
	ResolvedAt    time.Time `json:"resolvedAt"`
}

// SubmitResult reports what happened to an accepted submission.
type SubmitResult struct {
	Seq       int64 `json:"seq"`
	Duplicate bool  `json:"duplicate"`
}
