package domain

import "errors"

var (
	// ErrInvalidName is returned for a missing or malformed display name.
	ErrInvalidName = errors.New("invalid player name")
	// ErrInvalidAnswer is returned for a missing answer value.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrDuplicateName is returned when the display name is already registered.
	ErrDuplicateName = errors.New("name already taken")
	// ErrPlayerNotFound is returned when a player id is not registered.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrNotAcceptingAnswers is returned outside the answering window.
	ErrNotAcceptingAnswers = errors.New("not accepting answers")
	// ErrJoinedMidQuestion is returned when a late joiner answers a question they are not eligible for.
	ErrJoinedMidQuestion = errors.New("joined during this question")
	// ErrJoinClosed is returned when joining is disabled for the current phase.
	ErrJoinClosed = errors.New("joining is closed during intermission")
	// ErrEmptyBank indicates the question bank has no questions.
	ErrEmptyBank = errors.New("question bank is empty")
)

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) || errors.Is(err, ErrInvalidAnswer) || errors.Is(err, ErrDuplicateName)
}

// IsNotFound reports whether err refers to an unknown entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlayerNotFound)
}

// IsPhaseRejected reports whether err was caused by the game clock rather than the input.
func IsPhaseRejected(err error) bool {
	return errors.Is(err, ErrNotAcceptingAnswers) || errors.Is(err, ErrJoinedMidQuestion) || errors.Is(err, ErrJoinClosed)
}
