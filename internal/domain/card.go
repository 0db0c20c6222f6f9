package domain

import "time"

// Evaluation is the user's reaction to a generated card.
type Evaluation string

const (
	NotEvaluated Evaluation = "not_evaluated"
	Seen         Evaluation = "seen"
	Liked        Evaluation = "liked"
	Disliked     Evaluation = "disliked"
)

// Valid reports whether e is one of the known evaluation states.
func (e Evaluation) Valid() bool {
	switch e {
	case NotEvaluated, Seen, Liked, Disliked:
		return true
	}
	return false
}

// Card represents a single generated question-answer entry.
// ID is zero until the card has been persisted.
type Card struct {
	ID         int64      `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Topic      string     `json:"topic"`
	Context    string     `json:"context"`
	Evaluation Evaluation `json:"evaluation"`
}

// Persisted reports whether the card has been assigned a database identity.
func (c Card) Persisted() bool {
	return c.ID != 0
}

// AnkiFeedback captures the Anki-side state of the note that was created from
// a local card. At most one row exists per CardID; each sync fully replaces it.
type AnkiFeedback struct {
	CardID    int64     `json:"card_id"`
	NoteID    int64     `json:"anki_note_id"`
	DeckName  string    `json:"deck_name"`
	ModelName string    `json:"model_name"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Topic     string    `json:"topic"`
	Suspended bool      `json:"suspended"`
	Flag      int       `json:"flag"`
	UpdatedAt time.Time `json:"updated_at"`
}
