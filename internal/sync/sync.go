// Package sync reconciles locally stored cards against the feedback a user
// has left on their Anki-side counterparts.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mutusfa/Neurodeck/internal/anki"
	"github.com/mutusfa/Neurodeck/internal/domain"
)

// CardStore is the slice of the storage layer the syncer needs.
type CardStore interface {
	LoadCards(docContext string) []domain.Card
	UpsertFeedback(feedback []domain.AnkiFeedback) error
}

// Syncer pulls Anki-side note state for a document context and persists it.
type Syncer struct {
	store CardStore
	deck  anki.Deck
}

// NewSyncer creates a reconciliation service over the given store and deck.
func NewSyncer(store CardStore, deck anki.Deck) *Syncer {
	return &Syncer{store: store, deck: deck}
}

// Sync fetches feedback from Anki for all persisted cards in a context and
// upserts it into the store. It returns the number of feedback rows
// persisted this call. Syncing twice with no external changes is safe: the
// store upserts by card ID, so rows are overwritten, never duplicated.
//
// Anki being unreachable is not an error here: the sync reports zero rows
// and the local cards stay usable. An application-level rejection from Anki
// and storage write failures do propagate.
func (s *Syncer) Sync(ctx context.Context, docContext string) (int, error) {
	cards := s.store.LoadCards(docContext)
	if len(cards) == 0 {
		return 0, nil
	}

	// Cards that were never persisted have no identity Anki could match.
	var cardIDs []int64
	for _, card := range cards {
		if card.Persisted() {
			cardIDs = append(cardIDs, card.ID)
		}
	}
	if len(cardIDs) == 0 {
		return 0, nil
	}

	feedback, err := s.deck.FetchFeedback(ctx, cardIDs)
	if err != nil {
		if errors.Is(err, anki.ErrRejected) {
			return 0, fmt.Errorf("failed to fetch feedback for context %s: %w", docContext, err)
		}
		slog.Warn("Anki unavailable, skipping feedback sync", "context", docContext, "error", err)
		return 0, nil
	}
	if len(feedback) == 0 {
		return 0, nil
	}

	if err := s.store.UpsertFeedback(feedback); err != nil {
		return 0, fmt.Errorf("failed to persist feedback for context %s: %w", docContext, err)
	}

	slog.Info("Synced Anki feedback", "context", docContext, "cards", len(cards), "feedback", len(feedback))
	return len(feedback), nil
}
