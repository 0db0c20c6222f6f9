package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutusfa/Neurodeck/internal/anki"
	"github.com/mutusfa/Neurodeck/internal/domain"
	"github.com/mutusfa/Neurodeck/internal/storage"
)

type fakeStore struct {
	cards     []domain.Card
	upserted  [][]domain.AnkiFeedback
	upsertErr error
}

func (s *fakeStore) LoadCards(docContext string) []domain.Card {
	return s.cards
}

func (s *fakeStore) UpsertFeedback(feedback []domain.AnkiFeedback) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, feedback)
	return nil
}

type fakeDeck struct {
	feedback []domain.AnkiFeedback
	err      error
	gotIDs   [][]int64
}

func (d *fakeDeck) FetchFeedback(ctx context.Context, cardIDs []int64) ([]domain.AnkiFeedback, error) {
	d.gotIDs = append(d.gotIDs, cardIDs)
	return d.feedback, d.err
}

func card(id int64, docContext string) domain.Card {
	return domain.Card{ID: id, Question: "Q", Answer: "A", Context: docContext, Evaluation: domain.NotEvaluated}
}

func feedbackFor(cardID int64) domain.AnkiFeedback {
	return domain.AnkiFeedback{
		CardID:    cardID,
		NoteID:    10000 + cardID,
		DeckName:  "TestDeck",
		ModelName: "TestModel",
		Question:  "Q",
		Answer:    "A",
	}
}

func TestSyncNoCards(t *testing.T) {
	store := &fakeStore{}
	deck := &fakeDeck{}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, deck.gotIDs, "deck must not be queried for an empty context")
	assert.Empty(t, store.upserted)
}

func TestSyncSkipsUnpersistedCards(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{
		card(1, "doc"),
		{Question: "never saved", Context: "doc"},
		card(3, "doc"),
	}}
	deck := &fakeDeck{feedback: []domain.AnkiFeedback{feedbackFor(1)}}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, deck.gotIDs, 1)
	assert.Equal(t, []int64{1, 3}, deck.gotIDs[0])
}

func TestSyncAllCardsUnpersisted(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{
		{Question: "Q1", Context: "doc"},
		{Question: "Q2", Context: "doc"},
	}}
	deck := &fakeDeck{}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, deck.gotIDs)
}

func TestSyncNoFeedbackNoWrite(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{card(1, "doc")}}
	deck := &fakeDeck{}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.upserted, "no feedback must mean no write")
}

func TestSyncTransportFailureDegrades(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{card(1, "doc")}}
	deck := &fakeDeck{err: fmt.Errorf("connection refused")}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.NoError(t, err, "an unreachable Anki must not fail the sync")
	assert.Equal(t, 0, n)
	assert.Empty(t, store.upserted)
}

func TestSyncRejectionPropagates(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{card(1, "doc")}}
	deck := &fakeDeck{err: fmt.Errorf("%w: findNotes: deck was not found", anki.ErrRejected)}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, anki.ErrRejected))
	assert.Equal(t, 0, n)
	assert.Empty(t, store.upserted)
}

func TestSyncStorageFailurePropagates(t *testing.T) {
	store := &fakeStore{
		cards:     []domain.Card{card(1, "doc")},
		upsertErr: fmt.Errorf("disk full"),
	}
	deck := &fakeDeck{feedback: []domain.AnkiFeedback{feedbackFor(1)}}

	_, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSyncPersistsFetchedFeedback(t *testing.T) {
	store := &fakeStore{cards: []domain.Card{card(1, "doc"), card(2, "doc"), card(3, "doc")}}
	deck := &fakeDeck{feedback: []domain.AnkiFeedback{feedbackFor(1), feedbackFor(3)}}

	n, err := NewSyncer(store, deck).Sync(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "count reflects fetched rows, not requested ids")
	require.Len(t, store.upserted, 1)
	assert.Equal(t, deck.feedback, store.upserted[0])
}

// The end-to-end shape against a real store: three cards, the external side
// resolves two of them, one suspended with a flag.
func TestSyncAgainstRealStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	saved, err := db.SaveCards([]domain.Card{
		{Question: "Q1", Answer: "A1", Context: "doc1"},
		{Question: "Q2", Answer: "A2", Context: "doc1"},
		{Question: "Q3", Answer: "A3", Context: "doc1"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)

	noteA := feedbackFor(saved[0].ID)
	noteB := feedbackFor(saved[2].ID)
	noteB.Suspended = true
	noteB.Flag = 3
	deck := &fakeDeck{feedback: []domain.AnkiFeedback{noteA, noteB}}

	syncer := NewSyncer(db, deck)
	n, err := syncer.Sync(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids := []int64{saved[0].ID, saved[1].ID, saved[2].ID}
	loaded := db.LoadFeedback(ids)
	require.Len(t, loaded, 2, "the unmatched card must have no feedback row")
	assert.Equal(t, saved[0].ID, loaded[0].CardID)
	assert.Equal(t, saved[2].ID, loaded[1].CardID)
	assert.True(t, loaded[1].Suspended)
	assert.Equal(t, 3, loaded[1].Flag)

	// Syncing again overwrites the same rows and reports the same count.
	n, err = syncer.Sync(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, db.LoadFeedback(ids), 2)
}
