package anki

import (
	"context"
	"errors"

	"github.com/mutusfa/Neurodeck/internal/domain"
)

// ErrRejected marks responses where Anki understood the request but refused
// it at the application level. Unlike transport faults these are not
// retryable as-is, so callers surface them instead of degrading.
var ErrRejected = errors.New("anki-connect rejected request")

// Deck resolves local card IDs to the current Anki-side note fields and
// review state. IDs with no matching note are silently dropped, so the
// result may be shorter than the input; callers must reconcile by CardID,
// never by position.
type Deck interface {
	FetchFeedback(ctx context.Context, cardIDs []int64) ([]domain.AnkiFeedback, error)
}
