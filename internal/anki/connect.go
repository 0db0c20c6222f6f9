package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mutusfa/Neurodeck/internal/domain"
)

const (
	defaultEndpoint = "http://127.0.0.1:8765"
	defaultIDField  = "id"
	defaultTimeout  = 30 * time.Second

	// maxInFlight bounds the per-id fan-out so a large batch does not
	// flood a local AnkiConnect instance.
	maxInFlight = 8
)

func defaultFieldMap() map[string]string {
	return map[string]string{
		"question": "Question",
		"answer":   "Answer",
		"topic":    "Topic",
	}
}

// ConnectConfig configures a ConnectDeck. Zero values fall back to the
// AnkiConnect defaults; DeckName and ModelName are required.
type ConnectConfig struct {
	Endpoint  string
	DeckName  string
	ModelName string
	IDField   string
	FieldMap  map[string]string
	Timeout   time.Duration
}

// ConnectDeck talks to a running Anki instance through the AnkiConnect
// HTTP API. It is safe for concurrent use; the underlying http.Client
// multiplexes requests.
type ConnectDeck struct {
	endpoint  string
	deckName  string
	modelName string
	idField   string
	fieldMap  map[string]string
	client    *http.Client
}

// NewConnectDeck creates an AnkiConnect-backed deck.
func NewConnectDeck(cfg ConnectConfig) *ConnectDeck {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.IDField == "" {
		cfg.IDField = defaultIDField
	}
	if len(cfg.FieldMap) == 0 {
		cfg.FieldMap = defaultFieldMap()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &ConnectDeck{
		endpoint:  cfg.Endpoint,
		deckName:  cfg.DeckName,
		modelName: cfg.ModelName,
		idField:   cfg.IDField,
		fieldMap:  cfg.FieldMap,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Close releases idle connections held by the deck's HTTP client.
func (d *ConnectDeck) Close() {
	d.client.CloseIdleConnections()
}

type rpcRequest struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// post performs a single AnkiConnect call and decodes its result into out.
func (d *ConnectDeck) post(ctx context.Context, action string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Action: action, Version: 6, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request returned status %s", action, resp.Status)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if rpc.Error != nil && *rpc.Error != "" {
		return fmt.Errorf("%w: %s: %s", ErrRejected, action, *rpc.Error)
	}
	if out != nil && len(rpc.Result) > 0 && string(rpc.Result) != "null" {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", action, err)
		}
	}
	return nil
}

// searchForID restricts by deck and note type and matches the id field.
func (d *ConnectDeck) searchForID(cardID int64) string {
	return fmt.Sprintf("deck:%q note:%q %s:%d", d.deckName, d.modelName, d.idField, cardID)
}

type noteField struct {
	Value string `json:"value"`
}

type noteInfo struct {
	NoteID    int64                `json:"noteId"`
	ModelName string               `json:"modelName"`
	Fields    map[string]noteField `json:"fields"`
}

type cardInfo struct {
	Suspended bool    `json:"suspended"`
	Queue     int     `json:"queue"`
	Flags     flexInt `json:"flags"`
}

// flexInt decodes a JSON value that should be a small integer but may arrive
// as a string or something unparseable. Bad values coerce to zero instead of
// failing the whole cardsInfo decode.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*f = flexInt(n)
			return nil
		}
	}
	*f = 0
	return nil
}

// fetchOne resolves a single card ID. A nil feedback with nil error means the
// ID has no matching note in Anki.
func (d *ConnectDeck) fetchOne(ctx context.Context, cardID int64) (*domain.AnkiFeedback, error) {
	query := d.searchForID(cardID)

	var noteIDs []int64
	if err := d.post(ctx, "findNotes", map[string]any{"query": query}, &noteIDs); err != nil {
		return nil, err
	}
	if len(noteIDs) == 0 {
		return nil, nil
	}

	var notes []noteInfo
	if err := d.post(ctx, "notesInfo", map[string]any{"notes": noteIDs}, &notes); err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}

	// The id field is expected to be unique, so the first note wins.
	note := notes[0]

	field := func(key string) string {
		name, ok := d.fieldMap[key]
		if !ok {
			name = key
		}
		return note.Fields[name].Value
	}

	var cardIDs []int64
	if err := d.post(ctx, "findCards", map[string]any{"query": query}, &cardIDs); err != nil {
		return nil, err
	}

	suspended := false
	flag := 0
	if len(cardIDs) > 0 {
		var cards []cardInfo
		if err := d.post(ctx, "cardsInfo", map[string]any{"cards": cardIDs}, &cards); err != nil {
			return nil, err
		}
		for _, card := range cards {
			// Either explicitly suspended, or parked in the suspended queue.
			if card.Suspended || card.Queue == -1 {
				suspended = true
			}
			if int(card.Flags) > flag {
				flag = int(card.Flags)
			}
		}
	}

	modelName := note.ModelName
	if modelName == "" {
		modelName = d.modelName
	}

	return &domain.AnkiFeedback{
		CardID:    cardID,
		NoteID:    note.NoteID,
		DeckName:  d.deckName,
		ModelName: modelName,
		Question:  field("question"),
		Answer:    field("answer"),
		Topic:     field("topic"),
		Suspended: suspended,
		Flag:      flag,
	}, nil
}

// FetchFeedback resolves a batch of card IDs concurrently. Lookups are
// isolated: a transport fault for one ID drops that ID and the rest still
// resolve. A rejection from Anki propagates immediately; if every lookup
// fails on transport, the first such error is returned so the caller can
// tell "Anki is unreachable" from "nothing matched".
func (d *ConnectDeck) FetchFeedback(ctx context.Context, cardIDs []int64) ([]domain.AnkiFeedback, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		feedback []domain.AnkiFeedback
		failures []error
	)
	sem := make(chan struct{}, maxInFlight)

	for _, cardID := range cardIDs {
		wg.Add(1)
		go func(cardID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fb, err := d.fetchOne(ctx, cardID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("Failed to fetch Anki feedback", "card_id", cardID, "error", err)
				failures = append(failures, err)
				return
			}
			if fb != nil {
				feedback = append(feedback, *fb)
			}
		}(cardID)
	}
	wg.Wait()

	for _, err := range failures {
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
	}
	if len(feedback) == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("fetching feedback failed for all %d ids: %w", len(cardIDs), failures[0])
	}
	return feedback, nil
}
