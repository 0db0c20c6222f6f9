package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mutusfa/Neurodeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveCards persists the given cards in a single transaction. Cards that carry
// an ID matching an existing row are updated in place; the rest are inserted
// and assigned fresh IDs. The returned slice preserves the input order, with
// every card annotated with its database ID.
func (db *DB) SaveCards(cards []domain.Card) ([]domain.Card, error) {
	if len(cards) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// One batched lookup for all supplied IDs instead of a query per card.
	var suppliedIDs []int64
	for _, card := range cards {
		if card.Persisted() {
			suppliedIDs = append(suppliedIDs, card.ID)
		}
	}

	existing := make(map[int64]bool, len(suppliedIDs))
	if len(suppliedIDs) > 0 {
		query := fmt.Sprintf(`SELECT id FROM cards WHERE id IN (%s)`, placeholders(len(suppliedIDs)))
		rows, err := tx.Query(query, int64Args(suppliedIDs)...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up existing cards: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan existing card id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to iterate existing card ids: %w", err)
		}
		rows.Close()
	}

	saved := make([]domain.Card, len(cards))
	for i, card := range cards {
		if card.Evaluation == "" {
			card.Evaluation = domain.NotEvaluated
		}
		if existing[card.ID] {
			_, err := tx.Exec(`
				UPDATE cards
				SET question = ?, answer = ?, evaluation = ?, context = ?, topic = ?
				WHERE id = ?
			`, card.Question, card.Answer, card.Evaluation, card.Context, card.Topic, card.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to update card %d: %w", card.ID, err)
			}
		} else {
			res, err := tx.Exec(`
				INSERT INTO cards (question, answer, evaluation, context, topic)
				VALUES (?, ?, ?, ?, ?)
			`, card.Question, card.Answer, card.Evaluation, card.Context, card.Topic)
			if err != nil {
				return nil, fmt.Errorf("failed to insert card: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("failed to get inserted card id: %w", err)
			}
			card.ID = id
		}
		saved[i] = card
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cards: %w", err)
	}
	return saved, nil
}

// LoadCards returns all cards for a context in ascending insertion order.
// Callers rely on this order for positional indexing. Read failures degrade
// to an empty result so browsing never breaks on a storage hiccup.
func (db *DB) LoadCards(context string) []domain.Card {
	rows, err := db.conn.Query(`
		SELECT id, question, answer, evaluation, context, topic
		FROM cards WHERE context = ? ORDER BY id
	`, context)
	if err != nil {
		slog.Warn("Failed to load cards", "context", context, "error", err)
		return nil
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.Question, &c.Answer, &c.Evaluation, &c.Context, &c.Topic); err != nil {
			slog.Warn("Failed to scan card row", "context", context, "error", err)
			return nil
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("Failed to iterate card rows", "context", context, "error", err)
		return nil
	}
	return cards
}

// GetContexts returns all distinct contexts in sorted order.
func (db *DB) GetContexts() []string {
	rows, err := db.conn.Query(`SELECT DISTINCT context FROM cards ORDER BY context`)
	if err != nil {
		slog.Warn("Failed to load contexts", "error", err)
		return nil
	}
	defer rows.Close()

	var contexts []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			slog.Warn("Failed to scan context row", "error", err)
			return nil
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("Failed to iterate context rows", "error", err)
		return nil
	}
	return contexts
}

// UpdateCardEvaluation sets the evaluation of the card at the given position
// within a context, where position refers to the LoadCards order.
func (db *DB) UpdateCardEvaluation(context string, position int, evaluation domain.Evaluation) error {
	if !evaluation.Valid() {
		return fmt.Errorf("invalid evaluation %q", evaluation)
	}

	var id int64
	err := db.conn.QueryRow(`
		SELECT id FROM cards WHERE context = ? ORDER BY id LIMIT 1 OFFSET ?
	`, context, position).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no card at position %d for context %s", position, context)
	}
	if err != nil {
		return fmt.Errorf("failed to find card at position %d: %w", position, err)
	}

	if _, err := db.conn.Exec(`UPDATE cards SET evaluation = ? WHERE id = ?`, evaluation, id); err != nil {
		return fmt.Errorf("failed to update evaluation for card %d: %w", id, err)
	}
	return nil
}

// DeleteContext removes all cards belonging to a context.
func (db *DB) DeleteContext(context string) error {
	res, err := db.conn.Exec(`DELETE FROM cards WHERE context = ?`, context)
	if err != nil {
		return fmt.Errorf("failed to delete context %s: %w", context, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		slog.Info("Deleted context", "context", context, "cards", n)
	}
	return nil
}

// UpsertFeedback writes Anki feedback rows in a single transaction, keyed by
// card ID. Existing rows have all fields replaced; missing rows are inserted.
// An empty input is a no-op.
func (db *DB) UpsertFeedback(feedback []domain.AnkiFeedback) error {
	if len(feedback) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, f := range feedback {
		_, err := tx.Exec(`
			INSERT INTO anki_feedback
				(database_id, anki_note_id, deck_name, model_name, question, answer, topic, suspended, flag, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(database_id) DO UPDATE SET
				anki_note_id = excluded.anki_note_id,
				deck_name = excluded.deck_name,
				model_name = excluded.model_name,
				question = excluded.question,
				answer = excluded.answer,
				topic = excluded.topic,
				suspended = excluded.suspended,
				flag = excluded.flag,
				updated_at = excluded.updated_at
		`, f.CardID, f.NoteID, f.DeckName, f.ModelName, f.Question, f.Answer, f.Topic, f.Suspended, f.Flag, now)
		if err != nil {
			return fmt.Errorf("failed to upsert feedback for card %d: %w", f.CardID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback: %w", err)
	}
	return nil
}

// LoadFeedback returns the feedback rows whose card ID is in the given set.
// IDs with no feedback are silently omitted. Read failures degrade to an
// empty result.
func (db *DB) LoadFeedback(cardIDs []int64) []domain.AnkiFeedback {
	if len(cardIDs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		SELECT database_id, anki_note_id, deck_name, model_name, question, answer, topic, suspended, flag, updated_at
		FROM anki_feedback WHERE database_id IN (%s) ORDER BY database_id
	`, placeholders(len(cardIDs)))
	rows, err := db.conn.Query(query, int64Args(cardIDs)...)
	if err != nil {
		slog.Warn("Failed to load feedback", "error", err)
		return nil
	}
	defer rows.Close()

	var feedback []domain.AnkiFeedback
	for rows.Next() {
		var f domain.AnkiFeedback
		if err := rows.Scan(&f.CardID, &f.NoteID, &f.DeckName, &f.ModelName, &f.Question, &f.Answer, &f.Topic, &f.Suspended, &f.Flag, &f.UpdatedAt); err != nil {
			slog.Warn("Failed to scan feedback row", "error", err)
			return nil
		}
		feedback = append(feedback, f)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("Failed to iterate feedback rows", "error", err)
		return nil
	}
	return feedback
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
