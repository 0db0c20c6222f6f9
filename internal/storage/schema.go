package storage

const schema = `
-- The 'cards' table stores the generated flashcards, grouped by the document
-- context they were generated from.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    evaluation TEXT NOT NULL DEFAULT 'not_evaluated',
    context TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cards_context ON cards(context);

-- The 'anki_feedback' table mirrors the Anki-side state of each exported card.
-- database_id refers to cards.id; a sync upserts by it, so there is at most
-- one row per card.
CREATE TABLE IF NOT EXISTS anki_feedback (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    database_id INTEGER NOT NULL UNIQUE,
    anki_note_id INTEGER NOT NULL,
    deck_name TEXT NOT NULL,
    model_name TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    suspended INTEGER NOT NULL DEFAULT 0,
    flag INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
