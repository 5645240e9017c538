// Package store provides a SQLite-backed metadata store for the paper QA
// service. Papers, their extracted PICO elements and entities, and the Q&A
// conversation log are persisted here; chunk embeddings live in the vector
// store. Use ":memory:" for an in-memory database in tests.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Status tracks a paper's ingestion lifecycle.
type Status string

const (
	// StatusProcessing means the paper row exists but its chunks are not yet
	// embedded and searchable.
	StatusProcessing Status = "processing"
	// StatusProcessed means the paper's chunks are embedded and searchable.
	StatusProcessed Status = "processed"
	// StatusFailed means ingestion aborted; the paper has no chunks.
	StatusFailed Status = "failed"
)

// Paper is an uploaded research paper.
type Paper struct {
	// ID is the paper's UUID.
	ID string
	// Title is the paper title.
	Title string
	// Authors is the free-form author list.
	Authors string
	// Abstract is the paper abstract.
	Abstract string
	// FullText is the complete body text. Omitted from list results.
	FullText string
	// UploadedAt is when the paper was created.
	UploadedAt time.Time
	// Status is the ingestion status.
	Status Status
}

// PICOField is one extracted PICO component with its model confidence.
type PICOField struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// PICOElement holds the PICO extraction for a single paper. At most one row
// exists per paper.
type PICOElement struct {
	PaperID      string
	Population   PICOField
	Intervention PICOField
	Comparison   PICOField
	Outcome      PICOField
	CreatedAt    time.Time
}

// Entity is a domain term extracted from a paper.
type Entity struct {
	ID        string
	PaperID   string
	Type      string
	Name      string
	Frequency int
}

// Citation points a conversation answer back at a source paper.
type Citation struct {
	Index      int    `json:"index"`
	PaperID    string `json:"paperId"`
	PaperTitle string `json:"paperTitle"`
	Excerpt    string `json:"excerpt"`
}

// Conversation is one recorded question/answer turn.
type Conversation struct {
	ID        string
	Question  string
	Answer    string
	Citations []Citation
	CreatedAt time.Time
}

// Store persists papers, extractions, and conversations. Implementations
// must be safe for concurrent use.
type Store interface {
	CreatePaper(ctx context.Context, p Paper) error
	GetPaper(ctx context.Context, id string) (Paper, error)
	// ListPapers returns all papers newest-first with FullText omitted.
	ListPapers(ctx context.Context) ([]Paper, error)
	UpdatePaperStatus(ctx context.Context, id string, status Status) error
	// DeletePaper removes the paper and its PICO and entity rows in one
	// transaction. Returns ErrNotFound if the paper does not exist.
	DeletePaper(ctx context.Context, id string) error

	// SavePICO inserts the extraction unless one already exists for the
	// paper, then returns the stored row. A concurrent loser reads back the
	// winner's row.
	SavePICO(ctx context.Context, e PICOElement) (PICOElement, error)
	GetPICO(ctx context.Context, paperID string) (PICOElement, error)
	ListAllPICO(ctx context.Context) ([]PICOElement, error)

	// ReplaceEntities deletes any existing entities for the paper and
	// inserts the given set in one transaction.
	ReplaceEntities(ctx context.Context, paperID string, entities []Entity) error
	ListEntities(ctx context.Context, paperID string) ([]Entity, error)
	ListAllEntities(ctx context.Context) ([]Entity, error)

	// RecordConversation assigns an ID and timestamp and persists the turn.
	RecordConversation(ctx context.Context, question, answer string, citations []Citation) (Conversation, error)
	// ListConversations returns up to limit turns, newest-first.
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)

	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the metadata database.
// It resolves to ~/.paperqa/papers.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".paperqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "papers.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS papers (
    id           TEXT    PRIMARY KEY,
    title        TEXT    NOT NULL,
    authors      TEXT    NOT NULL DEFAULT '',
    abstract     TEXT    NOT NULL DEFAULT '',
    full_text    TEXT    NOT NULL DEFAULT '',
    uploaded_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    status       TEXT    NOT NULL CHECK(status IN ('processing','processed','failed'))
);

CREATE TABLE IF NOT EXISTS pico_elements (
    paper_id                 TEXT PRIMARY KEY REFERENCES papers(id),
    population_text          TEXT NOT NULL DEFAULT '',
    population_confidence    REAL NOT NULL DEFAULT 0,
    intervention_text        TEXT NOT NULL DEFAULT '',
    intervention_confidence  REAL NOT NULL DEFAULT 0,
    comparison_text          TEXT NOT NULL DEFAULT '',
    comparison_confidence    REAL NOT NULL DEFAULT 0,
    outcome_text             TEXT NOT NULL DEFAULT '',
    outcome_confidence       REAL NOT NULL DEFAULT 0,
    created_at               INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id         TEXT    PRIMARY KEY,
    paper_id   TEXT    NOT NULL REFERENCES papers(id),
    type       TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    frequency  INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_entities_paper ON entities (paper_id);

CREATE TABLE IF NOT EXISTS conversations (
    id          TEXT    PRIMARY KEY,
    question    TEXT    NOT NULL,
    answer      TEXT    NOT NULL,
    citations   TEXT    NOT NULL DEFAULT '[]',  -- JSON array
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreatePaper inserts a new paper row.
func (s *SQLiteStore) CreatePaper(ctx context.Context, p Paper) error {
	const q = `INSERT INTO papers (id, title, authors, abstract, full_text, uploaded_at, status)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		p.ID, p.Title, p.Authors, p.Abstract, p.FullText, p.UploadedAt.Unix(), string(p.Status))
	if err != nil {
		return fmt.Errorf("store: create paper: %w", err)
	}
	return nil
}

// GetPaper returns the paper with the given ID, including its full text.
func (s *SQLiteStore) GetPaper(ctx context.Context, id string) (Paper, error) {
	const q = `SELECT id, title, authors, abstract, full_text, uploaded_at, status
FROM papers WHERE id = ?`
	var p Paper
	var ts int64
	var status string
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Title, &p.Authors, &p.Abstract, &p.FullText, &ts, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Paper{}, fmt.Errorf("store: paper %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Paper{}, fmt.Errorf("store: get paper: %w", err)
	}
	p.UploadedAt = time.Unix(ts, 0)
	p.Status = Status(status)
	return p, nil
}

// ListPapers returns all papers newest-first. FullText is left empty to keep
// list responses small.
func (s *SQLiteStore) ListPapers(ctx context.Context) ([]Paper, error) {
	const q = `SELECT id, title, authors, abstract, uploaded_at, status
FROM papers ORDER BY uploaded_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list papers: %w", err)
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		var p Paper
		var ts int64
		var status string
		if err := rows.Scan(&p.ID, &p.Title, &p.Authors, &p.Abstract, &ts, &status); err != nil {
			return nil, fmt.Errorf("store: list papers scan: %w", err)
		}
		p.UploadedAt = time.Unix(ts, 0)
		p.Status = Status(status)
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list papers rows: %w", err)
	}
	return papers, nil
}

// UpdatePaperStatus sets the ingestion status of a paper.
func (s *SQLiteStore) UpdatePaperStatus(ctx context.Context, id string, status Status) error {
	const q = `UPDATE papers SET status = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, string(status), id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: paper %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePaper removes the paper and its dependent PICO and entity rows in a
// single transaction.
func (s *SQLiteStore) DeletePaper(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete paper begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pico_elements WHERE paper_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete pico: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE paper_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete entities: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete paper: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: paper %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete paper commit: %w", err)
	}
	return nil
}

// SavePICO inserts the extraction for a paper unless one already exists, then
// reads back the stored row. INSERT OR IGNORE plus the primary key on
// paper_id makes concurrent extraction first-write-wins.
func (s *SQLiteStore) SavePICO(ctx context.Context, e PICOElement) (PICOElement, error) {
	const q = `INSERT OR IGNORE INTO pico_elements
(paper_id, population_text, population_confidence, intervention_text, intervention_confidence,
 comparison_text, comparison_confidence, outcome_text, outcome_confidence, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		e.PaperID,
		e.Population.Text, e.Population.Confidence,
		e.Intervention.Text, e.Intervention.Confidence,
		e.Comparison.Text, e.Comparison.Confidence,
		e.Outcome.Text, e.Outcome.Confidence,
		time.Now().Unix())
	if err != nil {
		return PICOElement{}, fmt.Errorf("store: save pico: %w", err)
	}
	return s.GetPICO(ctx, e.PaperID)
}

// GetPICO returns the stored PICO extraction for a paper, or ErrNotFound.
func (s *SQLiteStore) GetPICO(ctx context.Context, paperID string) (PICOElement, error) {
	const q = `SELECT paper_id, population_text, population_confidence,
intervention_text, intervention_confidence, comparison_text, comparison_confidence,
outcome_text, outcome_confidence, created_at
FROM pico_elements WHERE paper_id = ?`
	var e PICOElement
	var ts int64
	err := s.db.QueryRowContext(ctx, q, paperID).Scan(
		&e.PaperID,
		&e.Population.Text, &e.Population.Confidence,
		&e.Intervention.Text, &e.Intervention.Confidence,
		&e.Comparison.Text, &e.Comparison.Confidence,
		&e.Outcome.Text, &e.Outcome.Confidence,
		&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return PICOElement{}, fmt.Errorf("store: pico for paper %s: %w", paperID, ErrNotFound)
	}
	if err != nil {
		return PICOElement{}, fmt.Errorf("store: get pico: %w", err)
	}
	e.CreatedAt = time.Unix(ts, 0)
	return e, nil
}

// ListAllPICO returns every stored PICO extraction, newest-first.
func (s *SQLiteStore) ListAllPICO(ctx context.Context) ([]PICOElement, error) {
	const q = `SELECT paper_id, population_text, population_confidence,
intervention_text, intervention_confidence, comparison_text, comparison_confidence,
outcome_text, outcome_confidence, created_at
FROM pico_elements ORDER BY created_at DESC, paper_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list pico: %w", err)
	}
	defer rows.Close()

	var elements []PICOElement
	for rows.Next() {
		var e PICOElement
		var ts int64
		if err := rows.Scan(
			&e.PaperID,
			&e.Population.Text, &e.Population.Confidence,
			&e.Intervention.Text, &e.Intervention.Confidence,
			&e.Comparison.Text, &e.Comparison.Confidence,
			&e.Outcome.Text, &e.Outcome.Confidence,
			&ts); err != nil {
			return nil, fmt.Errorf("store: list pico scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		elements = append(elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list pico rows: %w", err)
	}
	return elements, nil
}

// ReplaceEntities swaps in a fresh entity set for the paper atomically.
// Entities without an ID are assigned one.
func (s *SQLiteStore) ReplaceEntities(ctx context.Context, paperID string, entities []Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: replace entities begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("store: replace entities clear: %w", err)
	}
	const q = `INSERT INTO entities (id, paper_id, type, name, frequency) VALUES (?, ?, ?, ?, ?)`
	for _, e := range entities {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, q, id, paperID, e.Type, e.Name, e.Frequency); err != nil {
			return fmt.Errorf("store: replace entities insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: replace entities commit: %w", err)
	}
	return nil
}

// ListEntities returns all entities for a paper in insertion order.
func (s *SQLiteStore) ListEntities(ctx context.Context, paperID string) ([]Entity, error) {
	const q = `SELECT id, paper_id, type, name, frequency FROM entities WHERE paper_id = ? ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, q, paperID)
	if err != nil {
		return nil, fmt.Errorf("store: list entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.PaperID, &e.Type, &e.Name, &e.Frequency); err != nil {
			return nil, fmt.Errorf("store: list entities scan: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list entities rows: %w", err)
	}
	return entities, nil
}

// ListAllEntities returns every stored entity across all papers.
func (s *SQLiteStore) ListAllEntities(ctx context.Context) ([]Entity, error) {
	const q = `SELECT id, paper_id, type, name, frequency FROM entities ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list all entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.PaperID, &e.Type, &e.Name, &e.Frequency); err != nil {
			return nil, fmt.Errorf("store: list all entities scan: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list all entities rows: %w", err)
	}
	return entities, nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// RecordConversation assigns an ID and timestamp and persists the Q&A turn.
func (s *SQLiteStore) RecordConversation(ctx context.Context, question, answer string, citations []Citation) (Conversation, error) {
	if citations == nil {
		citations = []Citation{}
	}
	raw, err := json.Marshal(citations)
	if err != nil {
		return Conversation{}, fmt.Errorf("store: marshal citations: %w", err)
	}
	c := Conversation{
		ID:        uuid.NewString(),
		Question:  question,
		Answer:    answer,
		Citations: citations,
		CreatedAt: time.Now(),
	}
	const q = `INSERT INTO conversations (id, question, answer, citations, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, c.ID, c.Question, c.Answer, string(raw), c.CreatedAt.Unix()); err != nil {
		return Conversation{}, fmt.Errorf("store: record conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns up to limit turns, newest-first. A non-positive
// limit returns all turns.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited.
	}
	const q = `SELECT id, question, answer, citations, created_at
FROM conversations ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var raw string
		var ts int64
		if err := rows.Scan(&c.ID, &c.Question, &c.Answer, &raw, &ts); err != nil {
			return nil, fmt.Errorf("store: list conversations scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.Citations); err != nil {
			return nil, fmt.Errorf("store: decode citations for %s: %w", c.ID, err)
		}
		c.CreatedAt = time.Unix(ts, 0)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list conversations rows: %w", err)
	}
	return convs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
