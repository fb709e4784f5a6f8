package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/salience/internal/atom"
)

// Atom is a persisted graph node.
type Atom struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Embedding  []float64 `json:"embedding,omitempty"`
	Attention  float64   `json:"attention"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	Count      float64   `json:"count"`
	CreatedAt  int64     `json:"created_at"`
	UpdatedAt  int64     `json:"updated_at"`
}

// BatchNode converts the row into an attention batch node.
func (a *Atom) BatchNode() *atom.Node {
	n := atom.NewNode(a.ID, a.ExternalID, a.Embedding, a.Attention)
	n.TruthValue = atom.TruthValue{Strength: a.Strength, Confidence: a.Confidence, Count: a.Count}.Tensor()
	return n
}

const atomColumns = `id, external_id, embedding, attention, strength, confidence, count, created_at, updated_at`

func scanAtom(sc interface{ Scan(...any) error }) (*Atom, error) {
	var a Atom
	var blob []byte
	if err := sc.Scan(&a.ID, &a.ExternalID, &blob, &a.Attention,
		&a.Strength, &a.Confidence, &a.Count, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Embedding = decodeEmbedding(blob)
	return &a, nil
}

// UpsertAtom creates an atom or replaces the embedding, attention and truth
// value of the atom with the same external id. A new atom without an ID gets
// a fresh UUID; an existing atom keeps its ID.
func (db *DB) UpsertAtom(a *Atom) error {
	if a.ExternalID == "" {
		return fmt.Errorf("upsert atom: external id is required")
	}
	if !(a.Attention >= 0) {
		return fmt.Errorf("upsert atom %s: attention must be >= 0, got %v", a.ExternalID, a.Attention)
	}

	existing, err := db.GetAtom(a.ExternalID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	blob := encodeEmbedding(a.Embedding)

	if existing == nil {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		_, err := db.Exec(`
			INSERT INTO atoms (id, external_id, embedding, dimensions, attention, strength, confidence, count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.ExternalID, blob, len(a.Embedding), a.Attention,
			a.Strength, a.Confidence, a.Count, now, now)
		if err != nil {
			return fmt.Errorf("create atom: %w", err)
		}
		a.CreatedAt = now
		a.UpdatedAt = now
		return nil
	}

	_, err = db.Exec(`
		UPDATE atoms SET embedding = ?, dimensions = ?, attention = ?,
			strength = ?, confidence = ?, count = ?, updated_at = ?
		WHERE id = ?
	`, blob, len(a.Embedding), a.Attention, a.Strength, a.Confidence, a.Count, now, existing.ID)
	if err != nil {
		return fmt.Errorf("update atom: %w", err)
	}
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = now
	return nil
}

// GetAtom returns the atom with the given external id, or nil if not found.
func (db *DB) GetAtom(externalID string) (*Atom, error) {
	a, err := scanAtom(db.QueryRow(`SELECT `+atomColumns+` FROM atoms WHERE external_id = ?`, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get atom: %w", err)
	}
	return a, nil
}

// ListAtoms returns atoms in insertion order. limit <= 0 returns all.
func (db *DB) ListAtoms(limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+atomColumns+` FROM atoms ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list atoms: %w", err)
	}
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		a, err := scanAtom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan atom: %w", err)
		}
		atoms = append(atoms, *a)
	}
	return atoms, rows.Err()
}

// TopAtoms returns the atoms with the highest attention.
func (db *DB) TopAtoms(limit int) ([]Atom, error) {
	rows, err := db.Query(`SELECT `+atomColumns+` FROM atoms ORDER BY attention DESC, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top atoms: %w", err)
	}
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		a, err := scanAtom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan atom: %w", err)
		}
		atoms = append(atoms, *a)
	}
	return atoms, rows.Err()
}

// DeleteAtom removes an atom. Link endpoints naming it are kept and simply
// stop resolving.
func (db *DB) DeleteAtom(externalID string) error {
	result, err := db.Exec("DELETE FROM atoms WHERE external_id = ?", externalID)
	if err != nil {
		return fmt.Errorf("delete atom: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no atom found for %s", externalID)
	}
	return nil
}

// CountAtoms returns the number of stored atoms.
func (db *DB) CountAtoms() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM atoms").Scan(&n); err != nil {
		return 0, fmt.Errorf("count atoms: %w", err)
	}
	return n, nil
}
