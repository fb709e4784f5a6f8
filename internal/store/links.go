package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/salience/internal/atom"
)

// Link is a persisted relation between atoms, addressed by external id.
type Link struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"external_id"`
	SourceIDs  []string `json:"sources"`
	TargetIDs  []string `json:"targets"`
	Attention  float64  `json:"attention"`
	Strength   float64  `json:"strength"`
	Confidence float64  `json:"confidence"`
	Count      float64  `json:"count"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// BatchLink converts the row into an attention batch link.
func (l *Link) BatchLink() *atom.Link {
	out := atom.NewLink(l.ID, l.ExternalID, l.SourceIDs, l.TargetIDs)
	out.SetAttentionValue(l.Attention)
	out.TruthValue = atom.TruthValue{Strength: l.Strength, Confidence: l.Confidence, Count: l.Count}.Tensor()
	return out
}

// UpsertLink creates a link or replaces the endpoints and truth value of the
// link with the same external id. Endpoint order is preserved.
func (db *DB) UpsertLink(l *Link) error {
	if l.ExternalID == "" {
		return fmt.Errorf("upsert link: external id is required")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert link: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	var id string
	var createdAt int64
	err = tx.QueryRow("SELECT id, created_at FROM links WHERE external_id = ?", l.ExternalID).Scan(&id, &createdAt)
	switch {
	case err == sql.ErrNoRows:
		id = l.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt = now
		if _, err := tx.Exec(`
			INSERT INTO links (id, external_id, attention, strength, confidence, count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, l.ExternalID, l.Attention, l.Strength, l.Confidence, l.Count, now, now); err != nil {
			return fmt.Errorf("create link: %w", err)
		}
	case err != nil:
		return fmt.Errorf("get link: %w", err)
	default:
		if _, err := tx.Exec(`
			UPDATE links SET attention = ?, strength = ?, confidence = ?, count = ?, updated_at = ?
			WHERE id = ?
		`, l.Attention, l.Strength, l.Confidence, l.Count, now, id); err != nil {
			return fmt.Errorf("update link: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM link_endpoints WHERE link_id = ?", id); err != nil {
			return fmt.Errorf("clear link endpoints: %w", err)
		}
	}

	for role, ids := range map[string][]string{"source": l.SourceIDs, "target": l.TargetIDs} {
		for pos, ext := range ids {
			if _, err := tx.Exec(`
				INSERT INTO link_endpoints (link_id, role, position, external_id) VALUES (?, ?, ?, ?)
			`, id, role, pos, ext); err != nil {
				return fmt.Errorf("insert link endpoint: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link: %w", err)
	}
	l.ID = id
	l.CreatedAt = createdAt
	l.UpdatedAt = now
	return nil
}

// ListLinks returns every link with its endpoints, in insertion order.
func (db *DB) ListLinks() ([]Link, error) {
	rows, err := db.Query(`
		SELECT id, external_id, attention, strength, confidence, count, created_at, updated_at
		FROM links ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	var links []Link
	byID := make(map[string]int)
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.ExternalID, &l.Attention, &l.Strength, &l.Confidence,
			&l.Count, &l.CreatedAt, &l.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan link: %w", err)
		}
		byID[l.ID] = len(links)
		links = append(links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	eps, err := db.Query(`
		SELECT link_id, role, external_id FROM link_endpoints ORDER BY link_id, role, position
	`)
	if err != nil {
		return nil, fmt.Errorf("list link endpoints: %w", err)
	}
	defer eps.Close()
	for eps.Next() {
		var linkID, role, ext string
		if err := eps.Scan(&linkID, &role, &ext); err != nil {
			return nil, fmt.Errorf("scan link endpoint: %w", err)
		}
		i, ok := byID[linkID]
		if !ok {
			continue
		}
		if role == "source" {
			links[i].SourceIDs = append(links[i].SourceIDs, ext)
		} else {
			links[i].TargetIDs = append(links[i].TargetIDs, ext)
		}
	}
	return links, eps.Err()
}

// CountLinks returns the number of stored links.
func (db *DB) CountLinks() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM links").Scan(&n); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// SaveAttention commits the attention of every node and link in one
// transaction, matching rows by external id. Batch elements without a
// stored row are ignored.
func (db *DB) SaveAttention(nodes []*atom.Node, links []*atom.Link) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save attention: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	nodeStmt, err := tx.Prepare("UPDATE atoms SET attention = ?, updated_at = ? WHERE external_id = ?")
	if err != nil {
		return fmt.Errorf("prepare atom update: %w", err)
	}
	defer nodeStmt.Close()
	for _, n := range nodes {
		if !n.HasAttention() {
			continue
		}
		if _, err := nodeStmt.Exec(n.AttentionValue(), now, n.ExternalID); err != nil {
			return fmt.Errorf("save atom attention %s: %w", n.ExternalID, err)
		}
	}

	linkStmt, err := tx.Prepare("UPDATE links SET attention = ?, updated_at = ? WHERE external_id = ?")
	if err != nil {
		return fmt.Errorf("prepare link update: %w", err)
	}
	defer linkStmt.Close()
	for _, l := range links {
		if l == nil || l.Attention == nil {
			continue
		}
		if _, err := linkStmt.Exec(l.AttentionValue(), now, l.ExternalID); err != nil {
			return fmt.Errorf("save link attention %s: %w", l.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attention: %w", err)
	}
	return nil
}
