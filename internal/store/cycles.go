package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cycle is one recorded allocation pass.
type Cycle struct {
	ID                  string  `json:"id"`
	Mechanism           string  `json:"mechanism"`
	TotalAttention      float64 `json:"total_attention"`
	AverageAttention    float64 `json:"average_attention"`
	AttentionEntropy    float64 `json:"attention_entropy"`
	ResourceUtilization float64 `json:"resource_utilization"`
	GradientNorm        float64 `json:"gradient_norm"`
	ConvergenceRate     float64 `json:"convergence_rate"`
	NodeCount           int     `json:"node_count"`
	LinkCount           int     `json:"link_count"`
	DurationMs          int64   `json:"duration_ms"`
	CreatedAt           int64   `json:"created_at"`
}

// RecordCycle appends a cycle to the history. ID and CreatedAt are filled
// when empty.
func (db *DB) RecordCycle(c *Cycle) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO cycles (id, mechanism, total_attention, average_attention, attention_entropy,
			resource_utilization, gradient_norm, convergence_rate, node_count, link_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Mechanism, c.TotalAttention, c.AverageAttention, c.AttentionEntropy,
		c.ResourceUtilization, c.GradientNorm, c.ConvergenceRate,
		c.NodeCount, c.LinkCount, c.DurationMs, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the most recent cycles, newest first.
func (db *DB) RecentCycles(limit int) ([]Cycle, error) {
	rows, err := db.Query(`
		SELECT id, mechanism, total_attention, average_attention, attention_entropy,
			resource_utilization, gradient_norm, convergence_rate, node_count, link_count, duration_ms, created_at
		FROM cycles ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.Mechanism, &c.TotalAttention, &c.AverageAttention, &c.AttentionEntropy,
			&c.ResourceUtilization, &c.GradientNorm, &c.ConvergenceRate,
			&c.NodeCount, &c.LinkCount, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// CountCycles returns the number of recorded cycles.
func (db *DB) CountCycles() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}

// PruneCycles deletes all but the keep most recent cycles and returns the
// number removed.
func (db *DB) PruneCycles(keep int) (int64, error) {
	result, err := db.Exec(`
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
