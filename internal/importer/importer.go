// Package importer loads atoms and links from JSONL files.
//
// Each line is one record:
//
//	{"kind":"node","external_id":"n1","embedding":[0.1,0.2],"attention":5,"truth":[1,0.5,3]}
//	{"kind":"link","external_id":"l1","sources":["n1"],"targets":["n2","n3"]}
//
// Malformed lines are skipped and counted.
package importer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/store"
)

// Record kinds.
const (
	KindNode = "node"
	KindLink = "link"
)

// Record is one parsed line.
type Record struct {
	Kind       string      `json:"kind"`
	ExternalID string      `json:"external_id"`
	Embedding  []float64   `json:"embedding,omitempty"`
	Attention  float64     `json:"attention,omitempty"`
	Truth      *[3]float64 `json:"truth,omitempty"`
	Sources    []string    `json:"sources,omitempty"`
	Targets    []string    `json:"targets,omitempty"`
}

// Batch holds the records of one file and how many lines were skipped.
type Batch struct {
	Records []Record
	Skipped int
}

// Summary reports what Apply wrote.
type Summary struct {
	Atoms int
	Links int
}

var (
	errNoID        = errors.New("external_id required")
	errNegative    = errors.New("attention must be >= 0")
	errUnknownKind = errors.New("unknown kind")
)

// ParseFile reads a JSONL file and returns its records.
func ParseFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads JSONL records from r.
func Parse(r io.Reader) (*Batch, error) {
	b := &Batch{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024) // embeddings make long lines

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseLine([]byte(line))
		if err != nil {
			b.Skipped++
			continue
		}
		b.Records = append(b.Records, *rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan import file: %w", err)
	}
	return b, nil
}

// ParseLines parses records from a string (for testing).
func ParseLines(content string) (*Batch, error) {
	return Parse(strings.NewReader(content))
}

func parseLine(line []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	rec.Kind = strings.ToLower(strings.TrimSpace(rec.Kind))
	if rec.ExternalID == "" {
		return nil, errNoID
	}
	switch rec.Kind {
	case KindNode:
		if !(rec.Attention >= 0) {
			return nil, errNegative
		}
	case KindLink:
	default:
		return nil, fmt.Errorf("%w %q", errUnknownKind, rec.Kind)
	}
	return &rec, nil
}

func (r Record) truth() atom.TruthValue {
	if r.Truth == nil {
		return atom.DefaultTruth
	}
	return atom.TruthValue{Strength: r.Truth[0], Confidence: r.Truth[1], Count: r.Truth[2]}
}

// Apply writes the records to db, nodes before links. It stops at the first
// store error.
func Apply(db *store.DB, records []Record) (Summary, error) {
	var sum Summary
	for _, r := range records {
		if r.Kind != KindNode {
			continue
		}
		tv := r.truth()
		a := &store.Atom{
			ExternalID: r.ExternalID,
			Embedding:  r.Embedding,
			Attention:  r.Attention,
			Strength:   tv.Strength,
			Confidence: tv.Confidence,
			Count:      tv.Count,
		}
		if err := db.UpsertAtom(a); err != nil {
			return sum, fmt.Errorf("import node %s: %w", r.ExternalID, err)
		}
		sum.Atoms++
	}
	for _, r := range records {
		if r.Kind != KindLink {
			continue
		}
		tv := r.truth()
		l := &store.Link{
			ExternalID: r.ExternalID,
			SourceIDs:  r.Sources,
			TargetIDs:  r.Targets,
			Strength:   tv.Strength,
			Confidence: tv.Confidence,
			Count:      tv.Count,
		}
		if err := db.UpsertLink(l); err != nil {
			return sum, fmt.Errorf("import link %s: %w", r.ExternalID, err)
		}
		sum.Links++
	}
	return sum, nil
}
