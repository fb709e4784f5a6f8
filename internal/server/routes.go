package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/salience/internal/atom"
	"github.com/lazypower/salience/internal/attention"
	"github.com/lazypower/salience/internal/engine"
	"github.com/lazypower/salience/internal/store"
)

// maxCyclesPerRequest bounds POST /api/cycles?n=.
const maxCyclesPerRequest = 1000

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	atoms, _ := s.db.CountAtoms()
	links, _ := s.db.CountLinks()
	cycles, _ := s.db.CountCycles()

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":         stats,
		"mechanism":     s.engine.Config().Mechanism,
		"initialized":   s.engine.Alloc.Initialized(),
		"economy":       s.engine.Alloc.Economy(),
		"gradient_norm": s.engine.Alloc.LastGradientNorm(),
		"atoms":         atoms,
		"links":         links,
		"cycles":        cycles,
	})
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	flows := s.engine.Flows()
	limit := intParam(r, "limit", 100)
	if len(flows) > limit {
		flows = flows[len(flows)-limit:]
	}
	if flows == nil {
		flows = []attention.Flow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(flows),
		"flows": flows,
	})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	n := intParam(r, "n", 1)
	if n > maxCyclesPerRequest {
		writeError(w, http.StatusBadRequest, "n must be <= "+strconv.Itoa(maxCyclesPerRequest))
		return
	}

	var last *engine.CycleResult
	for i := 0; i < n; i++ {
		res, err := s.engine.RunCycle(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		last = res
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": n,
		"result": last,
	})
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.db.RecentCycles(intParam(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycles == nil {
		cycles = []store.Cycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(cycles),
		"cycles": cycles,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Config())
}

// handlePutConfig decodes the body over the current configuration, so
// omitted fields keep their values.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.engine.UpdateConfig(cfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, attention.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type atomRequest struct {
	ExternalID string      `json:"external_id"`
	Embedding  []float64   `json:"embedding"`
	Attention  float64     `json:"attention"`
	Truth      *[3]float64 `json:"truth,omitempty"`
}

func (s *Server) handlePutAtom(w http.ResponseWriter, r *http.Request) {
	var req atomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id required")
		return
	}
	if req.Attention < 0 {
		writeError(w, http.StatusBadRequest, "attention must be >= 0")
		return
	}

	tv := atom.DefaultTruth
	if req.Truth != nil {
		tv = atom.TruthValue{Strength: req.Truth[0], Confidence: req.Truth[1], Count: req.Truth[2]}
	}
	a := &store.Atom{
		ExternalID: req.ExternalID,
		Embedding:  req.Embedding,
		Attention:  req.Attention,
		Strength:   tv.Strength,
		Confidence: tv.Confidence,
		Count:      tv.Count,
	}

	var err error
	if s.engine != nil {
		err = s.engine.UpsertAtom(a)
	} else {
		err = s.db.UpsertAtom(a)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAtom(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.GetAtom(chi.URLParam(r, "externalID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "atom not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListAtoms(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 0)

	var atoms []store.Atom
	var err error
	if r.URL.Query().Get("sort") == "attention" {
		if limit == 0 {
			limit = 100
		}
		atoms, err = s.db.TopAtoms(limit)
	} else {
		atoms, err = s.db.ListAtoms(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if atoms == nil {
		atoms = []store.Atom{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(atoms),
		"atoms": atoms,
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "externalID")
	existing, err := s.db.GetAtom(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "atom not found")
		return
	}

	results, err := engine.Similar(r.Context(), s.db, id, engine.SearchOpts{Limit: intParam(r, "limit", 10)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []engine.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"external_id": id,
		"count":       len(results),
		"results":     results,
	})
}

func (s *Server) handlePutLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID string      `json:"external_id"`
		Sources    []string    `json:"sources"`
		Targets    []string    `json:"targets"`
		Truth      *[3]float64 `json:"truth,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id required")
		return
	}

	tv := atom.DefaultTruth
	if req.Truth != nil {
		tv = atom.TruthValue{Strength: req.Truth[0], Confidence: req.Truth[1], Count: req.Truth[2]}
	}
	l := &store.Link{
		ExternalID: req.ExternalID,
		SourceIDs:  req.Sources,
		TargetIDs:  req.Targets,
		Strength:   tv.Strength,
		Confidence: tv.Confidence,
		Count:      tv.Count,
	}

	var err error
	if s.engine != nil {
		err = s.engine.UpsertLink(l)
	} else {
		err = s.db.UpsertLink(l)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, l)
}
