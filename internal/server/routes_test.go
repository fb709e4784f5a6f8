package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func seed(t *testing.T, srv *Server) {
	t.Helper()
	emb := "[" + strings.TrimSuffix(strings.Repeat("0.1,", 8), ",") + "]"
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"external_id":"n%d","embedding":%s,"attention":%d}`, i, emb, 10*(i+1))
		if w := do(t, srv, "POST", "/api/atoms", body); w.Code != http.StatusCreated {
			t.Fatalf("POST /api/atoms: status = %d; body: %s", w.Code, w.Body.String())
		}
	}
	body := `{"external_id":"l0","sources":["n0"],"targets":["n1","n2"]}`
	if w := do(t, srv, "POST", "/api/links", body); w.Code != http.StatusCreated {
		t.Fatalf("POST /api/links: status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestPutAtomValidation(t *testing.T) {
	srv := testServer(t)

	cases := []string{
		`not json`,
		`{"embedding":[1]}`,
		`{"external_id":"x","attention":-1}`,
	}
	for _, body := range cases {
		if w := do(t, srv, "POST", "/api/atoms", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
	if w := do(t, srv, "POST", "/api/links", `{"sources":["a"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("link without id: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetAtom(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	w := do(t, srv, "GET", "/api/atoms/n1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decode(t, w)
	if body["external_id"] != "n1" || body["attention"] != 20.0 {
		t.Errorf("atom = %v", body)
	}
	if body["strength"] != 1.0 {
		t.Errorf("strength = %v, want default 1", body["strength"])
	}

	if w := do(t, srv, "GET", "/api/atoms/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing atom: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListAtoms(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	body := decode(t, do(t, srv, "GET", "/api/atoms", ""))
	if body["count"] != 3.0 {
		t.Errorf("count = %v, want 3", body["count"])
	}

	body = decode(t, do(t, srv, "GET", "/api/atoms?sort=attention&limit=1", ""))
	atoms := body["atoms"].([]any)
	if len(atoms) != 1 || atoms[0].(map[string]any)["external_id"] != "n2" {
		t.Errorf("top atoms = %v, want [n2]", atoms)
	}
}

func TestRunCycleAndHistory(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)

	w := do(t, srv, "POST", "/api/cycles?n=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["cycles"] != 3.0 {
		t.Errorf("cycles = %v, want 3", body["cycles"])
	}
	result := body["result"].(map[string]any)
	stats := result["stats"].(map[string]any)
	if stats["total_attention"].(float64) <= 0 {
		t.Errorf("total_attention = %v, want > 0", stats["total_attention"])
	}

	body = decode(t, do(t, srv, "GET", "/api/cycles?limit=2", ""))
	if body["count"] != 2.0 {
		t.Errorf("history count = %v, want 2", body["count"])
	}

	if w := do(t, srv, "POST", "/api/cycles?n=100000", ""); w.Code != http.StatusBadRequest {
		t.Errorf("oversized n: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestStatsAndFlows(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)
	do(t, srv, "POST", "/api/cycles?n=2", "")

	body := decode(t, do(t, srv, "GET", "/api/stats", ""))
	if body["atoms"] != 3.0 || body["links"] != 1.0 || body["cycles"] != 2.0 {
		t.Errorf("counts = %v/%v/%v, want 3/1/2", body["atoms"], body["links"], body["cycles"])
	}
	if body["mechanism"] != "hybrid" {
		t.Errorf("mechanism = %v, want hybrid", body["mechanism"])
	}
	if body["initialized"] != true {
		t.Errorf("initialized = %v, want true", body["initialized"])
	}

	// one link with two targets records two flows per cycle
	body = decode(t, do(t, srv, "GET", "/api/flows", ""))
	if body["count"] != 4.0 {
		t.Errorf("flow count = %v, want 4", body["count"])
	}
	body = decode(t, do(t, srv, "GET", "/api/flows?limit=1", ""))
	flows := body["flows"].([]any)
	if len(flows) != 1 || flows[0].(map[string]any)["seq"] != 4.0 {
		t.Errorf("limited flows = %v, want the newest", flows)
	}

	if w := do(t, srv, "POST", "/api/reset", ""); w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	body = decode(t, do(t, srv, "GET", "/api/flows", ""))
	if body["count"] != 0.0 {
		t.Errorf("flow count after reset = %v, want 0", body["count"])
	}
}

func TestConfigRoundTrip(t *testing.T) {
	srv := testServer(t)

	body := decode(t, do(t, srv, "GET", "/api/config", ""))
	if body["mechanism"] != "hybrid" || body["resource_budget"] != 1000.0 {
		t.Errorf("config = %v", body)
	}

	w := do(t, srv, "PUT", "/api/config", `{"mechanism":"ecan","temperature":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	body = decode(t, w)
	if body["mechanism"] != "ecan" || body["temperature"] != 2.0 {
		t.Errorf("updated config = %v", body)
	}
	if body["resource_budget"] != 1000.0 {
		t.Errorf("omitted field changed: resource_budget = %v", body["resource_budget"])
	}

	bad := []string{`{"temperature":0}`, `{"mechanism":"bogus"}`, `{`}
	for _, b := range bad {
		if w := do(t, srv, "PUT", "/api/config", b); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", b, w.Code, http.StatusBadRequest)
		}
	}
	if srv.engine.Config().Mechanism.String() != "ecan" {
		t.Error("rejected update changed the config")
	}
}

func TestSimilarEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/atoms", `{"external_id":"a","embedding":[1,0]}`)
	do(t, srv, "POST", "/api/atoms", `{"external_id":"b","embedding":[0.9,0.1]}`)
	do(t, srv, "POST", "/api/atoms", `{"external_id":"c","embedding":[0.5,1]}`)

	body := decode(t, do(t, srv, "GET", "/api/atoms/a/similar", ""))
	if body["count"] != 2.0 {
		t.Fatalf("count = %v, want 2", body["count"])
	}
	first := body["results"].([]any)[0].(map[string]any)["atom"].(map[string]any)
	if first["external_id"] != "b" {
		t.Errorf("top result = %v, want b", first["external_id"])
	}

	if w := do(t, srv, "GET", "/api/atoms/ghost/similar", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing atom: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestFocus(t *testing.T) {
	srv := testServer(t)
	seed(t, srv)
	do(t, srv, "POST", "/api/cycles", "")

	body := decode(t, do(t, srv, "GET", "/api/focus?limit=2", ""))
	focus := body["focus"].(string)
	if !strings.HasPrefix(focus, "<focus>") || !strings.HasSuffix(focus, "</focus>") {
		t.Errorf("focus not wrapped: %q", focus)
	}
	if !strings.Contains(focus, "### Atoms") || !strings.Contains(focus, "### Recent Cycles") {
		t.Errorf("focus missing sections: %q", focus)
	}
	if strings.Count(focus, "%)\n") != 2 {
		t.Errorf("focus should list 2 atoms: %q", focus)
	}
}
