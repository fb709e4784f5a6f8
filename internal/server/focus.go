package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxFocusItems caps the attentional focus listing.
const maxFocusItems = 15

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", maxFocusItems)
	focus, err := s.buildFocus(limit, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"focus": focus,
	})
}

// buildFocus renders the atoms holding the most attention, with their share
// of the stored total, followed by the latest cycles.
func (s *Server) buildFocus(limit int, now time.Time) (string, error) {
	var b strings.Builder

	b.WriteString("<focus>\n## Salience: Attentional Focus\n")

	top, err := s.db.TopAtoms(limit)
	if err != nil {
		return "", err
	}
	all, err := s.db.ListAtoms(0)
	if err != nil {
		return "", err
	}
	total := 0.0
	for _, a := range all {
		total += a.Attention
	}

	if len(top) > 0 && total > 0 {
		b.WriteString("\n### Atoms\n")
		for _, a := range top {
			if a.Attention <= 0 {
				continue
			}
			b.WriteString(fmt.Sprintf("- %s: %s (%.1f%%)\n",
				a.ExternalID, humanize.FormatFloat("#,###.##", a.Attention), 100*a.Attention/total))
		}
	}

	cycles, err := s.db.RecentCycles(5)
	if err == nil && len(cycles) > 0 {
		b.WriteString("\n### Recent Cycles\n")
		for _, c := range cycles {
			ts := humanize.RelTime(time.UnixMilli(c.CreatedAt), now, "ago", "from now")
			b.WriteString(fmt.Sprintf("- [%s] %s: %d atoms, entropy %.3f, utilization %.1f%%\n",
				ts, c.Mechanism, c.NodeCount, c.AttentionEntropy, 100*c.ResourceUtilization))
		}
	}

	b.WriteString("</focus>")
	return b.String(), nil
}
