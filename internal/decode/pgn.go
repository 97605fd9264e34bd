package decode

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
)

// canonicalHeaderOrder is the Seven Tag Roster order PGN readers expect
// first; any additional headers follow alphabetically.
var canonicalHeaderOrder = []string{"Event", "Site", "Date", "Round", "White", "Black", "Result"}

// BuildGame assembles a domain.Game from decoded move records. KeyPlies
// is left empty here; the Engine Annotator (component E) fills it in
// once evaluations are available.
func BuildGame(headers map[string]string, moves []domain.MoveRecord) domain.Game {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return domain.Game{Headers: h, Moves: moves}
}

// WritePGN renders a domain.Game as PGN text. Uncertain moves are kept
// in the movetext as `{??}` comments so ply numbering stays intact for
// later re-decoding passes, rather than being silently skipped.
func WritePGN(w io.Writer, g domain.Game) error {
	bw := bufio.NewWriter(w)

	for _, key := range canonicalHeaderOrder {
		if v, ok := g.Headers[key]; ok {
			fmt.Fprintf(bw, "[%s %q]\n", key, v)
		}
	}

	var extra []string
	seen := make(map[string]bool, len(canonicalHeaderOrder))
	for _, k := range canonicalHeaderOrder {
		seen[k] = true
	}
	for k := range g.Headers {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		fmt.Fprintf(bw, "[%s %q]\n", key, g.Headers[key])
	}

	bw.WriteString("\n")

	col := 0
	writeToken := func(tok string) {
		if col > 0 && col+1+len(tok) > 80 {
			bw.WriteString("\n")
			col = 0
		} else if col > 0 {
			bw.WriteString(" ")
			col++
		}
		bw.WriteString(tok)
		col += len(tok)
	}

	for _, m := range g.Moves {
		moveNumber := (m.Ply + 1) / 2
		if m.Ply%2 == 1 {
			writeToken(fmt.Sprintf("%d.", moveNumber))
		} else if m.Ply == g.Moves[0].Ply {
			writeToken(fmt.Sprintf("%d...", moveNumber))
		}

		san := m.SAN
		if m.Uncertain {
			if san == "" {
				san = "??"
			}
			writeToken(san)
			writeToken("{??}")
			continue
		}
		writeToken(san)

		if m.Classification != "" {
			writeToken(fmt.Sprintf("{%s}", m.Classification))
		}
	}

	if result, ok := g.Headers["Result"]; ok && result != "" {
		writeToken(result)
	} else {
		writeToken("*")
	}
	bw.WriteString("\n")

	return bw.Flush()
}

// WriteMovesJSON persists the decoded move records for machine
// consumption (spec.md §4.F moves.json).
func WriteMovesJSON(w io.Writer, moves []domain.MoveRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(moves); err != nil {
		return errors.Wrap(err, "encoding moves.json")
	}
	return nil
}
