package decode

import (
	"sort"

	"github.com/notnil/chess"
	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
)

// uncertaintyMargin is the minimum Hamming-score gap (grid-cell
// equivalents) between the best and second-best candidate move below
// which a step is marked uncertain, per spec.md §4.D.1 step 4.
const uncertaintyMargin = 0.1

// LegalityDecoder implements component D.1: it walks a sequence of
// photometric observations, at each step scoring every legal move from
// the canonical board by how closely its resulting occupancy grid
// matches the observed one.
type LegalityDecoder struct {
	game        *chess.Game
	orientation domain.Orientation
}

// NewLegalityDecoder starts a fresh canonical board.
func NewLegalityDecoder(orientation domain.Orientation) *LegalityDecoder {
	return &LegalityDecoder{game: chess.NewGame(), orientation: orientation}
}

// Position exposes the canonical board's current FEN, used by callers
// that need it ahead of the next observation.
func (d *LegalityDecoder) Position() string {
	return d.game.Position().String()
}

// Outcome reports the canonical board's terminal state ("*", "1-0",
// "0-1" or "1/2-1/2") once decoding has stopped, per spec.md §6.
func (d *LegalityDecoder) Outcome() string {
	return string(d.game.Outcome())
}

type scoredMove struct {
	move  *chess.Move
	score float64
}

// Step decodes one observation transition into a MoveRecord and
// advances the canonical board on success.
func (d *LegalityDecoder) Step(ply int, obs domain.PhotometricObs) (domain.MoveRecord, error) {
	pos := d.game.Position()
	moves := pos.ValidMoves()
	if len(moves) == 0 {
		return domain.MoveRecord{}, errors.New("no legal moves available from current position")
	}

	scored := make([]scoredMove, 0, len(moves))
	for _, m := range moves {
		next := pos.Update(m)
		expected := occupancyFromBoard(next.Board(), d.orientation)
		scored = append(scored, scoredMove{move: m, score: hammingScore(expected, obs.Cells)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].move.String() < scored[j].move.String()
	})

	best := scored[0]
	uncertain := len(scored) > 1 && scored[1].score-best.score < uncertaintyMargin

	top := scored
	if len(top) > 3 {
		top = top[:3]
	}
	candidates := make([]domain.Candidate, 0, len(top))
	for _, s := range top {
		candidates = append(candidates, domain.Candidate{
			SAN:   chess.AlgebraicNotation{}.Encode(pos, s.move),
			Score: s.score,
		})
	}

	san := chess.AlgebraicNotation{}.Encode(pos, best.move)
	uci := uciString(best.move)

	if err := d.game.Move(best.move); err != nil {
		return domain.MoveRecord{}, errors.Wrapf(err, "applying decoded move %s", san)
	}

	return domain.MoveRecord{
		Ply:        ply,
		SAN:        san,
		UCI:        uci,
		FENAfter:   d.game.Position().String(),
		Uncertain:  uncertain,
		Candidates: candidates,
	}, nil
}
