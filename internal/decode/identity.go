package decode

import (
	"sort"

	"github.com/notnil/chess"
	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
)

// IdentityDecoder implements component D.2: it tracks each tag id's
// cell across successive TagObs grids and maps the observed position
// delta onto a legal move of the canonical board.
type IdentityDecoder struct {
	game        *chess.Game
	orientation domain.Orientation
	pieceMap    domain.PieceMap
	idSquare    map[int]chess.Square
}

// NewIdentityDecoder seeds the canonical board and the id->square map
// from pieceMap's InitialSquare entries.
func NewIdentityDecoder(pieceMap domain.PieceMap, orientation domain.Orientation) (*IdentityDecoder, error) {
	if err := domain.ValidatePieceMap(pieceMap); err != nil {
		return nil, errors.Wrap(err, "invalid piece map")
	}

	idSquare := make(map[int]chess.Square, len(pieceMap))
	for id, entry := range pieceMap {
		sq, err := squareFromName(entry.InitialSquare)
		if err != nil {
			return nil, errors.Wrapf(err, "piece map id %d", id)
		}
		idSquare[id] = sq
	}

	return &IdentityDecoder{
		game:        chess.NewGame(),
		orientation: orientation,
		pieceMap:    pieceMap,
		idSquare:    idSquare,
	}, nil
}

// Outcome reports the canonical board's terminal state ("*", "1-0",
// "0-1" or "1/2-1/2") once decoding has stopped, per spec.md §6.
func (d *IdentityDecoder) Outcome() string {
	return string(d.game.Outcome())
}

// ConfirmInitial compares the first TagObs grid against the expected
// starting layout, returning one warning string per id whose observed
// cell disagrees with the piece map (spec.md §4.D.2 step 1).
func (d *IdentityDecoder) ConfirmInitial(obs domain.TagObs) []string {
	observed := idPositions(obs)
	var warnings []string

	ids := make([]int, 0, len(d.idSquare))
	for id := range d.idSquare {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		expectedRow, expectedCol := squareToCell(d.idSquare[id], d.orientation)
		pos, ok := observed[id]
		if !ok {
			warnings = append(warnings, "id not observed in starting position: "+d.pieceMap[id].Name)
			continue
		}
		if pos[0] != expectedRow || pos[1] != expectedCol {
			warnings = append(warnings, "id observed off its starting square: "+d.pieceMap[id].Name)
		}
	}
	return warnings
}

func idPositions(obs domain.TagObs) map[int][2]int {
	m := make(map[int][2]int)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if id := obs.IDs[r][c]; id != 0 {
				m[id] = [2]int{r, c}
			}
		}
	}
	return m
}

func changedIDs(prev, cur map[int][2]int) []int {
	set := make(map[int]bool)
	for id, p := range prev {
		if q, ok := cur[id]; !ok || q != p {
			set[id] = true
		}
	}
	for id, q := range cur {
		if p, ok := prev[id]; !ok || p != q {
			set[id] = true
		}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// uncertainMove is the shared placeholder record for steps that cannot
// be resolved to a legal move. The canonical board is left untouched so
// later steps may still decode successfully.
func uncertainMove(ply int) domain.MoveRecord {
	return domain.MoveRecord{Ply: ply, SAN: "??", Uncertain: true}
}

// Step decodes one pair of successive TagObs grids, per spec.md §4.D.2
// steps 2-4.
func (d *IdentityDecoder) Step(ply int, prev, cur domain.TagObs) (domain.MoveRecord, error) {
	prevPos := idPositions(prev)
	curPos := idPositions(cur)
	changed := changedIDs(prevPos, curPos)

	switch len(changed) {
	case 1:
		return d.stepSingleMove(ply, changed[0], prevPos, curPos)
	case 2:
		if rec, ok := d.stepCaptureOrEnPassant(ply, changed, prevPos, curPos); ok {
			return rec, nil
		}
		if rec, ok := d.stepCastling(ply, changed, prevPos, curPos); ok {
			return rec, nil
		}
		return uncertainMove(ply), nil
	default:
		return uncertainMove(ply), nil
	}
}

func (d *IdentityDecoder) stepSingleMove(ply, id int, prevPos, curPos map[int][2]int) (domain.MoveRecord, error) {
	fromCell, hadFrom := prevPos[id]
	toCell, hadTo := curPos[id]
	if !hadFrom || !hadTo {
		return uncertainMove(ply), nil
	}

	from := cellToSquare(fromCell[0], fromCell[1], d.orientation)
	to := cellToSquare(toCell[0], toCell[1], d.orientation)

	move := d.findLegalMove(from, to)
	if move == nil {
		return uncertainMove(ply), nil
	}

	return d.acceptMove(ply, id, to, move)
}

// stepCaptureOrEnPassant handles both the "M=2 with a disappearing id"
// ordinary capture case and en passant: in both, the library's legal
// move generator already produces the correct from/to pair once the
// surviving piece's own movement is identified, so no special-casing of
// the captured pawn's square is required.
func (d *IdentityDecoder) stepCaptureOrEnPassant(ply int, changed []int, prevPos, curPos map[int][2]int) (domain.MoveRecord, bool) {
	var stayed int
	foundDisappeared, foundStayed := false, false

	for _, id := range changed {
		if _, ok := curPos[id]; !ok {
			foundDisappeared = true
		} else {
			stayed = id
			foundStayed = true
		}
	}
	if !foundDisappeared || !foundStayed {
		return domain.MoveRecord{}, false
	}

	fromCell, hadFrom := prevPos[stayed]
	toCell, hadTo := curPos[stayed]
	if !hadFrom || !hadTo {
		return domain.MoveRecord{}, false
	}

	from := cellToSquare(fromCell[0], fromCell[1], d.orientation)
	to := cellToSquare(toCell[0], toCell[1], d.orientation)

	move := d.findLegalMove(from, to)
	if move == nil {
		return domain.MoveRecord{}, false
	}

	rec, err := d.acceptMove(ply, stayed, to, move)
	if err != nil {
		return domain.MoveRecord{}, false
	}
	return rec, true
}

// stepCastling handles "M=2, both kept, both king+rook of the same
// color on canonical castling squares".
func (d *IdentityDecoder) stepCastling(ply int, changed []int, prevPos, curPos map[int][2]int) (domain.MoveRecord, bool) {
	var kingID int
	found := false
	for _, id := range changed {
		if d.pieceMap[id].Name == "King" {
			kingID = id
			found = true
		}
	}
	if !found {
		return domain.MoveRecord{}, false
	}

	fromCell, ok := prevPos[kingID]
	if !ok {
		return domain.MoveRecord{}, false
	}
	from := cellToSquare(fromCell[0], fromCell[1], d.orientation)

	king := d.idSquare[kingID]
	if from != king {
		return domain.MoveRecord{}, false
	}

	kingToCell, seen := curPos[kingID]
	if !seen {
		return domain.MoveRecord{}, false
	}
	observedTo := cellToSquare(kingToCell[0], kingToCell[1], d.orientation)

	var to chess.Square
	switch king {
	case chess.E1:
		to = chess.G1
	case chess.E8:
		to = chess.G8
	default:
		return domain.MoveRecord{}, false
	}

	var move *chess.Move
	if observedTo == to {
		move = d.findLegalMove(from, to)
	}
	if move == nil {
		// try queenside
		if from == chess.E1 {
			to = chess.C1
		} else {
			to = chess.C8
		}
		if observedTo == to {
			move = d.findLegalMove(from, to)
		}
	}
	if move == nil {
		return domain.MoveRecord{}, false
	}

	rec, err := d.acceptMove(ply, kingID, to, move)
	if err != nil {
		return domain.MoveRecord{}, false
	}

	// Update the rook's tracked id/square to its post-castling position.
	rookFrom, rookTo, ok := castlingRookSquares(from, to)
	if ok {
		for id, sq := range d.idSquare {
			if sq == rookFrom {
				d.idSquare[id] = rookTo
			}
		}
	}

	return rec, true
}

func castlingRookSquares(kingFrom, kingTo chess.Square) (rookFrom, rookTo chess.Square, ok bool) {
	switch {
	case kingFrom == chess.E1 && kingTo == chess.G1:
		return chess.H1, chess.F1, true
	case kingFrom == chess.E1 && kingTo == chess.C1:
		return chess.A1, chess.D1, true
	case kingFrom == chess.E8 && kingTo == chess.G8:
		return chess.H8, chess.F8, true
	case kingFrom == chess.E8 && kingTo == chess.C8:
		return chess.A8, chess.D8, true
	default:
		return chess.NoSquare, chess.NoSquare, false
	}
}

// findLegalMove looks up the legal move matching (from, to), preferring
// a Queen promotion when the mover is a pawn reaching the last rank
// (spec.md §4.D.2 step 3, default promotion; see the Open Question
// decision in DESIGN.md).
func (d *IdentityDecoder) findLegalMove(from, to chess.Square) *chess.Move {
	moves := d.game.Position().ValidMoves()

	for _, m := range moves {
		if m.S1() == from && m.S2() == to && (m.Promo() == chess.NoPieceType || m.Promo() == chess.Queen) {
			return m
		}
	}
	for _, m := range moves {
		if m.S1() == from && m.S2() == to {
			return m
		}
	}
	return nil
}

func (d *IdentityDecoder) acceptMove(ply, id int, to chess.Square, move *chess.Move) (domain.MoveRecord, error) {
	pos := d.game.Position()
	san := chess.AlgebraicNotation{}.Encode(pos, move)
	uci := uciString(move)

	if err := d.game.Move(move); err != nil {
		return domain.MoveRecord{}, errors.Wrapf(err, "applying identity-decoded move %s", san)
	}
	d.idSquare[id] = to

	return domain.MoveRecord{
		Ply:      ply,
		SAN:      san,
		UCI:      uci,
		FENAfter: d.game.Position().String(),
		Candidates: []domain.Candidate{
			{SAN: san, Score: 0},
		},
	}, nil
}
