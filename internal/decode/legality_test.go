package decode

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/otbreview/otbreview/internal/domain"
)

func TestLegalityDecoderSinglePawnPush(t *testing.T) {
	d := NewLegalityDecoder(domain.OrientationWhiteBottom)

	game := chess.NewGame()
	move := findMoveByUCI(t, game, "e2e4")
	next := game.Position().Update(move)
	obs := domain.PhotometricObs{Frame: 1, Cells: occupancyFromBoard(next.Board(), domain.OrientationWhiteBottom)}

	rec, err := d.Step(1, obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SAN != "e4" {
		t.Errorf("expected SAN e4, got %q", rec.SAN)
	}
	if rec.Uncertain {
		t.Error("expected a clean single-candidate decode to not be marked uncertain")
	}
}

func TestLegalityDecoderAdvancesCanonicalBoard(t *testing.T) {
	d := NewLegalityDecoder(domain.OrientationWhiteBottom)

	game := chess.NewGame()
	m1 := findMoveByUCI(t, game, "e2e4")
	pos1 := game.Position().Update(m1)
	obs1 := domain.PhotometricObs{Frame: 1, Cells: occupancyFromBoard(pos1.Board(), domain.OrientationWhiteBottom)}
	if _, err := d.Step(1, obs1); err != nil {
		t.Fatalf("step 1: unexpected error: %v", err)
	}

	game2 := chess.NewGame()
	if err := game2.Move(m1); err != nil {
		t.Fatalf("unexpected error applying move: %v", err)
	}
	m2 := findMoveByUCI(t, game2, "e7e5")
	pos2 := game2.Position().Update(m2)
	obs2 := domain.PhotometricObs{Frame: 2, Cells: occupancyFromBoard(pos2.Board(), domain.OrientationWhiteBottom)}

	rec, err := d.Step(2, obs2)
	if err != nil {
		t.Fatalf("step 2: unexpected error: %v", err)
	}
	if rec.SAN != "e5" {
		t.Errorf("expected SAN e5, got %q", rec.SAN)
	}
}

func findMoveByUCI(t *testing.T, game *chess.Game, uci string) *chess.Move {
	t.Helper()
	for _, m := range game.Position().ValidMoves() {
		if uciString(m) == uci {
			return m
		}
	}
	t.Fatalf("move %s not found among legal moves", uci)
	return nil
}
