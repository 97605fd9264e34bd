package decode

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/otbreview/otbreview/internal/domain"
)

func TestSquareToCellRoundTripWhiteBottom(t *testing.T) {
	for sq := chess.Square(0); sq < 64; sq++ {
		row, col := squareToCell(sq, domain.OrientationWhiteBottom)
		if got := cellToSquare(row, col, domain.OrientationWhiteBottom); got != sq {
			t.Errorf("round trip failed for square %v: got %v via (%d,%d)", sq, got, row, col)
		}
	}
}

func TestSquareToCellRoundTripBlackBottom(t *testing.T) {
	for sq := chess.Square(0); sq < 64; sq++ {
		row, col := squareToCell(sq, domain.OrientationBlackBottom)
		if got := cellToSquare(row, col, domain.OrientationBlackBottom); got != sq {
			t.Errorf("round trip failed for square %v: got %v via (%d,%d)", sq, got, row, col)
		}
	}
}

func TestSquareToCellWhiteBottomCorners(t *testing.T) {
	if row, col := squareToCell(chess.A1, domain.OrientationWhiteBottom); row != 7 || col != 0 {
		t.Errorf("a1 should map to bottom-left (7,0), got (%d,%d)", row, col)
	}
	if row, col := squareToCell(chess.H8, domain.OrientationWhiteBottom); row != 0 || col != 7 {
		t.Errorf("h8 should map to top-right (0,7), got (%d,%d)", row, col)
	}
}

func TestOccupancyFromBoardStartingPosition(t *testing.T) {
	game := chess.NewGame()
	grid := occupancyFromBoard(game.Position().Board(), domain.OrientationWhiteBottom)

	for c := 0; c < 8; c++ {
		if grid[0][c] != domain.Dark {
			t.Errorf("rank 8 col %d expected Dark, got %v", c, grid[0][c])
		}
		if grid[1][c] != domain.Dark {
			t.Errorf("rank 7 col %d expected Dark, got %v", c, grid[1][c])
		}
		if grid[6][c] != domain.Light {
			t.Errorf("rank 2 col %d expected Light, got %v", c, grid[6][c])
		}
		if grid[7][c] != domain.Light {
			t.Errorf("rank 1 col %d expected Light, got %v", c, grid[7][c])
		}
		for r := 2; r <= 5; r++ {
			if grid[r][c] != domain.Empty {
				t.Errorf("row %d col %d expected Empty, got %v", r, c, grid[r][c])
			}
		}
	}
}

func TestHammingScoreIdenticalGridsZero(t *testing.T) {
	var g [8][8]domain.SquareState
	if got := hammingScore(g, g); got != 0 {
		t.Errorf("expected zero score for identical grids, got %f", got)
	}
}

func TestHammingScoreColorMismatchWeighsDouble(t *testing.T) {
	var a, b [8][8]domain.SquareState
	a[0][0] = domain.Light
	b[0][0] = domain.Dark
	if got := hammingScore(a, b); got != 2 {
		t.Errorf("expected color mismatch to score 2, got %f", got)
	}
}

func TestHammingScoreEmptyPieceMismatchScoresOne(t *testing.T) {
	var a, b [8][8]domain.SquareState
	a[0][0] = domain.Empty
	b[0][0] = domain.Light
	if got := hammingScore(a, b); got != 1 {
		t.Errorf("expected empty/piece mismatch to score 1, got %f", got)
	}
}

func TestSquareFromNameParsesAlgebraic(t *testing.T) {
	sq, err := squareFromName("e2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sq != chess.E2 {
		t.Errorf("expected e2 to parse to chess.E2, got %v", sq)
	}
}

func TestSquareFromNameRejectsInvalid(t *testing.T) {
	if _, err := squareFromName("z9"); err == nil {
		t.Error("expected an error for an out-of-range square name")
	}
	if _, err := squareFromName("e"); err == nil {
		t.Error("expected an error for a short square name")
	}
}
