// Package decode implements component D, the Move Decoder: a
// legality-constrained decoder for photometric observations and an
// identity-tracking decoder for tag observations, plus PGN/moves.json
// emission shared by both.
package decode

import (
	"fmt"

	"github.com/notnil/chess"
	"github.com/otbreview/otbreview/internal/domain"
)

// squareToCell maps a chess.Square to a (row, col) grid cell under the
// given board orientation. white_bottom: row 0 is rank 8, col 0 is file
// a. black_bottom rotates the board 180 degrees.
func squareToCell(sq chess.Square, orientation domain.Orientation) (row, col int) {
	rank := int(sq) / 8
	file := int(sq) % 8
	if orientation == domain.OrientationBlackBottom {
		return rank, 7 - file
	}
	return 7 - rank, file
}

func cellToSquare(row, col int, orientation domain.Orientation) chess.Square {
	var rank, file int
	if orientation == domain.OrientationBlackBottom {
		rank, file = row, 7-col
	} else {
		rank, file = 7-row, col
	}
	return chess.Square(rank*8 + file)
}

// squareFromName parses algebraic square names like "e2".
func squareFromName(name string) (chess.Square, error) {
	if len(name) != 2 {
		return chess.NoSquare, fmt.Errorf("invalid square name %q", name)
	}
	file := int(name[0] - 'a')
	rank := int(name[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return chess.NoSquare, fmt.Errorf("square name %q out of range", name)
	}
	return chess.Square(rank*8 + file), nil
}

// occupancyFromBoard renders a canonical chess.Board into the grid
// representation the Square Observer produces, for Hamming comparison.
func occupancyFromBoard(board *chess.Board, orientation domain.Orientation) [8][8]domain.SquareState {
	var grid [8][8]domain.SquareState
	for sq := 0; sq < 64; sq++ {
		piece := board.Piece(chess.Square(sq))
		if piece == chess.NoPiece {
			continue
		}
		row, col := squareToCell(chess.Square(sq), orientation)
		if piece.Color() == chess.White {
			grid[row][col] = domain.Light
		} else {
			grid[row][col] = domain.Dark
		}
	}
	return grid
}

// hammingScore weights a color mismatch (light vs dark piece) twice as
// heavily as an empty-vs-piece mismatch, per spec.md §4.D.1 step 3.
func hammingScore(expected, observed [8][8]domain.SquareState) float64 {
	var score float64
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			e, o := expected[r][c], observed[r][c]
			if e == o {
				continue
			}
			if e == domain.Empty || o == domain.Empty {
				score++
			} else {
				score += 2
			}
		}
	}
	return score
}

func uciString(m *chess.Move) string {
	s := m.S1().String() + m.S2().String()
	if m.Promo() != chess.NoPieceType {
		s += promoLetter(m.Promo())
	}
	return s
}

func promoLetter(pt chess.PieceType) string {
	switch pt {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return ""
	}
}
