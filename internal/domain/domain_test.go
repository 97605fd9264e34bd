package domain

import (
	"math"
	"testing"
)

func TestSquareStateString(t *testing.T) {
	cases := map[SquareState]string{
		Empty: "empty",
		Light: "light",
		Dark:  "dark",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("SquareState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestPhotometricObsMeanConfidenceUniform(t *testing.T) {
	var obs PhotometricObs
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			obs.Confidence[r][c] = 0.8
		}
	}
	if got := obs.MeanConfidence(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("MeanConfidence() = %v, want 0.8", got)
	}
}

func TestPhotometricObsMeanConfidenceMixed(t *testing.T) {
	var obs PhotometricObs
	obs.Confidence[0][0] = 1.0
	if got := obs.MeanConfidence(); got <= 0 || got >= 1.0 {
		t.Errorf("MeanConfidence() = %v, want a value strictly between 0 and 1", got)
	}
}

func TestValidatePieceMapRejectsWrongCount(t *testing.T) {
	pm := PieceMap{1: {Symbol: 'P', Color: White, InitialSquare: "a2"}}
	if err := ValidatePieceMap(pm); err == nil {
		t.Error("expected error for piece map with fewer than 32 entries")
	}
}

func TestValidatePieceMapRejectsDuplicateSquares(t *testing.T) {
	pm := make(PieceMap)
	for i := 1; i <= 32; i++ {
		pm[i] = PieceMapEntry{Symbol: 'P', Color: White, InitialSquare: "a2"}
	}
	if err := ValidatePieceMap(pm); err == nil {
		t.Error("expected error for duplicate initial squares")
	}
}

func TestValidatePieceMapAcceptsStandardSetup(t *testing.T) {
	pm := standardPieceMapForTest()
	if err := ValidatePieceMap(pm); err != nil {
		t.Errorf("expected standard setup to validate, got %v", err)
	}
}

func standardPieceMapForTest() PieceMap {
	pm := make(PieceMap)
	files := "abcdefgh"
	id := 1
	for _, f := range files {
		pm[id] = PieceMapEntry{Symbol: 'P', Color: White, InitialSquare: string(f) + "2"}
		id++
	}
	backRank := []byte{'R', 'N', 'B', 'Q', 'K', 'B', 'N', 'R'}
	for i, f := range files {
		pm[id] = PieceMapEntry{Symbol: backRank[i], Color: White, InitialSquare: string(f) + "1"}
		id++
	}
	for _, f := range files {
		pm[id] = PieceMapEntry{Symbol: 'p', Color: Black, InitialSquare: string(f) + "7"}
		id++
	}
	for i, f := range files {
		sym := backRank[i] + ('a' - 'A')
		pm[id] = PieceMapEntry{Symbol: sym, Color: Black, InitialSquare: string(f) + "8"}
		id++
	}
	return pm
}
